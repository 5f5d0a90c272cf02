package models

import "strings"

// Tier is the quota class attached to an API key
type Tier string

const (
	TierTrial     Tier = "trial"
	TierBasic     Tier = "basic"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// Requests allowed per key per hour
var tierQuotas = map[Tier]int{
	TierTrial:     10,
	TierBasic:     100,
	TierPro:       1000,
	TierUnlimited: 999999,
}

// LookupTier reports whether s names a known tier.
func LookupTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	_, ok := tierQuotas[t]
	return t, ok
}

// ParseTier resolves s to a tier, falling back to basic for empty or unknown names.
func ParseTier(s string) Tier {
	if t, ok := LookupTier(s); ok {
		return t
	}
	return TierBasic
}

// Returns the hourly request quota for the tier
func (t Tier) Quota() int {
	if q, ok := tierQuotas[t]; ok {
		return q
	}
	return tierQuotas[TierBasic]
}

func (t Tier) String() string {
	return string(t)
}
