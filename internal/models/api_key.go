package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey is a provisioned key. Only the SHA-256 hash of the key is stored.
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	KeyHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	Owner      string     `json:"owner"`
	Tier       Tier       `gorm:"type:varchar(16);default:'basic'" json:"tier"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// Identifies the key in counters and logs without exposing it
	Fingerprint string `gorm:"-" json:"fingerprint"`
}

// Length of the hex hash prefix used as a key fingerprint
const FingerprintLength = 16

// FingerprintOf returns the fingerprint for a hex SHA-256 key hash
func FingerprintOf(keyHash string) string {
	if len(keyHash) <= FingerprintLength {
		return keyHash
	}
	return keyHash[:FingerprintLength]
}

func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Tier == "" {
		a.Tier = TierBasic
	}
	return nil
}

func (a *APIKey) AfterFind(tx *gorm.DB) error {
	a.Fingerprint = FingerprintOf(a.KeyHash)
	return nil
}

func (APIKey) TableName() string {
	return "api_keys"
}
