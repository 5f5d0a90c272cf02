// Package guard rejects fetch targets that point into loopback or private
// networks.
//
// Literal inspects only the hostname as written in the URL; it performs no DNS
// lookup, so a public name that resolves to a private address (DNS rebinding)
// passes it. DialControl closes that gap at connect time when enabled.
package guard

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// ErrBlocked is returned for targets in a blocked range
var ErrBlocked = errors.New("target address is not allowed")

// Guard decides whether a normalized URL may be fetched
type Guard interface {
	Check(rawURL string) error
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/32"),
	netip.MustParsePrefix("::1/128"),
}

// Literal matches the hostname string against the blocked names and ranges
type Literal struct{}

func (Literal) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Unparseable URLs are left for the fetcher to reject
		return nil
	}
	return checkHost(u.Hostname())
}

// AllowAll disables the guard, for local development against private hosts
type AllowAll struct{}

func (AllowAll) Check(string) error { return nil }

func checkHost(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlocked, host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if isBlockedAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlocked, host)
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// DialControl is a net.Dialer Control hook that refuses connections to blocked
// addresses after DNS resolution.
func DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlocked, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlocked, address)
	}
	if isBlockedAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlocked, address)
	}
	return nil
}
