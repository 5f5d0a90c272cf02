// Package target turns user input into the absolute URLs the gateway fetches.
package target

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

var (
	schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

	// Tried in order when looking for a site's sitemap
	sitemapPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap"}
)

// Normalize turns raw into an absolute URL for the resource type. It never
// fails: malformed input yields a best-effort URL that the fetcher rejects.
func Normalize(raw string, rt ResourceType) string {
	base := absolute(raw)

	switch rt {
	case Robots:
		return withPath(base, "/robots.txt")
	case LLMs:
		return withPath(base, "/llms.txt")
	default:
		return base
	}
}

// Candidates lists the URLs to try in order. Only sitemaps have more than one.
// An explicit path that looks like a sitemap (ends in .xml or .xml.gz, or
// names "sitemap") is tried before the well-known ones; any other path is
// ignored.
func Candidates(raw string, rt ResourceType) []string {
	if rt != Sitemap {
		return []string{Normalize(raw, rt)}
	}

	base := absolute(raw)
	candidates := make([]string, 0, len(sitemapPaths)+1)
	if u, err := url.Parse(base); err == nil && looksLikeSitemap(u.Path) {
		candidates = append(candidates, base)
	}
	for _, p := range sitemapPaths {
		c := withPath(base, p)
		if len(candidates) > 0 && candidates[0] == c {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func looksLikeSitemap(p string) bool {
	p = strings.ToLower(p)
	if p == "" || p == "/" {
		return false
	}
	return strings.HasSuffix(p, ".xml") || strings.HasSuffix(p, ".xml.gz") || strings.Contains(p, "sitemap")
}

// Returns the hostname of rawURL, or "" when it has none
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// WithPath replaces the path of rawURL, keeping scheme and host
func WithPath(rawURL, path string) string {
	return withPath(rawURL, path)
}

func absolute(raw string) string {
	raw = strings.TrimSpace(raw)

	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		return toASCIIHost(u, raw)
	}

	s := schemePrefix.ReplaceAllString(raw, "")
	s = strings.TrimRight(s, "/")
	s = "https://" + s

	if u, err := url.Parse(s); err == nil {
		return toASCIIHost(u, s)
	}
	return s
}

func withPath(base, path string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return strings.TrimRight(base, "/") + path
	}

	out := url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   u.Host,
		Path:   path,
	}
	return out.String()
}

// Converts internationalized hostnames to punycode. fallback is returned when
// the host is already ASCII so that absolute input stays byte-identical.
func toASCIIHost(u *url.URL, fallback string) string {
	host := u.Hostname()
	if isASCII(host) {
		return fallback
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return fallback
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(ascii, port)
	} else {
		u.Host = ascii
	}
	return u.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
