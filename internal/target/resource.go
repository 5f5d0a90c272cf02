package target

import "strings"

// ResourceType selects which resource of a site is fetched
type ResourceType string

const (
	HTML    ResourceType = "html"
	Robots  ResourceType = "robots"
	Sitemap ResourceType = "sitemap"
	LLMs    ResourceType = "llms"
)

// ParseResourceType maps a query value to a ResourceType. Empty and unknown
// values select HTML.
func ParseResourceType(s string) ResourceType {
	switch ResourceType(strings.ToLower(strings.TrimSpace(s))) {
	case Robots:
		return Robots
	case Sitemap:
		return Sitemap
	case LLMs:
		return LLMs
	default:
		return HTML
	}
}

// Accept returns the Accept header sent upstream for this resource type
func (r ResourceType) Accept() string {
	switch r {
	case Robots, LLMs:
		return "text/plain,*/*;q=0.8"
	case Sitemap:
		return "application/xml,text/xml;q=0.9,*/*;q=0.8"
	default:
		return "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
}

func (r ResourceType) String() string {
	return string(r)
}
