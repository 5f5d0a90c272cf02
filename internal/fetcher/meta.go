package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Pulls the document title and meta description out of an HTML page
func extractMeta(html string) (title, description string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("head title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	if description == "" {
		description, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
	}

	return title, strings.TrimSpace(description)
}
