package search

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Publication-date extraction for latest_finder. Strategies in order of
// trust: JSON-LD datePublished, OpenGraph/meta tags, <time datetime>,
// loose date text.

var (
	looseDatePattern = regexp.MustCompile(
		`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b` +
			`|\b\d{4}-\d{2}-\d{2}\b`)

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"Jan. 2, 2006",
		"January 2 2006",
		"2 January 2006",
	}
)

// ExtractPublishedDate mines an HTML document for its publication date.
// Returns the zero time when nothing is found.
func ExtractPublishedDate(raw string) time.Time {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return parseLooseDate(raw)
	}

	var (
		jsonLD   []string
		metaDate string
		timeAttr string
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				if attrValue(n, "type") == "application/ld+json" && n.FirstChild != nil {
					jsonLD = append(jsonLD, n.FirstChild.Data)
				}
			case "meta":
				prop := attrValue(n, "property")
				name := attrValue(n, "name")
				if metaDate == "" && (prop == "article:published_time" ||
					prop == "og:published_time" ||
					name == "date" || name == "publish-date" || name == "publication_date" ||
					name == "parsely-pub-date" || name == "sailthru.date") {
					metaDate = attrValue(n, "content")
				}
			case "time":
				if timeAttr == "" {
					timeAttr = attrValue(n, "datetime")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, blob := range jsonLD {
		if t := datePublishedFromJSONLD(blob); !t.IsZero() {
			return t
		}
	}
	if t := parseDateString(metaDate); !t.IsZero() {
		return t
	}
	if t := parseDateString(timeAttr); !t.IsZero() {
		return t
	}
	return parseLooseDate(raw)
}

func datePublishedFromJSONLD(blob string) time.Time {
	var node any
	if err := json.Unmarshal([]byte(blob), &node); err != nil {
		return time.Time{}
	}
	return findDatePublished(node)
}

func findDatePublished(node any) time.Time {
	switch v := node.(type) {
	case map[string]any:
		if raw, ok := v["datePublished"].(string); ok {
			if t := parseDateString(raw); !t.IsZero() {
				return t
			}
		}
		for _, child := range v {
			if t := findDatePublished(child); !t.IsZero() {
				return t
			}
		}
	case []any:
		for _, child := range v {
			if t := findDatePublished(child); !t.IsZero() {
				return t
			}
		}
	}
	return time.Time{}
}

func parseDateString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseLooseDate(text string) time.Time {
	match := looseDatePattern.FindString(text)
	if match == "" {
		return time.Time{}
	}
	return parseDateString(match)
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
