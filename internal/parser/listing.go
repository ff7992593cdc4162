package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Next-link strategies, tried in order.
const (
	loadMoreSelector = `a.Button.Button--widest[data-module="load-more"]`
	nextPageSelector = `a[aria-label="Next page"]`
)

// ExtractRecordIDs returns the identifier of every anchor whose href starts
// with prefix, in document order. The identifier is the second-to-last
// "/"-separated segment of the href, so "/school/001234/" yields "001234".
// Duplicates are kept.
func ExtractRecordIDs(doc *goquery.Document, prefix string) []string {
	if doc == nil {
		return nil
	}

	var ids []string
	doc.Find(fmt.Sprintf(`a[href^=%q]`, prefix)).Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		parts := strings.Split(href, "/")
		if len(parts) < 2 {
			return
		}
		ids = append(ids, parts[len(parts)-2])
	})
	return ids
}

// ExtractNextPageURL returns the raw href of the listing's next-page link,
// or "" when the page has none.
func ExtractNextPageURL(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}

	for _, selector := range []string{loadMoreSelector, nextPageSelector} {
		if href, ok := doc.Find(selector).First().Attr("href"); ok {
			return href
		}
	}

	var next string
	doc.Find("a").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if ok && strings.Contains(strings.ToLower(sel.Text()), "next") {
			next = href
			return false
		}
		return true
	})
	return next
}

// ResolveNextURL turns an href found on the page at base into an absolute URL.
// Scheme-relative links get https, root-relative links get base's origin and
// anything else is resolved against base.
func ResolveNextURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)

	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href, nil
	case strings.HasPrefix(href, "/"):
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base %q: %w", base, err)
		}
		return b.Scheme + "://" + b.Host + href, nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return href, nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(ref).String(), nil
}
