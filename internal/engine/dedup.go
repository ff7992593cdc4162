package engine

import (
	"net/url"
	"strings"
)

// VisitedPages remembers which listing pages were already fetched so a
// next link pointing back into the chain ends pagination. The crawl is
// sequential, so no locking is needed.
type VisitedPages struct {
	seen map[string]struct{}
}

// NewVisitedPages creates an empty set.
func NewVisitedPages() *VisitedPages {
	return &VisitedPages{seen: make(map[string]struct{})}
}

// IsSeen reports whether pageURL, or an equivalent spelling of it, was marked.
func (v *VisitedPages) IsSeen(pageURL string) bool {
	_, ok := v.seen[pageKey(pageURL)]
	return ok
}

// MarkSeen records pageURL as fetched.
func (v *VisitedPages) MarkSeen(pageURL string) {
	v.seen[pageKey(pageURL)] = struct{}{}
}

// Count returns the number of distinct pages marked.
func (v *VisitedPages) Count() int {
	return len(v.seen)
}

// pageKey reduces a listing URL to the parts that select a page: the host
// without case or default port, the path without a trailing slash, and the
// query with its parameters in key order. Fragments never change the page.
func pageKey(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}

	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		path = "/"
	}

	key := scheme + "://" + host + path
	if u.RawQuery != "" {
		// Encode sorts by key; values keep their order within a key.
		key += "?" + u.Query().Encode()
	}
	return key
}
