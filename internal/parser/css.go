package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// CSSParser extracts data using CSS selectors via goquery.
type CSSParser struct {
	logger *slog.Logger
}

// NewCSSParser creates a new CSS selector parser.
func NewCSSParser(logger *slog.Logger) *CSSParser {
	return &CSSParser{
		logger: logger.With("component", "css_parser"),
	}
}

// Parse implements Parser. Rules with an empty type are treated as CSS.
func (p *CSSParser) Parse(resp *types.Response, rec *types.Record, rules []config.ParseRule) error {
	doc, err := resp.Document()
	if err != nil {
		return &types.ParseError{URL: resp.URL, Err: err}
	}

	for _, rule := range rules {
		if rule.Type != "css" && rule.Type != "" {
			continue
		}
		if values := extractCSS(doc.Selection, rule.Selector, rule.Attribute); len(values) > 0 {
			rec.Set(rule.Name, strings.Join(values, joinSeparator))
		}
	}
	return nil
}

// extractCSS returns the non-empty value of every element matching selector.
func extractCSS(root *goquery.Selection, selector, attribute string) []string {
	var values []string

	root.Find(selector).Each(func(i int, sel *goquery.Selection) {
		var val string

		switch attribute {
		case "", "text":
			val = strings.TrimSpace(sel.Text())
		case "html", "innerHTML":
			val, _ = sel.Html()
		case "outerHTML":
			val, _ = goquery.OuterHtml(sel)
		default:
			val, _ = sel.Attr(attribute)
			val = strings.TrimSpace(val)
		}

		if val != "" {
			values = append(values, val)
		}
	})

	return values
}
