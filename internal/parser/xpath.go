package parser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// XPathParser extracts data using XPath expressions.
type XPathParser struct {
	logger *slog.Logger
}

// NewXPathParser creates a new XPath parser.
func NewXPathParser(logger *slog.Logger) *XPathParser {
	return &XPathParser{
		logger: logger.With("component", "xpath_parser"),
	}
}

// Parse implements Parser for XPath rules.
func (p *XPathParser) Parse(resp *types.Response, rec *types.Record, rules []config.ParseRule) error {
	var doc *html.Node
	var errs []error

	for _, rule := range rules {
		if rule.Type != "xpath" {
			continue
		}
		if doc == nil {
			var err error
			doc, err = html.Parse(bytes.NewReader(resp.Body))
			if err != nil {
				return &types.ParseError{URL: resp.URL, Err: err}
			}
		}

		values, err := extractXPath(doc, rule)
		if err != nil {
			errs = append(errs, &types.ParseError{URL: resp.URL, Selector: rule.Selector, Err: fmt.Errorf("rule %q: %w", rule.Name, err)})
			continue
		}
		if len(values) > 0 {
			rec.Set(rule.Name, strings.Join(values, joinSeparator))
		}
	}

	return errors.Join(errs...)
}

// extractXPath applies a single XPath expression and returns matched values.
func extractXPath(doc *html.Node, rule config.ParseRule) ([]string, error) {
	nodes, err := htmlquery.QueryAll(doc, rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", rule.Selector, err)
	}

	var values []string
	for _, node := range nodes {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(htmlquery.InnerText(node))
		case "html", "innerHTML":
			val = htmlquery.OutputHTML(node, false)
		case "outerHTML":
			val = htmlquery.OutputHTML(node, true)
		default:
			val = strings.TrimSpace(htmlquery.SelectAttr(node, rule.Attribute))
		}

		if val != "" {
			values = append(values, val)
		}
	}

	return values, nil
}
