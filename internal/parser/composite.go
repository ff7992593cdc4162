package parser

import (
	"log/slog"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// CompositeParser combines the CSS, XPath and regex parsers.
// Errors from one parser are logged and do not stop the others.
type CompositeParser struct {
	parsers []Parser
	logger  *slog.Logger
}

// NewCompositeParser creates a parser that handles CSS, regex, and XPath rules.
func NewCompositeParser(logger *slog.Logger) *CompositeParser {
	return &CompositeParser{
		parsers: []Parser{
			NewCSSParser(logger),
			NewXPathParser(logger),
			NewRegexParser(logger),
		},
		logger: logger.With("component", "composite_parser"),
	}
}

// Parse implements Parser by delegating to sub-parsers.
func (p *CompositeParser) Parse(resp *types.Response, rec *types.Record, rules []config.ParseRule) error {
	if len(rules) == 0 {
		return nil
	}
	for _, sub := range p.parsers {
		if err := sub.Parse(resp, rec, rules); err != nil {
			p.logger.Warn("extraction rule failed", "url", resp.URL, "error", err)
		}
	}
	return nil
}
