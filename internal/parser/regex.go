package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// RegexParser extracts data from the raw page body using regular expressions.
type RegexParser struct {
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*regexp.Regexp
}

// NewRegexParser creates a new regex parser.
func NewRegexParser(logger *slog.Logger) *RegexParser {
	return &RegexParser{
		logger: logger.With("component", "regex_parser"),
		cache:  make(map[string]*regexp.Regexp),
	}
}

// Parse implements Parser for regex rules.
func (p *RegexParser) Parse(resp *types.Response, rec *types.Record, rules []config.ParseRule) error {
	body := string(resp.Body)
	var errs []error

	for _, rule := range rules {
		if rule.Type != "regex" {
			continue
		}

		re, err := p.getOrCompile(rule.Pattern)
		if err != nil {
			errs = append(errs, &types.ParseError{URL: resp.URL, Selector: rule.Pattern, Err: fmt.Errorf("rule %q: %w", rule.Name, err)})
			continue
		}

		if values := extractRegex(re, body); len(values) > 0 {
			rec.Set(rule.Name, strings.Join(values, joinSeparator))
		}
	}

	return errors.Join(errs...)
}

// extractRegex returns named group values when the pattern has any, else the
// first capture group, else whole matches.
func extractRegex(re *regexp.Regexp, body string) []string {
	var values []string

	names := re.SubexpNames()
	hasNamedGroups := false
	for _, name := range names {
		if name != "" {
			hasNamedGroups = true
			break
		}
	}

	switch {
	case hasNamedGroups:
		for _, match := range re.FindAllStringSubmatch(body, -1) {
			for i, name := range names {
				if name != "" && i < len(match) && match[i] != "" {
					values = append(values, strings.TrimSpace(match[i]))
				}
			}
		}
	case re.NumSubexp() > 0:
		for _, match := range re.FindAllStringSubmatch(body, -1) {
			if len(match) > 1 && match[1] != "" {
				values = append(values, strings.TrimSpace(match[1]))
			}
		}
	default:
		values = re.FindAllString(body, -1)
	}

	return values
}

// getOrCompile returns a cached compiled regex or compiles and caches a new one.
func (p *RegexParser) getOrCompile(pattern string) (*regexp.Regexp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if re, ok := p.cache[pattern]; ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	p.cache[pattern] = re
	return re, nil
}
