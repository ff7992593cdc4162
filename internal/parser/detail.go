package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// Field names written by the detail extractor.
const (
	FieldID              = types.FieldID
	FieldSchoolName      = "School name"
	FieldWebsite         = "Website"
	FieldDiplomaTypes    = "Diploma types"
	FieldAuthorised      = "Authorised"
	FieldLanguage        = "Language of instruction"
	FieldGender          = "Gender"
	FieldBoarding        = "Boarding facilities"
	FieldExaminations    = "Examinations"
	FieldSubjectsOffered = "Subjects offered"

	noDiplomaTypes = "None found"
)

const (
	schoolNameSelector   = "h1.Heading.Heading--blue.Heading--h1.u-marginBottomL"
	propertyListSelector = "dl.PropertyList"
	programmeSelector    = "div.PropertyList.u-marginTopZero"
	propertyItemSelector = "div.PropertyList-item"
	websiteSelector      = "a.Link"
	subjectSelector      = "li.List-item.u-xsm-size1of2"
)

// summaryKeys are the keys kept from the school's main property list.
var summaryKeys = map[string]bool{
	"Type":                true,
	"Head of school":      true,
	"IB School since":     true,
	"Country / territory": true,
	"Region":              true,
	"IB School code":      true,
}

var diplomaTypes = map[string]bool{
	"MYP":     true,
	"PYP":     true,
	"CP":      true,
	"DIPLOMA": true,
}

// programmeKeys are collected across every programme block, in output order.
var programmeKeys = []string{
	FieldAuthorised,
	FieldLanguage,
	FieldGender,
	FieldBoarding,
	FieldExaminations,
}

// DetailExtractor turns a school detail page into a Record.
type DetailExtractor struct {
	rules  []config.ParseRule
	extra  Parser
	logger *slog.Logger
}

// NewDetailExtractor creates an extractor that also applies the given extra rules.
func NewDetailExtractor(rules []config.ParseRule, logger *slog.Logger) *DetailExtractor {
	return &DetailExtractor{
		rules:  rules,
		extra:  NewCompositeParser(logger),
		logger: logger.With("component", "detail_extractor"),
	}
}

// Extract builds the record for id from a fetched detail page.
func (e *DetailExtractor) Extract(resp *types.Response, id string) (*types.Record, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL, Err: err}
	}

	rec := ExtractFields(doc, id, resp.URL)
	if err := e.extra.Parse(resp, rec, e.rules); err != nil {
		e.logger.Warn("extra rules failed", "id", id, "error", err)
	}
	return rec, nil
}

// ExtractFields reads the built-in school fields from doc. Elements missing
// from the page leave their fields unset, except Diploma types which falls
// back to "None found".
func ExtractFields(doc *goquery.Document, id, sourceURL string) *types.Record {
	rec := types.NewRecord(id, sourceURL)
	rec.Set(FieldID, id)

	if h1 := doc.Find(schoolNameSelector).First(); h1.Length() > 0 {
		rec.Set(FieldSchoolName, strings.TrimSpace(h1.Text()))
	}

	doc.Find(propertyListSelector).First().Find(propertyItemSelector).Each(func(i int, item *goquery.Selection) {
		key, value, ok := propertyPair(item, "dt.PropertyList-key", "dd.PropertyList-value")
		if ok && summaryKeys[key] {
			rec.Set(key, value)
		}
	})

	if href, ok := doc.Find(websiteSelector).First().Attr("href"); ok {
		rec.Set(FieldWebsite, href)
	}

	var diplomas []string
	doc.Find("h3").Each(func(i int, h3 *goquery.Selection) {
		alt, ok := h3.Find("img").First().Attr("alt")
		if !ok {
			return
		}
		alt = strings.ToUpper(alt)
		if diplomaTypes[alt] {
			diplomas = append(diplomas, alt)
		}
	})
	if len(diplomas) > 0 {
		rec.Set(FieldDiplomaTypes, strings.Join(diplomas, joinSeparator))
	} else {
		rec.Set(FieldDiplomaTypes, noDiplomaTypes)
	}

	collected := make(map[string]*orderedSet, len(programmeKeys))
	for _, k := range programmeKeys {
		collected[k] = &orderedSet{seen: make(map[string]bool)}
	}
	doc.Find(programmeSelector).Each(func(i int, block *goquery.Selection) {
		block.Find(propertyItemSelector).Each(func(j int, item *goquery.Selection) {
			key, value, ok := propertyPair(item, "div.PropertyList-key", "div.PropertyList-value")
			if !ok {
				return
			}
			if set, tracked := collected[key]; tracked {
				set.add(value)
			}
		})
	})
	for _, k := range programmeKeys {
		if set := collected[k]; len(set.values) > 0 {
			rec.Set(k, strings.Join(set.values, joinSeparator))
		}
	}

	var subjects []string
	doc.Find(subjectSelector).Each(func(i int, li *goquery.Selection) {
		subjects = append(subjects, strings.TrimSpace(li.Text()))
	})
	if len(subjects) > 0 {
		rec.Set(FieldSubjectsOffered, strings.Join(subjects, joinSeparator))
	}

	return rec
}

// propertyPair reads a key/value pair from a PropertyList item. ok is false
// when either element is missing.
func propertyPair(item *goquery.Selection, keySelector, valueSelector string) (key, value string, ok bool) {
	k := item.Find(keySelector).First()
	v := item.Find(valueSelector).First()
	if k.Length() == 0 || v.Length() == 0 {
		return "", "", false
	}
	key = strings.TrimSpace(strings.Trim(strings.TrimSpace(k.Text()), ":"))
	return key, strings.TrimSpace(v.Text()), true
}

type orderedSet struct {
	seen   map[string]bool
	values []string
}

func (s *orderedSet) add(v string) {
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.values = append(s.values, v)
}
