package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fieldKind classifies how a schema field is normalized.
type fieldKind int

const (
	fieldText fieldKind = iota
	fieldURL
	fieldLocation
)

// Per-target-type schema field tables. Field names mirror the JSON tags
// of the result structs in schemas.go.
var targetFields = map[TargetType]map[string]fieldKind{
	TargetLinkedInProfile: {
		"name":            fieldText,
		"headline":        fieldText,
		"current_company": fieldText,
		"location":        fieldLocation,
		"summary":         fieldText,
		"profile_url":     fieldURL,
	},
	TargetCompanyWebsite: {
		"company_name":         fieldText,
		"description":          fieldText,
		"industry":             fieldText,
		"employee_count_range": fieldText,
		"headquarters":         fieldLocation,
		"contact_email":        fieldText,
		"contact_phone":        fieldText,
		"website_url":          fieldURL,
	},
	TargetJobPosting: {
		"job_title":    fieldText,
		"company_name": fieldText,
		"location":     fieldLocation,
		"salary_range": fieldText,
		"description":  fieldText,
		"posting_url":  fieldURL,
	},
}

// Tracking query parameters stripped from normalized URLs, in addition
// to any parameter whose key starts with "utm_".
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_term":     true,
	"fbclid":       true,
	"gclid":        true,
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// StripHTML removes HTML markup from a string, keeping only text content.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

// NormalizeWhitespace collapses whitespace runs to single spaces and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// CleanText strips HTML tags, collapses whitespace, and trims.
func CleanText(s string) string {
	return NormalizeWhitespace(StripHTML(s))
}

// NormalizeURL forces the https scheme and strips tracking parameters and
// fragments. Scheme-relative URLs (//host/...) are treated as https.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	} else if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.Scheme = "https"
	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		values := parsed.Query()
		for key := range values {
			lower := strings.ToLower(key)
			if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
				values.Del(key)
			}
		}
		parsed.RawQuery = values.Encode()
	}

	return parsed.String()
}

// NormalizeLocationString parses a comma-separated location string.
// One piece is a city, two are city and country, three or more are city,
// state_region, and country (extras dropped). Raw keeps the input.
func NormalizeLocationString(raw string) *NormalizedLocation {
	cleaned := CleanText(raw)

	var parts []string
	for _, p := range strings.Split(cleaned, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	loc := &NormalizedLocation{Raw: optional(raw)}
	switch {
	case len(parts) == 1:
		loc.City = optional(parts[0])
	case len(parts) == 2:
		loc.City = optional(parts[0])
		loc.Country = optional(parts[1])
	case len(parts) >= 3:
		loc.City = optional(parts[0])
		loc.StateRegion = optional(parts[1])
		loc.Country = optional(parts[2])
	}
	return loc
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Normalizer transforms raw extraction maps into validated result records.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize cleans every raw value, normalizes URL and location fields,
// and validates the mapping against the target-type schema. When the full
// mapping fails to validate, a partial result is built from the fields
// that validate in isolation.
func (n *Normalizer) Normalize(raw map[string]interface{}, targetType TargetType) (interface{}, error) {
	fields, ok := targetFields[targetType]
	if !ok {
		return nil, fmt.Errorf("unknown target type %q", targetType)
	}

	candidate := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		if value == nil {
			candidate[key] = nil
			continue
		}

		switch fields[key] {
		case fieldLocation:
			switch v := value.(type) {
			case string:
				candidate[key] = NormalizeLocationString(v)
			case map[string]interface{}:
				candidate[key] = cleanLocationMap(v)
			default:
				candidate[key] = value
			}
		case fieldURL:
			if s, isStr := value.(string); isStr {
				candidate[key] = NormalizeURL(s)
			} else {
				candidate[key] = value
			}
		default:
			if s, isStr := value.(string); isStr {
				candidate[key] = CleanText(s)
			} else {
				candidate[key] = value
			}
		}
	}

	result := newResult(targetType)
	if err := decodeInto(candidate, result); err == nil {
		return result, nil
	}

	// Partial result: keep only the fields that validate in isolation.
	valid := make(map[string]interface{})
	for name := range fields {
		value, present := candidate[name]
		if !present {
			continue
		}
		probe := newResult(targetType)
		if err := decodeInto(map[string]interface{}{name: value}, probe); err == nil {
			valid[name] = value
		}
	}

	partial := newResult(targetType)
	if err := decodeInto(valid, partial); err != nil {
		return nil, fmt.Errorf("building partial result: %w", err)
	}
	return partial, nil
}

func newResult(targetType TargetType) interface{} {
	switch targetType {
	case TargetLinkedInProfile:
		return &LinkedInProfileResult{}
	case TargetCompanyWebsite:
		return &CompanyWebsiteResult{}
	case TargetJobPosting:
		return &JobPostingResult{}
	}
	return &map[string]interface{}{}
}

func decodeInto(data map[string]interface{}, out interface{}) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

func cleanLocationMap(v map[string]interface{}) *NormalizedLocation {
	loc := &NormalizedLocation{}
	if s, ok := v["city"].(string); ok {
		loc.City = optional(CleanText(s))
	}
	if s, ok := v["state_region"].(string); ok {
		loc.StateRegion = optional(CleanText(s))
	}
	if s, ok := v["country"].(string); ok {
		loc.Country = optional(CleanText(s))
	}
	if s, ok := v["raw"].(string); ok {
		loc.Raw = optional(s)
	}
	return loc
}
