package extractors

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

var companySelectors = map[string][]string{
	"company_name": {
		`meta[property="og:site_name"]`,
		`meta[property="og:title"]`,
		"h1",
		".company-name",
		`meta[name="application-name"]`,
	},
	"description": {
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		".company-description",
		".about-us p",
	},
	"industry": {
		`meta[name="industry"]`,
		".industry",
		".company-industry",
	},
	"employee_count_range": {
		".employee-count",
		".company-size",
	},
	"headquarters": {
		".headquarters",
		".company-location",
		".address",
		"address",
	},
	"contact_email": {
		`a[href^="mailto:"]`,
	},
	"contact_phone": {
		`a[href^="tel:"]`,
	},
}

var companyFields = []string{
	"company_name", "description", "industry", "employee_count_range",
	"headquarters", "contact_email", "contact_phone", "website_url",
}

// CompanyWebsiteExtractor handles arbitrary company sites. Structured
// data (JSON-LD Organization) wins over CSS heuristics when present.
type CompanyWebsiteExtractor struct {
	logger arbor.ILogger
}

func NewCompanyWebsiteExtractor(logger arbor.ILogger) *CompanyWebsiteExtractor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &CompanyWebsiteExtractor{logger: logger}
}

func (e *CompanyWebsiteExtractor) TargetType() models.TargetType {
	return models.TargetCompanyWebsite
}

func (e *CompanyWebsiteExtractor) ReadySelector() string {
	return "body"
}

func (e *CompanyWebsiteExtractor) Extract(ctx context.Context, page interfaces.Page, targetURL string, requestedFields []string) (map[string]interface{}, error) {
	waitForContent(ctx, page, "body", e.logger)

	structured := e.fromJSONLD(ctx, page)

	result := make(map[string]interface{}, len(companyFields))
	for _, field := range companyFields {
		if !wantField(requestedFields, field) {
			result[field] = nil
			continue
		}

		if field == "website_url" {
			result[field] = targetURL
			continue
		}

		if value, ok := structured[field]; ok {
			result[field] = value
			continue
		}

		if value := textFromSelectors(ctx, page, companySelectors[field]); value != nil {
			result[field] = *value
		} else {
			result[field] = nil
		}
	}

	return result, nil
}

// fromJSONLD maps an Organization block onto the schema fields it can
// fill. Missing keys are simply absent from the returned map.
func (e *CompanyWebsiteExtractor) fromJSONLD(ctx context.Context, page interfaces.Page) map[string]interface{} {
	data := firstJSONLD(ctx, page, "Organization", "LocalBusiness", "Corporation")
	if data == nil {
		return nil
	}

	out := make(map[string]interface{})

	if name := stringField(data, "name"); name != nil {
		out["company_name"] = *name
	} else if legal := stringField(data, "legalName"); legal != nil {
		out["company_name"] = *legal
	}

	if desc := stringField(data, "description"); desc != nil {
		out["description"] = *desc
	}

	if industry := stringField(data, "industry"); industry != nil {
		out["industry"] = *industry
	}

	switch employees := data["numberOfEmployees"].(type) {
	case string:
		if trimmed := strings.TrimSpace(employees); trimmed != "" {
			out["employee_count_range"] = trimmed
		}
	case map[string]interface{}:
		if r := employeeRange(employees); r != "" {
			out["employee_count_range"] = r
		}
	}

	if addr, ok := data["address"].(map[string]interface{}); ok {
		if joined := joinAddress(addr, "streetAddress", "addressLocality", "addressRegion", "addressCountry"); joined != "" {
			out["headquarters"] = joined
		}
	}

	if email := stringField(data, "email"); email != nil {
		out["contact_email"] = *email
	}

	if phone := stringField(data, "telephone"); phone != nil {
		out["contact_phone"] = *phone
	}

	return out
}

// employeeRange renders a QuantitativeValue as "min-max", dropping
// whichever bound is absent.
func employeeRange(v map[string]interface{}) string {
	format := func(n interface{}) string {
		switch t := n.(type) {
		case float64:
			return fmt.Sprintf("%.0f", t)
		case string:
			return strings.TrimSpace(t)
		default:
			return ""
		}
	}
	r := format(v["minValue"]) + "-" + format(v["maxValue"])
	return strings.Trim(r, "-")
}

// joinAddress joins the named PostalAddress parts with ", ".
func joinAddress(addr map[string]interface{}, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if s, ok := addr[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
	}
	return strings.Join(parts, ", ")
}
