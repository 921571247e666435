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

var jobSelectors = map[string][]string{
	"job_title": {
		"h1.job-title",
		"h1",
		".job-title",
		".posting-headline h2",
		`meta[property="og:title"]`,
	},
	"company_name": {
		".company-name",
		".employer-name",
		".hiring-company",
		`meta[property="og:site_name"]`,
	},
	"location": {
		".job-location",
		".location",
		`meta[name="geo.placename"]`,
	},
	"salary_range": {
		".salary",
		".salary-range",
		".compensation",
	},
	"description": {
		".job-description",
		".description",
		`meta[property="og:description"]`,
		`meta[name="description"]`,
	},
}

var jobFields = []string{
	"job_title", "company_name", "location", "salary_range", "description", "posting_url",
}

// JobPostingExtractor handles job listing pages from any board. JSON-LD
// JobPosting blocks are preferred; most boards publish them for search
// indexing.
type JobPostingExtractor struct {
	logger arbor.ILogger
}

func NewJobPostingExtractor(logger arbor.ILogger) *JobPostingExtractor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &JobPostingExtractor{logger: logger}
}

func (e *JobPostingExtractor) TargetType() models.TargetType {
	return models.TargetJobPosting
}

func (e *JobPostingExtractor) ReadySelector() string {
	return "body"
}

func (e *JobPostingExtractor) Extract(ctx context.Context, page interfaces.Page, targetURL string, requestedFields []string) (map[string]interface{}, error) {
	waitForContent(ctx, page, "body", e.logger)

	structured := e.fromJSONLD(ctx, page)

	result := make(map[string]interface{}, len(jobFields))
	for _, field := range jobFields {
		if !wantField(requestedFields, field) {
			result[field] = nil
			continue
		}

		if field == "posting_url" {
			result[field] = targetURL
			continue
		}

		if value, ok := structured[field]; ok {
			result[field] = value
			continue
		}

		if value := textFromSelectors(ctx, page, jobSelectors[field]); value != nil {
			result[field] = *value
		} else {
			result[field] = nil
		}
	}

	return result, nil
}

func (e *JobPostingExtractor) fromJSONLD(ctx context.Context, page interfaces.Page) map[string]interface{} {
	data := firstJSONLD(ctx, page, "JobPosting")
	if data == nil {
		return nil
	}

	out := make(map[string]interface{})

	if title := stringField(data, "title"); title != nil {
		out["job_title"] = *title
	} else if name := stringField(data, "name"); name != nil {
		out["job_title"] = *name
	}

	if org, ok := data["hiringOrganization"].(map[string]interface{}); ok {
		if name := stringField(org, "name"); name != nil {
			out["company_name"] = *name
		}
	}

	if location := jobLocation(data["jobLocation"]); location != "" {
		out["location"] = location
	}

	if salary := salaryText(data["baseSalary"]); salary != "" {
		out["salary_range"] = salary
	} else if salary := salaryText(data["estimatedSalary"]); salary != "" {
		out["salary_range"] = salary
	}

	if desc := stringField(data, "description"); desc != nil {
		out["description"] = models.CleanText(*desc)
	}

	return out
}

// jobLocation flattens the JobPosting jobLocation shape, which can be a
// string, a Place, or a list of Places.
func jobLocation(v interface{}) string {
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return ""
		}
		v = list[0]
	}

	switch loc := v.(type) {
	case string:
		return strings.TrimSpace(loc)
	case map[string]interface{}:
		if addr, ok := loc["address"].(map[string]interface{}); ok {
			return joinAddress(addr, "addressLocality", "addressRegion", "addressCountry")
		}
	}
	return ""
}

// salaryText renders a MonetaryAmount as "CUR min-max" or "CUR value".
func salaryText(v interface{}) string {
	salary, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}

	currency, _ := salary["currency"].(string)
	value := salary["value"]
	if nested, ok := value.(map[string]interface{}); ok {
		if r := employeeRange(nested); r != "" {
			return strings.TrimSpace(currency + " " + r)
		}
		if single := formatNumber(nested["value"]); single != "" {
			return strings.TrimSpace(currency + " " + single)
		}
		return ""
	}
	if single := formatNumber(value); single != "" {
		return strings.TrimSpace(currency + " " + single)
	}
	return ""
}

func formatNumber(n interface{}) string {
	switch t := n.(type) {
	case float64:
		return fmt.Sprintf("%.0f", t)
	case string:
		return strings.TrimSpace(t)
	default:
		return ""
	}
}
