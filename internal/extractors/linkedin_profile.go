package extractors

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// Selector for the profile heading; its presence confirms the profile
// rendered.
const linkedInReadySelector = ".text-heading-xlarge"

var linkedInSelectors = map[string][]string{
	"name":            {".text-heading-xlarge"},
	"headline":        {".text-body-medium.break-words"},
	"current_company": {"button[aria-label*='current company'] span"},
	"location":        {".text-body-small.inline.t-black--light.break-words"},
	"summary":         {"section.summary .inline-show-more-text"},
}

var linkedInFields = []string{"name", "headline", "current_company", "location", "summary", "profile_url"}

// LinkedInProfileExtractor reads public profile pages. Field extraction
// is best-effort: a missing element yields nil, never an error.
type LinkedInProfileExtractor struct {
	logger arbor.ILogger
}

func NewLinkedInProfileExtractor(logger arbor.ILogger) *LinkedInProfileExtractor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &LinkedInProfileExtractor{logger: logger}
}

func (e *LinkedInProfileExtractor) TargetType() models.TargetType {
	return models.TargetLinkedInProfile
}

func (e *LinkedInProfileExtractor) ReadySelector() string {
	return linkedInReadySelector
}

func (e *LinkedInProfileExtractor) Extract(ctx context.Context, page interfaces.Page, targetURL string, requestedFields []string) (map[string]interface{}, error) {
	waitForContent(ctx, page, linkedInReadySelector, e.logger)

	// The summary section lazy-loads below the fold.
	scrollForContent(ctx, page)

	result := make(map[string]interface{}, len(linkedInFields))
	for _, field := range linkedInFields {
		if !wantField(requestedFields, field) {
			result[field] = nil
			continue
		}

		if field == "profile_url" {
			result[field] = targetURL
			continue
		}

		if value := textFromSelectors(ctx, page, linkedInSelectors[field]); value != nil {
			result[field] = *value
		} else {
			result[field] = nil
		}
	}

	return result, nil
}
