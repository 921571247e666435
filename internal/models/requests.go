package models

// ScrapeRequest is the body of a single async scrape submission.
type ScrapeRequest struct {
	TargetType      TargetType `json:"target_type" validate:"required,oneof=linkedin_profile company_website job_posting"`
	TargetURL       string     `json:"target_url" validate:"required,min=1"`
	RequestedFields []string   `json:"requested_fields,omitempty"`
	WorkspaceID     string     `json:"workspace_id" validate:"required,min=1"`
	CallbackURL     string     `json:"callback_url,omitempty" validate:"omitempty,url"`
}

// SyncScrapeRequest adds a blocking timeout to ScrapeRequest.
type SyncScrapeRequest struct {
	ScrapeRequest
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"omitempty,min=5,max=120"`
}

// BatchScrapeRequest is the body of a batch job submission (1-100 targets).
type BatchScrapeRequest struct {
	Targets     []ScrapeRequest `json:"targets" validate:"required,min=1,max=100,dive"`
	CallbackURL string          `json:"callback_url,omitempty" validate:"omitempty,url"`
}
