package models

// NormalizedLocation is a location string broken into structured
// components. Raw keeps the original text before normalization.
type NormalizedLocation struct {
	City        *string `json:"city"`
	StateRegion *string `json:"state_region"`
	Country     *string `json:"country"`
	Raw         *string `json:"raw"`
}

// LinkedInProfileResult is the output schema for the linkedin_profile
// target type. All fields are nullable: extraction gaps come back nil,
// never as errors.
type LinkedInProfileResult struct {
	Name           *string             `json:"name"`
	Headline       *string             `json:"headline"`
	CurrentCompany *string             `json:"current_company"`
	Location       *NormalizedLocation `json:"location"`
	Summary        *string             `json:"summary"`
	ProfileURL     *string             `json:"profile_url"`
}

// CompanyWebsiteResult is the output schema for the company_website
// target type.
type CompanyWebsiteResult struct {
	CompanyName        *string             `json:"company_name"`
	Description        *string             `json:"description"`
	Industry           *string             `json:"industry"`
	EmployeeCountRange *string             `json:"employee_count_range"`
	Headquarters       *NormalizedLocation `json:"headquarters"`
	ContactEmail       *string             `json:"contact_email"`
	ContactPhone       *string             `json:"contact_phone"`
	WebsiteURL         *string             `json:"website_url"`
}

// JobPostingResult is the output schema for the job_posting target type.
type JobPostingResult struct {
	JobTitle    *string             `json:"job_title"`
	CompanyName *string             `json:"company_name"`
	Location    *NormalizedLocation `json:"location"`
	SalaryRange *string             `json:"salary_range"`
	Description *string             `json:"description"`
	PostingURL  *string             `json:"posting_url"`
}
