package models

import "time"

// Proxy is a single upstream proxy endpoint handed to the browser layer.
// Region, when known, keys fingerprint generation to the proxy's egress
// location.
type Proxy struct {
	URL     string `json:"url"`
	Region  string `json:"region,omitempty"`
	Healthy bool   `json:"healthy"`
}

// ProxyState is the reported state of a configured proxy.
type ProxyState struct {
	URL          string     `json:"url"`
	Healthy      bool       `json:"healthy"`
	FailureCount int        `json:"failure_count"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
}

// Cookie is a browser cookie applied when a credential carries session
// state for the target provider.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// Credential is a workspace-scoped secret bundle fetched from the
// credential service. Values never appear in logs.
type Credential struct {
	WorkspaceID string                 `json:"workspace_id"`
	Provider    string                 `json:"provider"`
	Cookies     []Cookie               `json:"cookies,omitempty"`
	Values      map[string]interface{} `json:"values,omitempty"`
}
