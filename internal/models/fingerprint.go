package models

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Geolocation is a spoofed browser position.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Fingerprint is a per-task browser identity: user agent, viewport,
// locale, and geolocation are generated together so they stay coherent
// for the proxy region in use.
type Fingerprint struct {
	UserAgent      string      `json:"user_agent"`
	Viewport       Viewport    `json:"viewport"`
	Timezone       string      `json:"timezone"`
	Languages      []string    `json:"languages"`
	AcceptLanguage string      `json:"accept_language"`
	Geolocation    Geolocation `json:"geolocation"`
}
