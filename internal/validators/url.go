package validators

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/morket/scraper/internal/models"
)

// URLValidator rejects scrape targets that could reach internal
// infrastructure. The DNS lookup is injectable for tests.
type URLValidator struct {
	// AllowTestURLs permits localhost targets in development.
	AllowTestURLs bool

	lookup func(host string) ([]net.IP, error)
}

func NewURLValidator(allowTestURLs bool) *URLValidator {
	return &URLValidator{
		AllowTestURLs: allowTestURLs,
		lookup:        net.LookupIP,
	}
}

// Validate checks scheme and resolved addresses. It returns a validation
// error naming the offending property, nil when the URL is acceptable.
func (v *URLValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return v.reject(rawURL, "target_url is not a valid URL")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return v.reject(rawURL, fmt.Sprintf("target_url scheme %q is not allowed", parsed.Scheme))
	}

	host := parsed.Hostname()
	if host == "" {
		return v.reject(rawURL, "target_url has no host")
	}

	if v.AllowTestURLs && isTestHost(host) {
		return nil
	}

	// A literal IP skips DNS; otherwise every resolved address must be
	// public. Resolution failure is a rejection, not a pass.
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = v.lookup(host)
		if err != nil || len(ips) == 0 {
			return v.reject(rawURL, fmt.Sprintf("target_url host %q did not resolve", host))
		}
	}

	for _, ip := range ips {
		if isForbidden(ip) {
			return v.reject(rawURL, fmt.Sprintf("target_url resolves to a private address (%s)", ip))
		}
	}

	return nil
}

func (v *URLValidator) reject(rawURL, message string) error {
	return models.NewValidationError(message, []models.FieldError{
		{Field: "target_url", Message: message, Type: "ssrf"},
	})
}

func isTestHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// isForbidden reports whether ip lands in a range scrape traffic must
// never reach: RFC 1918, loopback, link-local, or 0.0.0.0/8.
func isForbidden(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return true
	}
	if v4 := ip.To4(); v4 != nil && v4[0] == 0 {
		return true
	}
	return false
}
