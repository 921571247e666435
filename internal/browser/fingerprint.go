package browser

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/morket/scraper/internal/models"
)

// Curated desktop Chrome user agents. Kept current enough to blend in;
// exotic agents attract more scrutiny than stale ones.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

// region groups the locale attributes that must stay coherent with the
// proxy's exit region.
type region struct {
	timezones   []string
	languages   []string
	geolocation models.Geolocation
}

var regions = map[string]region{
	"US": {
		timezones:   []string{"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"},
		languages:   []string{"en-US"},
		geolocation: models.Geolocation{Latitude: 40.7128, Longitude: -74.0060, Accuracy: 100},
	},
	"EU": {
		timezones:   []string{"Europe/Amsterdam", "Europe/Brussels", "Europe/Madrid", "Europe/Rome"},
		languages:   []string{"en-GB", "nl-NL", "es-ES", "it-IT"},
		geolocation: models.Geolocation{Latitude: 52.3676, Longitude: 4.9041, Accuracy: 100},
	},
	"UK": {
		timezones:   []string{"Europe/London"},
		languages:   []string{"en-GB"},
		geolocation: models.Geolocation{Latitude: 51.5074, Longitude: -0.1278, Accuracy: 100},
	},
	"DE": {
		timezones:   []string{"Europe/Berlin"},
		languages:   []string{"de-DE"},
		geolocation: models.Geolocation{Latitude: 52.5200, Longitude: 13.4050, Accuracy: 100},
	},
	"FR": {
		timezones:   []string{"Europe/Paris"},
		languages:   []string{"fr-FR"},
		geolocation: models.Geolocation{Latitude: 48.8566, Longitude: 2.3522, Accuracy: 100},
	},
	"BR": {
		timezones:   []string{"America/Sao_Paulo"},
		languages:   []string{"pt-BR"},
		geolocation: models.Geolocation{Latitude: -23.5505, Longitude: -46.6333, Accuracy: 100},
	},
	"IN": {
		timezones:   []string{"Asia/Kolkata"},
		languages:   []string{"en-IN", "hi-IN"},
		geolocation: models.Geolocation{Latitude: 19.0760, Longitude: 72.8777, Accuracy: 100},
	},
	"JP": {
		timezones:   []string{"Asia/Tokyo"},
		languages:   []string{"ja-JP"},
		geolocation: models.Geolocation{Latitude: 35.6762, Longitude: 139.6503, Accuracy: 100},
	},
	"AU": {
		timezones:   []string{"Australia/Sydney", "Australia/Melbourne"},
		languages:   []string{"en-AU"},
		geolocation: models.Geolocation{Latitude: -33.8688, Longitude: 151.2093, Accuracy: 100},
	},
	"CA": {
		timezones:   []string{"America/Toronto", "America/Vancouver"},
		languages:   []string{"en-CA", "fr-CA"},
		geolocation: models.Geolocation{Latitude: 43.6532, Longitude: -79.3832, Accuracy: 100},
	},
}

// globalTimezones and globalLanguages are the flat fallbacks when no
// region is known for the session.
var (
	globalTimezones = []string{
		"America/New_York", "America/Chicago", "America/Los_Angeles",
		"Europe/London", "Europe/Berlin", "Europe/Paris",
		"Asia/Tokyo", "Australia/Sydney", "America/Sao_Paulo", "Asia/Kolkata",
	}
	globalLanguages = []string{
		"en-US", "en-GB", "de-DE", "fr-FR", "pt-BR", "ja-JP", "en-AU", "en-IN",
	}
)

// webdriverOverrideScript masks the usual headless giveaways before any
// page script runs: navigator.webdriver, the missing chrome.runtime, and
// the notifications permission probe.
const webdriverOverrideScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || {};
window.chrome.runtime = window.chrome.runtime || {};
if (navigator.permissions && navigator.permissions.query) {
  const originalQuery = navigator.permissions.query.bind(navigator.permissions);
  navigator.permissions.query = (parameters) => (
    parameters && parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : originalQuery(parameters)
  );
}
`

// FingerprintGenerator produces one-shot session identities. The
// randomness source is injectable for reproducible tests.
type FingerprintGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewFingerprintGenerator(rng *rand.Rand) *FingerprintGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &FingerprintGenerator{rng: rng}
}

// Generate draws a fresh fingerprint. A known proxyRegion keys timezone,
// language, and geolocation to that region; otherwise the flat global
// lists apply and geolocation stays zero.
func (g *FingerprintGenerator) Generate(proxyRegion string) models.Fingerprint {
	g.mu.Lock()
	defer g.mu.Unlock()

	fp := models.Fingerprint{
		UserAgent: userAgents[g.rng.Intn(len(userAgents))],
		Viewport: models.Viewport{
			Width:  1280 + g.rng.Intn(1920-1280+1),
			Height: 720 + g.rng.Intn(1080-720+1),
		},
	}

	if r, ok := regions[strings.ToUpper(proxyRegion)]; ok {
		fp.Timezone = r.timezones[g.rng.Intn(len(r.timezones))]
		lang := r.languages[g.rng.Intn(len(r.languages))]
		fp.Languages = []string{lang}
		fp.AcceptLanguage = acceptLanguage(lang)
		fp.Geolocation = r.geolocation
	} else {
		fp.Timezone = globalTimezones[g.rng.Intn(len(globalTimezones))]
		lang := globalLanguages[g.rng.Intn(len(globalLanguages))]
		fp.Languages = []string{lang}
		fp.AcceptLanguage = acceptLanguage(lang)
	}

	return fp
}

// ActionDelayMs returns a uniform real in [minMs, maxMs].
func (g *FingerprintGenerator) ActionDelayMs(minMs, maxMs float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if maxMs <= minMs {
		return minMs
	}
	return minMs + g.rng.Float64()*(maxMs-minMs)
}

// OverrideScript is the pre-navigation script applied to every page.
func OverrideScript() string {
	return webdriverOverrideScript
}

func acceptLanguage(lang string) string {
	base := strings.SplitN(lang, "-", 2)[0]
	if base == lang {
		return lang + ";q=0.9"
	}
	return lang + "," + base + ";q=0.9"
}
