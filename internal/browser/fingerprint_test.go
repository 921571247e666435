package browser

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(seed int64) *FingerprintGenerator {
	return NewFingerprintGenerator(rand.New(rand.NewSource(seed)))
}

func TestGenerateBounds(t *testing.T) {
	g := newTestGenerator(1)

	for i := 0; i < 200; i++ {
		fp := g.Generate("")

		assert.Contains(t, userAgents, fp.UserAgent)
		assert.GreaterOrEqual(t, fp.Viewport.Width, 1280)
		assert.LessOrEqual(t, fp.Viewport.Width, 1920)
		assert.GreaterOrEqual(t, fp.Viewport.Height, 720)
		assert.LessOrEqual(t, fp.Viewport.Height, 1080)
		assert.NotEmpty(t, fp.Timezone)
		require.Len(t, fp.Languages, 1)
		assert.NotEmpty(t, fp.AcceptLanguage)
	}
}

func TestGenerateRegionCoherence(t *testing.T) {
	g := newTestGenerator(2)

	for i := 0; i < 50; i++ {
		fp := g.Generate("DE")
		assert.Equal(t, "Europe/Berlin", fp.Timezone)
		assert.Equal(t, []string{"de-DE"}, fp.Languages)
		assert.InDelta(t, 52.52, fp.Geolocation.Latitude, 0.01)
	}

	// Region lookup is case-insensitive.
	fp := g.Generate("jp")
	assert.Equal(t, "Asia/Tokyo", fp.Timezone)
}

func TestGenerateUnknownRegionHasNoGeolocation(t *testing.T) {
	g := newTestGenerator(3)

	fp := g.Generate("ZZ")
	assert.Zero(t, fp.Geolocation.Latitude)
	assert.Zero(t, fp.Geolocation.Longitude)
	assert.Contains(t, globalTimezones, fp.Timezone)
}

func TestGenerateVaries(t *testing.T) {
	g := newTestGenerator(4)

	// Consecutive outputs for the same region should not collapse into
	// a single repeated identity.
	distinct := map[string]bool{}
	for i := 0; i < 50; i++ {
		fp := g.Generate("US")
		key := fp.UserAgent + fp.Timezone + string(rune(fp.Viewport.Width)) + string(rune(fp.Viewport.Height))
		distinct[key] = true
	}
	assert.Greater(t, len(distinct), 10)
}

func TestActionDelayBounds(t *testing.T) {
	g := newTestGenerator(5)

	for i := 0; i < 100; i++ {
		d := g.ActionDelayMs(100, 300)
		assert.GreaterOrEqual(t, d, 100.0)
		assert.LessOrEqual(t, d, 300.0)
	}
	assert.Equal(t, 250.0, g.ActionDelayMs(250, 250))
}

func TestOverrideScriptMasksAutomation(t *testing.T) {
	script := OverrideScript()
	assert.True(t, strings.Contains(script, "webdriver"))
	assert.True(t, strings.Contains(script, "chrome.runtime"))
	assert.True(t, strings.Contains(script, "notifications"))
}
