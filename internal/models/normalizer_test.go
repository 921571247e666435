package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", CleanText("<b>Ada</b>   Lovelace"))
	assert.Equal(t, "Senior Engineer", CleanText("  Senior\n\tEngineer "))
	assert.Equal(t, "plain", CleanText("plain"))
	assert.Equal(t, "", CleanText("   "))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"forces https", "http://example.com/a", "https://example.com/a"},
		{"adds scheme", "example.com/a", "https://example.com/a"},
		{"scheme relative", "//example.com/a", "https://example.com/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"drops utm params", "https://example.com/a?utm_source=x&utm_medium=y&q=1", "https://example.com/a?q=1"},
		{"drops click ids", "https://example.com/a?fbclid=abc&gclid=def", "https://example.com/a"},
		{"keeps real params", "https://example.com/a?page=2", "https://example.com/a?page=2"},
		{"empty passes through", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeURL(tc.in))
		})
	}
}

func TestNormalizeLocationString(t *testing.T) {
	t.Run("single part is city", func(t *testing.T) {
		loc := NormalizeLocationString("Berlin")
		require.NotNil(t, loc.City)
		assert.Equal(t, "Berlin", *loc.City)
		assert.Nil(t, loc.StateRegion)
		assert.Nil(t, loc.Country)
		require.NotNil(t, loc.Raw)
		assert.Equal(t, "Berlin", *loc.Raw)
	})

	t.Run("two parts are city and country", func(t *testing.T) {
		loc := NormalizeLocationString("Paris, France")
		require.NotNil(t, loc.City)
		require.NotNil(t, loc.Country)
		assert.Equal(t, "Paris", *loc.City)
		assert.Equal(t, "France", *loc.Country)
		assert.Nil(t, loc.StateRegion)
	})

	t.Run("three parts add state region", func(t *testing.T) {
		loc := NormalizeLocationString("Austin, Texas, United States")
		require.NotNil(t, loc.StateRegion)
		assert.Equal(t, "Austin", *loc.City)
		assert.Equal(t, "Texas", *loc.StateRegion)
		assert.Equal(t, "United States", *loc.Country)
	})

	t.Run("extra parts dropped", func(t *testing.T) {
		loc := NormalizeLocationString("A, B, C, D")
		assert.Equal(t, "A", *loc.City)
		assert.Equal(t, "B", *loc.StateRegion)
		assert.Equal(t, "C", *loc.Country)
		assert.Equal(t, "A, B, C, D", *loc.Raw)
	})

	t.Run("raw preserved verbatim", func(t *testing.T) {
		loc := NormalizeLocationString("  Oslo , Norway ")
		assert.Equal(t, "  Oslo , Norway ", *loc.Raw)
		assert.Equal(t, "Oslo", *loc.City)
		assert.Equal(t, "Norway", *loc.Country)
	})
}

func TestNormalizerFullResult(t *testing.T) {
	n := NewNormalizer()

	raw := map[string]interface{}{
		"name":            "<span>Ada Lovelace</span>",
		"headline":        "Engineer  at\nAcme",
		"current_company": "Acme",
		"location":        "London, United Kingdom",
		"summary":         nil,
		"profile_url":     "http://linkedin.com/in/ada?utm_campaign=x",
	}

	out, err := n.Normalize(raw, TargetLinkedInProfile)
	require.NoError(t, err)

	result, ok := out.(*LinkedInProfileResult)
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", *result.Name)
	assert.Equal(t, "Engineer at Acme", *result.Headline)
	assert.Equal(t, "https://linkedin.com/in/ada", *result.ProfileURL)
	assert.Nil(t, result.Summary)
	require.NotNil(t, result.Location)
	assert.Equal(t, "London", *result.Location.City)
	assert.Equal(t, "United Kingdom", *result.Location.Country)
}

func TestNormalizerPartialResult(t *testing.T) {
	n := NewNormalizer()

	// salary_range carries a non-string value; the field should be
	// dropped while the rest of the record survives.
	raw := map[string]interface{}{
		"job_title":    "Backend Engineer",
		"company_name": "Acme",
		"salary_range": 120000,
		"posting_url":  "https://jobs.example.com/1",
	}

	out, err := n.Normalize(raw, TargetJobPosting)
	require.NoError(t, err)

	result, ok := out.(*JobPostingResult)
	require.True(t, ok)
	assert.Equal(t, "Backend Engineer", *result.JobTitle)
	assert.Equal(t, "Acme", *result.CompanyName)
	assert.Nil(t, result.SalaryRange)
	assert.Equal(t, "https://jobs.example.com/1", *result.PostingURL)
}

func TestNormalizerUnknownTargetType(t *testing.T) {
	n := NewNormalizer()
	_, err := n.Normalize(map[string]interface{}{}, TargetType("bogus"))
	assert.Error(t, err)
}
