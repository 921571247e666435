package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"service key pair",
			"auth failed: service_key=abc123def",
			"auth failed: service_key= [REDACTED]",
		},
		{
			"api key with colon",
			"request rejected api-key: sk-live-9f8e",
			"request rejected api-key: [REDACTED]",
		},
		{
			"authorization header",
			"Authorization: Bearer eyJhbGci",
			"Authorization: [REDACTED] eyJhbGci",
		},
		{
			"password in url params",
			"connecting with password=hunter2 retry=1",
			"connecting with password= [REDACTED] retry=1",
		},
		{
			"mixed case token",
			"Token=XYZ expired",
			"Token= [REDACTED] expired",
		},
		{
			"no secrets untouched",
			"navigated to https://example.com in 1.2s",
			"navigated to https://example.com in 1.2s",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}

func TestSanitizeNeverLeaksValue(t *testing.T) {
	out := Sanitize("credential: supersecretvalue")
	assert.NotContains(t, out, "supersecretvalue")
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	first := GetLogger()
	second := GetLogger()
	assert.NotNil(t, first)
	assert.Same(t, first, second)
}
