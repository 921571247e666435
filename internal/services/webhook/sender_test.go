package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
)

func newTestSender(t *testing.T, defaultURL string) *Sender {
	t.Helper()
	s := NewSender(common.WebhookConfig{
		Secret:      "webhook-secret",
		DefaultURL:  defaultURL,
		MaxRetries:  3,
		BackoffBase: time.Second,
		Timeout:     2 * time.Second,
	}, arbor.NewLogger())
	s.sleep = func(ctx context.Context, d time.Duration) {}
	return s
}

func TestSendSignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	s := newTestSender(t, "")
	payload := map[string]interface{}{
		"job_id": "job_1",
		"status": "completed",
		"summary": map[string]interface{}{
			"total": 2, "completed": 2, "failed": 0,
		},
		"results": nil,
	}
	require.NoError(t, s.Send(context.Background(), server.URL, payload))

	// Keys come out sorted and compact, so the signature is reproducible.
	assert.Equal(t,
		`{"job_id":"job_1","results":null,"status":"completed","summary":{"completed":2,"failed":0,"total":2}}`,
		string(gotBody))

	mac := hmac.New(sha256.New, []byte("webhook-secret"))
	mac.Write(gotBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestSendUsesDefaultURL(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	s := newTestSender(t, server.URL)
	require.NoError(t, s.Send(context.Background(), "", map[string]interface{}{"job_id": "j"}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendSkipsWithoutAnyURL(t *testing.T) {
	s := newTestSender(t, "")
	assert.NoError(t, s.Send(context.Background(), "", map[string]interface{}{"job_id": "j"}))
}

func TestSendRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := newTestSender(t, "")
	require.NoError(t, s.Send(context.Background(), server.URL, map[string]interface{}{"job_id": "j"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := newTestSender(t, "")
	err := s.Send(context.Background(), server.URL, map[string]interface{}{"job_id": "j"})
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendTreatsRedirectClassAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := newTestSender(t, "")
	assert.NoError(t, s.Send(context.Background(), server.URL, map[string]interface{}{"job_id": "j"}))
}
