package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// Sender posts signed job notifications. Delivery is best-effort:
// exhausted retries are reported as an error for logging but callers
// treat the outcome as advisory.
type Sender struct {
	secret      []byte
	defaultURL  string
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
	logger      arbor.ILogger

	sleep func(ctx context.Context, d time.Duration)
}

func NewSender(cfg common.WebhookConfig, logger arbor.ILogger) *Sender {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Sender{
		secret:      []byte(cfg.Secret),
		defaultURL:  cfg.DefaultURL,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
		sleep: func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		},
	}
}

// Sign returns the hex HMAC-SHA256 of body under the configured secret.
func (s *Sender) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send serializes payload deterministically (encoding/json sorts map
// keys; compact output), signs it, and POSTs to url or the configured
// default. With neither URL set it skips silently. Responses with
// status < 400 count as delivered; anything else retries with
// backoffBase x 2^attempt between attempts.
func (s *Sender) Send(ctx context.Context, url string, payload map[string]interface{}) error {
	if url == "" {
		url = s.defaultURL
	}
	if url == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializing webhook payload: %w", err)
	}
	signature := s.Sign(body)

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		status, err := s.post(ctx, url, body, signature)
		if err == nil && status < 400 {
			s.logger.Info().Str("url", url).Int("status", status).Msg("Webhook delivered")
			return nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("webhook endpoint returned status %d", status)
		}
		s.logger.Warn().
			Str("url", url).
			Int("attempt", attempt+1).
			Int("max_retries", s.maxRetries).
			Err(lastErr).
			Msg("Webhook delivery failed")

		if attempt < s.maxRetries-1 {
			backoff := s.backoffBase * time.Duration(1<<uint(attempt))
			s.sleep(ctx, backoff)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("webhook delivery to %s failed after %d attempts: %w", url, s.maxRetries, lastErr)
}

func (s *Sender) post(ctx context.Context, url string, body []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

var _ interfaces.WebhookSender = (*Sender)(nil)
