package alert

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 5 * time.Second

// sendAttempts bounds delivery tries per event. Alerting is
// best-effort: a dead endpoint must not back up the worker pool.
const sendAttempts = 3

var httpClient = &http.Client{Timeout: requestTimeout}

// Send delivers one formatted event to a webhook destination. Server
// errors and throttling retry with a doubling backoff; client errors
// are terminal.
func Send(cfg WebhookConfig, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		status, err := post(cfg, body)
		switch {
		case err != nil:
			lastErr = err
		case status < 300:
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("webhook returned HTTP %d", status)
		default:
			return fmt.Errorf("webhook rejected event: HTTP %d", status)
		}

		if attempt < sendAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", sendAttempts, lastErr)
}

// post performs a single delivery and reports the response status.
func post(cfg WebhookConfig, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
