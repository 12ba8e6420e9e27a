package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meeting-copilot/internal/logging"
)

// PostOptions tunes PostWithRetries.
type PostOptions struct {
	ContentType string
	Accept      string
	// AuthToken is sent as a bearer token.
	AuthToken string
	// BasicUser/BasicPass are sent as HTTP basic auth when BasicUser is set.
	BasicUser     string
	BasicPass     string
	Timeout       time.Duration
	Attempts      int
	CorrelationID string
}

// PostWithRetries posts body to url, retrying transport errors and 5xx
// responses with exponential backoff (200ms, 400ms, ...). The final
// response is returned whatever its status; the caller must close its body.
func PostWithRetries(ctx context.Context, client *http.Client, url string, body []byte, opts PostOptions) (*http.Response, error) {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	if client == nil {
		client = &http.Client{}
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(200*(1<<(i-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := postOnce(ctx, client, url, body, opts)
		if err != nil {
			lastErr = err
			logging.Debugw("post attempt failed", "url", url, "attempt", i+1, "err", err, "correlation_id", opts.CorrelationID)
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error status=%d", resp.StatusCode)
			logging.Debugw("post attempt got server error", "url", url, "attempt", i+1, "status", resp.StatusCode, "correlation_id", opts.CorrelationID)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("post %s: %d attempts: %w", url, attempts, lastErr)
}

func postOnce(ctx context.Context, client *http.Client, url string, body []byte, opts PostOptions) (*http.Response, error) {
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	req, err := newPost(ctx, url, body, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// the body outlives this call; the timeout is released when it is closed
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func newPost(ctx context.Context, url string, body []byte, opts PostOptions) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	switch {
	case opts.BasicUser != "":
		req.SetBasicAuth(opts.BasicUser, opts.BasicPass)
	case opts.AuthToken != "":
		req.Header.Set("Authorization", "Bearer "+opts.AuthToken)
	}
	if opts.CorrelationID != "" {
		req.Header.Set("X-Correlation-ID", opts.CorrelationID)
	}
	return req, nil
}

// correlationID pulls the correlation_id field attached with logging.WithFields.
func correlationID(ctx context.Context) string {
	fields := logging.FromContext(ctx)
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok && k == "correlation_id" {
			if v, ok := fields[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}
