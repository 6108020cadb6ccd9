// Package telnyxclient is a small client for the Telnyx v2 messaging API:
// sending patient SMS and authenticating inbound webhooks.
package telnyxclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const defaultBaseURL = "https://api.telnyx.com/v2"

var (
	ErrNoSecret          = errors.New("telnyxclient: webhook secret not configured")
	ErrBadSignature      = errors.New("telnyxclient: signature mismatch")
	ErrStaleSignature    = errors.New("telnyxclient: signature timestamp outside tolerance")
	ErrMissingSignature  = errors.New("telnyxclient: missing signature headers")
	errExhaustedAttempts = errors.New("telnyxclient: retries exhausted")
)

// Config controls the client. Only APIKey is required.
type Config struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	// MaxRetries is the number of extra attempts on 429, 5xx and network errors.
	MaxRetries int
	Backoff    time.Duration
	// MaxSkew bounds the age of a webhook timestamp.
	MaxSkew    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Now        func() time.Time
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *logging.Logger
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("telnyxclient: API key is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, log: cfg.Logger}, nil
}

// SendMessage posts one SMS. From may be empty when a messaging profile picks the number.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := c.post(ctx, "/messages", req.body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of "timestamp.payload".
func (c *Client) VerifyWebhookSignature(timestamp, signature string, payload []byte) error {
	if c.cfg.WebhookSecret == "" {
		return ErrNoSecret
	}
	timestamp, signature = strings.TrimSpace(timestamp), strings.ToLower(strings.TrimSpace(signature))
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("telnyxclient: invalid signature timestamp: %w", err)
	}
	skew := c.cfg.Now().Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > c.cfg.MaxSkew {
		return ErrStaleSignature
	}
	if !hmac.Equal([]byte(Sign(c.cfg.WebhookSecret, timestamp, payload)), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the signature Telnyx would send for payload at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// post sends payload as JSON and decodes the "data" member of the reply into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telnyxclient: encode %s: %w", path, err)
	}
	url := c.cfg.BaseURL + path

	for attempt := 0; ; attempt++ {
		status, data, err := c.do(ctx, url, body)
		if err == nil && status/100 == 2 {
			return decodeData(data, out)
		}
		if err == nil {
			err = parseAPIError(status, data)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= c.cfg.MaxRetries || !retryable(status, err) {
			return err
		}
		c.log.Warn("telnyx request retry", "path", path, "attempt", attempt+1, "status", status, "error", err)
		if werr := wait(ctx, c.cfg.Backoff<<attempt); werr != nil {
			return werr
		}
	}
}

func (c *Client) do(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("telnyxclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("telnyxclient: http: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("telnyxclient: read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func retryable(status int, err error) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	if status != 0 || err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// APIError is a non-2xx answer. Telnyx reports problems as {"errors":[...]}.
type APIError struct {
	Status int
	Code   string
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Detail
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("telnyxclient: %s (status %d)", msg, e.Status)
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var envelope struct {
		Errors []struct {
			Code   string `json:"code"`
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		apiErr.Code, apiErr.Title, apiErr.Detail = first.Code, first.Title, first.Detail
		return apiErr
	}
	apiErr.Detail = strings.TrimSpace(string(body))
	return apiErr
}

func decodeData(body []byte, out any) error {
	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("telnyxclient: decode response: %w", err)
	}
	return nil
}
