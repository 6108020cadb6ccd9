package telnyxclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func testClient(t *testing.T, baseURL string, cfg Config) *Client {
	t.Helper()
	cfg.APIKey = "KEY_test"
	cfg.BaseURL = baseURL
	cfg.Logger = logging.Discard()
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNewDefaults(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	c, err := New(Config{APIKey: "k", BaseURL: " https://example.test/v2/ ", MaxRetries: -3})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/v2", c.cfg.BaseURL)
	assert.Equal(t, 0, c.cfg.MaxRetries)
	assert.Equal(t, 5*time.Minute, c.cfg.MaxSkew)
	assert.Equal(t, 10*time.Second, c.http.Timeout)
}

func TestSendMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer KEY_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(fixture(t, "send_message_success.json"))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL, Config{}).SendMessage(context.Background(), SendMessageRequest{
		To:                 "+5511988887777",
		Body:               "Olá! Seu horário está confirmado.",
		MessagingProfileID: "profile-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_01J123ABC", resp.ID)
	assert.Equal(t, "queued", resp.Status())
	assert.Equal(t, map[string]string{
		"to":                   "+5511988887777",
		"text":                 "Olá! Seu horário está confirmado.",
		"messaging_profile_id": "profile-1",
	}, got)
}

func TestSendMessageValidation(t *testing.T) {
	c := testClient(t, "http://unused", Config{})
	for name, req := range map[string]SendMessageRequest{
		"no sender": {To: "+5511", Body: "oi"},
		"no to":     {From: "+5511", Body: "oi"},
		"no body":   {From: "+5511", To: "+5512", Body: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.SendMessage(context.Background(), req)
			require.Error(t, err)
		})
	}
}

func TestSendMessageRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(fixture(t, "send_message_success.json"))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, Config{MaxRetries: 2}).SendMessage(context.Background(), SendMessageRequest{From: "+1", To: "+2", Body: "oi"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendMessageDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"40310","title":"Invalid 'to' address","detail":"The 'to' address is not a valid number."}]}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, Config{MaxRetries: 3}).SendMessage(context.Background(), SendMessageRequest{From: "+1", To: "+2", Body: "oi"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "40310", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "Invalid 'to' address: The 'to' address is not a valid number.")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendMessageStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(t, srv.URL, Config{MaxRetries: 5, Backoff: time.Hour}).SendMessage(ctx, SendMessageRequest{From: "+1", To: "+2", Body: "oi"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAPIErrorFallbacks(t *testing.T) {
	assert.Equal(t, "telnyxclient: boom (status 500)", parseAPIError(500, []byte("boom")).Error())
	assert.Equal(t, "telnyxclient: Service Unavailable (status 503)", parseAPIError(503, nil).Error())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   bool
	}{
		{http.StatusTooManyRequests, nil, true},
		{http.StatusInternalServerError, nil, true},
		{http.StatusBadRequest, errors.New("bad"), false},
		{0, context.Canceled, false},
		{0, &timeoutErr{}, true},
		{0, errors.New("opaque"), false},
	}
	for _, tt := range tests {
		if got := retryable(tt.status, tt.err); got != tt.want {
			t.Fatalf("retryable(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
		}
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }

func TestVerifyWebhookSignature(t *testing.T) {
	now := time.Date(2028, 7, 10, 11, 0, 0, 0, time.UTC)
	c := testClient(t, "http://unused", Config{WebhookSecret: "whsec", Now: func() time.Time { return now }})
	body := fixture(t, "webhook_event.json")
	ts := strconv.FormatInt(now.Unix(), 10)
	old := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)

	tests := []struct {
		name      string
		timestamp string
		signature string
		want      error
	}{
		{"valid", ts, Sign("whsec", ts, body), nil},
		{"uppercase hex", ts, "  " + upper(Sign("whsec", ts, body)), nil},
		{"wrong secret", ts, Sign("other", ts, body), ErrBadSignature},
		{"stale", old, Sign("whsec", old, body), ErrStaleSignature},
		{"missing", "", "", ErrMissingSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.VerifyWebhookSignature(tt.timestamp, tt.signature, body)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}

	require.Error(t, c.VerifyWebhookSignature("yesterday", "abc", body))
	noSecret := testClient(t, "http://unused", Config{})
	require.ErrorIs(t, noSecret.VerifyWebhookSignature(ts, "abc", body), ErrNoSecret)
}

func upper(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'a' && b <= 'f' {
			out[i] = b - 32
		}
	}
	return string(out)
}

func TestParseEvent(t *testing.T) {
	evt, err := ParseEvent(fixture(t, "webhook_event.json"))
	require.NoError(t, err)
	assert.Equal(t, EventMessageReceived, evt.EventType)

	var payload MessagePayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "+5511988887777", payload.FromNumber())
	assert.Equal(t, "+5511400012340", payload.ToNumber())
	assert.Equal(t, "Quero agendar uma limpeza de pele", payload.Text)

	_, err = ParseEvent([]byte(`{"data":{}}`))
	require.Error(t, err)
	_, err = ParseEvent([]byte(`not json`))
	require.Error(t, err)
}
