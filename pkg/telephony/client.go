// Package telephony wraps the Twilio REST API for outbound calls and
// generates the TwiML that routes an answered call into the media stream.
package telephony

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the Twilio REST API base.
const DefaultBaseURL = "https://api.twilio.com"

// Call status values delivered on the status callback.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
)

// Client calls the Twilio REST API for one account.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New creates a Twilio client.
func New(accountSID, authToken, fromNumber string, opts ...Option) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizePhone puts a dialable number into E.164-like form: bare 10-digit
// US numbers get +1, any other number missing the + prefix gets a bare +.
func NormalizePhone(raw string) string {
	n := strings.TrimSpace(raw)
	if n == "" || strings.HasPrefix(n, "+") {
		return n
	}
	if len(n) == 10 && isDigits(n) {
		return "+1" + n
	}
	return "+" + n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type callResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// CreateCall places an outbound call. Twilio fetches TwiML from voiceURL
// when the callee answers and posts lifecycle updates to statusCallbackURL.
// Returns the new call SID.
func (c *Client) CreateCall(ctx context.Context, to, voiceURL, statusCallbackURL string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Url", voiceURL)
	if statusCallbackURL != "" {
		form.Set("StatusCallback", statusCallbackURL)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
		form.Set("StatusCallbackMethod", http.MethodPost)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cr callResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if cr.SID == "" {
		return "", fmt.Errorf("twilio returned no call sid")
	}
	return cr.SID, nil
}

// StreamTwiML returns the TwiML that connects an answered call to the
// bidirectional media stream at streamURL.
func StreamTwiML(streamURL string) string {
	var esc strings.Builder
	_ = xml.EscapeText(&esc, []byte(streamURL))
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Response><Connect><Stream url="` + esc.String() + `"/></Connect></Response>`
}

// SayTwiML returns a plain spoken response, used when the media stream
// cannot be set up so the caller still hears something instead of dead air.
func SayTwiML(message string) string {
	var esc strings.Builder
	_ = xml.EscapeText(&esc, []byte(message))
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Response><Say>` + esc.String() + `</Say></Response>`
}
