// Package calendar books meetings through the Google Calendar REST API.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/voxsched/voxsched/pkg/core"
)

// DefaultBaseURL is the Calendar v3 API endpoint.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// EventTime is a Calendar API dateTime with zone.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Attendee is one invited participant.
type Attendee struct {
	Email string `json:"email"`
}

// Event is the insert payload for the Calendar events endpoint.
type Event struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

type eventResponse struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink"`
	Status   string `json:"status"`
}

// Client calls the Calendar API with a per-request bearer token; it holds no
// credentials of its own.
type Client struct {
	baseURL    string
	timeZone   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeZone sets the IANA zone stamped on event times. Defaults to the
// process-local zone.
func WithTimeZone(tz string) Option {
	return func(c *Client) {
		if strings.TrimSpace(tz) != "" {
			c.timeZone = tz
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

// New creates a calendar client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		timeZone:   localZone(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func localZone() string {
	name := time.Now().Location().String()
	if name == "" || name == "Local" {
		return "UTC"
	}
	return name
}

// EnsureISO normalizes a datetime string for the Calendar API: ISO strings
// without an offset get a trailing Z, anything else must parse as RFC 3339.
func EnsureISO(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty datetime")
	}
	if isoPrefix.MatchString(s) {
		if strings.HasSuffix(s, "Z") || hasZoneOffset(s) {
			return s, nil
		}
		return s + "Z", nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("invalid datetime %q: %w", s, err)
	}
	return ts.Format(time.RFC3339), nil
}

func hasZoneOffset(s string) bool {
	// Offset appears after the time part, e.g. 2026-09-03T14:00:00-07:00.
	if len(s) < 6 {
		return false
	}
	tail := s[len(s)-6:]
	return (tail[0] == '+' || tail[0] == '-') && tail[3] == ':'
}

// FormatMeeting turns an extracted draft into the Calendar insert payload,
// inviting the host and appending their availability to the description.
func (c *Client) FormatMeeting(draft *core.MeetingDraft, hostEmail, availability string) (Event, error) {
	start, err := EnsureISO(draft.StartDateTime)
	if err != nil {
		return Event{}, fmt.Errorf("start time: %w", err)
	}
	end := draft.EndDateTime
	if strings.TrimSpace(end) == "" {
		// No end time extracted: default to 30 minutes after start.
		ts, perr := time.Parse(time.RFC3339, start)
		if perr != nil {
			return Event{}, fmt.Errorf("end time: cannot derive from start %q", start)
		}
		end = ts.Add(30 * time.Minute).Format(time.RFC3339)
	} else {
		end, err = EnsureISO(end)
		if err != nil {
			return Event{}, fmt.Errorf("end time: %w", err)
		}
	}

	description := draft.Description
	if availability != "" {
		if description != "" {
			description += "\n\n"
		}
		description += "Host's weekly availability: " + availability
	}

	summary := draft.Title
	if strings.TrimSpace(summary) == "" {
		summary = "Scheduled Meeting"
	}

	ev := Event{
		Summary:     summary,
		Description: description,
		Start:       EventTime{DateTime: start, TimeZone: c.timeZone},
		End:         EventTime{DateTime: end, TimeZone: c.timeZone},
	}
	if hostEmail != "" {
		ev.Attendees = []Attendee{{Email: hostEmail}}
	}
	return ev, nil
}

// Book implements the pipeline's Booker: format the draft and insert it into
// the host's calendar with attendee notifications.
func (c *Client) Book(ctx context.Context, accessToken, calendarID string, draft *core.MeetingDraft, hostEmail, availability string) (string, error) {
	ev, err := c.FormatMeeting(draft, hostEmail, availability)
	if err != nil {
		return "", err
	}
	resp, err := c.CreateEvent(ctx, accessToken, calendarID, ev)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreatedEvent is the subset of the insert response the gateway records.
type CreatedEvent struct {
	ID       string
	HTMLLink string
}

// CreateEvent inserts ev into calendarID using accessToken.
func (c *Client) CreateEvent(ctx context.Context, accessToken, calendarID string, ev Event) (CreatedEvent, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return CreatedEvent{}, fmt.Errorf("marshal event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?sendUpdates=all", c.baseURL, url.PathEscape(calendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return CreatedEvent{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CreatedEvent{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CreatedEvent{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return CreatedEvent{}, fmt.Errorf("calendar API status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var er eventResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return CreatedEvent{}, fmt.Errorf("decode response: %w", err)
	}
	return CreatedEvent{ID: er.ID, HTMLLink: er.HTMLLink}, nil
}
