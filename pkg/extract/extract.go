// Package extract turns a finished call transcript into a structured meeting
// draft using Gemini. The model is asked for bare JSON; a fence-stripping
// fallback repairs the common markdown-wrapped reply before giving up.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/voxsched/voxsched/pkg/core"
)

// DefaultModel is the extraction model.
const DefaultModel = "gemini-2.0-flash"

var referenceZones = []struct {
	label string
	name  string
}{
	{"US/Eastern", "America/New_York"},
	{"US/Central", "America/Chicago"},
	{"US/Mountain", "America/Denver"},
	{"US/Pacific", "America/Los_Angeles"},
}

// Client extracts meeting drafts from transcripts.
type Client struct {
	model    string
	now      func() time.Time
	generate func(ctx context.Context, system, prompt string) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = model
		}
	}
}

// New creates an extraction client for the given API key.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		model: DefaultModel,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.generate = func(ctx context.Context, system, prompt string) (string, error) {
		resp, err := gc.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.2),
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return c, nil
}

// Extract implements the pipeline's Extractor.
func (c *Client) Extract(ctx context.Context, transcript, availability, hostName string) (*core.MeetingDraft, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("no transcript provided")
	}

	raw, err := c.generate(ctx, c.systemPrompt(availability, hostName), transcript)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}

	draft, err := decodeMeetingJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return draft, nil
}

func (c *Client) systemPrompt(availability, hostName string) string {
	now := c.now().UTC()
	day := now.Format("Monday")

	var zones strings.Builder
	for _, z := range referenceZones {
		loc, err := time.LoadLocation(z.name)
		if err != nil {
			continue
		}
		local := now.In(loc)
		fmt.Fprintf(&zones, "- %s: %s (%s)\n", z.label, local.Format("2006-01-02 15:04:05 MST"), local.Format("Monday"))
	}

	var b strings.Builder
	b.WriteString("You are a scheduling assistant that parses a phone conversation into structured meeting data.\n\n")
	fmt.Fprintf(&b, "Current UTC time: %s\nCurrent day: %s\nCurrent times:\n%s\n", now.Format(time.RFC3339), day, zones.String())
	b.WriteString(`Extract the meeting the participants agreed on and reply with a single JSON object:
{"title": string, "description": string, "startDateTime": string, "endDateTime": string}

Rules:
- Format every datetime as ISO 8601 with a timezone offset (YYYY-MM-DDTHH:MM:SS±HH:MM).
- Only suggest future times relative to the current time above; honor phrases like "next week".
- Use "" for any string you cannot determine from the conversation.
- If a time is mentioned without AM/PM, assume business hours (9 AM to 5 PM local).
- If no day is mentioned, pick the next business day.
- Reply with the JSON object only, no other text.`)

	if availability != "" {
		fmt.Fprintf(&b, "\nThe host is available: %s. The meeting time must fit this availability.", availability)
	}
	if hostName != "" {
		fmt.Fprintf(&b, "\nThe host's name is %s. Include the customer's name in the meeting title.", hostName)
	}
	return b.String()
}

// decodeMeetingJSON parses model output into a draft, tolerating a reply
// wrapped in a markdown code fence.
func decodeMeetingJSON(raw []byte) (*core.MeetingDraft, error) {
	var draft core.MeetingDraft
	if err := json.Unmarshal(raw, &draft); err == nil {
		return &draft, nil
	}

	stripped := stripFence(string(raw))
	if err := json.Unmarshal([]byte(stripped), &draft); err != nil {
		return nil, fmt.Errorf("model did not return valid JSON: %w", err)
	}
	return &draft, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
