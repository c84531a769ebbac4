package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxsched/voxsched/pkg/auth"
	"github.com/voxsched/voxsched/pkg/core"
	"github.com/voxsched/voxsched/pkg/gateway/config"
)

type nilExtractor struct{}

func (nilExtractor) Extract(ctx context.Context, transcript, availability, hostName string) (*core.MeetingDraft, error) {
	return &core.MeetingDraft{}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Addr:                ":0",
		PublicHost:          "voice.example.com",
		TwilioAccountSID:    "AC1",
		TwilioAuthToken:     "tok",
		TwilioFromNumber:    "+15550001111",
		TwilioBaseURL:       "http://twilio.invalid",
		AgentAPIKey:         "xi",
		AgentID:             "agent",
		GeminiAPIKey:        "gm",
		CalendarID:          "primary",
		CalendarTimeZone:    "UTC",
		OutcomeHistoryLimit: 16,
		PipelineTimeout:     time.Second,
		BridgeWriteTimeout:  time.Second,
		BridgePollInterval:  10 * time.Millisecond,
	}
	logger := slog.New(slog.DiscardHandler)
	return New(cfg, logger, nilExtractor{}, auth.NewMemoryStore())
}

func TestHealthz(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestReadyz(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		OK          bool `json:"ok"`
		ActiveCalls int  `json:"active_calls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.ActiveCalls != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var envelope struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error == nil || envelope.Error.Type != core.ErrNotFound {
		t.Errorf("envelope = %+v", envelope)
	}
	if envelope.Error.RequestID == "" {
		t.Error("request id missing from error envelope")
	}
}

func TestTokensRouteWired(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/users/host@example.com/tokens",
		nil)
	s.Handler().ServeHTTP(rec, req)

	// No body: the handler owns the route and rejects the payload, which
	// proves routing reached it rather than the not-found fallback.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
