package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxsched/voxsched/pkg/gateway/config"
)

func TestVoiceHandlerReturnsStreamTwiML(t *testing.T) {
	h := VoiceHandler{
		Config: config.Config{PublicHost: "voice.example.com"},
		Logger: testLogger(),
	}

	req := httptest.NewRequest(http.MethodPost,
		"/api/twilio/voice?availability=Mon+9-12&email=host%40example.com&name=Jo",
		strings.NewReader("CallSid=CA1&CallStatus=in-progress"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "<Connect>") || !strings.Contains(body, "<Stream") {
		t.Fatalf("body = %s", body)
	}
	if !strings.Contains(body, "wss://voice.example.com/api/twilio/media-stream?") {
		t.Errorf("stream url missing from %s", body)
	}
	// URL lives inside an XML attribute, so & separators must be escaped.
	if !strings.Contains(body, "email=host%40example.com") {
		t.Errorf("email param missing from %s", body)
	}
	if !strings.Contains(body, "availability=Mon+9-12") {
		t.Errorf("availability param missing from %s", body)
	}
}

func TestVoiceHandlerNoParams(t *testing.T) {
	h := VoiceHandler{
		Config: config.Config{PublicHost: "voice.example.com"},
		Logger: testLogger(),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/twilio/voice", strings.NewReader("CallSid=CA1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "wss://voice.example.com/api/twilio/media-stream") {
		t.Fatalf("body = %s", body)
	}
	if strings.Contains(body, "media-stream?") {
		t.Errorf("unexpected query string in %s", body)
	}
}

func TestVoiceHandlerMethodNotAllowed(t *testing.T) {
	h := VoiceHandler{Config: config.Config{PublicHost: "x"}, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/twilio/voice", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
