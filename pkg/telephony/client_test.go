package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5551234567", "+15551234567"},
		{"+15551234567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{" 5551234567 ", "+15551234567"},
		{"+447911123456", "+447911123456"},
		{"447911123456", "+447911123456"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Calls.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "+15551234567" {
			t.Errorf("To = %q", got)
		}
		if got := r.PostForm.Get("From"); got != "+15550001111" {
			t.Errorf("From = %q", got)
		}
		if got := r.PostForm["StatusCallbackEvent"]; len(got) != 4 {
			t.Errorf("StatusCallbackEvent = %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	}))
	defer srv.Close()

	c := New("AC123", "secret", "+15550001111", WithBaseURL(srv.URL))
	sid, err := c.CreateCall(context.Background(), "+15551234567", "https://example.com/voice", "https://example.com/status")
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if sid != "CA999" {
		t.Errorf("sid = %q", sid)
	}
}

func TestCreateCall_VendorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	c := New("AC123", "secret", "+15550001111", WithBaseURL(srv.URL))
	if _, err := c.CreateCall(context.Background(), "bogus", "https://example.com/voice", ""); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestStreamTwiML_EscapesURL(t *testing.T) {
	got := StreamTwiML("wss://host/api/twilio/media-stream?availability=9-5&host_email=a@b.c")
	if !strings.Contains(got, "<Connect><Stream url=") {
		t.Errorf("twiml = %q", got)
	}
	if strings.Contains(got, "9-5&host_email") {
		t.Error("ampersand not escaped")
	}
	if !strings.Contains(got, "&amp;") {
		t.Errorf("twiml = %q", got)
	}
}

func TestSayTwiML(t *testing.T) {
	got := SayTwiML("Sorry, there was an error connecting you.")
	if !strings.Contains(got, "<Say>Sorry, there was an error connecting you.</Say>") {
		t.Errorf("twiml = %q", got)
	}
}
