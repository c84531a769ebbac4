package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/voxsched/voxsched/pkg/gateway/config"
	"github.com/voxsched/voxsched/pkg/telephony"
)

// VoiceHandler answers Twilio's voice webhook with TwiML that connects the
// call to the media-stream websocket. Scheduling context arrives as query
// parameters on the webhook URL and is passed through to the stream URL.
type VoiceHandler struct {
	Config config.Config
	Logger *slog.Logger
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.Logger.Warn("voice webhook had unparseable form", "err", err)
		writeTwiML(w, telephony.SayTwiML("Sorry, there was a problem connecting your call. Please try again later."))
		return
	}
	callSID := strings.TrimSpace(r.Form.Get("CallSid"))

	q := url.Values{}
	for _, key := range []string{"availability", "email", "name"} {
		if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
			q.Set(key, v)
		}
	}

	streamURL := "wss://" + h.Config.PublicHost + "/api/twilio/media-stream"
	if enc := q.Encode(); enc != "" {
		streamURL += "?" + enc
	}

	h.Logger.Info("serving stream TwiML", "call_sid", callSID)
	writeTwiML(w, telephony.StreamTwiML(streamURL))
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
