package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/telephony"
)

// StatusHandler handles Twilio status callbacks. Terminal statuses trigger
// the end-of-call sequence; if the media stream already got there, the
// finalize gate makes this a no-op.
type StatusHandler struct {
	Registry *call.Registry
	Finisher Finisher
	Logger   *slog.Logger
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	callSID := strings.TrimSpace(r.Form.Get("CallSid"))
	status := strings.TrimSpace(r.Form.Get("CallStatus"))
	if callSID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}

	h.Logger.Info("call status", "call_sid", callSID, "status", status)

	switch status {
	case telephony.StatusCompleted, telephony.StatusFailed, telephony.StatusBusy, telephony.StatusNoAnswer:
		if _, ok := h.Registry.Lookup(callSID); !ok {
			// The call never reached streaming (busy, no answer, carrier
			// failure). Promote whatever pending context exists so the
			// outcome is recorded and the pending entry is consumed.
			if _, pending := h.Registry.PendingParams(callSID); !pending {
				break
			}
			h.Registry.Promote(callSID, callSID)
		}
		h.Finisher.Finish(callSID)
	}

	w.WriteHeader(http.StatusNoContent)
}
