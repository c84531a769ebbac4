package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/core"
	"github.com/voxsched/voxsched/pkg/gateway/config"
	"github.com/voxsched/voxsched/pkg/gateway/mw"
	"github.com/voxsched/voxsched/pkg/telephony"
)

// CallCreator places outbound calls. Satisfied by *telephony.Client.
type CallCreator interface {
	CreateCall(ctx context.Context, to, voiceURL, statusCallbackURL string) (string, error)
}

// CallsHandler handles POST /api/calls: place an outbound scheduling call.
type CallsHandler struct {
	Config    config.Config
	Telephony CallCreator
	Registry  *call.Registry
	Logger    *slog.Logger
}

type createCallRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	Availability string `json:"availability"`
	HostEmail    string `json:"hostEmail"`
	HostName     string `json:"hostName"`
}

type createCallResponse struct {
	CallSID string `json:"callSid"`
	Status  string `json:"status"`
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}

	to := telephony.NormalizePhone(req.PhoneNumber)
	if to == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("phoneNumber is required", "phoneNumber"), http.StatusBadRequest)
		return
	}
	if req.HostEmail != "" && !config.ValidEmail(req.HostEmail) {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("hostEmail is not a valid address", "hostEmail"), http.StatusBadRequest)
		return
	}

	q := url.Values{}
	if v := strings.TrimSpace(req.Availability); v != "" {
		q.Set("availability", v)
	}
	if v := strings.TrimSpace(req.HostEmail); v != "" {
		q.Set("email", v)
	}
	if v := strings.TrimSpace(req.HostName); v != "" {
		q.Set("name", v)
	}

	voiceURL := "https://" + h.Config.PublicHost + "/api/twilio/voice"
	if enc := q.Encode(); enc != "" {
		voiceURL += "?" + enc
	}
	statusURL := "https://" + h.Config.PublicHost + "/api/twilio/status"

	callSID, err := h.Telephony.CreateCall(r.Context(), to, voiceURL, statusURL)
	if err != nil {
		h.Logger.Error("outbound call failed", "request_id", reqID, "to", to, "err", err)
		writeCoreErrorJSON(w, reqID, core.NewVendorError("twilio", err), http.StatusBadGateway)
		return
	}

	h.Registry.RegisterPending(callSID, strings.TrimSpace(req.Availability), strings.TrimSpace(req.HostEmail), strings.TrimSpace(req.HostName))
	h.Logger.Info("outbound call placed", "request_id", reqID, "call_sid", callSID, "to", to)

	writeJSON(w, http.StatusCreated, createCallResponse{CallSID: callSID, Status: telephony.StatusQueued})
}
