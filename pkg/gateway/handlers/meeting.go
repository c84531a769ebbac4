package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/core"
	"github.com/voxsched/voxsched/pkg/gateway/mw"
)

// MeetingHandler handles GET /api/calls/{sid}/meeting: the scheduling result
// for a call, whether it is still live or already finished.
type MeetingHandler struct {
	Registry *call.Registry
	Outcomes *call.Outcomes
	Logger   *slog.Logger
}

type meetingResponse struct {
	CallSID     string             `json:"callSid"`
	State       string             `json:"state"`
	Success     bool               `json:"success"`
	Reason      string             `json:"reason,omitempty"`
	Meeting     *core.MeetingDraft `json:"meeting,omitempty"`
	EventID     string             `json:"calendarEventId,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

func (h MeetingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	sid := meetingPathSID(r.URL.Path)
	if sid == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("call sid is required"), http.StatusBadRequest)
		return
	}

	if view, ok := h.Registry.Lookup(sid); ok {
		writeJSON(w, http.StatusOK, meetingResponse{
			CallSID: sid,
			State:   view.State.String(),
			Success: view.CalendarEventID != "",
			Meeting: view.Meeting,
			EventID: view.CalendarEventID,
		})
		return
	}

	if out, ok := h.Outcomes.Get(sid); ok {
		completed := out.CompletedAt
		writeJSON(w, http.StatusOK, meetingResponse{
			CallSID:     sid,
			State:       call.StateClosed.String(),
			Success:     out.Success,
			Reason:      out.Reason,
			Meeting:     out.Meeting,
			EventID:     out.EventID,
			CompletedAt: &completed,
		})
		return
	}

	writeCoreErrorJSON(w, reqID, core.NewNotFoundError("no such call"), http.StatusNotFound)
}

// meetingPathSID extracts the sid from /api/calls/{sid}/meeting.
func meetingPathSID(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/calls/")
	if !ok {
		return ""
	}
	sid, ok := strings.CutSuffix(rest, "/meeting")
	if !ok || strings.Contains(sid, "/") {
		return ""
	}
	return strings.TrimSpace(sid)
}
