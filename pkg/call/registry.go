package call

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/voxsched/voxsched/pkg/core"
)

var (
	// ErrSessionNotFound is returned when a key resolves to no session.
	// Append and Close treat it as benign: late or duplicate transport
	// events are expected and must not resurrect state.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadyFinalized is returned by Finalize when the session is
	// already finalizing or closed, so the pipeline runs at most once per
	// call even when the stream path and the status-callback path both
	// reach the end of the same call.
	ErrAlreadyFinalized = errors.New("session already finalized")
)

// Registry is the in-memory mapping of call/stream identifiers to sessions.
// It is the only structure touched from multiple call contexts at once; the
// registry lock covers only key resolution, and each session carries its own
// lock, so appends on one call never contend with another call's traffic.
type Registry struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	sessions map[string]*Session
	pending  map[string]PendingParams
}

// NewRegistry returns an empty registry. Construct one per process (or per
// test) and pass it to every component that needs it.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*Session),
		pending:  make(map[string]PendingParams),
	}
}

// RegisterPending stores call context keyed by the outbound call id before
// any webhook identifier exists. A second call with the same id overwrites:
// last write wins.
func (r *Registry) RegisterPending(callID, availability, hostEmail, hostName string) {
	r.mu.Lock()
	r.pending[callID] = PendingParams{
		Availability: availability,
		HostEmail:    hostEmail,
		HostName:     hostName,
	}
	r.mu.Unlock()
	r.logger.Info("registered pending call params", "call_id", callID, "host_email", hostEmail)
}

// PendingParams returns the pending entry for callID, if any.
func (r *Registry) PendingParams(callID string) (PendingParams, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pending[callID]
	return p, ok
}

// Promote creates a streaming session keyed by streamID, copying context from
// the pending entry for callID and deleting that entry. It never fails:
// missing pending context degrades to empty fields, it does not block the
// call. When callID differs from streamID both keys resolve to the same
// record until Close.
func (r *Registry) Promote(callID, streamID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[streamID]; ok {
		// Duplicate start event; keep the existing record.
		return s
	}

	var params PendingParams
	if callID != "" {
		if p, ok := r.pending[callID]; ok {
			params = p
			delete(r.pending, callID)
		}
	}

	s := &Session{
		key:          streamID,
		state:        StateStreaming,
		availability: params.Availability,
		hostEmail:    params.HostEmail,
		hostName:     params.HostName,
	}
	r.sessions[streamID] = s
	if callID != "" && callID != streamID {
		s.alias = callID
		r.sessions[callID] = s
	}
	r.logger.Info("promoted session", "call_id", callID, "stream_id", streamID, "host_email", params.HostEmail)
	return s
}

func (r *Registry) lookup(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Append adds a transcript entry in arrival order. Appends against unknown
// keys are logged and dropped; they must not error or resurrect a closed
// session.
func (r *Registry) Append(key string, role Role, content string) error {
	s, ok := r.lookup(key)
	if !ok {
		r.logger.Warn("transcript append for unknown session", "key", key, "role", string(role))
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateFinalizing {
		return ErrSessionNotFound
	}
	s.transcript = append(s.transcript, Utterance{Role: role, Content: content})
	return nil
}

// SetConversationID records the voice-engine conversation id once known.
func (r *Registry) SetConversationID(key, conversationID string) {
	s, ok := r.lookup(key)
	if !ok {
		return
	}
	s.mu.Lock()
	s.conversationID = conversationID
	s.mu.Unlock()
}

// UpdateContext fills in context fields resolved after promotion (webhook or
// query parameters beat whatever the session already carries; empty values
// never clobber existing ones).
func (r *Registry) UpdateContext(key, availability, hostEmail, hostName string) {
	s, ok := r.lookup(key)
	if !ok {
		return
	}
	s.mu.Lock()
	if availability != "" {
		s.availability = availability
	}
	if hostEmail != "" {
		s.hostEmail = hostEmail
	}
	if hostName != "" && hostName != DefaultHostName {
		s.hostName = hostName
	}
	s.mu.Unlock()
}

// ScanParams returns context fields from any active session that has them.
// It backs the reconciliation waterfall's registry-scan step when a stream
// arrives without query parameters.
func (r *Registry) ScanParams() (PendingParams, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.mu.Lock()
		p := PendingParams{
			Availability: s.availability,
			HostEmail:    s.hostEmail,
			HostName:     s.hostName,
		}
		s.mu.Unlock()
		if p.Availability != "" || p.HostEmail != "" || p.HostName != "" {
			return p, true
		}
	}
	return PendingParams{}, false
}

// Finalize transitions the session to finalizing and returns the snapshot
// the pipeline consumes. The second caller for the same call gets
// ErrAlreadyFinalized and must not run the pipeline again.
func (r *Registry) Finalize(key string) (Snapshot, error) {
	s, ok := r.lookup(key)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalizing || s.state == StateClosed {
		return Snapshot{}, ErrAlreadyFinalized
	}
	s.state = StateFinalizing
	return Snapshot{
		SessionKey:     s.key,
		Transcript:     FormatTranscript(s.transcript),
		Entries:        len(s.transcript),
		Availability:   s.availability,
		HostEmail:      s.hostEmail,
		HostName:       s.hostName,
		ConversationID: s.conversationID,
	}, nil
}

// SetOutcome records the pipeline result on the session. Write-once: later
// calls with a meeting already present are ignored.
func (r *Registry) SetOutcome(key string, meeting *core.MeetingDraft, eventID string) {
	s, ok := r.lookup(key)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.meeting == nil {
		s.meeting = meeting
	}
	if s.calendarEventID == "" {
		s.calendarEventID = eventID
	}
	s.mu.Unlock()
}

// Close deletes the record and any alias unconditionally. It is invoked on
// every path out of a call, including errors; closing an unknown key is a
// no-op.
func (r *Registry) Close(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.key)
	if s.alias != "" {
		delete(r.sessions, s.alias)
	}
	r.mu.Unlock()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	r.logger.Info("closed session", "key", key)
}

// Lookup returns a copy of the session's visible fields.
func (r *Registry) Lookup(key string) (View, bool) {
	s, ok := r.lookup(key)
	if !ok {
		return View{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Key:             s.key,
		State:           s.state,
		Availability:    s.availability,
		HostEmail:       s.hostEmail,
		HostName:        s.hostName,
		ConversationID:  s.conversationID,
		Meeting:         s.meeting,
		CalendarEventID: s.calendarEventID,
	}, true
}

// Len reports the number of distinct live sessions (aliases excluded).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Session]struct{}, len(r.sessions))
	for _, s := range r.sessions {
		seen[s] = struct{}{}
	}
	return len(seen)
}
