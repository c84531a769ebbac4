package call

import (
	"sync"
	"time"

	"github.com/voxsched/voxsched/pkg/core"
)

// Outcome is what survives a session after Close: the pipeline's verdict for
// a finished call, kept so a status query can observe whether scheduling
// succeeded after the call itself is gone.
type Outcome struct {
	SessionKey  string
	Success     bool
	Reason      string
	Meeting     *core.MeetingDraft
	EventID     string
	CompletedAt time.Time
}

// Outcomes is a bounded most-recent-first record of pipeline results. It is
// not durable storage; restart loses it, which matches the in-process scope
// of session state.
type Outcomes struct {
	mu    sync.Mutex
	limit int
	byKey map[string]*Outcome
	order []string // insertion order for eviction
	now   func() time.Time
}

// NewOutcomes returns an outcome log that retains at most limit entries.
func NewOutcomes(limit int) *Outcomes {
	if limit <= 0 {
		limit = 128
	}
	return &Outcomes{
		limit: limit,
		byKey: make(map[string]*Outcome),
		now:   time.Now,
	}
}

// Record stores the outcome under every key the call was known by.
func (o *Outcomes) Record(keys []string, success bool, reason string, meeting *core.MeetingDraft, eventID string) {
	if len(keys) == 0 {
		return
	}
	out := &Outcome{
		SessionKey:  keys[0],
		Success:     success,
		Reason:      reason,
		Meeting:     meeting,
		EventID:     eventID,
		CompletedAt: o.now(),
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, exists := o.byKey[k]; !exists {
			o.order = append(o.order, k)
		}
		o.byKey[k] = out
	}
	for len(o.order) > o.limit {
		evict := o.order[0]
		o.order = o.order[1:]
		delete(o.byKey, evict)
	}
}

// Get returns the recorded outcome for key, if it is still retained.
func (o *Outcomes) Get(key string) (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, ok := o.byKey[key]
	if !ok {
		return Outcome{}, false
	}
	return *out, true
}
