// Package call tracks the in-memory state of every phone call the gateway is
// handling: pending parameters captured before Twilio assigns identifiers,
// live sessions with their transcripts, and the finalize/close lifecycle that
// hands a completed call off to meeting extraction.
package call

import (
	"strings"
	"sync"

	"github.com/voxsched/voxsched/pkg/core"
)

// Role tags a transcript entry with its speaker.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// State is the lifecycle position of a session.
//
// pending exists only for outbound calls between initiation and webhook
// arrival; streaming lasts for the life of the media connection; finalizing
// is the single synchronous pipeline run; closed is terminal and the record
// is gone from the registry.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Utterance is one speaker-tagged transcript entry.
type Utterance struct {
	Role    Role
	Content string
}

// PendingParams holds call context captured at initiation time, before any
// webhook identifier exists. Consumed and discarded on promotion.
type PendingParams struct {
	Availability string
	HostEmail    string
	HostName     string
}

// Session is the record for one phone call. The registry owns it; everything
// else holds at most a transient reference while the stream is open.
type Session struct {
	mu sync.Mutex

	key   string
	alias string // secondary key (outbound call id) during the transition window
	state State

	availability string
	hostEmail    string
	hostName     string

	conversationID string
	transcript     []Utterance

	meeting         *core.MeetingDraft // write-once
	calendarEventID string
}

// Snapshot is the read-only view handed to the extraction-and-booking
// pipeline when a session finalizes.
type Snapshot struct {
	SessionKey     string
	Transcript     string
	Entries        int
	Availability   string
	HostEmail      string
	HostName       string
	ConversationID string
}

// View is a copy of a session's externally visible fields, used by status
// queries.
type View struct {
	Key             string
	State           State
	Availability    string
	HostEmail       string
	HostName        string
	ConversationID  string
	Meeting         *core.MeetingDraft
	CalendarEventID string
}

// FormatTranscript renders utterances one per line as
// "<RoleCapitalized>: <content>", joined by newline, in insertion order.
func FormatTranscript(entries []Utterance) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(capitalize(string(e.Role)))
		b.WriteString(": ")
		b.WriteString(e.Content)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DeriveHostName derives a display name from an email's local part,
// title-cased with dots and underscores replaced by spaces. Returns
// DefaultHostName when no usable email is given.
func DeriveHostName(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return DefaultHostName
	}
	local := email[:at]
	local = strings.ReplaceAll(local, ".", " ")
	local = strings.ReplaceAll(local, "_", " ")
	words := strings.Fields(local)
	if len(words) == 0 {
		return DefaultHostName
	}
	for i, w := range words {
		words[i] = capitalize(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

// DefaultHostName is the hard-coded fallback when no host name can be
// resolved or derived.
const DefaultHostName = "the host"
