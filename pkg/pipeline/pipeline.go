// Package pipeline runs the terminal step for a finished call: format the
// transcript, extract a meeting draft, resolve credentials, and book the
// calendar event. Every failure is captured in the Result; nothing escapes
// to the caller, whose only remaining duty is unconditional session cleanup.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/voxsched/voxsched/pkg/auth"
	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/core"
)

// Failure reasons reported in Result.Reason.
const (
	ReasonEmptyTranscript = "empty transcript"
	ReasonExtractionFail  = "extraction failed"
	ReasonMissingFields   = "missing start time or host email"
	ReasonNoCredentials   = "no stored credentials"
	ReasonRefreshFail     = "credential refresh failed"
	ReasonBookingFail     = "booking failed"
)

// Extractor turns a transcript into a structured meeting draft.
type Extractor interface {
	Extract(ctx context.Context, transcript, availability, hostName string) (*core.MeetingDraft, error)
}

// Booker creates the calendar event. Called at most once per pipeline run;
// a retry could double-book.
type Booker interface {
	Book(ctx context.Context, accessToken, calendarID string, draft *core.MeetingDraft, hostEmail, availability string) (eventID string, err error)
}

// Credentials resolves a fresh access token for a host. (nil, nil) means the
// host never authorized.
type Credentials interface {
	EnsureFresh(ctx context.Context, email string) (*auth.Record, error)
}

// Result is the pipeline's verdict for one call.
type Result struct {
	Success bool
	Reason  string
	Detail  string
	Meeting *core.MeetingDraft
	EventID string
}

// Runner executes the pipeline with injected collaborators.
type Runner struct {
	extractor   Extractor
	booker      Booker
	credentials Credentials
	calendarID  string
	logger      *slog.Logger
}

// NewRunner wires a runner. calendarID defaults to "primary".
func NewRunner(extractor Extractor, booker Booker, credentials Credentials, calendarID string, logger *slog.Logger) *Runner {
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		extractor:   extractor,
		booker:      booker,
		credentials: credentials,
		calendarID:  calendarID,
		logger:      logger,
	}
}

// Run executes the pipeline once for the finalized session snapshot. It
// never panics past and never returns an error; all outcomes land in Result.
func (r *Runner) Run(ctx context.Context, snap call.Snapshot) Result {
	if strings.TrimSpace(snap.Transcript) == "" {
		r.logger.Warn("no transcript for call", "session", snap.SessionKey)
		return Result{Reason: ReasonEmptyTranscript}
	}

	draft, err := r.extractor.Extract(ctx, snap.Transcript, snap.Availability, snap.HostName)
	if err != nil {
		r.logger.Error("meeting extraction failed", "session", snap.SessionKey, "err", err)
		return Result{Reason: ReasonExtractionFail, Detail: err.Error()}
	}

	if !draft.HasStart() || strings.TrimSpace(snap.HostEmail) == "" {
		r.logger.Warn("incomplete meeting data, booking skipped",
			"session", snap.SessionKey,
			"has_start", draft.HasStart(),
			"has_email", snap.HostEmail != "")
		return Result{Reason: ReasonMissingFields, Meeting: draft}
	}

	rec, err := r.credentials.EnsureFresh(ctx, snap.HostEmail)
	if err != nil {
		var re *auth.RefreshError
		if errors.As(err, &re) {
			r.logger.Error("credential refresh failed", "session", snap.SessionKey, "email", snap.HostEmail, "err", err)
			return Result{Reason: ReasonRefreshFail, Detail: err.Error(), Meeting: draft}
		}
		return Result{Reason: ReasonNoCredentials, Detail: err.Error(), Meeting: draft}
	}
	if rec == nil {
		r.logger.Warn("no credentials on record", "session", snap.SessionKey, "email", snap.HostEmail)
		return Result{Reason: ReasonNoCredentials, Meeting: draft}
	}

	eventID, err := r.booker.Book(ctx, rec.AccessToken, r.calendarID, draft, snap.HostEmail, snap.Availability)
	if err != nil {
		// Reported, not retried: a second attempt risks a duplicate event.
		r.logger.Error("calendar booking failed", "session", snap.SessionKey, "err", err)
		return Result{Reason: ReasonBookingFail, Detail: err.Error(), Meeting: draft}
	}

	r.logger.Info("calendar event booked", "session", snap.SessionKey, "event_id", eventID)
	return Result{Success: true, Meeting: draft, EventID: eventID}
}
