package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/pipeline"
)

// PipelineRunner executes the post-call scheduling pipeline. Satisfied by
// *pipeline.Runner.
type PipelineRunner interface {
	Run(ctx context.Context, snap call.Snapshot) pipeline.Result
}

// Finisher runs the end-of-call sequence exactly once per call, no matter
// whether the media stream or the status callback gets there first. The
// registry's finalize transition is the gate; the loser of the race is a
// no-op. Close always runs.
type Finisher struct {
	Registry *call.Registry
	Outcomes *call.Outcomes
	Runner   PipelineRunner
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Finish finalizes the session known by key, runs the pipeline on its
// snapshot, records the outcome under every identifier in keys, and closes
// the session. It reports whether this caller won the finalize race.
func (f Finisher) Finish(key string, keys ...string) bool {
	defer f.Registry.Close(key)

	snap, err := f.Registry.Finalize(key)
	if err != nil {
		if errors.Is(err, call.ErrAlreadyFinalized) {
			f.Logger.Debug("call already finalized", "key", key)
		}
		return false
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res := f.Runner.Run(ctx, snap)
	f.Registry.SetOutcome(key, res.Meeting, res.EventID)

	all := append([]string{snap.SessionKey}, keys...)
	if key != snap.SessionKey {
		all = append(all, key)
	}
	if f.Outcomes != nil {
		f.Outcomes.Record(all, res.Success, res.Reason, res.Meeting, res.EventID)
	}

	f.Logger.Info("call finished",
		"key", key,
		"success", res.Success,
		"reason", res.Reason,
		"event_id", res.EventID,
		"transcript_entries", snap.Entries,
	)
	return true
}
