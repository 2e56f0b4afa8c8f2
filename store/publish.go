package store

import (
	"context"
	"log/slog"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
)

// PublishReport counts what reached the store.
type PublishReport struct {
	UserID           string  `json:"user_id"`
	Cleared          bool    `json:"cleared"`
	RunsWritten      int     `json:"runs_written"`
	RunsFailed       int     `json:"runs_failed"`
	SnapshotsWritten int     `json:"snapshots_written"`
	SnapshotsFailed  int     `json:"snapshots_failed"`
	Errors           []error `json:"-"`
}

// Failed reports whether any write failed.
func (r PublishReport) Failed() bool {
	return len(r.Errors) > 0
}

// Publish replaces userID's stored data with runs and snapshots. Every write
// is attempted independently; failures are logged as
// *vdot.ExternalStoreError and collected in the report. A cancelled context
// stops further writes.
func Publish(ctx context.Context, sink Sink, userID string, runs []activity.Run, snaps []features.Snapshot, windows []int, logger *slog.Logger) PublishReport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rep := PublishReport{UserID: userID}
	record := func(op string, err error) {
		storeErr := &vdot.ExternalStoreError{Op: op, UserID: userID, Err: err}
		rep.Errors = append(rep.Errors, storeErr)
		logger.Warn("store write failed", "op", op, "user_id", userID, "error", storeErr)
	}

	if err := sink.DeleteUser(ctx, userID); err != nil {
		record("delete_user", err)
	} else {
		rep.Cleared = true
	}

	for _, r := range runs {
		if ctx.Err() != nil {
			record("insert_run", ctx.Err())
			return rep
		}
		if err := sink.InsertRun(ctx, userID, NewRunRecord(r)); err != nil {
			rep.RunsFailed++
			record("insert_run", err)
			continue
		}
		rep.RunsWritten++
	}
	for _, s := range snaps {
		if ctx.Err() != nil {
			record("insert_snapshot", ctx.Err())
			return rep
		}
		if err := sink.InsertSnapshot(ctx, userID, NewSnapshotRecord(s, windows)); err != nil {
			rep.SnapshotsFailed++
			record("insert_snapshot", err)
			continue
		}
		rep.SnapshotsWritten++
	}

	logger.Info("store publish finished",
		"user_id", userID,
		"runs_written", rep.RunsWritten,
		"runs_failed", rep.RunsFailed,
		"snapshots_written", rep.SnapshotsWritten,
		"snapshots_failed", rep.SnapshotsFailed)
	return rep
}
