package harvester

import (
	"context"
	"log/slog"

	"tamid-harvester/services/harvester/db"
)

// Aggregate consumes the coordinator's outcome stream until it closes.
// every id surfaces exactly once: valid records go into the report (and
// the archive when one is given), rejections and transport errors are
// logged and tallied. the caller owns report finalization so the
// document gets closed on every exit path.
func Aggregate(
	ctx context.Context,
	outcomes <-chan Outcome,
	report *Report,
	stats *RunStats,
	runID string,
	archive *db.Store,
) {
	for outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			stats.noteTransportError()
			slog.WarnContext(ctx, "transport error", "id", outcome.ID, "err", outcome.Err)

		case outcome.Rejection != nil:
			stats.noteRejection(outcome.Rejection.Reason)
			slog.InfoContext(
				ctx, "rejected",
				"id", outcome.ID,
				"reason", outcome.Rejection.Reason,
				"detail", outcome.Rejection.Detail,
			)

		default:
			stats.noteValid(outcome.ID)
			err := report.AddRecord(outcome.Record)
			if err != nil {
				slog.ErrorContext(ctx, "failed to write report entry", "id", outcome.ID, "err", err)
			}
			if archive != nil {
				err := archive.NoteRecord(ctx, runID, outcome.ID, outcome.Record)
				if err != nil {
					slog.WarnContext(ctx, "failed to archive record", "id", outcome.ID, "err", err)
				}
			}
		}

		slog.InfoContext(ctx, "progress", "done", stats.Completed, "total", stats.Total)
	}
}
