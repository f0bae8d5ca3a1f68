package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finwatch/internal/amqp"
	"finwatch/internal/core"
	"finwatch/internal/services"
)

// Syncer is the part of the ingestor the worker drives.
type Syncer interface {
	Sync(ctx context.Context, userID, connectionToken string) (services.IngestResult, error)
}

// SyncWorker handles bank sync requests consumed from AMQP
type SyncWorker struct {
	syncer Syncer
}

func NewSyncWorker(syncer Syncer) *SyncWorker {
	return &SyncWorker{syncer: syncer}
}

// HandleSyncRequest runs one bank sync. Returning an error asks the consumer
// to redeliver, so only failures a retry can fix are returned: an upstream
// outage that committed nothing. Rejected credentials, bad requests and
// partial syncs are logged and acknowledged; a partial sync is picked up by
// the next request through deduplication.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	slog.InfoContext(ctx, "Processing sync request",
		"user_id", msg.UserID,
		"requested_at", msg.Timestamp)

	res, err := w.syncer.Sync(ctx, msg.UserID, msg.ConnectionToken)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrAuthentication), errors.Is(err, core.ErrValidation):
		slog.WarnContext(ctx, "Sync request rejected, not retrying",
			"user_id", msg.UserID,
			"error", err)
		return nil
	case errors.Is(err, core.ErrUpstream) && len(res.Committed) == 0 && res.Duplicates == 0:
		return fmt.Errorf("sync user %s: %w", msg.UserID, err)
	default:
		slog.WarnContext(ctx, "Sync request completed partially",
			"user_id", msg.UserID,
			"committed", len(res.Committed),
			"error", err)
		return nil
	}

	slog.InfoContext(ctx, "Sync request completed",
		"user_id", msg.UserID,
		"committed", len(res.Committed),
		"duplicates", res.Duplicates,
		"rejected", len(res.Errors),
		"alerts", res.Alerts)
	return nil
}
