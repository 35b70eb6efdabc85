package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"datamarket/internal/registry/models"
	"datamarket/pkg/requestcontext"
)

// AuditPublisher delivers serialized audit events to an external sink
// (Kafka in production). A nil publisher disables emission.
type AuditPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// auditEmitter emits operations audit events with fail-open semantics:
// a publish failure is logged and swallowed. The ledger never fails a
// committed mutation over observability plumbing.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emit(ctx context.Context, event models.AuditEvent) {
	if e.publisher == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to marshal audit event",
			"action", event.Action,
			"error", err.Error(),
		)
		return
	}

	// Keyed by record so per-record history stays ordered within a partition.
	key := event.RecordID.String()
	if event.RecordID.IsZero() {
		key = "platform"
	}
	if err := e.publisher.Publish(ctx, key, payload); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish audit event",
			"action", event.Action,
			"record_id", event.RecordID,
			"request_id", event.RequestID,
			"error", err.Error(),
		)
	}
}
