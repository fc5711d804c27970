package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/port/database"
)

// Audit persists one entry per decided event. Write failures are logged and
// swallowed: a lost audit row must never fail moderation.
type Audit struct {
	store  database.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewAudit creates the audit writer.
func NewAudit(store database.Store, logger *slog.Logger) *Audit {
	return &Audit{store: store, logger: logger, now: time.Now}
}

// Write persists the entry, assigning ID and timestamp when absent.
func (a *Audit) Write(ctx context.Context, entry moderation.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now().UTC()
	}

	// Audit must survive event cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := a.store.InsertAuditEntry(ctx, entry); err != nil {
		a.logger.Error("audit write failed",
			"content_id", entry.ContentID, "action", entry.Action, "error", err)
	}
}
