// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/cost"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
)

// AuditFilter bounds an audit listing.
type AuditFilter struct {
	Subreddit string
	UserID    string
	Action    moderation.Action
	Since     time.Time
	Limit     int
}

// Store is the port interface for database operations.
type Store interface {
	// Audit log
	InsertAuditEntry(ctx context.Context, entry moderation.AuditEntry) error
	ListAuditEntries(ctx context.Context, f AuditFilter) ([]moderation.AuditEntry, error)

	// LM spend records
	InsertCostRecord(ctx context.Context, rec cost.Record) error
	CostSummary(ctx context.Context, since time.Time) (*cost.Summary, error)
	CostByProvider(ctx context.Context, since time.Time) ([]cost.ProviderSummary, error)

	// PurgeBefore deletes audit entries and cost records older than the
	// cutoff. Returns the number of rows removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
