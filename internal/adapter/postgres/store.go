package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/ModForge/internal/domain/cost"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Audit log ---

func (s *Store) InsertAuditEntry(ctx context.Context, entry moderation.AuditEntry) error {
	metadata, err := json.Marshal(orEmptyMap(entry.Metadata))
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, action, layer, occurred_at, user_id, username, content_id, subreddit, reason, rule_id, confidence, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.Action, entry.Layer, entry.Timestamp, entry.UserID, entry.Username,
		entry.ContentID, entry.Subreddit, entry.Reason, entry.RuleID, entry.Confidence, metadata)
	if err != nil {
		return fmt.Errorf("insert audit entry %s: %w", entry.ID, err)
	}
	return nil
}

func (s *Store) ListAuditEntries(ctx context.Context, f database.AuditFilter) ([]moderation.AuditEntry, error) {
	query := `SELECT id, action, layer, occurred_at, user_id, username, content_id, subreddit, reason, rule_id, confidence, metadata
		 FROM audit_entries WHERE occurred_at >= $1`
	args := []any{f.Since}

	if f.Subreddit != "" {
		args = append(args, f.Subreddit)
		query += fmt.Sprintf(" AND subreddit = $%d", len(args))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	query += " ORDER BY occurred_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []moderation.AuditEntry
	for rows.Next() {
		var e moderation.AuditEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.Layer, &e.Timestamp, &e.UserID, &e.Username,
			&e.ContentID, &e.Subreddit, &e.Reason, &e.RuleID, &e.Confidence, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- LM spend records ---

func (s *Store) InsertCostRecord(ctx context.Context, rec cost.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_records (occurred_at, user_id, provider, model, tokens_in, tokens_out, cost_usd)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Timestamp, rec.UserID, rec.Provider, rec.Model, rec.TokensIn, rec.TokensOut, rec.CostUSD)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

func (s *Store) CostSummary(ctx context.Context, since time.Time) (*cost.Summary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0), COUNT(*)
		 FROM cost_records WHERE occurred_at >= $1`, since)

	var sum cost.Summary
	if err := row.Scan(&sum.TotalCostUSD, &sum.TotalTokensIn, &sum.TotalTokensOut, &sum.CallCount); err != nil {
		return nil, fmt.Errorf("cost summary: %w", err)
	}
	return &sum, nil
}

func (s *Store) CostByProvider(ctx context.Context, since time.Time) ([]cost.ProviderSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, COALESCE(SUM(cost_usd), 0), COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0), COUNT(*)
		 FROM cost_records WHERE occurred_at >= $1
		 GROUP BY provider ORDER BY provider`, since)
	if err != nil {
		return nil, fmt.Errorf("cost by provider: %w", err)
	}
	defer rows.Close()

	var summaries []cost.ProviderSummary
	for rows.Next() {
		var ps cost.ProviderSummary
		if err := rows.Scan(&ps.Provider, &ps.TotalCostUSD, &ps.TotalTokensIn, &ps.TotalTokensOut, &ps.CallCount); err != nil {
			return nil, fmt.Errorf("scan provider summary: %w", err)
		}
		summaries = append(summaries, ps)
	}
	return summaries, rows.Err()
}

// --- Retention ---

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	auditTag, err := s.pool.Exec(ctx, `DELETE FROM audit_entries WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	costTag, err := s.pool.Exec(ctx, `DELETE FROM cost_records WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return auditTag.RowsAffected(), fmt.Errorf("purge cost records: %w", err)
	}
	return auditTag.RowsAffected() + costTag.RowsAffected(), nil
}

// orEmptyMap ensures JSON serialization produces {} instead of null.
func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
