package gaps

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/db"
)

// Store manages persistence of knowledge gaps.
type Store struct {
	db *db.DB
}

// NewStore creates a new gap store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Normalize reduces a question to its deduplication key: lowercased,
// inner whitespace collapsed, trailing punctuation stripped.
func Normalize(question string) string {
	s := strings.ToLower(strings.TrimSpace(question))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, "?!. ")
}

// RecordMiss registers an unanswered question. A repeat of the same
// normalized question under the same role bumps the hit counter and
// keeps the latest phrasing instead of creating a new row. A gap that
// was already resolved or dismissed reopens when it misses again.
func (s *Store) RecordMiss(ctx context.Context, question string, role access.Role) error {
	norm := Normalize(question)
	if norm == "" {
		return nil
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_gaps (id, question, normalized, role, hit_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(normalized, role) DO UPDATE SET
			hit_count = hit_count + 1,
			question = excluded.question,
			status = excluded.status,
			resolved_by = NULL,
			resolved_at = NULL,
			updated_at = excluded.updated_at`,
		uuid.New().String(), strings.TrimSpace(question), norm, string(role), string(StatusOpen), now, now,
	)
	if err != nil {
		return fmt.Errorf("recording knowledge gap: %w", err)
	}
	return nil
}

// GetByID retrieves a gap by its ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Gap, error) {
	var g Gap
	var role string
	var status string
	var resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, question, role, hit_count, status, resolved_by, resolved_at, created_at, updated_at
		 FROM knowledge_gaps WHERE id = ?`, id,
	).Scan(&g.ID, &g.Question, &role, &g.HitCount, &status, &resolvedBy, &resolvedAt, &g.CreatedAt, &g.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting gap: %w", err)
	}
	g.Role = access.Role(role)
	g.Status = Status(status)
	g.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		g.ResolvedAt = &resolvedAt.Time
	}
	return &g, nil
}

// List returns gaps matching the filter, most frequently hit first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Gap, error) {
	query := `SELECT id, question, role, hit_count, status, resolved_by, resolved_at, created_at, updated_at
		 FROM knowledge_gaps WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Role != "" {
		query += " AND role = ?"
		args = append(args, string(filter.Role))
	}

	query += " ORDER BY hit_count DESC, updated_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing gaps: %w", err)
	}
	defer rows.Close()

	var gaps []Gap
	for rows.Next() {
		var g Gap
		var role, status string
		var resolvedBy sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&g.ID, &g.Question, &role, &g.HitCount, &status, &resolvedBy, &resolvedAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning gap: %w", err)
		}
		g.Role = access.Role(role)
		g.Status = Status(status)
		g.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			g.ResolvedAt = &resolvedAt.Time
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// Resolve closes a gap as resolved or dismissed and records who did it.
func (s *Store) Resolve(ctx context.Context, id, resolvedBy string, status Status) error {
	if status != StatusResolved && status != StatusDismissed {
		return fmt.Errorf("invalid resolution status: %s", status)
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_gaps SET status = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), resolvedBy, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("resolving gap: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("gap not found: %s", id)
	}
	return nil
}

// OpenCount returns the number of open gaps.
func (s *Store) OpenCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_gaps WHERE status = ?`, string(StatusOpen),
	).Scan(&count)
	return count, err
}

// Top returns the n most frequently hit open gaps.
func (s *Store) Top(ctx context.Context, n int) ([]Gap, error) {
	return s.List(ctx, ListFilter{Status: StatusOpen, Limit: n})
}
