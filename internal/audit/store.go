package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/db"
)

// Store provides append and query operations for audit entries.
// There is no update or single-row delete: the trail only grows,
// except for retention trims via DeleteBefore.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new audit entry. If entry.ID is empty a UUID is generated.
// The timestamp is assigned by the database.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	collections, err := json.Marshal(entry.Collections)
	if err != nil {
		return fmt.Errorf("marshalling collections: %w", err)
	}

	var conversationID sql.NullString
	if entry.ConversationID != "" {
		conversationID = sql.NullString{String: entry.ConversationID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, actor_type, actor_id, action, role,
			conversation_id, summary, detail, collections
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.ActorType),
		entry.ActorID,
		string(entry.Action),
		string(entry.Role),
		conversationID,
		entry.Summary,
		entry.Detail,
		string(collections),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, actor_type, actor_id, action, role,
			   conversation_id, summary, detail, collections
		FROM audit_entries WHERE id = ?`, id)

	return scanEntry(row)
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	ActorID        string
	ActorType      ActorType
	Action         Action
	Role           access.Role
	ConversationID string
	Collection     access.Collection
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.ActorType != "" {
		clauses = append(clauses, "actor_type = ?")
		args = append(args, string(filter.ActorType))
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Role != "" {
		clauses = append(clauses, "role = ?")
		args = append(args, string(filter.Role))
	}
	if filter.ConversationID != "" {
		clauses = append(clauses, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}
	if filter.Collection != "" {
		// JSON array stored as text; use LIKE for containment check.
		clauses = append(clauses, "collections LIKE ?")
		args = append(args, "%"+string(filter.Collection)+"%")
	}

	query := "SELECT id, timestamp, actor_type, actor_id, action, role, conversation_id, summary, detail, collections FROM audit_entries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes all audit entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_entries WHERE timestamp < ?",
		before.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old audit entries: %w", err)
	}
	return res.RowsAffected()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Entry, error) {
	var (
		e                       Entry
		actorType, action, role string
		ts                      string
		collectionsJSON         string
		conversationID          sql.NullString
	)

	err := sc.Scan(
		&e.ID, &ts, &actorType, &e.ActorID, &action, &role,
		&conversationID, &e.Summary, &e.Detail, &collectionsJSON,
	)
	if err != nil {
		return nil, err
	}

	e.ActorType = ActorType(actorType)
	e.Action = Action(action)
	e.Role = access.Role(role)

	if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
		e.Timestamp = t
	} else if t, parseErr := time.Parse("2006-01-02T15:04:05Z", ts); parseErr == nil {
		e.Timestamp = t
	}

	if conversationID.Valid {
		e.ConversationID = conversationID.String
	}

	if err := json.Unmarshal([]byte(collectionsJSON), &e.Collections); err != nil {
		e.Collections = nil
	}

	return &e, nil
}

func scanEntry(row *sql.Row) (*Entry, error) {
	return scanInto(row)
}

func scanRows(rows *sql.Rows) (*Entry, error) {
	return scanInto(rows)
}
