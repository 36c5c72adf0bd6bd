package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/finchat/internal/db"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// Store persists conversations and their messages.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateConversation starts a new conversation for a user.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	c := Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	c.UpdatedAt = c.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return &c, nil
}

// GetConversation retrieves a conversation by ID, or nil if it does not
// exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns a user's conversations, most recently active
// first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RenameConversation updates a conversation's title.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation; its messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTurn persists a user/assistant message pair atomically and bumps the
// conversation's activity timestamp. A turn is only ever stored whole.
func (s *Store) SaveTurn(ctx context.Context, userMsg, assistantMsg Message) (*Message, *Message, error) {
	now := time.Now().UTC()
	userMsg.ID = uuid.New().String()
	userMsg.Role = string(rag.TurnUser)
	userMsg.CreatedAt = now
	assistantMsg.ID = uuid.New().String()
	assistantMsg.Role = string(rag.TurnAssistant)
	assistantMsg.CreatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range []Message{userMsg, assistantMsg} {
		sources, err := json.Marshal(m.Sources)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding sources: %w", err)
		}
		if m.Sources == nil {
			sources = []byte("[]")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (id, conversation_id, role, content, sources, confidence, token_count, degraded, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.Role, m.Content, string(sources), m.Confidence, m.TokenCount, boolToInt(m.Degraded), m.CreatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("inserting %s message: %w", m.Role, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now, userMsg.ConversationID,
	); err != nil {
		return nil, nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing turn: %w", err)
	}
	return &userMsg, &assistantMsg, nil
}

// ListMessages returns every message of a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, sources, confidence, token_count, degraded, created_at
		 FROM chat_messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, rowid ASC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// History returns the last limit turns of a conversation as pipeline
// input, oldest first.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]rag.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at
		 FROM chat_messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var newest []rag.Turn
	for rows.Next() {
		var t rag.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history turn: %w", err)
		}
		t.Role = rag.TurnRole(role)
		newest = append(newest, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Fetched newest-first; the pipeline wants oldest-first.
	out := make([]rag.Turn, len(newest))
	for i, t := range newest {
		out[len(newest)-1-i] = t
	}
	return out, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var sources string
		var degraded int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &sources, &m.Confidence, &m.TokenCount, &degraded, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if sources != "" && sources != "[]" {
			if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
				return nil, fmt.Errorf("decoding sources: %w", err)
			}
		}
		m.Degraded = degraded != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
