// Package chat owns conversations: persistence, the turn-submission
// service that drives the answer pipeline, and the HTTP surface.
package chat

import (
	"errors"
	"time"

	"github.com/ziadkadry99/finchat/internal/rag"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// ErrForbidden is returned when a user touches a conversation they do not
// own.
var ErrForbidden = errors.New("conversation belongs to another user")

// Conversation is one chat thread owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted turn half. Assistant messages carry the
// citation list, confidence score, token usage and the degraded flag of
// the pipeline run that produced them.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Sources        []rag.Citation `json:"sources,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	TokenCount     int            `json:"token_count,omitempty"`
	Degraded       bool           `json:"degraded,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TurnRequest is one user question entering the service.
type TurnRequest struct {
	UserID         string
	Role           string
	ConversationID string // empty starts a new conversation
	Message        string
	IncludeSources bool
}

// TurnResult is what the API returns for one completed turn.
type TurnResult struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Answer         string         `json:"answer"`
	Sources        []rag.Citation `json:"sources,omitempty"`
	Confidence     float64        `json:"confidence"`
	TokenCount     int            `json:"token_count"`
	Degraded       bool           `json:"degraded,omitempty"`
	NoContext      bool           `json:"no_context,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
