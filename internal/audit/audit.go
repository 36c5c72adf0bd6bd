package audit

import (
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
)

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
	ActorBot    ActorType = "bot"
)

// Action describes what was done.
type Action string

const (
	ActionChatTurn        Action = "chat_turn"
	ActionBotTurn         Action = "bot_turn"
	ActionLogin           Action = "login"
	ActionIngestRun       Action = "ingest_run"
	ActionUserCreated     Action = "user_created"
	ActionUserDeactivated Action = "user_deactivated"
	ActionGapResolved     Action = "gap_resolved"
)

// Entry is a single audit trail record. Collections holds the
// department scope the actor was reading under at the time.
type Entry struct {
	ID             string              `json:"id"`
	Timestamp      time.Time           `json:"timestamp"`
	ActorType      ActorType           `json:"actor_type"`
	ActorID        string              `json:"actor_id"`
	Action         Action              `json:"action"`
	Role           access.Role         `json:"role,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Summary        string              `json:"summary"`
	Detail         string              `json:"detail,omitempty"`
	Collections    []access.Collection `json:"collections,omitempty"`
}
