package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ziadkadry99/finchat/internal/access"
)

// summaryLimit caps how much of a question is copied into an entry
// summary. The full text lives in the conversation, not the trail.
const summaryLimit = 200

// Recorder writes trail entries for actions reported by the rest of
// the system. Its methods never return errors: a failed audit write is
// logged and the action that triggered it proceeds.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder wraps a Store in fire-and-forget logging helpers.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// ChatTurn records one answered dashboard turn.
func (r *Recorder) ChatTurn(ctx context.Context, userID string, role access.Role, conversationID, question string, noContext bool) {
	detail := ""
	if noContext {
		detail = "no relevant context found"
	}
	r.log(ctx, Entry{
		ActorType:      ActorUser,
		ActorID:        userID,
		Action:         ActionChatTurn,
		Role:           role,
		ConversationID: conversationID,
		Summary:        truncate(question, summaryLimit),
		Detail:         detail,
		Collections:    access.ScopeFor(role),
	})
}

// BotTurn records one answered platform bot turn. The actor ID pairs
// the platform name with the platform-side user ID.
func (r *Recorder) BotTurn(ctx context.Context, platform, externalUserID string, role access.Role, question string, noContext bool) {
	detail := ""
	if noContext {
		detail = "no relevant context found"
	}
	r.log(ctx, Entry{
		ActorType:   ActorBot,
		ActorID:     platform + ":" + externalUserID,
		Action:      ActionBotTurn,
		Role:        role,
		Summary:     truncate(question, summaryLimit),
		Detail:      detail,
		Collections: access.ScopeFor(role),
	})
}

// Login records a successful sign-in. Method is "password" or "google".
func (r *Recorder) Login(ctx context.Context, userID string, role access.Role, method string) {
	r.log(ctx, Entry{
		ActorType: ActorUser,
		ActorID:   userID,
		Action:    ActionLogin,
		Role:      role,
		Summary:   "signed in via " + method,
	})
}

// IngestRun records the outcome of one corpus ingest pass.
func (r *Recorder) IngestRun(ctx context.Context, processed, removed, failed int) {
	r.log(ctx, Entry{
		ActorType: ActorSystem,
		ActorID:   "ingest",
		Action:    ActionIngestRun,
		Summary:   fmt.Sprintf("%d files indexed, %d removed, %d failed", processed, removed, failed),
	})
}

// UserCreated records a user provisioned through the admin CLI.
func (r *Recorder) UserCreated(ctx context.Context, actorID, email string, role access.Role) {
	r.log(ctx, Entry{
		ActorType: ActorSystem,
		ActorID:   actorID,
		Action:    ActionUserCreated,
		Role:      role,
		Summary:   "created user " + email,
	})
}

// UserDeactivated records a user disabled through the admin CLI.
func (r *Recorder) UserDeactivated(ctx context.Context, actorID, email string) {
	r.log(ctx, Entry{
		ActorType: ActorSystem,
		ActorID:   actorID,
		Action:    ActionUserDeactivated,
		Summary:   "deactivated user " + email,
	})
}

// GapResolved records an admin closing a knowledge gap.
func (r *Recorder) GapResolved(ctx context.Context, actorID, gapID, status string) {
	r.log(ctx, Entry{
		ActorType: ActorUser,
		ActorID:   actorID,
		Action:    ActionGapResolved,
		Summary:   status + " knowledge gap " + gapID,
	})
}

func (r *Recorder) log(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Log(ctx, e); err != nil {
		r.logger.Warn("audit write failed", "action", string(e.Action), "error", err)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
