package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// maxTitleLen bounds auto-generated conversation titles.
const maxTitleLen = 50

// Answerer is the pipeline the service drives. Satisfied by *rag.Pipeline.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

// GapRecorder tracks questions the knowledge base could not answer.
type GapRecorder interface {
	RecordMiss(ctx context.Context, question string, role access.Role) error
}

// TurnAuditor records completed turns for the audit trail.
type TurnAuditor interface {
	ChatTurn(ctx context.Context, userID string, role access.Role, conversationID, question string, noContext bool)
}

// Service coordinates one chat turn: conversation bookkeeping, a history
// snapshot, the answer pipeline, and persistence of the resulting turn
// pair. Nothing is persisted for turns that fail.
type Service struct {
	store    *Store
	pipeline Answerer
	history  int
	gaps     GapRecorder
	audit    TurnAuditor
	logger   *slog.Logger
}

func NewService(store *Store, pipeline Answerer, historyLimit int, logger *slog.Logger) *Service {
	if historyLimit <= 0 {
		historyLimit = rag.DefaultParams().HistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		pipeline: pipeline,
		history:  historyLimit,
		logger:   logger,
	}
}

// WithGapRecorder wires knowledge-gap tracking into the service.
func (s *Service) WithGapRecorder(g GapRecorder) *Service {
	s.gaps = g
	return s
}

// WithAuditor wires turn auditing into the service.
func (s *Service) WithAuditor(a TurnAuditor) *Service {
	s.audit = a
	return s
}

// SubmitTurn answers one user message. The history snapshot is taken
// before the new message is stored, so the pipeline contextualizes against
// prior turns only; the user/assistant pair is persisted together after
// the pipeline succeeds, and not at all when it fails.
func (s *Service) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if err := rag.ValidateMessage(req.Message); err != nil {
		return nil, err
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		return nil, &rag.ValidationError{Field: "role", Message: err.Error()}
	}

	var conv *Conversation
	var history []rag.Turn
	if req.ConversationID != "" {
		conv, err = s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, ErrNotFound
		}
		if conv.UserID != req.UserID {
			return nil, ErrForbidden
		}
		history, err = s.store.History(ctx, conv.ID, s.history)
		if err != nil {
			return nil, err
		}
	}

	answer, err := s.pipeline.Answer(ctx, rag.Request{
		Role:    role,
		Message: req.Message,
		History: history,
	})
	if err != nil {
		return nil, err
	}

	if conv == nil {
		conv, err = s.store.CreateConversation(ctx, req.UserID, titleFromMessage(req.Message))
		if err != nil {
			return nil, err
		}
	}

	confidence := answer.Confidence
	_, assistantMsg, err := s.store.SaveTurn(ctx,
		Message{ConversationID: conv.ID, Content: req.Message},
		Message{
			ConversationID: conv.ID,
			Content:        answer.Text,
			Sources:        answer.Citations,
			Confidence:     &confidence,
			TokenCount:     answer.TokenCount,
			Degraded:       answer.Degraded,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	if answer.NoContext && s.gaps != nil {
		if err := s.gaps.RecordMiss(ctx, answer.StandaloneQuery, role); err != nil {
			s.logger.Warn("recording knowledge gap failed", "error", err)
		}
	}
	if s.audit != nil {
		s.audit.ChatTurn(ctx, req.UserID, role, conv.ID, answer.StandaloneQuery, answer.NoContext)
	}

	result := &TurnResult{
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Answer:         answer.Text,
		Confidence:     answer.Confidence,
		TokenCount:     answer.TokenCount,
		Degraded:       answer.Degraded,
		NoContext:      answer.NoContext,
		CreatedAt:      assistantMsg.CreatedAt,
	}
	if req.IncludeSources {
		result.Sources = answer.Citations
	}
	return result, nil
}

// Conversations lists the caller's conversations.
func (s *Service) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// Messages returns a conversation's messages after an ownership check.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return s.store.ListMessages(ctx, conversationID)
}

// Rename retitles a conversation after an ownership check.
func (s *Service) Rename(ctx context.Context, userID, conversationID, title string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound
	}
	if conv.UserID != userID {
		return ErrForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return &rag.ValidationError{Field: "title", Message: "title is empty"}
	}
	return s.store.RenameConversation(ctx, conversationID, truncateTitle(title))
}

// Delete removes a conversation after an ownership check.
func (s *Service) Delete(ctx context.Context, userID, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound
	}
	if conv.UserID != userID {
		return ErrForbidden
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

// titleFromMessage derives a conversation title from its first message:
// whitespace collapsed, cut at a word boundary.
func titleFromMessage(message string) string {
	return truncateTitle(strings.Join(strings.Fields(message), " "))
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLen {
		return s
	}
	runes := []rune(s)[:maxTitleLen]
	cut := string(runes)
	if idx := strings.LastIndexByte(cut, ' '); idx > maxTitleLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
