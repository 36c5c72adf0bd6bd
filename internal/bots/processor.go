package bots

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// Answerer runs one question through the retrieval pipeline.
// Satisfied by *rag.Pipeline.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

// GapRecorder tracks questions the knowledge base could not answer.
type GapRecorder interface {
	RecordMiss(ctx context.Context, question string, role access.Role) error
}

// TurnAuditor records answered bot turns for the audit trail.
type TurnAuditor interface {
	BotTurn(ctx context.Context, platform, externalUserID string, role access.Role, question string, noContext bool)
}

// Processor answers bot messages with the retrieval pipeline under one
// fixed role for all platform users. Bot turns carry no conversation
// history and are never persisted as conversations: every question
// stands alone.
type Processor struct {
	pipeline Answerer
	role     access.Role
	gaps     GapRecorder
	audit    TurnAuditor
	logger   *slog.Logger
}

// NewProcessor creates a message processor answering under the given
// role. An invalid role falls back to employee, which can only read
// the general collection.
func NewProcessor(pipeline Answerer, role access.Role, logger *slog.Logger) *Processor {
	if !role.Valid() {
		role = access.RoleEmployee
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		pipeline: pipeline,
		role:     role,
		logger:   logger,
	}
}

// WithGapRecorder wires knowledge-gap tracking into the processor.
func (p *Processor) WithGapRecorder(g GapRecorder) *Processor {
	p.gaps = g
	return p
}

// WithAuditor wires turn auditing into the processor.
func (p *Processor) WithAuditor(a TurnAuditor) *Processor {
	p.audit = a
	return p
}

// HandleMessage answers an incoming message. A leading "ask " or "?"
// is stripped; the rest of the text is the question.
func (p *Processor) HandleMessage(ctx context.Context, msg IncomingMessage) (*OutgoingMessage, error) {
	question := stripCommandPrefix(msg.Text)
	if question == "" {
		return p.reply(msg, "Ask me a question about the company knowledge base, for example: ask what is the travel policy?"), nil
	}
	if p.pipeline == nil {
		return p.reply(msg, "The answer pipeline is not configured."), nil
	}

	answer, err := p.pipeline.Answer(ctx, rag.Request{Role: p.role, Message: question})
	if err != nil {
		p.logger.Error("bot answer failed", "platform", string(msg.Platform), "error", err)
		return p.reply(msg, "Something went wrong while answering your question. Please try again."), nil
	}

	if answer.NoContext && p.gaps != nil {
		if err := p.gaps.RecordMiss(ctx, answer.StandaloneQuery, p.role); err != nil {
			p.logger.Warn("recording knowledge gap", "error", err)
		}
	}
	if p.audit != nil {
		p.audit.BotTurn(ctx, string(msg.Platform), msg.UserID, p.role, answer.StandaloneQuery, answer.NoContext)
	}

	return p.reply(msg, formatAnswer(answer)), nil
}

func (p *Processor) reply(msg IncomingMessage, text string) *OutgoingMessage {
	return &OutgoingMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      text,
	}
}

// stripCommandPrefix removes the optional "ask " or "?" lead-in.
func stripCommandPrefix(text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "ask "):
		return strings.TrimSpace(text[4:])
	case strings.HasPrefix(text, "?"):
		return strings.TrimSpace(text[1:])
	}
	return text
}

// formatAnswer appends the cited document names to the answer text.
func formatAnswer(answer *rag.Answer) string {
	if len(answer.Citations) == 0 {
		return answer.Text
	}
	seen := make(map[string]bool)
	var names []string
	for _, c := range answer.Citations {
		if seen[c.DocumentName] {
			continue
		}
		seen[c.DocumentName] = true
		names = append(names, c.DocumentName)
	}
	return fmt.Sprintf("%s\n\nSources: %s", answer.Text, strings.Join(names, ", "))
}
