package bots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TeamsHandler handles incoming Microsoft Teams bot activities. Like
// the Slack handler it acks immediately and posts the answer
// asynchronously, to the configured incoming webhook URL.
type TeamsHandler struct {
	gateway    *Gateway
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewTeamsHandler creates a new Teams activity handler. webhookURL is
// where replies are posted; with an empty URL replies are dropped.
func NewTeamsHandler(gateway *Gateway, webhookURL string, logger *slog.Logger) *TeamsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamsHandler{
		gateway:    gateway,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// teamsActivity represents a Teams Bot Framework activity.
type teamsActivity struct {
	Type         string            `json:"type"`
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	Text         string            `json:"text"`
	From         teamsAccount      `json:"from"`
	Conversation teamsConversation `json:"conversation"`
	ChannelID    string            `json:"channelId"`
	ServiceURL   string            `json:"serviceUrl"`
	ReplyToID    string            `json:"replyToId"`
}

// teamsAccount represents a user or bot account in Teams.
type teamsAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// teamsConversation identifies the Teams conversation.
type teamsConversation struct {
	ID string `json:"id"`
}

// HandleActivity handles incoming Teams bot activities (HTTP POST).
func (h *TeamsHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var activity teamsActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// Only process message activities.
	if activity.Type != "message" {
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := IncomingMessage{
		Platform:  PlatformTeams,
		ChannelID: activity.Conversation.ID,
		UserID:    activity.From.ID,
		UserName:  activity.From.Name,
		Text:      activity.Text,
		ThreadID:  activity.ReplyToID,
		Timestamp: activity.Timestamp,
	}

	w.WriteHeader(http.StatusOK)
	go h.respond(msg)
}

// respond answers one activity and posts the reply to the webhook URL.
func (h *TeamsHandler) respond(msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	resp, err := h.gateway.Process(ctx, msg)
	if err != nil {
		h.logger.Error("processing teams activity", "conversation", msg.ChannelID, "error", err)
		return
	}
	if h.webhookURL == "" {
		h.logger.Warn("teams webhook url not configured, dropping reply", "conversation", msg.ChannelID)
		return
	}
	if err := h.postMessage(ctx, resp); err != nil {
		h.logger.Error("posting teams reply", "conversation", msg.ChannelID, "error", err)
	}
}

// postMessage posts a message activity to the configured webhook URL.
func (h *TeamsHandler) postMessage(ctx context.Context, msg *OutgoingMessage) error {
	payload, err := json.Marshal(map[string]string{
		"type": "message",
		"text": msg.Text,
	})
	if err != nil {
		return fmt.Errorf("marshalling teams message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling teams webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("teams webhook returned status %d", resp.StatusCode)
	}
	return nil
}
