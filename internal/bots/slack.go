package bots

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// replyTimeout bounds the asynchronous answer-and-post work for one
// bot turn. It has to cover the full pipeline including generation
// retries, which is far beyond any platform webhook deadline.
const replyTimeout = 2 * time.Minute

// SlackHandler handles incoming Slack webhook events. Slack expects an
// ack within three seconds and the answer pipeline can take far
// longer, so events are acked immediately and replies are posted
// asynchronously through chat.postMessage.
type SlackHandler struct {
	gateway       *Gateway
	token         string
	signingSecret string
	apiURL        string
	client        *http.Client
	logger        *slog.Logger
}

// NewSlackHandler creates a new Slack event handler. token is the bot
// token used to post replies; with an empty token replies are dropped.
func NewSlackHandler(gateway *Gateway, token, signingSecret string, logger *slog.Logger) *SlackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackHandler{
		gateway:       gateway,
		token:         token,
		signingSecret: signingSecret,
		apiURL:        slackPostMessageURL,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

// slackEvent represents the top-level Slack event payload.
type slackEvent struct {
	Type      string          `json:"type"`
	Token     string          `json:"token"`
	Challenge string          `json:"challenge"`
	Event     slackInnerEvent `json:"event"`
}

// slackInnerEvent represents the inner event in a Slack event_callback.
type slackInnerEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	BotID    string `json:"bot_id"`
}

// HandleEvent handles incoming Slack events (HTTP POST).
func (h *SlackHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Verify Slack request signature if signing secret is configured.
	if h.signingSecret != "" {
		if !h.verifySignature(r, body) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event slackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"challenge": event.Challenge})
		return

	case "event_callback":
		// Skip bot messages to avoid loops, and edited or otherwise
		// subtyped messages.
		if event.Event.BotID != "" || event.Event.Subtype != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if event.Event.Type != "message" {
			w.WriteHeader(http.StatusOK)
			return
		}

		msg := IncomingMessage{
			Platform:  PlatformSlack,
			ChannelID: event.Event.Channel,
			UserID:    event.Event.User,
			Text:      event.Event.Text,
			ThreadID:  event.Event.ThreadTS,
			Timestamp: event.Event.TS,
		}

		w.WriteHeader(http.StatusOK)
		go h.respond(msg)
		return

	default:
		w.WriteHeader(http.StatusOK)
	}
}

// respond answers one message and posts the reply back to Slack.
func (h *SlackHandler) respond(msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	resp, err := h.gateway.Process(ctx, msg)
	if err != nil {
		h.logger.Error("processing slack message", "channel", msg.ChannelID, "error", err)
		return
	}
	if h.token == "" {
		h.logger.Warn("slack bot token not configured, dropping reply", "channel", msg.ChannelID)
		return
	}
	if err := h.postMessage(ctx, resp); err != nil {
		h.logger.Error("posting slack reply", "channel", msg.ChannelID, "error", err)
	}
}

// postMessage calls the Slack Web API chat.postMessage endpoint.
func (h *SlackHandler) postMessage(ctx context.Context, msg *OutgoingMessage) error {
	payload, err := json.Marshal(formatSlackMessage(msg))
	if err != nil {
		return fmt.Errorf("marshalling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling slack api: %w", err)
	}
	defer resp.Body.Close()

	// Slack reports API failures in the body, not the status code.
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack api error: %s", result.Error)
	}
	return nil
}

// verifySignature verifies the Slack request signature using HMAC-SHA256
// over "v0:<timestamp>:<body>" and rejects replayed timestamps.
func (h *SlackHandler) verifySignature(r *http.Request, body []byte) bool {
	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")

	if timestamp == "" || signature == "" {
		return false
	}
	if !freshTimestamp(timestamp) {
		return false
	}

	baseString := fmt.Sprintf("v0:%s:%s", timestamp, string(body))
	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	mac.Write([]byte(baseString))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// freshTimestamp checks that the request timestamp is within 5 minutes
// of now, in either direction.
func freshTimestamp(timestamp string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	diff := time.Now().Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	return diff <= 300
}

// slackResponse represents a chat.postMessage payload.
type slackResponse struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// formatSlackMessage creates a Slack-formatted response payload.
func formatSlackMessage(msg *OutgoingMessage) *slackResponse {
	resp := &slackResponse{
		Channel: msg.ChannelID,
		Text:    msg.Text,
	}
	if msg.ThreadID != "" {
		resp.ThreadTS = msg.ThreadID
	}

	// Wrap multi-line responses with basic formatting.
	if strings.Contains(resp.Text, "\n") {
		lines := strings.Split(resp.Text, "\n")
		for i, line := range lines {
			if strings.HasPrefix(line, "- ") {
				lines[i] = "• " + line[2:]
			}
		}
		resp.Text = strings.Join(lines, "\n")
	}

	return resp
}
