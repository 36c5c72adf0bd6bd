package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/finchat/internal/auth"
	"github.com/ziadkadry99/finchat/internal/chat"
	"github.com/ziadkadry99/finchat/internal/rag"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type           string `json:"type"`            // "message"
	ConversationID string `json:"conversation_id"` // empty for new conversations
	Content        string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format. HTML carries
// the rendered answer; Content keeps the raw markdown.
type chatResponse struct {
	Type           string         `json:"type"` // "response" or "error"
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	HTML           string         `json:"html,omitempty"`
	Sources        []rag.Citation `json:"sources,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	NoContext      bool           `json:"no_context,omitempty"`
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := d.authenticate(r)
	if !ok {
		http.Error(w, `{"error":"invalid or expired session"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			d.sendError(conn, "", "invalid message format")
			continue
		}

		if req.Content == "" {
			d.sendError(conn, req.ConversationID, "content is required")
			continue
		}

		switch req.Type {
		case "message":
			d.handleChatMessage(conn, r, user, req)
		default:
			d.sendError(conn, req.ConversationID, "unknown message type: "+req.Type)
		}
	}
}

// authenticate resolves the session token carried by the upgrade request.
func (d *Dashboard) authenticate(r *http.Request) (*auth.User, bool) {
	token := auth.RequestToken(r)
	if token == "" {
		return nil, false
	}
	user, err := d.users.UserForToken(r.Context(), token)
	if err != nil || user == nil {
		return nil, false
	}
	return user, true
}

func (d *Dashboard) handleChatMessage(conn *websocket.Conn, r *http.Request, user *auth.User, req chatRequest) {
	if d.chat == nil {
		d.sendError(conn, req.ConversationID, "chat service not configured")
		return
	}

	result, err := d.chat.SubmitTurn(r.Context(), chat.TurnRequest{
		UserID:         user.ID,
		Role:           string(user.Role),
		ConversationID: req.ConversationID,
		Message:        req.Content,
		IncludeSources: true,
	})
	if err != nil {
		d.sendError(conn, req.ConversationID, err.Error())
		return
	}

	d.sendResponse(conn, chatResponse{
		Type:           "response",
		ConversationID: result.ConversationID,
		Content:        result.Answer,
		HTML:           d.renderMarkdown(result.Answer),
		Sources:        result.Sources,
		Confidence:     result.Confidence,
		NoContext:      result.NoContext,
	})
}

func (d *Dashboard) sendResponse(conn *websocket.Conn, resp chatResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		d.logger.Warn("websocket write failed", "error", err)
	}
}

func (d *Dashboard) sendError(conn *websocket.Conn, conversationID, message string) {
	resp := chatResponse{
		Type:           "error",
		ConversationID: conversationID,
		Content:        message,
	}
	if err := conn.WriteJSON(resp); err != nil {
		d.logger.Warn("websocket write failed", "error", err)
	}
}
