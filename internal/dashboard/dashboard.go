package dashboard

import (
	"bytes"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"

	"github.com/ziadkadry99/finchat/internal/auth"
	"github.com/ziadkadry99/finchat/internal/chat"
)

// Dashboard serves the embedded chat page and its websocket endpoint.
type Dashboard struct {
	chat   *chat.Service
	users  *auth.Store
	md     goldmark.Markdown
	logger *slog.Logger
}

// New creates a new Dashboard.
func New(chatSvc *chat.Service, users *auth.Store, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		chat:  chatSvc,
		users: users,
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
				),
			),
		),
		logger: logger,
	}
}

// RegisterRoutes mounts the dashboard routes. The page itself is public
// (it carries the login form); the websocket authenticates through the
// token query parameter because browsers cannot set headers on upgrade
// requests.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/", d.ServeIndex)
	r.Get("/ws/chat", d.handleWebSocket)
}

// renderMarkdown converts assistant markdown to HTML for the browser.
// Raw HTML in the source is not passed through.
func (d *Dashboard) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := d.md.Convert([]byte(text), &buf); err != nil {
		d.logger.Warn("markdown render failed", "error", err)
		return ""
	}
	return buf.String()
}
