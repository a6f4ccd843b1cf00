package bot

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// HTTPServer serves the webhook and status endpoints
type HTTPServer struct {
	bot         *Bot
	secret      string
	webhookMode bool
}

// NewHTTPServer creates the HTTP handlers. An empty secret disables the webhook check.
func NewHTTPServer(bot *Bot, secret string, webhookMode bool) *HTTPServer {
	return &HTTPServer{
		bot:         bot,
		secret:      secret,
		webhookMode: webhookMode,
	}
}

// RegisterRoutes registers the bot routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/", hs.handleIndex)
	mux.HandleFunc(WebhookPath, hs.handleWebhook)
}

func (hs *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (hs *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	mode := "polling"
	if hs.webhookMode {
		mode = "webhook"
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Task Bot is running (mode: %s)", mode)
}

// handleWebhook accepts an update from Telegram and hands it to the dispatcher
func (hs *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if hs.secret != "" {
		got := r.URL.Query().Get("secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(hs.secret)) != 1 {
			hs.bot.logger.Warn("Webhook request with invalid secret", zap.String("remote_addr", r.RemoteAddr))
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		hs.bot.logger.Warn("Failed to decode webhook update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Dispatch only enqueues, so Telegram gets its answer right away
	hs.bot.HandleUpdate(update)
	w.WriteHeader(http.StatusOK)
}
