package whatsapp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/sungrid/leadflow/internal/models"
)

// MessageHandler is called once per inbound customer message.
type MessageHandler func(msg models.IncomingMessage)

// WebhookHandler verifies Meta's webhook handshake and translates inbound
// notification payloads into normalized IncomingMessage values.
type WebhookHandler struct {
	verifyToken string
	onMessage   MessageHandler
}

// NewWebhookHandler creates a handler that forwards parsed messages to onMessage.
func NewWebhookHandler(verifyToken string, onMessage MessageHandler) *WebhookHandler {
	return &WebhookHandler{verifyToken: verifyToken, onMessage: onMessage}
}

// HandleVerify handles the GET webhook verification from Meta.
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/get-started#webhook-verification
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleIncoming processes incoming webhook POST notifications. Meta requires
// a fast 200 regardless of processing outcome; redelivered payloads are
// absorbed downstream by the conversation engine's completion gate.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("webhook read failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	for _, msg := range ParseWebhook(body) {
		h.onMessage(msg)
	}
	w.WriteHeader(http.StatusOK)
}

// ParseWebhook extracts normalized inbound messages from a raw webhook body.
// Statuses and unsupported message types are ignored.
func ParseWebhook(body []byte) []models.IncomingMessage {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("webhook decode failed", "error", err)
		return nil
	}

	var out []models.IncomingMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				im := models.IncomingMessage{
					CustomerPhone: msg.From,
					CustomerName:  names[msg.From],
				}
				switch msg.Type {
				case "text":
					if msg.Text == nil {
						continue
					}
					im.MessageType = models.MessageTypeText
					im.Content = msg.Text.Body
				case "interactive":
					if msg.Interactive == nil {
						continue
					}
					switch msg.Interactive.Type {
					case "button_reply":
						if msg.Interactive.ButtonReply == nil {
							continue
						}
						im.MessageType = models.MessageTypeButton
						im.ButtonID = msg.Interactive.ButtonReply.ID
						im.ButtonTitle = msg.Interactive.ButtonReply.Title
						im.Content = msg.Interactive.ButtonReply.Title
					case "list_reply":
						if msg.Interactive.ListReply == nil {
							continue
						}
						im.MessageType = models.MessageTypeList
						im.ListItemID = msg.Interactive.ListReply.ID
						im.ListItemTitle = msg.Interactive.ListReply.Title
						im.Content = msg.Interactive.ListReply.Title
					default:
						// nfm_reply terminal payloads arrive through the
						// encrypted data-exchange endpoint instead.
						continue
					}
				default:
					slog.Debug("webhook skipping unsupported message type", "type", msg.Type, "from", msg.From)
					continue
				}
				out = append(out, im)
			}
		}
	}
	return out
}
