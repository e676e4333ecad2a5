package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sungrid/leadflow/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(
		WithPhoneNumberID("123456"),
		WithAccessToken("test-token"),
		WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func ackResponse(w http.ResponseWriter, id string) {
	fmt.Fprintf(w, `{"messaging_product":"whatsapp","messages":[{"id":%q}]}`, id)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithAccessToken("tok")); err == nil {
		t.Error("expected error without phone number ID")
	}
	if _, err := NewClient(WithPhoneNumberID("123")); err == nil {
		t.Error("expected error without access token")
	}
}

func TestSendText(t *testing.T) {
	var got SendMessageRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if !strings.HasSuffix(r.URL.Path, "/123456/messages") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		ackResponse(w, "wamid.1")
	})

	id, err := client.SendText(context.Background(), "+919876543210", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if id != "wamid.1" {
		t.Errorf("expected message ID wamid.1, got %q", id)
	}
	if got.Type != "text" || got.Text == nil || got.Text.Body != "hello" {
		t.Errorf("unexpected request payload: %+v", got)
	}
}

func TestSendButtonsFromTemplate(t *testing.T) {
	var got SendMessageRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		ackResponse(w, "wamid.2")
	})

	tmpl := models.MessageTemplate{
		FlowType: models.FlowTypeCampaign,
		Language: models.LanguageEnglish,
		Step:     models.StepCampaignEntry,
		BodyText: "Choose a language",
		Buttons: []models.TemplateButton{
			{ID: models.ButtonHindi, Title: "हिंदी"},
			{ID: models.ButtonEnglish, Title: "English"},
		},
	}
	if _, err := client.SendButtons(context.Background(), "+919876543210", tmpl); err != nil {
		t.Fatalf("SendButtons failed: %v", err)
	}
	if got.Type != "interactive" || got.Interactive == nil {
		t.Fatalf("expected interactive payload, got %+v", got)
	}
	if got.Interactive.Type != "button" {
		t.Errorf("expected interactive type button, got %q", got.Interactive.Type)
	}
	if len(got.Interactive.Action.Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(got.Interactive.Action.Buttons))
	}
	if got.Interactive.Action.Buttons[0].Reply.ID != models.ButtonHindi {
		t.Errorf("unexpected first button ID %q", got.Interactive.Action.Buttons[0].Reply.ID)
	}
}

func TestSendFlowPayload(t *testing.T) {
	var got SendMessageRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		ackResponse(w, "wamid.3")
	})

	if _, err := client.SendFlow(context.Background(), "+919876543210", "FLOW123", "Book your survey", "Book now", "tok-abc"); err != nil {
		t.Fatalf("SendFlow failed: %v", err)
	}
	if got.Interactive == nil || got.Interactive.Type != "flow" {
		t.Fatalf("expected flow interactive payload, got %+v", got)
	}
	action := got.Interactive.Action
	if action.Name != "flow" {
		t.Errorf("expected action name flow, got %q", action.Name)
	}
	p := action.Parameters
	if p == nil {
		t.Fatal("expected flow parameters")
	}
	want := map[string]string{
		"flow_message_version": "3",
		"flow_id":              "FLOW123",
		"flow_token":           "tok-abc",
		"flow_cta":             "Book now",
		"flow_action":          "navigate",
	}
	for k, v := range want {
		if got, _ := p[k].(string); got != v {
			t.Errorf("parameter %s = %q, want %q", k, got, v)
		}
	}
}

func TestSendErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
	})
	if _, err := client.SendText(context.Background(), "+919876543210", "hello"); err == nil {
		t.Error("expected error on 401 response")
	}
}

func TestHandleVerify(t *testing.T) {
	h := NewWebhookHandler("secret", func(models.IncomingMessage) {})

	cases := []struct {
		name     string
		query    url.Values
		wantCode int
		wantBody string
	}{
		{
			name:     "valid",
			query:    url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"secret"}, "hub.challenge": {"42"}},
			wantCode: http.StatusOK,
			wantBody: "42",
		},
		{
			name:     "wrong token",
			query:    url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"nope"}, "hub.challenge": {"42"}},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "wrong mode",
			query:    url.Values{"hub.mode": {"unsubscribe"}, "hub.verify_token": {"secret"}},
			wantCode: http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tc.query.Encode(), nil)
			rec := httptest.NewRecorder()
			h.HandleVerify(rec, req)
			if rec.Code != tc.wantCode {
				t.Errorf("expected status %d, got %d", tc.wantCode, rec.Code)
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Errorf("expected body %q, got %q", tc.wantBody, rec.Body.String())
			}
		})
	}
}

const sampleTextWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "123456"},
        "contacts": [{"profile": {"name": "Asha"}, "wa_id": "919876543210"}],
        "messages": [{
          "from": "919876543210",
          "id": "wamid.in1",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "w"}
        }]
      }
    }]
  }]
}`

const sampleButtonWebhook = `{
  "entry": [{
    "changes": [{
      "value": {
        "contacts": [{"profile": {"name": "Asha"}, "wa_id": "919876543210"}],
        "messages": [{
          "from": "919876543210",
          "id": "wamid.in2",
          "type": "interactive",
          "interactive": {
            "type": "button_reply",
            "button_reply": {"id": "hindi", "title": "हिंदी"}
          }
        }]
      }
    }]
  }]
}`

const sampleStatusWebhook = `{
  "entry": [{
    "changes": [{
      "value": {
        "statuses": [{"id": "wamid.out1", "status": "delivered", "recipient_id": "919876543210"}]
      }
    }]
  }]
}`

func TestParseWebhookText(t *testing.T) {
	msgs := ParseWebhook([]byte(sampleTextWebhook))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.CustomerPhone != "919876543210" {
		t.Errorf("unexpected phone %q", m.CustomerPhone)
	}
	if m.CustomerName != "Asha" {
		t.Errorf("unexpected name %q", m.CustomerName)
	}
	if m.MessageType != models.MessageTypeText || m.Content != "w" {
		t.Errorf("unexpected message %+v", m)
	}
}

func TestParseWebhookButtonReply(t *testing.T) {
	msgs := ParseWebhook([]byte(sampleButtonWebhook))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.MessageType != models.MessageTypeButton {
		t.Errorf("expected button message, got %q", m.MessageType)
	}
	if m.ButtonID != "hindi" || m.ButtonTitle != "हिंदी" {
		t.Errorf("unexpected button fields %+v", m)
	}
}

func TestParseWebhookStatusOnly(t *testing.T) {
	if msgs := ParseWebhook([]byte(sampleStatusWebhook)); len(msgs) != 0 {
		t.Errorf("expected no messages from status payload, got %d", len(msgs))
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	if msgs := ParseWebhook([]byte("not-json")); msgs != nil {
		t.Errorf("expected nil on malformed payload, got %v", msgs)
	}
}

func TestHandleIncomingDispatch(t *testing.T) {
	var received []models.IncomingMessage
	h := NewWebhookHandler("secret", func(m models.IncomingMessage) {
		received = append(received, m)
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(sampleTextWebhook))
	rec := httptest.NewRecorder()
	h.HandleIncoming(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 dispatched message, got %d", len(received))
	}
}
