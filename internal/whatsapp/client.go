package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sungrid/leadflow/internal/models"
)

// DefaultBaseURL is the Cloud API endpoint prefix.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

// Opts holds configuration options for the Cloud API client.
type Opts struct {
	PhoneNumberID string
	AccessToken   string
	BaseURL       string
	HTTPClient    *http.Client
}

// Option defines a configuration option for the Cloud API client.
type Option func(*Opts)

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithAccessToken sets the Cloud API bearer token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithBaseURL overrides the Graph API base URL (used in tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client wraps the WhatsApp Business Cloud API messages endpoint.
type Client struct {
	phoneNumberID string
	accessToken   string
	baseURL       string
	http          *http.Client
}

// NewClient creates a Cloud API client from the given options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id not set")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		baseURL:       cfg.BaseURL,
		http:          cfg.HTTPClient,
	}, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &SendText{Body: body},
	}
	return c.send(ctx, msg)
}

// SendButtons sends an interactive reply-button message.
func (c *Client) SendButtons(ctx context.Context, to string, tmpl models.MessageTemplate) (string, error) {
	buttons := make([]Button, 0, len(tmpl.Buttons))
	for _, b := range tmpl.Buttons {
		buttons = append(buttons, Button{Type: "reply", Reply: ButtonReply{ID: b.ID, Title: b.Title}})
	}
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "button",
			Header: textHeader(tmpl.HeaderText),
			Body:   InteractiveBody{Text: tmpl.BodyText},
			Footer: footer(tmpl.FooterText),
			Action: InteractiveAction{Buttons: buttons},
		},
	}
	return c.send(ctx, msg)
}

// SendList sends an interactive list message.
func (c *Client) SendList(ctx context.Context, to string, tmpl models.MessageTemplate) (string, error) {
	sections := make([]Section, 0, len(tmpl.Sections))
	for _, sec := range tmpl.Sections {
		rows := make([]SectionRow, 0, len(sec.Rows))
		for _, row := range sec.Rows {
			rows = append(rows, SectionRow{ID: row.ID, Title: row.Title, Description: row.Description})
		}
		sections = append(sections, Section{Title: sec.Title, Rows: rows})
	}
	buttonText := tmpl.ListButtonText
	if buttonText == "" {
		buttonText = "Options"
	}
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "list",
			Header: textHeader(tmpl.HeaderText),
			Body:   InteractiveBody{Text: tmpl.BodyText},
			Footer: footer(tmpl.FooterText),
			Action: InteractiveAction{Button: buttonText, Sections: sections},
		},
	}
	return c.send(ctx, msg)
}

// SendFlow sends an interactive Flow launch message. The flow token is
// carried by the Flow runtime and echoed back on every data-exchange call.
func (c *Client) SendFlow(ctx context.Context, to, flowID, bodyText, ctaText, flowToken string) (string, error) {
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type: "flow",
			Body: InteractiveBody{Text: bodyText},
			Action: InteractiveAction{
				Name: "flow",
				Parameters: map[string]interface{}{
					"mode":                 "published",
					"flow_message_version": "3",
					"flow_token":           flowToken,
					"flow_id":              flowID,
					"flow_cta":             ctaText,
					"flow_action":          "navigate",
				},
			},
		},
	}
	return c.send(ctx, msg)
}

func textHeader(text string) *InteractiveHeader {
	if text == "" {
		return nil
	}
	return &InteractiveHeader{Type: "text", Text: text}
}

func footer(text string) *InteractiveFooter {
	if text == "" {
		return nil
	}
	return &InteractiveFooter{Text: text}
}

func (c *Client) send(ctx context.Context, msg SendMessageRequest) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshaling message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		slog.Error("Cloud API send rejected", "status", resp.StatusCode, "to", msg.To, "type", msg.Type)
		return "", fmt.Errorf("whatsapp API status %d: %s", resp.StatusCode, respBody)
	}

	var ack SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// The send succeeded; the ack body is informational only.
		slog.Warn("Cloud API ack decode failed", "error", err, "to", msg.To)
		return "", nil
	}
	if len(ack.Messages) > 0 {
		return ack.Messages[0].ID, nil
	}
	return "", nil
}
