package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
// Interactive templates are rendered as numbered text because the Twilio
// Go SDK has no WhatsApp button, list, or Flow support.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop marks the service stopped.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	slog.Info("TwilioService stopped")
	return nil
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// SendText sends a plain text message via Twilio.
func (s *TwilioService) SendText(ctx context.Context, to string, body string) (models.SendResult, error) {
	if s.isStopped() {
		return models.SendResult{Success: false, Error: ErrServiceStopped.Error()}, ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendText validation error", "error", err, "to", to)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}

	if err := s.client.SendMessage(ctx, "+"+canonicalTo, body); err != nil {
		return models.SendResult{Success: false, Error: err.Error()}, err
	}
	return models.SendResult{Success: true}, nil
}

// SendTemplate renders a template as numbered plain text and sends it.
func (s *TwilioService) SendTemplate(ctx context.Context, to string, tmpl models.MessageTemplate) (models.SendResult, error) {
	return s.SendText(ctx, to, RenderTemplateAsText(tmpl))
}

// SendFlow is unsupported on the Twilio transport.
func (s *TwilioService) SendFlow(ctx context.Context, to, flowID, bodyText, ctaText, flowToken string) (models.SendResult, error) {
	slog.Warn("TwilioService SendFlow rejected", "to", to, "flow_id", flowID)
	return models.SendResult{Success: false, Error: ErrFlowsUnsupported.Error()}, ErrFlowsUnsupported
}

// RenderTemplateAsText flattens an interactive template into plain text so
// that text-only transports can still present its options.
func RenderTemplateAsText(tmpl models.MessageTemplate) string {
	var b strings.Builder
	if tmpl.HeaderText != "" {
		b.WriteString(tmpl.HeaderText)
		b.WriteString("\n\n")
	}
	b.WriteString(tmpl.BodyText)

	n := 0
	for _, btn := range tmpl.Buttons {
		n++
		fmt.Fprintf(&b, "\n%d. %s", n, btn.Title)
	}
	for _, sec := range tmpl.Sections {
		if sec.Title != "" {
			b.WriteString("\n\n")
			b.WriteString(sec.Title)
		}
		for _, row := range sec.Rows {
			n++
			fmt.Fprintf(&b, "\n%d. %s", n, row.Title)
		}
	}

	if tmpl.FooterText != "" {
		b.WriteString("\n\n")
		b.WriteString(tmpl.FooterText)
	}
	return b.String()
}
