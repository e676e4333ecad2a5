package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sungrid/leadflow/internal/models"
)

// CloudAPISender is the surface WhatsAppService needs from the Cloud API
// client. Satisfied by whatsapp.Client and by test mocks.
type CloudAPISender interface {
	SendText(ctx context.Context, to string, body string) (string, error)
	SendButtons(ctx context.Context, to string, tmpl models.MessageTemplate) (string, error)
	SendList(ctx context.Context, to string, tmpl models.MessageTemplate) (string, error)
	SendFlow(ctx context.Context, to, flowID, bodyText, ctaText, flowToken string) (string, error)
}

// WhatsAppService implements Service using the Business Cloud API client.
type WhatsAppService struct {
	client  CloudAPISender
	mu      sync.RWMutex
	stopped bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client CloudAPISender) *WhatsAppService {
	return &WhatsAppService{client: client}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number. It removes all non-numeric characters and validates the
// result has between 6 and 15 digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; the Cloud API client has no background state.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	return nil
}

// Stop marks the service stopped.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	slog.Info("WhatsAppService stopped")
	return nil
}

func (s *WhatsAppService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// SendText sends a plain text message.
func (s *WhatsAppService) SendText(ctx context.Context, to string, body string) (models.SendResult, error) {
	if s.isStopped() {
		return models.SendResult{Success: false, Error: ErrServiceStopped.Error()}, ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendText validation error", "error", err, "to", to)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}

	id, err := s.client.SendText(ctx, canonicalTo, body)
	if err != nil {
		slog.Error("WhatsAppService SendText error", "error", err, "to", canonicalTo)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}
	slog.Debug("WhatsAppService text sent", "to", canonicalTo, "message_id", id)
	return models.SendResult{Success: true, MessageID: id}, nil
}

// SendTemplate renders and sends a message template using the interactive
// payload matching its type.
func (s *WhatsAppService) SendTemplate(ctx context.Context, to string, tmpl models.MessageTemplate) (models.SendResult, error) {
	if s.isStopped() {
		return models.SendResult{Success: false, Error: ErrServiceStopped.Error()}, ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendTemplate validation error", "error", err, "to", to)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}

	var id string
	switch tmpl.MessageType {
	case models.MessageTypeButton:
		id, err = s.client.SendButtons(ctx, canonicalTo, tmpl)
	case models.MessageTypeList:
		id, err = s.client.SendList(ctx, canonicalTo, tmpl)
	case models.MessageTypeText:
		id, err = s.client.SendText(ctx, canonicalTo, tmpl.BodyText)
	default:
		err = fmt.Errorf("unsupported template message type %q", tmpl.MessageType)
	}
	if err != nil {
		slog.Error("WhatsAppService SendTemplate error", "error", err, "to", canonicalTo, "step", tmpl.Step)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}
	slog.Debug("WhatsAppService template sent", "to", canonicalTo, "step", tmpl.Step, "message_id", id)
	return models.SendResult{Success: true, MessageID: id}, nil
}

// SendFlow launches an interactive Flow.
func (s *WhatsAppService) SendFlow(ctx context.Context, to, flowID, bodyText, ctaText, flowToken string) (models.SendResult, error) {
	if s.isStopped() {
		return models.SendResult{Success: false, Error: ErrServiceStopped.Error()}, ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendFlow validation error", "error", err, "to", to)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}

	id, err := s.client.SendFlow(ctx, canonicalTo, flowID, bodyText, ctaText, flowToken)
	if err != nil {
		slog.Error("WhatsAppService SendFlow error", "error", err, "to", canonicalTo, "flow_id", flowID)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}
	slog.Debug("WhatsAppService flow launched", "to", canonicalTo, "flow_id", flowID, "message_id", id)
	return models.SendResult{Success: true, MessageID: id}, nil
}

// canonicalizePhone strips non-digit characters and validates length.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	wasModified := recipient != canonical

	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if len(canonical) > 15 {
		return "", fmt.Errorf("invalid phone number: %q is too long (maximum 15 digits)", canonical)
	}

	if wasModified {
		slog.Debug("canonicalized recipient", "original", recipient, "canonical", canonical)
	}

	return canonical, nil
}
