// Package messaging provides a pluggable delivery abstraction over the
// supported WhatsApp transports.
package messaging

import (
	"context"
	"errors"
	"regexp"

	"github.com/sungrid/leadflow/internal/models"
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// ErrFlowsUnsupported is returned by transports that cannot launch
// interactive Flows.
var ErrFlowsUnsupported = errors.New("transport does not support flow messages")

// phoneNumberRegex matches characters stripped during recipient
// canonicalization (everything except digits).
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient and an error if
	// validation fails. This allows each service to implement its own
	// recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to string, body string) (models.SendResult, error)

	// SendTemplate renders and sends a message template. Button and list
	// templates degrade to text on transports without interactive support.
	SendTemplate(ctx context.Context, to string, tmpl models.MessageTemplate) (models.SendResult, error)

	// SendFlow launches an interactive Flow.
	SendFlow(ctx context.Context, to, flowID, bodyText, ctaText, flowToken string) (models.SendResult, error)

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}
