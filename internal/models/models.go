// Package models defines the core data structures for LeadFlow.
//
// It includes conversation state, message templates, inbound message payloads,
// and the domain records created when a conversation or an encrypted Flow
// completes. Types here are shared across all modules.
package models

import (
	"errors"
	"regexp"
	"time"
)

// MessageType defines how a template is rendered on WhatsApp.
type MessageType string

const (
	// MessageTypeText sends a plain text message.
	MessageTypeText MessageType = "text"
	// MessageTypeButton sends an interactive reply-button message (max 3 buttons).
	MessageTypeButton MessageType = "button"
	// MessageTypeList sends an interactive list message with sections of rows.
	MessageTypeList MessageType = "list"
)

// Language identifies the conversation language chosen at the entry step.
type Language string

const (
	// LanguageEnglish is the default conversation language.
	LanguageEnglish Language = "en"
	// LanguageHindi is selected via the "hindi" entry button.
	LanguageHindi Language = "hi"
	// LanguageUnset means the customer has not picked a language yet.
	LanguageUnset Language = ""
)

// Validation constants for templates and inbound payloads.
const (
	// MaxBodyLength is the WhatsApp limit for interactive body text.
	MaxBodyLength = 4096
	// MaxButtonsPerTemplate is the WhatsApp limit for reply buttons.
	MaxButtonsPerTemplate = 3
	// MaxRowsPerList is the WhatsApp limit across all list sections.
	MaxRowsPerList = 10
)

// Sentinel errors shared across validation paths.
var (
	ErrEmptyPhone          = errors.New("customer phone cannot be empty")
	ErrInvalidPhoneFormat  = errors.New("invalid phone number format")
	ErrInvalidMessageType  = errors.New("invalid message type")
	ErrEmptyBody           = errors.New("body text is required")
	ErrBodyTooLong         = errors.New("body text exceeds maximum length")
	ErrMissingButtons      = errors.New("button templates require at least one button")
	ErrTooManyButtons      = errors.New("button templates allow at most three buttons")
	ErrMissingSections     = errors.New("list templates require at least one section")
	ErrTooManyRows         = errors.New("list templates allow at most ten rows in total")
	ErrEmptyOptionID       = errors.New("template option id cannot be empty")
	ErrEmptyOptionTitle    = errors.New("template option title cannot be empty")
	ErrEmptyStep           = errors.New("template step cannot be empty")
	ErrEmptyFlowType       = errors.New("template flow type cannot be empty")
	ErrTemplateExists      = errors.New("template already exists for flow type, language and step")
	ErrStateNotFound       = errors.New("conversation state not found")
	ErrEmptyRecordName     = errors.New("name is required")
	ErrEmptyRecordMobile   = errors.New("mobile number is required")
	ErrEmptyIssueDetail    = errors.New("issue description is required")
)

// phonePattern is a loose E.164 check shared by the chat and Flow paths.
var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// ValidatePhone reports whether phone looks like an E.164 number.
func ValidatePhone(phone string) error {
	if phone == "" {
		return ErrEmptyPhone
	}
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhoneFormat
	}
	return nil
}

// IsValidMessageType checks if the given message type is supported.
func IsValidMessageType(mt MessageType) bool {
	switch mt {
	case MessageTypeText, MessageTypeButton, MessageTypeList:
		return true
	default:
		return false
	}
}

// IncomingMessage is a single inbound customer interaction, normalized from
// the Cloud API webhook or the chat API.
type IncomingMessage struct {
	CustomerPhone string      `json:"customer_phone"`
	CustomerName  string      `json:"customer_name,omitempty"`
	MessageType   MessageType `json:"message_type"`
	Content       string      `json:"content,omitempty"`
	ButtonID      string      `json:"selected_button_id,omitempty"`
	ButtonTitle   string      `json:"selected_button_title,omitempty"`
	ListItemID    string      `json:"selected_item_id,omitempty"`
	ListItemTitle string      `json:"selected_item_title,omitempty"`
}

// Validate checks the minimal shape of an inbound message.
func (m *IncomingMessage) Validate() error {
	if m.CustomerPhone == "" {
		return ErrEmptyPhone
	}
	if !IsValidMessageType(m.MessageType) {
		return ErrInvalidMessageType
	}
	return nil
}

// Answer records what the customer supplied at one step: a button press, a
// list selection, or free text. Exactly one group of fields is set.
type Answer struct {
	ButtonID    string `json:"button_id,omitempty"`
	ButtonTitle string `json:"button_title,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
	ItemTitle   string `json:"item_title,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Value returns the most specific textual content of the answer. Text answers
// return the raw text; button and list answers return the selected title.
func (a Answer) Value() string {
	if a.Text != "" {
		return a.Text
	}
	if a.ButtonTitle != "" {
		return a.ButtonTitle
	}
	return a.ItemTitle
}

// ConversationState is the per-customer state of the button/list-driven chat.
// At most one live state exists per phone number.
type ConversationState struct {
	CustomerPhone string          `json:"customer_phone"`
	CustomerName  string          `json:"customer_name,omitempty"`
	FlowType      string          `json:"flow_type"`
	CurrentStep   Step            `json:"current_step"`
	Language      Language        `json:"language,omitempty"`
	Context       map[Step]Answer `json:"context,omitempty"`
	// CompleteSent guards the exactly-once completion side effects: once set,
	// the terminal message and its domain record are never emitted again for
	// this conversation lifetime.
	CompleteSent  bool      `json:"complete_sent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// TemplateButton is one reply button of a button template. NextStep empty
// means the selection keeps the conversation on the current step.
type TemplateButton struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	NextStep Step   `json:"next_step,omitempty"`
}

// TemplateRow is one selectable row of a list template section.
type TemplateRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	NextStep    Step   `json:"next_step,omitempty"`
}

// TemplateSection groups list rows under a section title.
type TemplateSection struct {
	Title string        `json:"title,omitempty"`
	Rows  []TemplateRow `json:"rows"`
}

// MessageTemplate is the immutable message definition for one
// (flow type, language, step) triple. It is the single source of truth for
// which inputs are valid at that step and which step each choice leads to.
type MessageTemplate struct {
	ID             string            `json:"id,omitempty"`
	FlowType       string            `json:"flow_type"`
	Language       Language          `json:"language"`
	Step           Step              `json:"step"`
	MessageType    MessageType       `json:"message_type"`
	HeaderText     string            `json:"header_text,omitempty"`
	BodyText       string            `json:"body_text"`
	FooterText     string            `json:"footer_text,omitempty"`
	Buttons        []TemplateButton  `json:"buttons,omitempty"`
	ListButtonText string            `json:"list_button_text,omitempty"`
	Sections       []TemplateSection `json:"sections,omitempty"`
	CreatedAt      time.Time         `json:"created_at,omitempty"`
}

// Validate performs structural validation on a template.
func (t *MessageTemplate) Validate() error {
	if t.FlowType == "" {
		return ErrEmptyFlowType
	}
	if t.Step == "" {
		return ErrEmptyStep
	}
	if !IsValidMessageType(t.MessageType) {
		return ErrInvalidMessageType
	}
	if t.BodyText == "" {
		return ErrEmptyBody
	}
	if len(t.BodyText) > MaxBodyLength {
		return ErrBodyTooLong
	}

	switch t.MessageType {
	case MessageTypeButton:
		if len(t.Buttons) == 0 {
			return ErrMissingButtons
		}
		if len(t.Buttons) > MaxButtonsPerTemplate {
			return ErrTooManyButtons
		}
		for _, b := range t.Buttons {
			if b.ID == "" {
				return ErrEmptyOptionID
			}
			if b.Title == "" {
				return ErrEmptyOptionTitle
			}
		}
	case MessageTypeList:
		if len(t.Sections) == 0 {
			return ErrMissingSections
		}
		rows := 0
		for _, sec := range t.Sections {
			for _, row := range sec.Rows {
				if row.ID == "" {
					return ErrEmptyOptionID
				}
				if row.Title == "" {
					return ErrEmptyOptionTitle
				}
				rows++
			}
		}
		if rows == 0 {
			return ErrMissingSections
		}
		if rows > MaxRowsPerList {
			return ErrTooManyRows
		}
	}
	return nil
}

// FindOption looks up a button or list row by id and returns its declared
// next step. The second return reports whether the id exists at all; an
// existing option with an empty next step means "stay on this step".
func (t *MessageTemplate) FindOption(id string) (Step, bool) {
	for _, b := range t.Buttons {
		if b.ID == id {
			return b.NextStep, true
		}
	}
	for _, sec := range t.Sections {
		for _, row := range sec.Rows {
			if row.ID == id {
				return row.NextStep, true
			}
		}
	}
	return "", false
}

// Direction marks whether a logged message was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageLog is one entry of the append-only conversation transcript.
type MessageLog struct {
	ID            string      `json:"id"`
	CustomerPhone string      `json:"customer_phone"`
	Direction     Direction   `json:"direction"`
	MessageType   MessageType `json:"message_type"`
	Content       string      `json:"content,omitempty"`
	Step          Step        `json:"step,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// SendResult reports the outcome of a gateway send.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
