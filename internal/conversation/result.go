package conversation

import "github.com/sungrid/leadflow/internal/models"

// RestartReason explains why the engine discarded a conversation and
// recreated it at the entry step.
type RestartReason string

const (
	RestartUnknownButton        RestartReason = "unknown_button"
	RestartUnknownListItem      RestartReason = "unknown_list_item"
	RestartUnexpectedText       RestartReason = "unexpected_text"
	RestartMissingTemplate      RestartReason = "missing_template"
	RestartUnknownStep          RestartReason = "unknown_step"
	RestartConversationComplete RestartReason = "conversation_complete"
)

// Result describes what the caller should do after the engine processed one
// inbound message.
type Result struct {
	// ShouldSend is true when Template must be delivered to the customer.
	ShouldSend bool
	// Template is the reply to render, set only when ShouldSend is true.
	Template *models.MessageTemplate
	// IsFlow is true when the message was handled as a Flow trigger.
	IsFlow bool
	// FlowSent is true when the Flow launch succeeded.
	FlowSent bool
	// Restarted is true when the conversation was discarded and recreated
	// at the entry step.
	Restarted bool
	// RestartReason is set when Restarted is true.
	RestartReason RestartReason
}
