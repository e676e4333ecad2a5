package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sungrid/leadflow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanConversationState scans one conversation_states row.
func scanConversationState(row rowScanner) (models.ConversationState, error) {
	var st models.ConversationState
	var name, language, contextJSON sql.NullString
	err := row.Scan(
		&st.CustomerPhone, &name, &st.FlowType, &st.CurrentStep, &language,
		&contextJSON, &st.CompleteSent, &st.CreatedAt, &st.LastMessageAt,
	)
	if err != nil {
		return st, err
	}
	st.CustomerName = name.String
	st.Language = models.Language(language.String)
	if contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &st.Context); err != nil {
			return st, fmt.Errorf("decode conversation context: %w", err)
		}
	}
	return st, nil
}

// scanTemplate scans one message_templates row.
func scanTemplate(row rowScanner) (models.MessageTemplate, error) {
	var t models.MessageTemplate
	var header, footer, buttonsJSON, listButton, sectionsJSON sql.NullString
	err := row.Scan(
		&t.ID, &t.FlowType, &t.Language, &t.Step, &t.MessageType,
		&header, &t.BodyText, &footer, &buttonsJSON, &listButton, &sectionsJSON, &t.CreatedAt,
	)
	if err != nil {
		return t, err
	}
	t.HeaderText = header.String
	t.FooterText = footer.String
	t.ListButtonText = listButton.String
	if buttonsJSON.String != "" {
		if err := json.Unmarshal([]byte(buttonsJSON.String), &t.Buttons); err != nil {
			return t, fmt.Errorf("decode template buttons: %w", err)
		}
	}
	if sectionsJSON.String != "" {
		if err := json.Unmarshal([]byte(sectionsJSON.String), &t.Sections); err != nil {
			return t, fmt.Errorf("decode template sections: %w", err)
		}
	}
	return t, nil
}

// marshalContext encodes the conversation context map for storage.
func marshalContext(ctx map[models.Step]models.Answer) (interface{}, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode conversation context: %w", err)
	}
	return string(raw), nil
}

// marshalTemplateOptions encodes the buttons and sections of a template.
func marshalTemplateOptions(t models.MessageTemplate) (buttons, sections interface{}, err error) {
	if len(t.Buttons) > 0 {
		raw, err := json.Marshal(t.Buttons)
		if err != nil {
			return nil, nil, fmt.Errorf("encode template buttons: %w", err)
		}
		buttons = string(raw)
	}
	if len(t.Sections) > 0 {
		raw, err := json.Marshal(t.Sections)
		if err != nil {
			return nil, nil, fmt.Errorf("encode template sections: %w", err)
		}
		sections = string(raw)
	}
	return buttons, sections, nil
}
