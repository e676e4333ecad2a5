package models

import "testing"

func TestValidatePhone(t *testing.T) {
	valid := []string{"+911234567890", "911234567890", "+15551234567"}
	for _, p := range valid {
		if err := ValidatePhone(p); err != nil {
			t.Errorf("ValidatePhone(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{"", "unknown", "not-a-phone", "+0123", "0771234567", "+1 555 1234"}
	for _, p := range invalid {
		if err := ValidatePhone(p); err == nil {
			t.Errorf("ValidatePhone(%q) = nil, want error", p)
		}
	}
}

func TestTemplateValidate(t *testing.T) {
	base := MessageTemplate{
		FlowType:    FlowTypeCampaign,
		Language:    LanguageEnglish,
		Step:        StepCampaignEntry,
		MessageType: MessageTypeButton,
		BodyText:    "Choose your language",
		Buttons: []TemplateButton{
			{ID: ButtonHindi, Title: "हिंदी", NextStep: StepMainMenu},
			{ID: ButtonEnglish, Title: "English", NextStep: StepMainMenu},
		},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*MessageTemplate)
		want   error
	}{
		{"empty flow type", func(m *MessageTemplate) { m.FlowType = "" }, ErrEmptyFlowType},
		{"empty step", func(m *MessageTemplate) { m.Step = "" }, ErrEmptyStep},
		{"bad message type", func(m *MessageTemplate) { m.MessageType = "poll" }, ErrInvalidMessageType},
		{"empty body", func(m *MessageTemplate) { m.BodyText = "" }, ErrEmptyBody},
		{"no buttons", func(m *MessageTemplate) { m.Buttons = nil }, ErrMissingButtons},
		{"too many buttons", func(m *MessageTemplate) {
			m.Buttons = append(m.Buttons,
				TemplateButton{ID: "a", Title: "A"},
				TemplateButton{ID: "b", Title: "B"})
		}, ErrTooManyButtons},
		{"empty button id", func(m *MessageTemplate) { m.Buttons[0].ID = "" }, ErrEmptyOptionID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := base
			tmpl.Buttons = append([]TemplateButton(nil), base.Buttons...)
			tc.mutate(&tmpl)
			if err := tmpl.Validate(); err != tc.want {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTemplateValidateList(t *testing.T) {
	tmpl := MessageTemplate{
		FlowType:       FlowTypeCampaign,
		Language:       LanguageEnglish,
		Step:           StepMainMenu,
		MessageType:    MessageTypeList,
		BodyText:       "How can we help?",
		ListButtonText: "Options",
		Sections: []TemplateSection{
			{Title: "Services", Rows: []TemplateRow{
				{ID: "book_survey", Title: "Book a site survey"},
				{ID: ButtonHelp, Title: "Help", NextStep: StepHelpSubmenu},
			}},
		},
	}
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("valid list template rejected: %v", err)
	}

	tmpl.Sections = nil
	if err := tmpl.Validate(); err != ErrMissingSections {
		t.Errorf("got %v, want %v", err, ErrMissingSections)
	}
}

func TestTemplateFindOption(t *testing.T) {
	tmpl := MessageTemplate{
		MessageType: MessageTypeButton,
		Buttons: []TemplateButton{
			{ID: "more_info", Title: "More info"},
			{ID: ButtonHelp, Title: "Help", NextStep: StepHelpSubmenu},
		},
		Sections: []TemplateSection{
			{Rows: []TemplateRow{{ID: "row1", Title: "Row", NextStep: "somewhere"}}},
		},
	}

	if next, ok := tmpl.FindOption(ButtonHelp); !ok || next != StepHelpSubmenu {
		t.Errorf("FindOption(help) = (%q, %v)", next, ok)
	}
	// Option without a next step exists but declares no transition.
	if next, ok := tmpl.FindOption("more_info"); !ok || next != "" {
		t.Errorf("FindOption(more_info) = (%q, %v)", next, ok)
	}
	if next, ok := tmpl.FindOption("row1"); !ok || next != "somewhere" {
		t.Errorf("FindOption(row1) = (%q, %v)", next, ok)
	}
	if _, ok := tmpl.FindOption("missing"); ok {
		t.Error("FindOption(missing) reported existing option")
	}
}

func TestIsCompletionStep(t *testing.T) {
	for _, s := range []Step{StepSurveyComplete, StepCallbackComplete, StepServiceComplete, StepIssueComplete, StepWebsiteComplete} {
		if !IsCompletionStep(s) {
			t.Errorf("IsCompletionStep(%s) = false", s)
		}
	}
	if IsCompletionStep(StepMainMenu) {
		t.Error("IsCompletionStep(main_menu) = true")
	}
}

func TestAnswerValue(t *testing.T) {
	if got := (Answer{Text: "hello"}).Value(); got != "hello" {
		t.Errorf("text answer value = %q", got)
	}
	if got := (Answer{ButtonID: "hindi", ButtonTitle: "हिंदी"}).Value(); got != "हिंदी" {
		t.Errorf("button answer value = %q", got)
	}
	if got := (Answer{ItemID: "row1", ItemTitle: "Row"}).Value(); got != "Row" {
		t.Errorf("list answer value = %q", got)
	}
}

func TestRecordValidation(t *testing.T) {
	lead := Lead{CustomerPhone: "+911234567890", Name: "Asha", Mobile: "9876543210"}
	if err := lead.Validate(); err != nil {
		t.Errorf("valid lead rejected: %v", err)
	}
	lead.Name = ""
	if err := lead.Validate(); err != ErrEmptyRecordName {
		t.Errorf("got %v, want %v", err, ErrEmptyRecordName)
	}

	sr := ServiceRequest{CustomerPhone: "+911234567890", Name: "Asha", Mobile: "9876543210"}
	if err := sr.Validate(); err != ErrEmptyIssueDetail {
		t.Errorf("got %v, want %v", err, ErrEmptyIssueDetail)
	}

	oi := OtherIssue{CustomerPhone: "unknown", Description: "panel damaged"}
	if err := oi.Validate(); err != ErrInvalidPhoneFormat {
		t.Errorf("got %v, want %v", err, ErrInvalidPhoneFormat)
	}
}
