package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/store"
)

const testPhone = "+919876543210"

// mockLauncher records flow launches and can be told to fail.
type mockLauncher struct {
	launches []models.FlowKind
	langs    []models.Language
	err      error
}

func (m *mockLauncher) LaunchFlow(ctx context.Context, phone string, kind models.FlowKind, lang models.Language) error {
	if m.err != nil {
		return m.err
	}
	m.launches = append(m.launches, kind)
	m.langs = append(m.langs, lang)
	return nil
}

func seedTemplates(t *testing.T, st store.Store) {
	t.Helper()
	templates := []models.MessageTemplate{
		{
			FlowType:    models.FlowTypeCampaign,
			Language:    models.LanguageEnglish,
			Step:        models.StepCampaignEntry,
			MessageType: models.MessageTypeButton,
			BodyText:    "Welcome to SunGrid Solar! Choose a language.",
			Buttons: []models.TemplateButton{
				{ID: models.ButtonHindi, Title: "हिंदी", NextStep: models.StepMainMenu},
				{ID: models.ButtonEnglish, Title: "English", NextStep: models.StepMainMenu},
			},
		},
		{
			FlowType:    models.FlowTypeCampaign,
			Language:    models.LanguageEnglish,
			Step:        models.StepMainMenu,
			MessageType: models.MessageTypeList,
			BodyText:    "How can we help?",
			Sections: []models.TemplateSection{
				{Rows: []models.TemplateRow{
					{ID: "site_survey", Title: "Book a site survey", NextStep: models.StepSurveyName},
					{ID: "other_issue", Title: "Something else", NextStep: models.StepIssueDescription},
				}},
			},
		},
		{
			FlowType:    models.FlowTypeCampaign,
			Language:    models.LanguageHindi,
			Step:        models.StepMainMenu,
			MessageType: models.MessageTypeList,
			BodyText:    "हम कैसे मदद कर सकते हैं?",
			Sections: []models.TemplateSection{
				{Rows: []models.TemplateRow{
					{ID: "site_survey", Title: "साइट सर्वे बुक करें", NextStep: models.StepSurveyName},
				}},
			},
		},
		{
			FlowType:    models.FlowTypeCampaign,
			Language:    models.LanguageEnglish,
			Step:        models.StepHelpSubmenu,
			MessageType: models.MessageTypeButton,
			BodyText:    "What do you need help with?",
			Buttons: []models.TemplateButton{
				{ID: "service_issue", Title: "Service issue", NextStep: models.StepServiceName},
			},
		},
	}
	textSteps := []models.Step{
		models.StepSurveyName, models.StepSurveyMobile, models.StepSurveyAddress,
		models.StepSurveyVillage, models.StepSurveyDate, models.StepSurveyTime,
		models.StepCallbackName, models.StepCallbackMobile, models.StepCallbackTime,
		models.StepServiceName, models.StepServiceMobile, models.StepServiceAddress, models.StepServiceIssue,
		models.StepIssueDescription, models.StepIssueMobile,
		models.StepSurveyComplete, models.StepCallbackComplete, models.StepServiceComplete,
		models.StepIssueComplete, models.StepWebsiteComplete,
	}
	for _, step := range textSteps {
		templates = append(templates, models.MessageTemplate{
			FlowType:    models.FlowTypeCampaign,
			Language:    models.LanguageEnglish,
			Step:        step,
			MessageType: models.MessageTypeText,
			BodyText:    "prompt for " + string(step),
		})
	}
	for _, tmpl := range templates {
		if err := st.SaveTemplate(tmpl); err != nil {
			t.Fatalf("seeding template for %s: %v", tmpl.Step, err)
		}
	}
}

func newTestEngine(t *testing.T) (*Engine, store.Store, *mockLauncher) {
	t.Helper()
	st := store.NewInMemoryStore()
	seedTemplates(t, st)
	launcher := &mockLauncher{}
	return NewEngine(st, launcher), st, launcher
}

func textMsg(content string) models.IncomingMessage {
	return models.IncomingMessage{
		CustomerPhone: testPhone,
		MessageType:   models.MessageTypeText,
		Content:       content,
	}
}

func buttonMsg(id, title string) models.IncomingMessage {
	return models.IncomingMessage{
		CustomerPhone: testPhone,
		MessageType:   models.MessageTypeButton,
		ButtonID:      id,
		ButtonTitle:   title,
		Content:       title,
	}
}

func listMsg(id, title string) models.IncomingMessage {
	return models.IncomingMessage{
		CustomerPhone: testPhone,
		MessageType:   models.MessageTypeList,
		ListItemID:    id,
		ListItemTitle: title,
		Content:       title,
	}
}

func mustHandle(t *testing.T, e *Engine, msg models.IncomingMessage) Result {
	t.Helper()
	res, err := e.HandleIncomingMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("HandleIncomingMessage failed: %v", err)
	}
	return res
}

func TestFreshConversationServesEntryTemplate(t *testing.T) {
	e, st, _ := newTestEngine(t)

	res := mustHandle(t, e, textMsg("hi"))
	if !res.ShouldSend {
		t.Fatal("expected entry template to be sent")
	}
	if res.Template.Step != models.StepCampaignEntry {
		t.Errorf("expected entry template, got %s", res.Template.Step)
	}

	state, err := st.GetConversationState(testPhone)
	if err != nil || state == nil {
		t.Fatalf("expected state to exist: %v", err)
	}
	if state.CurrentStep != models.StepCampaignEntry {
		t.Errorf("expected campaign_entry, got %s", state.CurrentStep)
	}
	if state.Language != "" {
		t.Errorf("expected language unset, got %s", state.Language)
	}
}

func TestLanguageSelection(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))

	res := mustHandle(t, e, buttonMsg(models.ButtonHindi, "हिंदी"))
	if !res.ShouldSend {
		t.Fatal("expected main menu to be sent")
	}
	if res.Template.Step != models.StepMainMenu || res.Template.Language != models.LanguageHindi {
		t.Errorf("expected hindi main menu, got %s/%s", res.Template.Step, res.Template.Language)
	}

	state, _ := st.GetConversationState(testPhone)
	if state.Language != models.LanguageHindi {
		t.Errorf("expected hindi language, got %s", state.Language)
	}
	if state.CurrentStep != models.StepMainMenu {
		t.Errorf("expected main_menu, got %s", state.CurrentStep)
	}
	if state.Context[models.StepCampaignEntry].ButtonID != models.ButtonHindi {
		t.Errorf("expected entry answer recorded, got %+v", state.Context[models.StepCampaignEntry])
	}
}

func TestWebsiteShortcut(t *testing.T) {
	for _, alias := range []string{"w", "Website", " वेबसाइट "} {
		t.Run(alias, func(t *testing.T) {
			e, st, _ := newTestEngine(t)
			mustHandle(t, e, textMsg("hi"))

			res := mustHandle(t, e, textMsg(alias))
			if !res.ShouldSend || res.Template.Step != models.StepWebsiteComplete {
				t.Fatalf("expected website completion template, got %+v", res)
			}

			events, err := st.ListEvents(testPhone)
			if err != nil {
				t.Fatalf("ListEvents failed: %v", err)
			}
			var found bool
			for _, ev := range events {
				if ev.EventType == models.EventWebsiteRequested {
					found = true
				}
			}
			if !found {
				t.Error("expected website_visit_requested event")
			}

			state, _ := st.GetConversationState(testPhone)
			if !state.CompleteSent {
				t.Error("expected CompleteSent after website completion")
			}
		})
	}
}

// Walks the full happy path: language, menu selection, six text answers,
// completion with a Lead record.
func TestSurveyChainCreatesLead(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	res := mustHandle(t, e, listMsg("site_survey", "Book a site survey"))
	if res.Template.Step != models.StepSurveyName {
		t.Fatalf("expected survey_name prompt, got %s", res.Template.Step)
	}

	answers := []string{"Asha Devi", "9876543210", "12 Canal Road", "Rampur", "2026-09-05", "Morning"}
	steps := []models.Step{
		models.StepSurveyMobile, models.StepSurveyAddress, models.StepSurveyVillage,
		models.StepSurveyDate, models.StepSurveyTime, models.StepSurveyComplete,
	}
	for i, answer := range answers {
		res = mustHandle(t, e, textMsg(answer))
		if !res.ShouldSend || res.Template.Step != steps[i] {
			t.Fatalf("answer %d: expected template for %s, got %+v", i, steps[i], res)
		}
	}

	leads, err := st.ListLeads()
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(leads))
	}
	lead := leads[0]
	if lead.Name != "Asha Devi" || lead.Mobile != "9876543210" || lead.Village != "Rampur" {
		t.Errorf("unexpected lead %+v", lead)
	}
	if lead.Source != SourceChat {
		t.Errorf("expected source chat, got %q", lead.Source)
	}

	events, _ := st.ListEvents(testPhone)
	var submitted bool
	for _, ev := range events {
		if ev.EventType == models.EventFormSubmitted && ev.Detail == "site_survey" {
			submitted = true
		}
	}
	if !submitted {
		t.Error("expected form_submitted event")
	}
}

// A second message after completion must not create another record and must
// not trigger an outbound send, but must reset the conversation.
func TestCompletedConversationAbsorbsReplay(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))
	mustHandle(t, e, listMsg("site_survey", "Book a site survey"))
	for _, answer := range []string{"Asha", "9876543210", "addr", "village", "date", "time"} {
		mustHandle(t, e, textMsg(answer))
	}

	res := mustHandle(t, e, textMsg("time"))
	if res.ShouldSend {
		t.Error("expected no send for post-completion input")
	}
	if !res.Restarted || res.RestartReason != RestartConversationComplete {
		t.Errorf("expected conversation_complete restart, got %+v", res)
	}

	leads, _ := st.ListLeads()
	if len(leads) != 1 {
		t.Errorf("expected exactly 1 lead after replay, got %d", len(leads))
	}

	state, _ := st.GetConversationState(testPhone)
	if state == nil || state.CurrentStep != models.StepCampaignEntry || state.CompleteSent {
		t.Errorf("expected fresh entry state, got %+v", state)
	}
}

func TestUnknownButtonRestarts(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	res := mustHandle(t, e, buttonMsg("bogus", "Bogus"))
	if !res.Restarted || res.RestartReason != RestartUnknownButton {
		t.Fatalf("expected unknown_button restart, got %+v", res)
	}
	if !res.ShouldSend || res.Template.Step != models.StepCampaignEntry {
		t.Errorf("expected entry template after restart, got %+v", res)
	}

	state, _ := st.GetConversationState(testPhone)
	if state.Language != "" {
		t.Errorf("expected language cleared on restart, got %s", state.Language)
	}
}

func TestUnexpectedTextAtMenuRestarts(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	res := mustHandle(t, e, textMsg("random words"))
	if !res.Restarted || res.RestartReason != RestartUnexpectedText {
		t.Fatalf("expected unexpected_text restart, got %+v", res)
	}
}

func TestHelpShortcutFromMainMenu(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	res := mustHandle(t, e, buttonMsg(models.ButtonHelp, "Help"))
	if !res.ShouldSend || res.Template.Step != models.StepHelpSubmenu {
		t.Fatalf("expected help submenu, got %+v", res)
	}
}

func TestFlowTriggerLaunchesAndDropsState(t *testing.T) {
	e, st, launcher := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonHindi, "हिंदी"))

	res := mustHandle(t, e, buttonMsg("start_survey", "Book a survey"))
	if !res.IsFlow || !res.FlowSent {
		t.Fatalf("expected flow launch result, got %+v", res)
	}
	if res.ShouldSend {
		t.Error("flow launches carry no template")
	}
	if len(launcher.launches) != 1 || launcher.launches[0] != models.FlowKindSurvey {
		t.Errorf("expected survey launch, got %v", launcher.launches)
	}
	if launcher.langs[0] != models.LanguageHindi {
		t.Errorf("expected flow launched in hindi, got %s", launcher.langs[0])
	}

	state, _ := st.GetConversationState(testPhone)
	if state != nil {
		t.Errorf("expected state dropped after flow launch, got %+v", state)
	}
}

func TestFlowTriggerDefaultsToEnglish(t *testing.T) {
	e, _, launcher := newTestEngine(t)

	// No prior conversation at all.
	res := mustHandle(t, e, buttonMsg("book_callback", "Request a callback"))
	if !res.FlowSent {
		t.Fatalf("expected flow sent, got %+v", res)
	}
	if launcher.langs[0] != models.LanguageEnglish {
		t.Errorf("expected english default, got %s", launcher.langs[0])
	}
}

func TestFlowLaunchFailureKeepsState(t *testing.T) {
	e, st, launcher := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	launcher.err = errors.New("graph API down")
	_, err := e.HandleIncomingMessage(context.Background(), buttonMsg("start_survey", "Book a survey"))
	if err == nil {
		t.Fatal("expected launch error to propagate")
	}

	state, _ := st.GetConversationState(testPhone)
	if state == nil || state.CurrentStep != models.StepMainMenu {
		t.Errorf("expected state untouched after failed launch, got %+v", state)
	}
}

func TestLegacyFlowTriggerAliases(t *testing.T) {
	e, _, launcher := newTestEngine(t)
	mustHandle(t, e, buttonMsg("get_price", "Get a price"))
	mustHandle(t, e, buttonMsg("book_service", "Book a service"))
	if len(launcher.launches) != 2 ||
		launcher.launches[0] != models.FlowKindPrice ||
		launcher.launches[1] != models.FlowKindService {
		t.Errorf("unexpected launches %v", launcher.launches)
	}
}

func TestIssueChainCreatesOtherIssue(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))
	mustHandle(t, e, listMsg("other_issue", "Something else"))
	mustHandle(t, e, textMsg("Inverter shows error E4"))
	res := mustHandle(t, e, textMsg("9876543210"))
	if res.Template.Step != models.StepIssueComplete {
		t.Fatalf("expected issue completion, got %+v", res)
	}

	issues, err := st.ListOtherIssues()
	if err != nil {
		t.Fatalf("ListOtherIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Description != "Inverter shows error E4" || issues[0].Mobile != "9876543210" {
		t.Errorf("unexpected issue %+v", issues[0])
	}
}

func TestStartNewConversationResets(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	res, err := e.StartNewConversation(context.Background(), testPhone, "Asha")
	if err != nil {
		t.Fatalf("StartNewConversation failed: %v", err)
	}
	if !res.ShouldSend || res.Template.Step != models.StepCampaignEntry {
		t.Fatalf("expected entry template, got %+v", res)
	}

	state, _ := st.GetConversationState(testPhone)
	if state.CurrentStep != models.StepCampaignEntry || state.CustomerName != "Asha" {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestStartNewConversationRejectsBadPhone(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.StartNewConversation(context.Background(), "garbage", "x"); err == nil {
		t.Error("expected phone validation error")
	}
}

func TestInboundMessagesAreLogged(t *testing.T) {
	e, st, _ := newTestEngine(t)
	mustHandle(t, e, textMsg("hi"))
	mustHandle(t, e, buttonMsg(models.ButtonEnglish, "English"))

	logs, err := st.ListMessageLogs(testPhone)
	if err != nil {
		t.Fatalf("ListMessageLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 inbound logs, got %d", len(logs))
	}
	for _, entry := range logs {
		if entry.Direction != models.DirectionInbound {
			t.Errorf("expected inbound direction, got %s", entry.Direction)
		}
	}
}

func TestInvalidMessageRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.HandleIncomingMessage(context.Background(), models.IncomingMessage{MessageType: models.MessageTypeText})
	if err == nil {
		t.Error("expected validation error for missing phone")
	}
}
