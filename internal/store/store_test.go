package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sungrid/leadflow/internal/models"
)

func TestInMemoryConversationStateLifecycle(t *testing.T) {
	s := NewInMemoryStore()

	got, err := s.GetConversationState("+911234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected no state for unknown phone")
	}

	state := models.ConversationState{
		CustomerPhone: "+911234567890",
		FlowType:      models.FlowTypeCampaign,
		CurrentStep:   models.StepCampaignEntry,
		CreatedAt:     time.Now(),
	}
	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err = s.GetConversationState("+911234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.CurrentStep != models.StepCampaignEntry {
		t.Fatalf("state not stored correctly: %+v", got)
	}
	if got.LastMessageAt.IsZero() {
		t.Error("SaveConversationState did not refresh LastMessageAt")
	}

	// Mutating the returned copy must not leak into the store.
	got.Context = map[models.Step]models.Answer{models.StepCampaignEntry: {Text: "hi"}}
	again, _ := s.GetConversationState("+911234567890")
	if len(again.Context) != 0 {
		t.Error("store returned aliased state")
	}

	if err := s.DeleteConversationState("+911234567890"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, _ = s.GetConversationState("+911234567890")
	if got != nil {
		t.Error("state not deleted")
	}
}

func TestInMemoryTemplateUniqueness(t *testing.T) {
	s := NewInMemoryStore()
	tmpl := models.MessageTemplate{
		FlowType:    models.FlowTypeCampaign,
		Language:    models.LanguageEnglish,
		Step:        models.StepCampaignEntry,
		MessageType: models.MessageTypeText,
		BodyText:    "Welcome",
	}
	if err := s.SaveTemplate(tmpl); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveTemplate(tmpl); err != models.ErrTemplateExists {
		t.Errorf("duplicate triple: got %v, want %v", err, models.ErrTemplateExists)
	}

	got, err := s.GetTemplate(models.FlowTypeCampaign, models.LanguageEnglish, models.StepCampaignEntry)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.BodyText != "Welcome" {
		t.Fatalf("template not retrieved: %+v", got)
	}
	if got.ID == "" {
		t.Error("template not assigned an id")
	}

	// Updating through the same ID is allowed.
	got.BodyText = "Welcome!"
	if err := s.SaveTemplate(*got); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := s.DeleteTemplate(got.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	gone, _ := s.GetTemplate(models.FlowTypeCampaign, models.LanguageEnglish, models.StepCampaignEntry)
	if gone != nil {
		t.Error("template not deleted")
	}
}

func TestInMemoryQueryTemplates(t *testing.T) {
	s := NewInMemoryStore()
	for _, lang := range []models.Language{models.LanguageEnglish, models.LanguageHindi} {
		for _, step := range []models.Step{models.StepCampaignEntry, models.StepMainMenu} {
			err := s.SaveTemplate(models.MessageTemplate{
				FlowType:    models.FlowTypeCampaign,
				Language:    lang,
				Step:        step,
				MessageType: models.MessageTypeText,
				BodyText:    "body",
			})
			if err != nil {
				t.Fatalf("save failed: %v", err)
			}
		}
	}

	all, err := s.QueryTemplates(TemplateFilter{FlowType: models.FlowTypeCampaign})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d templates, want 4", len(all))
	}

	hi, err := s.QueryTemplates(TemplateFilter{Language: models.LanguageHindi})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(hi) != 2 {
		t.Errorf("got %d hindi templates, want 2", len(hi))
	}
}

func TestInMemoryRecordsAndLogs(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()

	if err := s.CreateLead(models.Lead{ID: "l1", CustomerPhone: "+911234567890", Name: "Asha", Mobile: "9876543210", Source: "campaign", CreatedAt: now}); err != nil {
		t.Fatalf("create lead failed: %v", err)
	}
	leads, err := s.ListLeads()
	if err != nil || len(leads) != 1 {
		t.Fatalf("ListLeads = (%v, %v)", leads, err)
	}

	if err := s.CreateEvent(models.Event{ID: "e1", CustomerPhone: "+911234567890", EventType: models.EventFormSubmitted, CreatedAt: now}); err != nil {
		t.Fatalf("create event failed: %v", err)
	}
	events, err := s.ListEvents("+911234567890")
	if err != nil || len(events) != 1 {
		t.Fatalf("ListEvents = (%v, %v)", events, err)
	}
	none, _ := s.ListEvents("+919999999999")
	if len(none) != 0 {
		t.Error("events leaked across phones")
	}

	if err := s.LogMessage(models.MessageLog{ID: "m1", CustomerPhone: "+911234567890", Direction: models.DirectionInbound, MessageType: models.MessageTypeText, Content: "hi"}); err != nil {
		t.Fatalf("log message failed: %v", err)
	}
	logs, err := s.ListMessageLogs("+911234567890")
	if err != nil || len(logs) != 1 {
		t.Fatalf("ListMessageLogs = (%v, %v)", logs, err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "leadflow-test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	state := models.ConversationState{
		CustomerPhone: "+911234567890",
		FlowType:      models.FlowTypeCampaign,
		CurrentStep:   models.StepSurveyName,
		Language:      models.LanguageHindi,
		Context: map[models.Step]models.Answer{
			models.StepCampaignEntry: {ButtonID: models.ButtonHindi, ButtonTitle: "हिंदी"},
		},
		CreatedAt: time.Now(),
	}
	if err := s.SaveConversationState(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.GetConversationState("+911234567890")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("state not found after save")
	}
	if got.Language != models.LanguageHindi || got.CurrentStep != models.StepSurveyName {
		t.Errorf("state fields lost: %+v", got)
	}
	if got.Context[models.StepCampaignEntry].ButtonID != models.ButtonHindi {
		t.Errorf("context lost: %+v", got.Context)
	}

	// Upsert path: same phone, new step.
	got.CurrentStep = models.StepSurveyMobile
	if err := s.SaveConversationState(*got); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	again, _ := s.GetConversationState("+911234567890")
	if again.CurrentStep != models.StepSurveyMobile {
		t.Errorf("upsert did not apply: %+v", again)
	}

	if err := s.DeleteConversationState("+911234567890"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	gone, _ := s.GetConversationState("+911234567890")
	if gone != nil {
		t.Error("state not deleted")
	}
}

func TestSQLiteTemplateUniqueness(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "leadflow-test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	tmpl := models.MessageTemplate{
		FlowType:    models.FlowTypeCampaign,
		Language:    models.LanguageEnglish,
		Step:        models.StepMainMenu,
		MessageType: models.MessageTypeButton,
		BodyText:    "Menu",
		Buttons:     []models.TemplateButton{{ID: models.ButtonHelp, Title: "Help", NextStep: models.StepHelpSubmenu}},
	}
	if err := s.SaveTemplate(tmpl); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveTemplate(tmpl); err != models.ErrTemplateExists {
		t.Errorf("duplicate triple: got %v, want %v", err, models.ErrTemplateExists)
	}

	got, err := s.GetTemplate(models.FlowTypeCampaign, models.LanguageEnglish, models.StepMainMenu)
	if err != nil || got == nil {
		t.Fatalf("get failed: (%v, %v)", got, err)
	}
	if next, ok := got.FindOption(models.ButtonHelp); !ok || next != models.StepHelpSubmenu {
		t.Errorf("buttons lost in round trip: %+v", got.Buttons)
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := NewPostgresStore(WithPostgresDSN(dsn))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()

	s.db.Exec("DELETE FROM leads")
	lead := models.Lead{ID: "pg-l1", CustomerPhone: "+911234567890", Name: "Asha", Mobile: "9876543210", Source: "campaign", CreatedAt: time.Now()}
	if err := s.CreateLead(lead); err != nil {
		t.Fatalf("create lead failed: %v", err)
	}
	leads, err := s.ListLeads()
	if err != nil || len(leads) != 1 || leads[0].Name != "Asha" {
		t.Errorf("ListLeads = (%v, %v)", leads, err)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":     "postgres",
		"postgresql://u:p@localhost/db":   "postgres",
		"host=localhost dbname=leadflow":  "postgres",
		"/var/lib/leadflow/leadflow.db":   "sqlite",
		"leadflow.db":                     "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}
