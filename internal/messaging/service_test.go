package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/twiliowhatsapp"
)

// mockCloudSender records Cloud API calls for assertions.
type mockCloudSender struct {
	textCalls   []string
	buttonCalls []models.MessageTemplate
	listCalls   []models.MessageTemplate
	flowCalls   []string
	err         error
}

func (m *mockCloudSender) SendText(ctx context.Context, to string, body string) (string, error) {
	m.textCalls = append(m.textCalls, body)
	return "wamid.text", m.err
}

func (m *mockCloudSender) SendButtons(ctx context.Context, to string, tmpl models.MessageTemplate) (string, error) {
	m.buttonCalls = append(m.buttonCalls, tmpl)
	return "wamid.btn", m.err
}

func (m *mockCloudSender) SendList(ctx context.Context, to string, tmpl models.MessageTemplate) (string, error) {
	m.listCalls = append(m.listCalls, tmpl)
	return "wamid.list", m.err
}

func (m *mockCloudSender) SendFlow(ctx context.Context, to, flowID, bodyText, ctaText, flowToken string) (string, error) {
	m.flowCalls = append(m.flowCalls, flowID)
	return "wamid.flow", m.err
}

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+91 98765 43210", "919876543210", false},
		{"919876543210", "919876543210", false},
		{"whatsapp:+919876543210", "919876543210", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
		{"1234567890123456", "", true},
	}
	for _, tc := range cases {
		got, err := canonicalizePhone(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWhatsAppServiceSendTemplateDispatch(t *testing.T) {
	mock := &mockCloudSender{}
	svc := NewWhatsAppService(mock)

	buttonTmpl := models.MessageTemplate{MessageType: models.MessageTypeButton, BodyText: "pick one"}
	res, err := svc.SendTemplate(context.Background(), "+919876543210", buttonTmpl)
	if err != nil {
		t.Fatalf("SendTemplate button failed: %v", err)
	}
	if !res.Success || res.MessageID != "wamid.btn" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(mock.buttonCalls) != 1 {
		t.Errorf("expected 1 button call, got %d", len(mock.buttonCalls))
	}

	listTmpl := models.MessageTemplate{MessageType: models.MessageTypeList, BodyText: "pick one"}
	if _, err := svc.SendTemplate(context.Background(), "+919876543210", listTmpl); err != nil {
		t.Fatalf("SendTemplate list failed: %v", err)
	}
	if len(mock.listCalls) != 1 {
		t.Errorf("expected 1 list call, got %d", len(mock.listCalls))
	}

	textTmpl := models.MessageTemplate{MessageType: models.MessageTypeText, BodyText: "hello"}
	if _, err := svc.SendTemplate(context.Background(), "+919876543210", textTmpl); err != nil {
		t.Fatalf("SendTemplate text failed: %v", err)
	}
	if len(mock.textCalls) != 1 || mock.textCalls[0] != "hello" {
		t.Errorf("expected text call with body hello, got %v", mock.textCalls)
	}
}

func TestWhatsAppServiceRejectsInvalidRecipient(t *testing.T) {
	mock := &mockCloudSender{}
	svc := NewWhatsAppService(mock)

	res, err := svc.SendText(context.Background(), "not-a-number", "hello")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if res.Success {
		t.Error("expected failed result")
	}
	if len(mock.textCalls) != 0 {
		t.Error("client should not be called for invalid recipient")
	}
}

func TestWhatsAppServiceStopped(t *testing.T) {
	svc := NewWhatsAppService(&mockCloudSender{})
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := svc.SendText(context.Background(), "+919876543210", "hello"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioServiceRendersTemplatesAsText(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	tmpl := models.MessageTemplate{
		MessageType: models.MessageTypeButton,
		HeaderText:  "SunGrid Solar",
		BodyText:    "Choose a language",
		Buttons: []models.TemplateButton{
			{ID: "hindi", Title: "हिंदी"},
			{ID: "english", Title: "English"},
		},
	}
	res, err := svc.SendTemplate(context.Background(), "+919876543210", tmpl)
	if err != nil {
		t.Fatalf("SendTemplate failed: %v", err)
	}
	if !res.Success {
		t.Errorf("unexpected result %+v", res)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	body := mock.SentMessages[0].Body
	for _, want := range []string{"SunGrid Solar", "Choose a language", "1. हिंदी", "2. English"} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered body missing %q:\n%s", want, body)
		}
	}
	if mock.SentMessages[0].To != "+919876543210" {
		t.Errorf("unexpected recipient %q", mock.SentMessages[0].To)
	}
}

func TestTwilioServiceFlowUnsupported(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	res, err := svc.SendFlow(context.Background(), "+919876543210", "FLOW123", "body", "cta", "tok")
	if !errors.Is(err, ErrFlowsUnsupported) {
		t.Errorf("expected ErrFlowsUnsupported, got %v", err)
	}
	if res.Success {
		t.Error("expected failed result")
	}
}

func TestRenderTemplateAsTextList(t *testing.T) {
	tmpl := models.MessageTemplate{
		MessageType:    models.MessageTypeList,
		BodyText:       "How can we help?",
		ListButtonText: "Options",
		Sections: []models.TemplateSection{
			{Title: "Services", Rows: []models.TemplateRow{
				{ID: "book_survey", Title: "Book a survey"},
				{ID: "get_price", Title: "Get a price"},
			}},
		},
		FooterText: "Reply with a number",
	}
	out := RenderTemplateAsText(tmpl)
	for _, want := range []string{"How can we help?", "Services", "1. Book a survey", "2. Get a price", "Reply with a number"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered text missing %q:\n%s", want, out)
		}
	}
}
