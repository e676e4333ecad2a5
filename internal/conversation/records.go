package conversation

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sungrid/leadflow/internal/models"
)

// SourceChat marks records produced by the button/text conversation rather
// than an encrypted Flow.
const SourceChat = "chat"

// runCompletionSideEffects materializes the business record for the chain
// that just completed, plus the raw form submission and an analytics event.
// Persistence failures are logged and swallowed so the customer still gets
// the completion message.
func (e *Engine) runCompletionSideEffects(state *models.ConversationState) {
	phone := state.CustomerPhone
	now := time.Now()

	answer := func(step models.Step) string {
		return state.Context[step].Value()
	}

	var formType string
	switch state.CurrentStep {
	case models.StepSurveyComplete:
		formType = "site_survey"
		lead := models.Lead{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Name:          answer(models.StepSurveyName),
			Mobile:        answer(models.StepSurveyMobile),
			Address:       answer(models.StepSurveyAddress),
			Village:       answer(models.StepSurveyVillage),
			PreferredDate: answer(models.StepSurveyDate),
			PreferredTime: answer(models.StepSurveyTime),
			Source:        SourceChat,
			CreatedAt:     now,
		}
		if err := lead.Validate(); err != nil {
			slog.Warn("conversation lead validation failed", "phone", phone, "error", err)
		} else if err := e.store.CreateLead(lead); err != nil {
			slog.Warn("conversation lead persistence failed", "phone", phone, "error", err)
		}

	case models.StepCallbackComplete:
		formType = "callback"
		req := models.CallbackRequest{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Name:          answer(models.StepCallbackName),
			Mobile:        answer(models.StepCallbackMobile),
			PreferredTime: answer(models.StepCallbackTime),
			Source:        SourceChat,
			CreatedAt:     now,
		}
		if err := req.Validate(); err != nil {
			slog.Warn("conversation callback validation failed", "phone", phone, "error", err)
		} else if err := e.store.CreateCallbackRequest(req); err != nil {
			slog.Warn("conversation callback persistence failed", "phone", phone, "error", err)
		}

	case models.StepServiceComplete:
		formType = "service"
		req := models.ServiceRequest{
			ID:               uuid.NewString(),
			CustomerPhone:    phone,
			Name:             answer(models.StepServiceName),
			Mobile:           answer(models.StepServiceMobile),
			Address:          answer(models.StepServiceAddress),
			IssueDescription: answer(models.StepServiceIssue),
			Source:           SourceChat,
			CreatedAt:        now,
		}
		if err := req.Validate(); err != nil {
			slog.Warn("conversation service request validation failed", "phone", phone, "error", err)
		} else if err := e.store.CreateServiceRequest(req); err != nil {
			slog.Warn("conversation service request persistence failed", "phone", phone, "error", err)
		}

	case models.StepIssueComplete:
		formType = "other_issue"
		issue := models.OtherIssue{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Mobile:        answer(models.StepIssueMobile),
			Description:   answer(models.StepIssueDescription),
			Source:        SourceChat,
			CreatedAt:     now,
		}
		if err := issue.Validate(); err != nil {
			slog.Warn("conversation issue validation failed", "phone", phone, "error", err)
		} else if err := e.store.CreateOtherIssue(issue); err != nil {
			slog.Warn("conversation issue persistence failed", "phone", phone, "error", err)
		}

	case models.StepWebsiteComplete:
		// Website visits produce an event only; no form was filled.
		event := models.Event{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			EventType:     models.EventWebsiteRequested,
			CreatedAt:     now,
		}
		if err := e.store.CreateEvent(event); err != nil {
			slog.Warn("conversation website event persistence failed", "phone", phone, "error", err)
		}
		return

	default:
		slog.Error("runCompletionSideEffects called on non-completion step", "phone", phone, "step", state.CurrentStep)
		return
	}

	payload, err := json.Marshal(state.Context)
	if err != nil {
		slog.Warn("conversation form payload marshal failed", "phone", phone, "error", err)
		payload = []byte("{}")
	}
	form := models.FormSubmission{
		ID:            uuid.NewString(),
		CustomerPhone: phone,
		FormType:      formType,
		PayloadJSON:   string(payload),
		CreatedAt:     now,
	}
	if err := e.store.CreateFormSubmission(form); err != nil {
		slog.Warn("conversation form submission persistence failed", "phone", phone, "error", err)
	}

	event := models.Event{
		ID:            uuid.NewString(),
		CustomerPhone: phone,
		EventType:     models.EventFormSubmitted,
		Detail:        formType,
		CreatedAt:     now,
	}
	if err := e.store.CreateEvent(event); err != nil {
		slog.Warn("conversation event persistence failed", "phone", phone, "error", err)
	}
}
