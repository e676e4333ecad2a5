package flows

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/store"
)

// SourceFlow marks records produced by an encrypted Flow submission.
const SourceFlow = "flow"

// FlowDataVersion is the only data-exchange protocol version we speak.
const FlowDataVersion = "3.0"

// firstScreens maps each data-exchange kind to its opening form screen.
var firstScreens = map[models.FlowKind]string{
	models.FlowKindSurvey:   "SURVEY_FORM",
	models.FlowKindPrice:    "PRICE_FORM",
	models.FlowKindService:  "SERVICE_FORM",
	models.FlowKindCallback: "CALLBACK_FORM",
}

// FlowRequest is the decrypted Flow action payload.
type FlowRequest struct {
	Version   string                 `json:"version"`
	Action    string                 `json:"action"`
	Screen    string                 `json:"screen,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	FlowToken string                 `json:"flow_token,omitempty"`
}

// FlowResponse is the plaintext response payload before encryption.
type FlowResponse struct {
	Version string                 `json:"version,omitempty"`
	Screen  string                 `json:"screen,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// BadRequestError marks a request the client got wrong; the endpoint maps it
// to HTTP 400.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return e.Reason
}

// Handler processes decrypted Flow action payloads for every kind.
type Handler struct {
	store store.Store
}

// NewHandler creates a Flow data-exchange handler.
func NewHandler(st store.Store) *Handler {
	return &Handler{store: st}
}

// Handle dispatches on the request action and returns the plaintext response
// to encrypt.
func (h *Handler) Handle(kind models.FlowKind, req FlowRequest) (FlowResponse, error) {
	slog.Debug("Flow handler invoked", "kind", kind, "action", req.Action, "screen", req.Screen)

	switch strings.ToUpper(req.Action) {
	case "PING":
		return FlowResponse{Version: FlowDataVersion, Data: map[string]interface{}{"status": "active"}}, nil

	case "INIT":
		screen, ok := firstScreens[kind]
		if !ok {
			return FlowResponse{}, &BadRequestError{Reason: fmt.Sprintf("flow %s has no form screens", kind)}
		}
		return FlowResponse{Version: FlowDataVersion, Screen: screen}, nil

	case "DATA_EXCHANGE":
		return h.handleDataExchange(kind, req)

	default:
		return FlowResponse{}, &BadRequestError{Reason: fmt.Sprintf("unsupported action %q", req.Action)}
	}
}

func (h *Handler) handleDataExchange(kind models.FlowKind, req FlowRequest) (FlowResponse, error) {
	if req.Version != FlowDataVersion {
		return FlowResponse{}, &BadRequestError{Reason: fmt.Sprintf("unsupported version %q", req.Version)}
	}
	if !kind.HasDataExchange() {
		return FlowResponse{}, &BadRequestError{Reason: fmt.Sprintf("flow %s does not accept submissions", kind)}
	}

	phone := DecodeTokenPhone(req.FlowToken)
	if phone == UnknownPhone || models.ValidatePhone(phone) != nil {
		slog.Warn("Flow submission with invalid phone", "kind", kind, "phone", phone)
		return FlowResponse{}, &BadRequestError{Reason: "Invalid phone number format"}
	}

	if err := h.persistSubmission(kind, phone, req.Data); err != nil {
		return FlowResponse{}, err
	}

	slog.Info("Flow submission persisted", "kind", kind, "phone", phone)
	return FlowResponse{
		Version: FlowDataVersion,
		Screen:  "SUCCESS",
		Data: map[string]interface{}{
			"extension_message_response": map[string]interface{}{
				"params": map[string]interface{}{
					"flow_token": req.FlowToken,
				},
			},
		},
	}, nil
}

// persistSubmission maps the submitted fields onto the kind's domain record
// and stores it together with the raw form dump and an analytics event.
// Unlike conversation completions, a store failure here is surfaced: the Flow
// client retries on 500.
func (h *Handler) persistSubmission(kind models.FlowKind, phone string, data map[string]interface{}) error {
	field := func(names ...string) string {
		for _, name := range names {
			if v, ok := data[name].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	now := time.Now()

	switch kind {
	case models.FlowKindSurvey:
		lead := models.Lead{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Name:          field("name", "full_name"),
			Mobile:        field("mobile", "phone"),
			Address:       field("address"),
			Village:       field("village", "city"),
			PreferredDate: field("preferred_date", "date"),
			PreferredTime: field("preferred_time", "time"),
			Source:        SourceFlow,
			CreatedAt:     now,
		}
		if err := lead.Validate(); err != nil {
			return &BadRequestError{Reason: err.Error()}
		}
		if err := h.store.CreateLead(lead); err != nil {
			return fmt.Errorf("persisting lead: %w", err)
		}

	case models.FlowKindPrice:
		est := models.PriceEstimate{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Name:          field("name", "full_name"),
			Mobile:        field("mobile", "phone"),
			MonthlyBill:   field("monthly_bill", "bill"),
			RoofArea:      field("roof_area"),
			Location:      field("location", "city"),
			Source:        SourceFlow,
			CreatedAt:     now,
		}
		if err := est.Validate(); err != nil {
			return &BadRequestError{Reason: err.Error()}
		}
		if err := h.store.CreatePriceEstimate(est); err != nil {
			return fmt.Errorf("persisting price estimate: %w", err)
		}

	case models.FlowKindService:
		req := models.ServiceRequest{
			ID:               uuid.NewString(),
			CustomerPhone:    phone,
			Name:             field("name", "full_name"),
			Mobile:           field("mobile", "phone"),
			Address:          field("address"),
			IssueDescription: field("issue", "issue_description", "description"),
			Source:           SourceFlow,
			CreatedAt:        now,
		}
		if err := req.Validate(); err != nil {
			return &BadRequestError{Reason: err.Error()}
		}
		if err := h.store.CreateServiceRequest(req); err != nil {
			return fmt.Errorf("persisting service request: %w", err)
		}

	case models.FlowKindCallback:
		req := models.CallbackRequest{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Name:          field("name", "full_name"),
			Mobile:        field("mobile", "phone"),
			PreferredTime: field("preferred_time", "time"),
			Source:        SourceFlow,
			CreatedAt:     now,
		}
		if err := req.Validate(); err != nil {
			return &BadRequestError{Reason: err.Error()}
		}
		if err := h.store.CreateCallbackRequest(req); err != nil {
			return fmt.Errorf("persisting callback request: %w", err)
		}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	form := models.FormSubmission{
		ID:            uuid.NewString(),
		CustomerPhone: phone,
		FormType:      string(kind),
		PayloadJSON:   string(payload),
		CreatedAt:     now,
	}
	if err := h.store.CreateFormSubmission(form); err != nil {
		return fmt.Errorf("persisting form submission: %w", err)
	}

	event := models.Event{
		ID:            uuid.NewString(),
		CustomerPhone: phone,
		EventType:     models.EventFlowSubmitted,
		Detail:        string(kind),
		CreatedAt:     now,
	}
	if err := h.store.CreateEvent(event); err != nil {
		return fmt.Errorf("persisting event: %w", err)
	}
	return nil
}
