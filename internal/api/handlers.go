package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungrid/leadflow/internal/conversation"
	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/store"
)

// handleResultView is the JSON shape returned for engine outcomes.
type handleResultView struct {
	ShouldSend    bool        `json:"should_send"`
	Sent          bool        `json:"sent"`
	Step          models.Step `json:"step,omitempty"`
	IsFlow        bool        `json:"is_flow,omitempty"`
	FlowSent      bool        `json:"flow_sent,omitempty"`
	Restarted     bool        `json:"restarted,omitempty"`
	RestartReason string      `json:"restart_reason,omitempty"`
}

// processInbound runs the engine for one webhook message and delivers the
// reply. Webhook processing is fire-and-forget toward Meta, so errors are
// logged rather than returned.
func (s *Server) processInbound(msg models.IncomingMessage) {
	ctx := context.Background()
	res, err := s.engine.HandleIncomingMessage(ctx, msg)
	if err != nil {
		slog.Error("webhook message handling failed", "phone", msg.CustomerPhone, "error", err)
		return
	}
	s.deliver(ctx, msg.CustomerPhone, res)
}

// deliver sends the result template, if any, and logs the outbound message.
func (s *Server) deliver(ctx context.Context, phone string, res conversation.Result) bool {
	if !res.ShouldSend || res.Template == nil {
		return false
	}
	sendRes, err := s.svc.SendTemplate(ctx, phone, *res.Template)
	if err != nil {
		slog.Error("reply send failed", "phone", phone, "step", res.Template.Step, "error", err)
		return false
	}

	entry := models.MessageLog{
		ID:            uuid.NewString(),
		CustomerPhone: phone,
		Direction:     models.DirectionOutbound,
		MessageType:   res.Template.MessageType,
		Content:       res.Template.BodyText,
		Step:          res.Template.Step,
		CreatedAt:     time.Now(),
	}
	if err := s.store.LogMessage(entry); err != nil {
		slog.Warn("outbound log failed", "phone", phone, "error", err)
	}
	slog.Debug("reply delivered", "phone", phone, "step", res.Template.Step, "message_id", sendRes.MessageID)
	return true
}

func resultView(res conversation.Result, sent bool) handleResultView {
	view := handleResultView{
		ShouldSend:    res.ShouldSend,
		Sent:          sent,
		IsFlow:        res.IsFlow,
		FlowSent:      res.FlowSent,
		Restarted:     res.Restarted,
		RestartReason: string(res.RestartReason),
	}
	if res.Template != nil {
		view.Step = res.Template.Step
	}
	return view
}

// handleIncomingMessage runs the engine for a message posted directly to the
// API. Used by the admin chat simulator and local development.
func (s *Server) handleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.IncomingMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := msg.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	res, err := s.engine.HandleIncomingMessage(r.Context(), msg)
	if err != nil {
		slog.Error("API message handling failed", "phone", msg.CustomerPhone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("message handling failed"))
		return
	}
	sent := s.deliver(r.Context(), msg.CustomerPhone, res)
	writeJSONResponse(w, http.StatusOK, models.Success(resultView(res, sent)))
}

type startConversationRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// handleStartConversation resets a customer to the entry step and sends the
// entry template. Used after outbound campaign blasts.
func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}

	res, err := s.engine.StartNewConversation(r.Context(), req.Phone, req.Name)
	if err != nil {
		if errors.Is(err, models.ErrEmptyPhone) || errors.Is(err, models.ErrInvalidPhoneFormat) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("start conversation failed", "phone", req.Phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("starting conversation failed"))
		return
	}
	sent := s.deliver(r.Context(), req.Phone, res)
	writeJSONResponse(w, http.StatusOK, models.Success(resultView(res, sent)))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	state, err := s.store.GetConversationState(phone)
	if err != nil {
		slog.Error("conversation lookup failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("conversation lookup failed"))
		return
	}
	if state == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("no conversation for phone"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if err := s.store.DeleteConversationState(phone); err != nil {
		slog.Error("conversation delete failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("conversation delete failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("conversation deleted", nil))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := store.TemplateFilter{
		FlowType: r.URL.Query().Get("flow_type"),
		Language: models.Language(r.URL.Query().Get("language")),
		Step:     models.Step(r.URL.Query().Get("step")),
	}
	templates, err := s.store.QueryTemplates(filter)
	if err != nil {
		slog.Error("template query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("template query failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(templates))
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := tmpl.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.store.SaveTemplate(tmpl); err != nil {
		if errors.Is(err, models.ErrTemplateExists) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("template create failed", "step", tmpl.Step, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("template create failed"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("template created", nil))
}

// findTemplateByID scans the template table for an id. Template counts are
// small (a few dozen per language), so a scan is fine.
func (s *Server) findTemplateByID(id string) (*models.MessageTemplate, error) {
	templates, err := s.store.QueryTemplates(store.TemplateFilter{})
	if err != nil {
		return nil, err
	}
	for i := range templates {
		if templates[i].ID == id {
			return &templates[i], nil
		}
	}
	return nil, nil
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tmpl, err := s.findTemplateByID(id)
	if err != nil {
		slog.Error("template lookup failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("template lookup failed"))
		return
	}
	if tmpl == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("template not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tmpl))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.findTemplateByID(id)
	if err != nil {
		slog.Error("template lookup failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("template lookup failed"))
		return
	}
	if existing == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("template not found"))
		return
	}

	var tmpl models.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	tmpl.ID = id
	if err := tmpl.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.store.SaveTemplate(tmpl); err != nil {
		if errors.Is(err, models.ErrTemplateExists) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("template update failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("template update failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("template updated", nil))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteTemplate(id); err != nil {
		slog.Error("template delete failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("template delete failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("template deleted", nil))
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	listRecords(w, s.store.ListLeads, "leads")
}

func (s *Server) handleListCallbacks(w http.ResponseWriter, r *http.Request) {
	listRecords(w, s.store.ListCallbackRequests, "callback requests")
}

func (s *Server) handleListServiceRequests(w http.ResponseWriter, r *http.Request) {
	listRecords(w, s.store.ListServiceRequests, "service requests")
}

func (s *Server) handleListPriceEstimates(w http.ResponseWriter, r *http.Request) {
	listRecords(w, s.store.ListPriceEstimates, "price estimates")
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	listRecords(w, s.store.ListOtherIssues, "issues")
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone query parameter required"))
		return
	}
	events, err := s.store.ListEvents(phone)
	if err != nil {
		slog.Error("event listing failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("event listing failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

// listRecords writes one record listing using the given fetch function.
func listRecords[T any](w http.ResponseWriter, fetch func() ([]T, error), what string) {
	records, err := fetch()
	if err != nil {
		slog.Error("record listing failed", "what", what, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(what+" listing failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}
