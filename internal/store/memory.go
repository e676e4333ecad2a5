// Package store provides storage backends for LeadFlow.
//
// This file implements an in-memory store used in tests and for local
// development without a database.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/sungrid/leadflow/internal/models"
)

// InMemoryStore is a mutex-guarded map-backed Store implementation.
type InMemoryStore struct {
	mu           sync.RWMutex
	states       map[string]models.ConversationState
	logs         []models.MessageLog
	templates    map[string]models.MessageTemplate // keyed by template ID
	leads        []models.Lead
	callbacks    []models.CallbackRequest
	services     []models.ServiceRequest
	estimates    []models.PriceEstimate
	issues       []models.OtherIssue
	forms        []models.FormSubmission
	events       []models.Event
	nextTemplate int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:    make(map[string]models.ConversationState),
		templates: make(map[string]models.MessageTemplate),
	}
}

func cloneState(s models.ConversationState) models.ConversationState {
	out := s
	if s.Context != nil {
		out.Context = make(map[models.Step]models.Answer, len(s.Context))
		for k, v := range s.Context {
			out.Context[k] = v
		}
	}
	return out
}

// GetConversationState returns the live state for phone, or nil if none exists.
func (s *InMemoryStore) GetConversationState(phone string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	out := cloneState(state)
	return &out, nil
}

// SaveConversationState upserts the state and refreshes LastMessageAt.
func (s *InMemoryStore) SaveConversationState(state models.ConversationState) error {
	if state.CustomerPhone == "" {
		return models.ErrEmptyPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state.LastMessageAt = time.Now()
	s.states[state.CustomerPhone] = cloneState(state)
	return nil
}

// DeleteConversationState removes the state for phone; deleting a missing
// state is not an error.
func (s *InMemoryStore) DeleteConversationState(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, phone)
	return nil
}

// LogMessage appends one transcript entry.
func (s *InMemoryStore) LogMessage(entry models.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// ListMessageLogs returns the transcript for phone in append order.
func (s *InMemoryStore) ListMessageLogs(phone string) ([]models.MessageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MessageLog
	for _, l := range s.logs {
		if l.CustomerPhone == phone {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetTemplate returns the template for the exact triple, or nil if absent.
func (s *InMemoryStore) GetTemplate(flowType string, language models.Language, step models.Step) (*models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.FlowType == flowType && t.Language == language && t.Step == step {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

// QueryTemplates returns templates matching the filter.
func (s *InMemoryStore) QueryTemplates(filter TemplateFilter) ([]models.MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MessageTemplate
	for _, t := range s.templates {
		if filter.FlowType != "" && t.FlowType != filter.FlowType {
			continue
		}
		if filter.Language != "" && t.Language != filter.Language {
			continue
		}
		if filter.Step != "" && t.Step != filter.Step {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// SaveTemplate stores a template, enforcing triple uniqueness. Saving with an
// existing ID replaces that template.
func (s *InMemoryStore) SaveTemplate(tmpl models.MessageTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.templates {
		if id == tmpl.ID {
			continue
		}
		if existing.FlowType == tmpl.FlowType && existing.Language == tmpl.Language && existing.Step == tmpl.Step {
			return models.ErrTemplateExists
		}
	}
	if tmpl.ID == "" {
		s.nextTemplate++
		tmpl.ID = fmt.Sprintf("tmpl_%d", s.nextTemplate)
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now()
	}
	s.templates[tmpl.ID] = tmpl
	return nil
}

// DeleteTemplate removes a template by ID.
func (s *InMemoryStore) DeleteTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

// CreateLead appends a lead record.
func (s *InMemoryStore) CreateLead(lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return nil
}

// ListLeads returns all leads in creation order.
func (s *InMemoryStore) ListLeads() ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Lead(nil), s.leads...), nil
}

// CreateCallbackRequest appends a callback request record.
func (s *InMemoryStore) CreateCallbackRequest(req models.CallbackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, req)
	return nil
}

// ListCallbackRequests returns all callback requests.
func (s *InMemoryStore) ListCallbackRequests() ([]models.CallbackRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CallbackRequest(nil), s.callbacks...), nil
}

// CreateServiceRequest appends a service request record.
func (s *InMemoryStore) CreateServiceRequest(req models.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, req)
	return nil
}

// ListServiceRequests returns all service requests.
func (s *InMemoryStore) ListServiceRequests() ([]models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ServiceRequest(nil), s.services...), nil
}

// CreatePriceEstimate appends a price estimate record.
func (s *InMemoryStore) CreatePriceEstimate(est models.PriceEstimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimates = append(s.estimates, est)
	return nil
}

// ListPriceEstimates returns all price estimates.
func (s *InMemoryStore) ListPriceEstimates() ([]models.PriceEstimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PriceEstimate(nil), s.estimates...), nil
}

// CreateOtherIssue appends an issue record.
func (s *InMemoryStore) CreateOtherIssue(issue models.OtherIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, issue)
	return nil
}

// ListOtherIssues returns all issue records.
func (s *InMemoryStore) ListOtherIssues() ([]models.OtherIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OtherIssue(nil), s.issues...), nil
}

// CreateFormSubmission appends a raw form submission.
func (s *InMemoryStore) CreateFormSubmission(form models.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms = append(s.forms, form)
	return nil
}

// ListFormSubmissions returns all raw form submissions.
func (s *InMemoryStore) ListFormSubmissions() ([]models.FormSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FormSubmission(nil), s.forms...), nil
}

// CreateEvent appends an analytics event.
func (s *InMemoryStore) CreateEvent(event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListEvents returns events for phone, or all events when phone is empty.
func (s *InMemoryStore) ListEvents(phone string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, e := range s.events {
		if phone == "" || e.CustomerPhone == phone {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
