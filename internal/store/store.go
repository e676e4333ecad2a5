// Package store provides storage backends for LeadFlow.
//
// It defines the Store interface consumed by the conversation engine and the
// Flow handlers, with in-memory, SQLite, and PostgreSQL implementations.
package store

import "github.com/sungrid/leadflow/internal/models"

// TemplateFilter narrows a template query. Zero-value fields match anything.
type TemplateFilter struct {
	FlowType string
	Language models.Language
	Step     models.Step
}

// Store is the persistence contract for conversations, templates, the message
// transcript, and the business records produced on completion.
type Store interface {
	// Conversation state: at most one live state per phone number.
	GetConversationState(phone string) (*models.ConversationState, error)
	// SaveConversationState upserts the state and refreshes LastMessageAt.
	SaveConversationState(state models.ConversationState) error
	DeleteConversationState(phone string) error

	// Append-only conversation transcript.
	LogMessage(entry models.MessageLog) error
	ListMessageLogs(phone string) ([]models.MessageLog, error)

	// Message templates, unique per (flow type, language, step).
	GetTemplate(flowType string, language models.Language, step models.Step) (*models.MessageTemplate, error)
	QueryTemplates(filter TemplateFilter) ([]models.MessageTemplate, error)
	SaveTemplate(tmpl models.MessageTemplate) error
	DeleteTemplate(id string) error

	// Business records.
	CreateLead(lead models.Lead) error
	ListLeads() ([]models.Lead, error)
	CreateCallbackRequest(req models.CallbackRequest) error
	ListCallbackRequests() ([]models.CallbackRequest, error)
	CreateServiceRequest(req models.ServiceRequest) error
	ListServiceRequests() ([]models.ServiceRequest, error)
	CreatePriceEstimate(est models.PriceEstimate) error
	ListPriceEstimates() ([]models.PriceEstimate, error)
	CreateOtherIssue(issue models.OtherIssue) error
	ListOtherIssues() ([]models.OtherIssue, error)
	CreateFormSubmission(form models.FormSubmission) error
	CreateEvent(event models.Event) error
	ListEvents(phone string) ([]models.Event, error)

	Close() error
}
