// Package store provides storage backends for LeadFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/sungrid/leadflow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversationState returns the live state for phone, or nil if none exists.
func (s *PostgresStore) GetConversationState(phone string) (*models.ConversationState, error) {
	row := s.db.QueryRow(`SELECT customer_phone, customer_name, flow_type, current_step, language, context_json, complete_sent, created_at, last_message_at
		FROM conversation_states WHERE customer_phone = $1`, phone)
	st, err := scanConversationState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get conversation state for %s: %w", phone, err)
	}
	return &st, nil
}

// SaveConversationState upserts the state and refreshes LastMessageAt.
func (s *PostgresStore) SaveConversationState(state models.ConversationState) error {
	if state.CustomerPhone == "" {
		return models.ErrEmptyPhone
	}
	contextJSON, err := marshalContext(state.Context)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState marshal failed", "error", err, "phone", state.CustomerPhone)
		return err
	}
	state.LastMessageAt = time.Now()
	_, err = s.db.Exec(`INSERT INTO conversation_states (customer_phone, customer_name, flow_type, current_step, language, context_json, complete_sent, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(customer_phone) DO UPDATE SET
			customer_name = excluded.customer_name,
			flow_type = excluded.flow_type,
			current_step = excluded.current_step,
			language = excluded.language,
			context_json = excluded.context_json,
			complete_sent = excluded.complete_sent,
			last_message_at = excluded.last_message_at`,
		state.CustomerPhone, nilIfEmpty(state.CustomerName), state.FlowType, state.CurrentStep,
		nilIfEmpty(string(state.Language)), contextJSON, state.CompleteSent, state.CreatedAt, state.LastMessageAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "phone", state.CustomerPhone)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.CustomerPhone, err)
	}
	slog.Debug("PostgresStore SaveConversationState succeeded", "phone", state.CustomerPhone, "step", state.CurrentStep)
	return nil
}

// DeleteConversationState removes the state for phone.
func (s *PostgresStore) DeleteConversationState(phone string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE customer_phone = $1`, phone)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete conversation state for %s: %w", phone, err)
	}
	return nil
}

// LogMessage appends one transcript entry.
func (s *PostgresStore) LogMessage(entry models.MessageLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO message_logs (id, customer_phone, direction, message_type, content, step, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.CustomerPhone, entry.Direction, entry.MessageType,
		nilIfEmpty(entry.Content), nilIfEmpty(string(entry.Step)), entry.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore LogMessage failed", "error", err, "phone", entry.CustomerPhone)
		return fmt.Errorf("failed to log message for %s: %w", entry.CustomerPhone, err)
	}
	return nil
}

// ListMessageLogs returns the transcript for phone in append order.
func (s *PostgresStore) ListMessageLogs(phone string) ([]models.MessageLog, error) {
	rows, err := s.db.Query(`SELECT id, customer_phone, direction, message_type, content, step, created_at
		FROM message_logs WHERE customer_phone = $1 ORDER BY created_at`, phone)
	if err != nil {
		slog.Error("PostgresStore ListMessageLogs query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query message logs: %w", err)
	}
	defer rows.Close()

	var logs []models.MessageLog
	for rows.Next() {
		var l models.MessageLog
		var content, step sql.NullString
		if err := rows.Scan(&l.ID, &l.CustomerPhone, &l.Direction, &l.MessageType, &content, &step, &l.CreatedAt); err != nil {
			slog.Error("PostgresStore ListMessageLogs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message log row: %w", err)
		}
		l.Content = content.String
		l.Step = models.Step(step.String)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetTemplate returns the template for the exact triple, or nil if absent.
func (s *PostgresStore) GetTemplate(flowType string, language models.Language, step models.Step) (*models.MessageTemplate, error) {
	row := s.db.QueryRow(`SELECT id, flow_type, language, step, message_type, header_text, body_text, footer_text, buttons_json, list_button_text, sections_json, created_at
		FROM message_templates WHERE flow_type = $1 AND language = $2 AND step = $3`, flowType, language, step)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTemplate failed", "error", err, "flowType", flowType, "language", language, "step", step)
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

// QueryTemplates returns templates matching the filter, ordered by the triple.
func (s *PostgresStore) QueryTemplates(filter TemplateFilter) ([]models.MessageTemplate, error) {
	query := `SELECT id, flow_type, language, step, message_type, header_text, body_text, footer_text, buttons_json, list_button_text, sections_json, created_at
		FROM message_templates WHERE 1=1`
	var args []interface{}
	if filter.FlowType != "" {
		args = append(args, filter.FlowType)
		query += fmt.Sprintf(` AND flow_type = $%d`, len(args))
	}
	if filter.Language != "" {
		args = append(args, filter.Language)
		query += fmt.Sprintf(` AND language = $%d`, len(args))
	}
	if filter.Step != "" {
		args = append(args, filter.Step)
		query += fmt.Sprintf(` AND step = $%d`, len(args))
	}
	query += ` ORDER BY flow_type, language, step`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore QueryTemplates failed", "error", err)
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []models.MessageTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			slog.Error("PostgresStore QueryTemplates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// SaveTemplate stores a template, enforcing uniqueness of the
// (flow type, language, step) triple.
func (s *PostgresStore) SaveTemplate(tmpl models.MessageTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	existing, err := s.GetTemplate(tmpl.FlowType, tmpl.Language, tmpl.Step)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != tmpl.ID {
		return models.ErrTemplateExists
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now()
	}
	buttonsJSON, sectionsJSON, err := marshalTemplateOptions(tmpl)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO message_templates (id, flow_type, language, step, message_type, header_text, body_text, footer_text, buttons_json, list_button_text, sections_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT(id) DO UPDATE SET
			flow_type = excluded.flow_type,
			language = excluded.language,
			step = excluded.step,
			message_type = excluded.message_type,
			header_text = excluded.header_text,
			body_text = excluded.body_text,
			footer_text = excluded.footer_text,
			buttons_json = excluded.buttons_json,
			list_button_text = excluded.list_button_text,
			sections_json = excluded.sections_json`,
		tmpl.ID, tmpl.FlowType, tmpl.Language, tmpl.Step, tmpl.MessageType,
		nilIfEmpty(tmpl.HeaderText), tmpl.BodyText, nilIfEmpty(tmpl.FooterText),
		buttonsJSON, nilIfEmpty(tmpl.ListButtonText), sectionsJSON, tmpl.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveTemplate failed", "error", err, "flowType", tmpl.FlowType, "step", tmpl.Step)
		return fmt.Errorf("failed to save template: %w", err)
	}
	slog.Debug("PostgresStore SaveTemplate succeeded", "id", tmpl.ID, "step", tmpl.Step)
	return nil
}

// DeleteTemplate removes a template by ID.
func (s *PostgresStore) DeleteTemplate(id string) error {
	_, err := s.db.Exec(`DELETE FROM message_templates WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteTemplate failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}
	return nil
}

// CreateLead inserts a lead record.
func (s *PostgresStore) CreateLead(lead models.Lead) error {
	_, err := s.db.Exec(`INSERT INTO leads (id, customer_phone, name, mobile, address, village, preferred_date, preferred_time, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		lead.ID, lead.CustomerPhone, lead.Name, lead.Mobile, nilIfEmpty(lead.Address), nilIfEmpty(lead.Village),
		nilIfEmpty(lead.PreferredDate), nilIfEmpty(lead.PreferredTime), lead.Source, lead.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateLead failed", "error", err, "phone", lead.CustomerPhone)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.CustomerPhone, err)
	}
	slog.Debug("PostgresStore CreateLead succeeded", "id", lead.ID, "phone", lead.CustomerPhone)
	return nil
}

// ListLeads returns all leads, newest first.
func (s *PostgresStore) ListLeads() ([]models.Lead, error) {
	rows, err := s.db.Query(`SELECT id, customer_phone, name, mobile, address, village, preferred_date, preferred_time, source, created_at
		FROM leads ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		var address, village, date, timeOfDay sql.NullString
		if err := rows.Scan(&l.ID, &l.CustomerPhone, &l.Name, &l.Mobile, &address, &village, &date, &timeOfDay, &l.Source, &l.CreatedAt); err != nil {
			slog.Error("PostgresStore ListLeads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		l.Address = address.String
		l.Village = village.String
		l.PreferredDate = date.String
		l.PreferredTime = timeOfDay.String
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// CreateCallbackRequest inserts a callback request record.
func (s *PostgresStore) CreateCallbackRequest(req models.CallbackRequest) error {
	_, err := s.db.Exec(`INSERT INTO callback_requests (id, customer_phone, name, mobile, preferred_time, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.CustomerPhone, req.Name, req.Mobile, nilIfEmpty(req.PreferredTime), req.Source, req.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateCallbackRequest failed", "error", err, "phone", req.CustomerPhone)
		return fmt.Errorf("failed to insert callback request for %s: %w", req.CustomerPhone, err)
	}
	return nil
}

// ListCallbackRequests returns all callback requests, newest first.
func (s *PostgresStore) ListCallbackRequests() ([]models.CallbackRequest, error) {
	rows, err := s.db.Query(`SELECT id, customer_phone, name, mobile, preferred_time, source, created_at
		FROM callback_requests ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListCallbackRequests query failed", "error", err)
		return nil, fmt.Errorf("failed to query callback requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.CallbackRequest
	for rows.Next() {
		var r models.CallbackRequest
		var preferred sql.NullString
		if err := rows.Scan(&r.ID, &r.CustomerPhone, &r.Name, &r.Mobile, &preferred, &r.Source, &r.CreatedAt); err != nil {
			slog.Error("PostgresStore ListCallbackRequests scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan callback request row: %w", err)
		}
		r.PreferredTime = preferred.String
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// CreateServiceRequest inserts a service request record.
func (s *PostgresStore) CreateServiceRequest(req models.ServiceRequest) error {
	_, err := s.db.Exec(`INSERT INTO service_requests (id, customer_phone, name, mobile, address, issue_description, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.CustomerPhone, req.Name, req.Mobile, nilIfEmpty(req.Address), req.IssueDescription, req.Source, req.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateServiceRequest failed", "error", err, "phone", req.CustomerPhone)
		return fmt.Errorf("failed to insert service request for %s: %w", req.CustomerPhone, err)
	}
	return nil
}

// ListServiceRequests returns all service requests, newest first.
func (s *PostgresStore) ListServiceRequests() ([]models.ServiceRequest, error) {
	rows, err := s.db.Query(`SELECT id, customer_phone, name, mobile, address, issue_description, source, created_at
		FROM service_requests ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListServiceRequests query failed", "error", err)
		return nil, fmt.Errorf("failed to query service requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.ServiceRequest
	for rows.Next() {
		var r models.ServiceRequest
		var address sql.NullString
		if err := rows.Scan(&r.ID, &r.CustomerPhone, &r.Name, &r.Mobile, &address, &r.IssueDescription, &r.Source, &r.CreatedAt); err != nil {
			slog.Error("PostgresStore ListServiceRequests scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan service request row: %w", err)
		}
		r.Address = address.String
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// CreatePriceEstimate inserts a price estimate record.
func (s *PostgresStore) CreatePriceEstimate(est models.PriceEstimate) error {
	_, err := s.db.Exec(`INSERT INTO price_estimates (id, customer_phone, name, mobile, monthly_bill, roof_area, location, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		est.ID, est.CustomerPhone, est.Name, est.Mobile, nilIfEmpty(est.MonthlyBill),
		nilIfEmpty(est.RoofArea), nilIfEmpty(est.Location), est.Source, est.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreatePriceEstimate failed", "error", err, "phone", est.CustomerPhone)
		return fmt.Errorf("failed to insert price estimate for %s: %w", est.CustomerPhone, err)
	}
	return nil
}

// ListPriceEstimates returns all price estimates, newest first.
func (s *PostgresStore) ListPriceEstimates() ([]models.PriceEstimate, error) {
	rows, err := s.db.Query(`SELECT id, customer_phone, name, mobile, monthly_bill, roof_area, location, source, created_at
		FROM price_estimates ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListPriceEstimates query failed", "error", err)
		return nil, fmt.Errorf("failed to query price estimates: %w", err)
	}
	defer rows.Close()

	var ests []models.PriceEstimate
	for rows.Next() {
		var e models.PriceEstimate
		var bill, roof, location sql.NullString
		if err := rows.Scan(&e.ID, &e.CustomerPhone, &e.Name, &e.Mobile, &bill, &roof, &location, &e.Source, &e.CreatedAt); err != nil {
			slog.Error("PostgresStore ListPriceEstimates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan price estimate row: %w", err)
		}
		e.MonthlyBill = bill.String
		e.RoofArea = roof.String
		e.Location = location.String
		ests = append(ests, e)
	}
	return ests, rows.Err()
}

// CreateOtherIssue inserts an issue record.
func (s *PostgresStore) CreateOtherIssue(issue models.OtherIssue) error {
	_, err := s.db.Exec(`INSERT INTO other_issues (id, customer_phone, mobile, description, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		issue.ID, issue.CustomerPhone, nilIfEmpty(issue.Mobile), issue.Description, issue.Source, issue.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateOtherIssue failed", "error", err, "phone", issue.CustomerPhone)
		return fmt.Errorf("failed to insert issue for %s: %w", issue.CustomerPhone, err)
	}
	return nil
}

// ListOtherIssues returns all issue records, newest first.
func (s *PostgresStore) ListOtherIssues() ([]models.OtherIssue, error) {
	rows, err := s.db.Query(`SELECT id, customer_phone, mobile, description, source, created_at
		FROM other_issues ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListOtherIssues query failed", "error", err)
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []models.OtherIssue
	for rows.Next() {
		var i models.OtherIssue
		var mobile sql.NullString
		if err := rows.Scan(&i.ID, &i.CustomerPhone, &mobile, &i.Description, &i.Source, &i.CreatedAt); err != nil {
			slog.Error("PostgresStore ListOtherIssues scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		i.Mobile = mobile.String
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// CreateFormSubmission inserts a raw form submission.
func (s *PostgresStore) CreateFormSubmission(form models.FormSubmission) error {
	_, err := s.db.Exec(`INSERT INTO form_submissions (id, customer_phone, form_type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		form.ID, form.CustomerPhone, form.FormType, form.PayloadJSON, form.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateFormSubmission failed", "error", err, "phone", form.CustomerPhone)
		return fmt.Errorf("failed to insert form submission for %s: %w", form.CustomerPhone, err)
	}
	return nil
}

// CreateEvent inserts an analytics event.
func (s *PostgresStore) CreateEvent(event models.Event) error {
	_, err := s.db.Exec(`INSERT INTO events (id, customer_phone, event_type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.CustomerPhone, event.EventType, nilIfEmpty(event.Detail), event.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateEvent failed", "error", err, "phone", event.CustomerPhone)
		return fmt.Errorf("failed to insert event for %s: %w", event.CustomerPhone, err)
	}
	return nil
}

// ListEvents returns events for phone, or all events when phone is empty.
func (s *PostgresStore) ListEvents(phone string) ([]models.Event, error) {
	query := `SELECT id, customer_phone, event_type, detail, created_at FROM events`
	var args []interface{}
	if phone != "" {
		query += ` WHERE customer_phone = $1`
		args = append(args, phone)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListEvents query failed", "error", err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.CustomerPhone, &e.EventType, &detail, &e.CreatedAt); err != nil {
			slog.Error("PostgresStore ListEvents scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
