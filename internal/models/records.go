// Package models defines the business records materialized when a
// conversation or an encrypted Flow completes.
package models

import "time"

// Lead is created when the site-survey chain or Flow completes.
type Lead struct {
	ID            string    `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	Name          string    `json:"name"`
	Mobile        string    `json:"mobile"`
	Address       string    `json:"address,omitempty"`
	Village       string    `json:"village,omitempty"`
	PreferredDate string    `json:"preferred_date,omitempty"`
	PreferredTime string    `json:"preferred_time,omitempty"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the minimal fields required to persist a Lead.
func (l *Lead) Validate() error {
	if err := ValidatePhone(l.CustomerPhone); err != nil {
		return err
	}
	if l.Name == "" {
		return ErrEmptyRecordName
	}
	if l.Mobile == "" {
		return ErrEmptyRecordMobile
	}
	return nil
}

// CallbackRequest is created when the callback chain or Flow completes.
type CallbackRequest struct {
	ID            string    `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	Name          string    `json:"name"`
	Mobile        string    `json:"mobile"`
	PreferredTime string    `json:"preferred_time,omitempty"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the minimal fields required to persist a CallbackRequest.
func (c *CallbackRequest) Validate() error {
	if err := ValidatePhone(c.CustomerPhone); err != nil {
		return err
	}
	if c.Name == "" {
		return ErrEmptyRecordName
	}
	if c.Mobile == "" {
		return ErrEmptyRecordMobile
	}
	return nil
}

// ServiceRequest is created when the service chain or Flow completes.
type ServiceRequest struct {
	ID               string    `json:"id"`
	CustomerPhone    string    `json:"customer_phone"`
	Name             string    `json:"name"`
	Mobile           string    `json:"mobile"`
	Address          string    `json:"address,omitempty"`
	IssueDescription string    `json:"issue_description"`
	Source           string    `json:"source"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the minimal fields required to persist a ServiceRequest.
func (s *ServiceRequest) Validate() error {
	if err := ValidatePhone(s.CustomerPhone); err != nil {
		return err
	}
	if s.Name == "" {
		return ErrEmptyRecordName
	}
	if s.Mobile == "" {
		return ErrEmptyRecordMobile
	}
	if s.IssueDescription == "" {
		return ErrEmptyIssueDetail
	}
	return nil
}

// PriceEstimate is created when the price-estimate Flow completes.
type PriceEstimate struct {
	ID            string    `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	Name          string    `json:"name"`
	Mobile        string    `json:"mobile"`
	MonthlyBill   string    `json:"monthly_bill,omitempty"`
	RoofArea      string    `json:"roof_area,omitempty"`
	Location      string    `json:"location,omitempty"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the minimal fields required to persist a PriceEstimate.
func (p *PriceEstimate) Validate() error {
	if err := ValidatePhone(p.CustomerPhone); err != nil {
		return err
	}
	if p.Name == "" {
		return ErrEmptyRecordName
	}
	if p.Mobile == "" {
		return ErrEmptyRecordMobile
	}
	return nil
}

// OtherIssue is created when the free-form issue chain completes.
type OtherIssue struct {
	ID            string    `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	Mobile        string    `json:"mobile,omitempty"`
	Description   string    `json:"description"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the minimal fields required to persist an OtherIssue.
func (o *OtherIssue) Validate() error {
	if err := ValidatePhone(o.CustomerPhone); err != nil {
		return err
	}
	if o.Description == "" {
		return ErrEmptyIssueDetail
	}
	return nil
}

// FormSubmission is the raw field dump stored alongside every completed form,
// kept for analytics and debugging independent of the typed records.
type FormSubmission struct {
	ID            string    `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	FormType      string    `json:"form_type"`
	PayloadJSON   string    `json:"payload_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// Event is an analytics/status marker (form_submitted, flow_submitted,
// website_visit_requested, ...).
type Event struct {
	ID            string    `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	EventType     string    `json:"event_type"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Well-known event types.
const (
	EventFormSubmitted    = "form_submitted"
	EventFlowSubmitted    = "flow_submitted"
	EventWebsiteRequested = "website_visit_requested"
)
