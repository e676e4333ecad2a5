// Package models defines the encrypted Flow kinds and their fixed tables.
package models

// FlowKind identifies one of the encrypted WhatsApp Flows the assistant can
// launch. Survey, price, service and callback carry a data-exchange endpoint;
// trust and eligibility are launch-only informational flows.
type FlowKind string

const (
	FlowKindSurvey      FlowKind = "survey"
	FlowKindPrice       FlowKind = "price"
	FlowKindService     FlowKind = "service"
	FlowKindCallback    FlowKind = "callback"
	FlowKindTrust       FlowKind = "trust"
	FlowKindEligibility FlowKind = "eligibility"
)

// IsValidFlowKind checks if the given flow kind is supported.
func IsValidFlowKind(k FlowKind) bool {
	switch k {
	case FlowKindSurvey, FlowKindPrice, FlowKindService, FlowKindCallback, FlowKindTrust, FlowKindEligibility:
		return true
	default:
		return false
	}
}

// HasDataExchange reports whether the kind submits data back through the
// encrypted data-exchange endpoint.
func (k FlowKind) HasDataExchange() bool {
	switch k {
	case FlowKindSurvey, FlowKindPrice, FlowKindService, FlowKindCallback:
		return true
	default:
		return false
	}
}
