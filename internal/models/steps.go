// Package models defines the named steps of the campaign conversation.
package models

// Step is a named node in the conversation state machine. Most steps are
// opaque and driven entirely by template next-step declarations; the
// constants below are the ones the engine hard-codes behavior for.
type Step string

const (
	// StepCampaignEntry is the initial step of every conversation; only the
	// language buttons (and the website shortcut) are accepted here.
	StepCampaignEntry Step = "campaign_entry"
	// StepMainMenu is reached after language selection.
	StepMainMenu Step = "main_menu"
	// StepHelpSubmenu is reached via the main menu help option.
	StepHelpSubmenu Step = "help_submenu"
)

// Text-input chain steps. Each chain collects free-text answers in order and
// ends in a completion step.
const (
	StepSurveyName    Step = "survey_name"
	StepSurveyMobile  Step = "survey_mobile"
	StepSurveyAddress Step = "survey_address"
	StepSurveyVillage Step = "survey_village"
	StepSurveyDate    Step = "survey_date"
	StepSurveyTime    Step = "survey_time"

	StepCallbackName   Step = "callback_name"
	StepCallbackMobile Step = "callback_mobile"
	StepCallbackTime   Step = "callback_time"

	StepServiceName    Step = "service_name"
	StepServiceMobile  Step = "service_mobile"
	StepServiceAddress Step = "service_address"
	StepServiceIssue   Step = "service_issue"

	StepIssueDescription Step = "issue_description"
	StepIssueMobile      Step = "issue_mobile"
)

// Completion steps. Entering one triggers the exactly-once creation of the
// chain's business record.
const (
	StepSurveyComplete   Step = "survey_complete"
	StepCallbackComplete Step = "callback_complete"
	StepServiceComplete  Step = "service_complete"
	StepIssueComplete    Step = "issue_complete"
	StepWebsiteComplete  Step = "website_complete"
)

// completionSteps is the fixed set of terminal steps.
var completionSteps = map[Step]bool{
	StepSurveyComplete:   true,
	StepCallbackComplete: true,
	StepServiceComplete:  true,
	StepIssueComplete:    true,
	StepWebsiteComplete:  true,
}

// IsCompletionStep reports whether s is a terminal completion step.
func IsCompletionStep(s Step) bool {
	return completionSteps[s]
}

// Entry button ids hard-coded at the campaign entry step.
const (
	ButtonHindi   = "hindi"
	ButtonEnglish = "english"
	ButtonHelp    = "help"
)

// FlowTypeCampaign is the only conversation flow type currently in use; the
// column exists so additional campaign styles can share the template store.
const FlowTypeCampaign = "campaign"
