package conversation

import "github.com/sungrid/leadflow/internal/models"

// flowTriggers maps button ids that launch an encrypted Flow instead of
// advancing the conversation. The last two are legacy ids kept for customers
// holding old menu messages.
var flowTriggers = map[string]models.FlowKind{
	"start_survey":      models.FlowKindSurvey,
	"book_callback":     models.FlowKindCallback,
	"why_trust_us":      models.FlowKindTrust,
	"check_eligibility": models.FlowKindEligibility,
	"get_price":         models.FlowKindPrice,
	"book_service":      models.FlowKindService,
}

// textStepSuccessors fixes the order of the free-text collection chains. Each
// text step accepts any non-empty text and advances to its successor; the
// final link of every chain is a completion step.
var textStepSuccessors = map[models.Step]models.Step{
	models.StepSurveyName:    models.StepSurveyMobile,
	models.StepSurveyMobile:  models.StepSurveyAddress,
	models.StepSurveyAddress: models.StepSurveyVillage,
	models.StepSurveyVillage: models.StepSurveyDate,
	models.StepSurveyDate:    models.StepSurveyTime,
	models.StepSurveyTime:    models.StepSurveyComplete,

	models.StepCallbackName:   models.StepCallbackMobile,
	models.StepCallbackMobile: models.StepCallbackTime,
	models.StepCallbackTime:   models.StepCallbackComplete,

	models.StepServiceName:    models.StepServiceMobile,
	models.StepServiceMobile:  models.StepServiceAddress,
	models.StepServiceAddress: models.StepServiceIssue,
	models.StepServiceIssue:   models.StepServiceComplete,

	models.StepIssueDescription: models.StepIssueMobile,
	models.StepIssueMobile:      models.StepIssueComplete,
}

// websiteShortcuts are the free-text aliases that jump straight to the
// website completion from the entry step.
var websiteShortcuts = map[string]bool{
	"w":       true,
	"website": true,
	"वेबसाइट": true,
}
