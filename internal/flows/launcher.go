package flows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sungrid/leadflow/internal/messaging"
	"github.com/sungrid/leadflow/internal/models"
)

// launchCopy holds the body and CTA text for one flow kind in one language.
type launchCopy struct {
	body string
	cta  string
}

// launchMessages is the fixed launch copy per kind and language. Unknown
// languages fall back to English.
var launchMessages = map[models.FlowKind]map[models.Language]launchCopy{
	models.FlowKindSurvey: {
		models.LanguageEnglish: {body: "Book a free site survey and our engineer will visit you.", cta: "Book survey"},
		models.LanguageHindi:   {body: "मुफ़्त साइट सर्वे बुक करें, हमारे इंजीनियर आपके पास आएंगे।", cta: "सर्वे बुक करें"},
	},
	models.FlowKindPrice: {
		models.LanguageEnglish: {body: "Get a solar price estimate for your home in two minutes.", cta: "Get estimate"},
		models.LanguageHindi:   {body: "दो मिनट में अपने घर के लिए सोलर का अनुमानित मूल्य पाएं।", cta: "अनुमान पाएं"},
	},
	models.FlowKindService: {
		models.LanguageEnglish: {body: "Report a problem with your installation and we will schedule a visit.", cta: "Report issue"},
		models.LanguageHindi:   {body: "अपने इंस्टॉलेशन की समस्या बताएं, हम विज़िट तय करेंगे।", cta: "समस्या बताएं"},
	},
	models.FlowKindCallback: {
		models.LanguageEnglish: {body: "Request a callback and our team will phone you at your preferred time.", cta: "Request callback"},
		models.LanguageHindi:   {body: "कॉलबैक का अनुरोध करें, हमारी टीम आपके पसंदीदा समय पर फोन करेगी।", cta: "कॉलबैक मांगें"},
	},
	models.FlowKindTrust: {
		models.LanguageEnglish: {body: "See why thousands of households trust us with their rooftop solar.", cta: "Learn more"},
		models.LanguageHindi:   {body: "जानें हज़ारों परिवार हम पर क्यों भरोसा करते हैं।", cta: "और जानें"},
	},
	models.FlowKindEligibility: {
		models.LanguageEnglish: {body: "Check if your home qualifies for the rooftop solar subsidy.", cta: "Check eligibility"},
		models.LanguageHindi:   {body: "जांचें कि आपका घर सोलर सब्सिडी के योग्य है या नहीं।", cta: "योग्यता जांचें"},
	},
}

// Launcher starts encrypted Flows through the messaging service. It
// implements conversation.FlowLauncher.
type Launcher struct {
	svc     messaging.Service
	flowIDs map[models.FlowKind]string
}

// NewLauncher creates a Launcher. flowIDs maps each kind to its Meta flow id;
// kinds without an id cannot be launched.
func NewLauncher(svc messaging.Service, flowIDs map[models.FlowKind]string) *Launcher {
	return &Launcher{svc: svc, flowIDs: flowIDs}
}

// LaunchFlow mints a flow token and sends the launch message for kind.
func (l *Launcher) LaunchFlow(ctx context.Context, phone string, kind models.FlowKind, lang models.Language) error {
	flowID := l.flowIDs[kind]
	if flowID == "" {
		return fmt.Errorf("no flow id configured for %s", kind)
	}

	copySet, ok := launchMessages[kind]
	if !ok {
		return fmt.Errorf("no launch copy for flow %s", kind)
	}
	msg, ok := copySet[lang]
	if !ok {
		msg = copySet[models.LanguageEnglish]
	}

	token := EncodeToken(phone, kind)
	result, err := l.svc.SendFlow(ctx, phone, flowID, msg.body, msg.cta, token)
	if err != nil {
		return fmt.Errorf("sending %s flow: %w", kind, err)
	}
	slog.Debug("flow launch sent", "kind", kind, "phone", phone, "message_id", result.MessageID)
	return nil
}
