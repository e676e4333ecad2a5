// Package conversation implements the template-driven campaign state machine
// that turns inbound WhatsApp messages into replies and business records.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sungrid/leadflow/internal/models"
	"github.com/sungrid/leadflow/internal/store"
)

// FlowLauncher starts an encrypted WhatsApp Flow for a customer. Implemented
// by flows.Launcher.
type FlowLauncher interface {
	LaunchFlow(ctx context.Context, phone string, kind models.FlowKind, lang models.Language) error
}

// Engine drives the conversation state machine. It owns no transport; callers
// deliver the Template carried on each Result.
type Engine struct {
	store    store.Store
	launcher FlowLauncher
}

// NewEngine creates a conversation engine.
func NewEngine(st store.Store, launcher FlowLauncher) *Engine {
	return &Engine{store: st, launcher: launcher}
}

// HandleIncomingMessage processes one inbound message and returns what to
// send back. Collaborator failures return an error with ShouldSend false; the
// engine never partially applies a transition.
func (e *Engine) HandleIncomingMessage(ctx context.Context, msg models.IncomingMessage) (Result, error) {
	slog.Debug("Engine HandleIncomingMessage invoked", "phone", msg.CustomerPhone, "type", msg.MessageType)

	if err := msg.Validate(); err != nil {
		slog.Error("Engine HandleIncomingMessage invalid message", "phone", msg.CustomerPhone, "error", err)
		return Result{}, err
	}

	e.logInbound(msg)

	// Flow trigger buttons bypass the state machine entirely.
	if msg.MessageType == models.MessageTypeButton {
		if kind, ok := flowTriggers[msg.ButtonID]; ok {
			return e.launchFlow(ctx, msg, kind)
		}
	}

	state, err := e.store.GetConversationState(msg.CustomerPhone)
	if err != nil {
		slog.Error("Engine state lookup failed", "phone", msg.CustomerPhone, "error", err)
		return Result{}, fmt.Errorf("loading conversation state: %w", err)
	}

	if state == nil {
		return e.startFresh(msg.CustomerPhone, msg.CustomerName)
	}

	// A finished conversation absorbs further input: the state is reset so
	// the next message starts over, but nothing is sent. Webhook redeliveries
	// land here instead of producing duplicate records.
	if state.CompleteSent {
		slog.Debug("Engine resetting completed conversation", "phone", msg.CustomerPhone, "step", state.CurrentStep)
		if err := e.recreateState(msg.CustomerPhone, msg.CustomerName); err != nil {
			return Result{}, err
		}
		return Result{ShouldSend: false, Restarted: true, RestartReason: RestartConversationComplete}, nil
	}

	switch {
	case state.CurrentStep == models.StepCampaignEntry:
		return e.handleEntryStep(state, msg)
	case textStepSuccessors[state.CurrentStep] != "":
		return e.handleTextStep(state, msg)
	default:
		return e.handleTemplateStep(state, msg)
	}
}

// StartNewConversation discards any existing conversation for phone and
// serves the entry template. Used by the outbound campaign API.
func (e *Engine) StartNewConversation(ctx context.Context, phone, name string) (Result, error) {
	slog.Debug("Engine StartNewConversation invoked", "phone", phone)
	if err := models.ValidatePhone(phone); err != nil {
		return Result{}, err
	}
	if err := e.store.DeleteConversationState(phone); err != nil {
		slog.Error("Engine StartNewConversation delete failed", "phone", phone, "error", err)
		return Result{}, fmt.Errorf("clearing conversation state: %w", err)
	}
	return e.startFresh(phone, name)
}

// launchFlow handles a flow trigger button. On success the conversation state
// is dropped; the Flow runtime owns the customer until its terminal message.
func (e *Engine) launchFlow(ctx context.Context, msg models.IncomingMessage, kind models.FlowKind) (Result, error) {
	lang := models.LanguageEnglish
	if state, err := e.store.GetConversationState(msg.CustomerPhone); err == nil && state != nil && state.Language != "" {
		lang = state.Language
	}

	if err := e.launcher.LaunchFlow(ctx, msg.CustomerPhone, kind, lang); err != nil {
		slog.Error("Engine flow launch failed", "phone", msg.CustomerPhone, "kind", kind, "error", err)
		return Result{IsFlow: true}, fmt.Errorf("launching %s flow: %w", kind, err)
	}

	if err := e.store.DeleteConversationState(msg.CustomerPhone); err != nil {
		slog.Warn("Engine state delete after flow launch failed", "phone", msg.CustomerPhone, "error", err)
	}
	slog.Info("Engine flow launched", "phone", msg.CustomerPhone, "kind", kind, "language", lang)
	return Result{IsFlow: true, FlowSent: true}, nil
}

// handleEntryStep accepts only the language buttons and the website shortcut.
func (e *Engine) handleEntryStep(state *models.ConversationState, msg models.IncomingMessage) (Result, error) {
	if content := strings.ToLower(strings.TrimSpace(msg.Content)); websiteShortcuts[content] {
		answer := models.Answer{Text: msg.Content}
		return e.advance(state, models.StepWebsiteComplete, answer)
	}

	if msg.MessageType == models.MessageTypeButton {
		switch msg.ButtonID {
		case models.ButtonHindi:
			state.Language = models.LanguageHindi
		case models.ButtonEnglish:
			state.Language = models.LanguageEnglish
		default:
			return e.restart(state.CustomerPhone, state.CustomerName, RestartUnknownButton)
		}
		answer := models.Answer{ButtonID: msg.ButtonID, ButtonTitle: msg.ButtonTitle}
		return e.advance(state, models.StepMainMenu, answer)
	}

	reason := RestartUnexpectedText
	if msg.MessageType == models.MessageTypeList {
		reason = RestartUnknownListItem
	}
	return e.restart(state.CustomerPhone, state.CustomerName, reason)
}

// handleTextStep records a free-text answer and advances along the chain.
func (e *Engine) handleTextStep(state *models.ConversationState, msg models.IncomingMessage) (Result, error) {
	if msg.MessageType != models.MessageTypeText || strings.TrimSpace(msg.Content) == "" {
		reason := RestartUnknownButton
		if msg.MessageType == models.MessageTypeList {
			reason = RestartUnknownListItem
		} else if msg.MessageType == models.MessageTypeText {
			reason = RestartUnexpectedText
		}
		return e.restart(state.CustomerPhone, state.CustomerName, reason)
	}

	next := textStepSuccessors[state.CurrentStep]
	return e.advance(state, next, models.Answer{Text: msg.Content})
}

// handleTemplateStep resolves button and list selections against the current
// step's template. Selections the template does not declare restart the
// conversation.
func (e *Engine) handleTemplateStep(state *models.ConversationState, msg models.IncomingMessage) (Result, error) {
	// The help shortcut works from the main menu regardless of template data.
	if state.CurrentStep == models.StepMainMenu && msg.MessageType == models.MessageTypeButton && msg.ButtonID == models.ButtonHelp {
		answer := models.Answer{ButtonID: msg.ButtonID, ButtonTitle: msg.ButtonTitle}
		return e.advance(state, models.StepHelpSubmenu, answer)
	}

	var selectedID string
	var answer models.Answer
	var mismatch RestartReason
	switch msg.MessageType {
	case models.MessageTypeButton:
		selectedID = msg.ButtonID
		answer = models.Answer{ButtonID: msg.ButtonID, ButtonTitle: msg.ButtonTitle}
		mismatch = RestartUnknownButton
	case models.MessageTypeList:
		selectedID = msg.ListItemID
		answer = models.Answer{ItemID: msg.ListItemID, ItemTitle: msg.ListItemTitle}
		mismatch = RestartUnknownListItem
	default:
		return e.restart(state.CustomerPhone, state.CustomerName, RestartUnexpectedText)
	}

	tmpl, err := e.lookupTemplate(state.CurrentStep, state.Language)
	if err != nil {
		return Result{}, err
	}
	if tmpl == nil {
		slog.Warn("Engine no template for current step", "phone", state.CustomerPhone, "step", state.CurrentStep, "language", state.Language)
		return e.restart(state.CustomerPhone, state.CustomerName, RestartUnknownStep)
	}

	next, ok := tmpl.FindOption(selectedID)
	if !ok {
		return e.restart(state.CustomerPhone, state.CustomerName, mismatch)
	}
	if next == "" {
		// Option declares no next step: stay put and resend the current
		// template.
		slog.Debug("Engine option without next step", "phone", state.CustomerPhone, "step", state.CurrentStep, "option", selectedID)
		return Result{ShouldSend: true, Template: tmpl}, nil
	}
	return e.advance(state, next, answer)
}

// advance applies the single transition for this message: record the answer,
// move to next, run completion side effects when next is terminal, persist,
// and serve next's template.
func (e *Engine) advance(state *models.ConversationState, next models.Step, answer models.Answer) (Result, error) {
	if state.Context == nil {
		state.Context = make(map[models.Step]models.Answer)
	}
	state.Context[state.CurrentStep] = answer
	state.CurrentStep = next
	state.LastMessageAt = time.Now()

	if models.IsCompletionStep(next) {
		e.runCompletionSideEffects(state)
		state.CompleteSent = true
	}

	if err := e.store.SaveConversationState(*state); err != nil {
		slog.Error("Engine state save failed", "phone", state.CustomerPhone, "step", next, "error", err)
		return Result{}, fmt.Errorf("saving conversation state: %w", err)
	}
	slog.Debug("Engine advanced", "phone", state.CustomerPhone, "step", next)

	tmpl, err := e.lookupTemplate(next, state.Language)
	if err != nil {
		return Result{}, err
	}
	if tmpl == nil {
		if models.IsCompletionStep(next) {
			// The record is already persisted; a missing closing message is
			// not worth discarding the completed state over.
			slog.Warn("Engine missing completion template", "phone", state.CustomerPhone, "step", next, "language", state.Language)
			return Result{ShouldSend: false}, nil
		}
		return e.restart(state.CustomerPhone, state.CustomerName, RestartMissingTemplate)
	}
	return Result{ShouldSend: true, Template: tmpl}, nil
}

// restart discards the conversation, recreates it at the entry step with
// language unset, and serves the entry template.
func (e *Engine) restart(phone, name string, reason RestartReason) (Result, error) {
	slog.Info("Engine restarting conversation", "phone", phone, "reason", reason)
	if err := e.recreateState(phone, name); err != nil {
		return Result{}, err
	}

	tmpl, err := e.lookupTemplate(models.StepCampaignEntry, "")
	if err != nil {
		return Result{}, err
	}
	res := Result{Restarted: true, RestartReason: reason}
	if tmpl == nil {
		slog.Warn("Engine missing entry template on restart", "phone", phone)
		return res, nil
	}
	res.ShouldSend = true
	res.Template = tmpl
	return res, nil
}

// startFresh creates a new conversation at the entry step and serves the
// entry template without consuming a transition.
func (e *Engine) startFresh(phone, name string) (Result, error) {
	if err := e.recreateState(phone, name); err != nil {
		return Result{}, err
	}
	tmpl, err := e.lookupTemplate(models.StepCampaignEntry, "")
	if err != nil {
		return Result{}, err
	}
	if tmpl == nil {
		slog.Warn("Engine missing entry template", "phone", phone)
		return Result{ShouldSend: false}, nil
	}
	return Result{ShouldSend: true, Template: tmpl}, nil
}

// recreateState replaces any stored state with a fresh one at campaign_entry.
func (e *Engine) recreateState(phone, name string) error {
	if err := e.store.DeleteConversationState(phone); err != nil {
		slog.Error("Engine state delete failed", "phone", phone, "error", err)
		return fmt.Errorf("deleting conversation state: %w", err)
	}
	now := time.Now()
	state := models.ConversationState{
		CustomerPhone: phone,
		CustomerName:  name,
		FlowType:      models.FlowTypeCampaign,
		CurrentStep:   models.StepCampaignEntry,
		Context:       make(map[models.Step]models.Answer),
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := e.store.SaveConversationState(state); err != nil {
		slog.Error("Engine state create failed", "phone", phone, "error", err)
		return fmt.Errorf("creating conversation state: %w", err)
	}
	return nil
}

// lookupTemplate fetches the campaign template for a step. Language defaults
// to English when the conversation has not chosen one yet.
func (e *Engine) lookupTemplate(step models.Step, lang models.Language) (*models.MessageTemplate, error) {
	if lang == "" {
		lang = models.LanguageEnglish
	}
	tmpl, err := e.store.GetTemplate(models.FlowTypeCampaign, lang, step)
	if err != nil {
		slog.Error("Engine template lookup failed", "step", step, "language", lang, "error", err)
		return nil, fmt.Errorf("loading template %s/%s: %w", step, lang, err)
	}
	return tmpl, nil
}

// logInbound appends the inbound message to the transcript. Failures are
// logged and swallowed; the transcript is best effort.
func (e *Engine) logInbound(msg models.IncomingMessage) {
	content := msg.Content
	if content == "" {
		if msg.ButtonID != "" {
			content = msg.ButtonID
		} else if msg.ListItemID != "" {
			content = msg.ListItemID
		}
	}
	entry := models.MessageLog{
		ID:            uuid.NewString(),
		CustomerPhone: msg.CustomerPhone,
		Direction:     models.DirectionInbound,
		MessageType:   msg.MessageType,
		Content:       content,
		CreatedAt:     time.Now(),
	}
	if err := e.store.LogMessage(entry); err != nil {
		slog.Warn("Engine inbound log failed", "phone", msg.CustomerPhone, "error", err)
	}
}
