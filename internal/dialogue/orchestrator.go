// Package dialogue implements the per-user conversation state machine that
// routes each message to a grounding handler, calls the language model and
// escalates persistent failures to a human operator.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/cyberdesk/internal/classifier"
	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/llm"
	"github.com/ashureev/cyberdesk/internal/observability"
	"github.com/ashureev/cyberdesk/internal/state"
)

// ErrExternal wraps failures of a collaborator (model, lookup service,
// document store) that abort the current turn.
var ErrExternal = errors.New("dialogue: external service failure")

func external(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternal, what, err)
}

// Config holds the thresholds and document names of the orchestrator.
type Config struct {
	// FailureThreshold is the number of consecutive "not resolved" messages
	// that escalates the user to an operator.
	FailureThreshold int
	// ForceClearAfter empties the topic buffer once a topic has been
	// classified this many times in a row.
	ForceClearAfter int
	// HistoryLimit bounds the conversation messages folded into the prompt.
	HistoryLimit int

	MalwareGuide    string
	PresentationDoc string
	Instructions    string
	Sampling        llm.Request
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 2,
		ForceClearAfter:  5,
		HistoryLimit:     20,
		MalwareGuide:     "interceptx_malware_guide.json",
		PresentationDoc:  "presentazione.txt",
		Instructions:     BotInstructions,
		Sampling:         llm.Request{}.WithDefaults(),
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Classifier    *classifier.Classifier
	Conversations *state.ConversationStore
	Contexts      *state.ContextStore
	FollowUps     *state.FollowUpQueue
	LLM           llm.Completer
	Leaks         LeakChecker
	Reputation    ReputationChecker
	Quality       QualityChecker
	Resolver      Resolver
	Knowledge     KnowledgeSearcher
	Documents     DocumentReader
	Logger        *slog.Logger
}

// Turn is the outcome of one processed message.
type Turn struct {
	// Response is ready for the chat widget (newlines rendered as <br>).
	Response  string
	Escalated bool
	Topic     domain.Topic
}

// Orchestrator processes chat turns. Turns for the same user are serialized;
// different users proceed in parallel.
type Orchestrator struct {
	cfg        Config
	classifier *classifier.Classifier
	rules      *classifier.Rules
	convs      *state.ConversationStore
	contexts   *state.ContextStore
	followups  *state.FollowUpQueue
	llm        llm.Completer
	leaks      LeakChecker
	reputation ReputationChecker
	quality    QualityChecker
	resolver   Resolver
	kb         KnowledgeSearcher
	docs       DocumentReader
	locks      *state.KeyLocks
	logger     *slog.Logger
}

// New wires an Orchestrator. Zero config fields take DefaultConfig values.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Classifier == nil || deps.Conversations == nil || deps.Contexts == nil || deps.FollowUps == nil {
		return nil, errors.New("dialogue: classifier and state stores are required")
	}
	if deps.LLM == nil || deps.Leaks == nil || deps.Reputation == nil || deps.Quality == nil ||
		deps.Resolver == nil || deps.Knowledge == nil || deps.Documents == nil {
		return nil, errors.New("dialogue: all external collaborators are required")
	}

	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ForceClearAfter <= 0 {
		cfg.ForceClearAfter = def.ForceClearAfter
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.MalwareGuide == "" {
		cfg.MalwareGuide = def.MalwareGuide
	}
	if cfg.PresentationDoc == "" {
		cfg.PresentationDoc = def.PresentationDoc
	}
	if cfg.Instructions == "" {
		cfg.Instructions = def.Instructions
	}
	cfg.Sampling = cfg.Sampling.WithDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		cfg:        cfg,
		classifier: deps.Classifier,
		rules:      deps.Classifier.Rules(),
		convs:      deps.Conversations,
		contexts:   deps.Contexts,
		followups:  deps.FollowUps,
		llm:        deps.LLM,
		leaks:      deps.Leaks,
		reputation: deps.Reputation,
		quality:    deps.Quality,
		resolver:   deps.Resolver,
		kb:         deps.Knowledge,
		docs:       deps.Documents,
		locks:      state.NewKeyLocks(),
		logger:     logger.With("component", "dialogue"),
	}, nil
}

// ProcessTurn handles one message from user and returns the reply.
//
// Presentation requests are answered directly and not recorded. Assistance
// requests and topic changes are recorded and answered with fixed texts.
// Every other message is classified, grounded by its topic handler, sent to
// the model and checked against the escalation policy.
func (o *Orchestrator) ProcessTurn(ctx context.Context, user, message string) (*Turn, error) {
	user = domain.NormalizeUser(user)
	unlock := o.locks.Lock(user)
	defer unlock()

	log := observability.LoggerFromContext(ctx).With("user", user)

	if o.rules.IsPresentation(message) {
		log.Debug("presentation requested")
		return &Turn{Response: RenderHTML(o.presentation())}, nil
	}

	o.record(ctx, log, user, message, true)

	if o.rules.IsAssistanceRequest(message) {
		return o.assistanceTurn(ctx, log, user, message), nil
	}

	if o.rules.IsChangeTopic(message) {
		log.Info("topic change requested")
		o.contexts.Clear(user)
		o.record(ctx, log, user, MsgChangeTopic, false)
		return &Turn{Response: RenderHTML(MsgChangeTopic)}, nil
	}

	previous, hadContext := o.contexts.Context(user)
	result := o.classifier.Classify(message)
	topic := result.Topic
	log = log.With("topic", topic.String())
	log.Debug("message classified", "rule_topic", result.RuleTopic.String(), "source", string(result.Source), "long", result.Long)

	if topic == domain.TopicAssistance {
		return o.assistanceTurn(ctx, log, user, message), nil
	}

	current := o.contexts.SetContext(user, topic)
	if hadContext && previous.Topic != topic {
		o.contexts.ClearMessages(user)
	}
	if current.Occurrences() >= o.cfg.ForceClearAfter {
		log.Debug("topic buffer force-cleared", "occurrences", current.Occurrences())
		o.contexts.ResetRepeats(user)
	}

	handled, err := o.dispatch(ctx, topic, message)
	if err != nil {
		log.Error("topic handler failed", "error", err)
		return nil, err
	}
	if handled.final {
		o.contexts.AddMessage(user, handled.context)
		o.record(ctx, log, user, handled.context, false)
		return &Turn{Response: RenderHTML(handled.context), Topic: topic}, nil
	}
	o.contexts.AddMessage(user, handled.context)

	topicCtx, _ := o.contexts.Context(user)
	prompt := BuildPrompt(o.cfg.Instructions, topic, o.convs.Recent(user, o.cfg.HistoryLimit), topicCtx.Messages)

	req := o.cfg.Sampling
	req.Prompt = prompt
	answer, err := o.llm.Complete(ctx, req)
	if err != nil {
		log.Error("completion failed", "error", err)
		return nil, external("completion", err)
	}
	response := StripSimulatedTurns(answer, o.rules.SimulatedTurnMarkers)
	if response == "" {
		response = MsgEmptyAnswer
	}

	escalated := false
	if o.rules.IsUnresolved(message) {
		failures := o.convs.IncrementFailedAttempts(user)
		log.Info("unresolved issue reported", "failed_attempts", failures)
		if failures >= o.cfg.FailureThreshold {
			if !o.followups.Contains(user) {
				if err := o.followups.Add(ctx, user, message); err != nil {
					log.Error("follow-up persistence failed", "error", err)
				}
			}
			response = MsgEscalation
			o.convs.ResetFailedAttempts(user)
			o.contexts.Clear(user)
			escalated = true
			log.Info("user escalated to operator")
		} else {
			response += "\n\n" + fmt.Sprintf(msgAttemptFormat, failures)
		}
	} else {
		o.convs.ResetFailedAttempts(user)
	}

	o.record(ctx, log, user, response, false)
	o.contexts.AddMessage(user, response)

	return &Turn{Response: RenderHTML(response), Escalated: escalated, Topic: topic}, nil
}

func (o *Orchestrator) assistanceTurn(ctx context.Context, log *slog.Logger, user, message string) *Turn {
	response := MsgAssistanceRepeated
	escalated := false
	if !o.followups.Contains(user) {
		if err := o.followups.Add(ctx, user, message); err != nil {
			log.Error("follow-up persistence failed", "error", err)
		}
		response = MsgAssistanceRegistered
		escalated = true
	}
	log.Info("assistance requested", "new_request", escalated)
	o.record(ctx, log, user, response, false)
	return &Turn{Response: RenderHTML(response), Escalated: escalated, Topic: domain.TopicAssistance}
}

// record appends to the conversation log. Persistence failures are logged
// and the in-memory log keeps the message.
func (o *Orchestrator) record(ctx context.Context, log *slog.Logger, user, text string, isUser bool) {
	if _, err := o.convs.AddMessage(ctx, user, text, isUser); err != nil {
		log.Error("conversation persistence failed", "error", err, "is_user", isUser)
	}
}

// FollowUpList returns the users waiting for an operator, in queue order.
func (o *Orchestrator) FollowUpList() []string {
	return o.followups.Names()
}

// FollowUpEntries returns the full queue entries.
func (o *Orchestrator) FollowUpEntries() []domain.FollowUpEntry {
	return o.followups.Entries()
}

// RemoveFromFollowUp drops user from the queue and deletes their
// conversation and topic context.
func (o *Orchestrator) RemoveFromFollowUp(ctx context.Context, user string) (string, error) {
	user = domain.NormalizeUser(user)
	unlock := o.locks.Lock(user)
	defer unlock()

	// Every step runs so a persistence failure never leaves the user half
	// removed in memory.
	var errs []error
	if err := o.followups.Remove(ctx, user); err != nil {
		errs = append(errs, fmt.Errorf("remove follow-up: %w", err))
	}
	if err := o.convs.Clear(ctx, user); err != nil {
		errs = append(errs, fmt.Errorf("clear conversation: %w", err))
	}
	o.contexts.Clear(user)
	if err := errors.Join(errs...); err != nil {
		o.logger.Error("follow-up removal not persisted", "user", user, "error", err)
		return "", err
	}
	o.logger.Info("user removed from follow-up", "user", user)
	return fmt.Sprintf(msgRemovedFormat, user), nil
}

// FailedAttempts exposes the raw failure counters for debugging.
func (o *Orchestrator) FailedAttempts() map[string]int {
	return o.convs.FailedAttemptsSnapshot()
}

// Conversation returns user's full log.
func (o *Orchestrator) Conversation(user string) []domain.Message {
	return o.convs.Conversation(domain.NormalizeUser(user))
}

// TopicContext returns user's current topic context.
func (o *Orchestrator) TopicContext(user string) (domain.TopicContext, bool) {
	return o.contexts.Context(domain.NormalizeUser(user))
}
