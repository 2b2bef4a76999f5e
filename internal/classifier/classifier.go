package classifier

import (
	"log/slog"
	"strings"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// Strategy is a pluggable statistical classifier. Predict reports false when
// it has no opinion about the message.
type Strategy interface {
	Predict(message string) (domain.Topic, bool)
}

// Source names which layer produced a classification.
type Source string

const (
	SourceRules       Source = "rules"
	SourceStatistical Source = "statistical"
	SourceLongMessage Source = "long_message"
)

// Result is the outcome of one classification.
type Result struct {
	Topic     domain.Topic
	RuleTopic domain.Topic
	Long      bool
	Source    Source
}

// rule is one row of the precedence table. Rows are evaluated in order and
// the first match wins.
type rule struct {
	topic    domain.Topic
	skipLong bool
	match    func(r *Rules, lower, raw string) bool
}

var ruleTable = []rule{
	{
		topic: domain.TopicAssistance,
		match: func(r *Rules, lower, _ string) bool { return containsAny(lower, r.Assistance) },
	},
	{
		topic: domain.TopicIPURLQualityCheck,
		match: func(r *Rules, lower, raw string) bool {
			return HasIPOrURL(raw) && containsAny(lower, r.QualityCheck)
		},
	},
	{
		topic: domain.TopicIPURLCheck,
		match: func(_ *Rules, _, raw string) bool { return HasIPOrURL(raw) },
	},
	{
		topic: domain.TopicMalware,
		match: func(r *Rules, lower, _ string) bool { return containsAny(lower, r.Malware) },
	},
	{
		topic:    domain.TopicEmailCheck,
		skipLong: true,
		match: func(r *Rules, lower, raw string) bool {
			if emailPattern.MatchString(raw) {
				return true
			}
			return containsAny(lower, r.EmailKeywords) && !containsAny(lower, r.EmailExclusions)
		},
	},
}

// Classifier combines the rule table with an optional Strategy.
type Classifier struct {
	rules    *Rules
	strategy Strategy
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithStrategy enables the hybrid policy with the given statistical layer.
func WithStrategy(s Strategy) Option {
	return func(c *Classifier) { c.strategy = s }
}

// WithLogger sets the logger used for classification traces.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New returns a Classifier over rules. Nil rules select the embedded defaults.
func New(rules *Rules, opts ...Option) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	c := &Classifier{rules: rules, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the phrase tables backing the classifier.
func (c *Classifier) Rules() *Rules {
	return c.rules
}

// ClassifyRules applies only the precedence table.
func (c *Classifier) ClassifyRules(message string) domain.Topic {
	return c.classifyRules(message, c.rules.IsLong(message))
}

func (c *Classifier) classifyRules(message string, long bool) domain.Topic {
	if strings.TrimSpace(message) == "" {
		return domain.TopicGeneral
	}
	lower := strings.ToLower(message)
	for _, row := range ruleTable {
		if long && row.skipLong {
			continue
		}
		if row.match(c.rules, lower, message) {
			return row.topic
		}
	}
	return domain.TopicGeneral
}

// Classify returns the topic for message.
//
// Without a Strategy the rule table decides. With one, long messages are
// forced to general, a general or absent statistical candidate falls back to
// the rule result, and any other candidate wins.
func (c *Classifier) Classify(message string) Result {
	long := c.rules.IsLong(message)
	ruleTopic := c.classifyRules(message, long)
	res := Result{Topic: ruleTopic, RuleTopic: ruleTopic, Long: long, Source: SourceRules}

	if c.strategy == nil {
		return res
	}
	if long {
		res.Topic = domain.TopicGeneral
		res.Source = SourceLongMessage
		return res
	}
	candidate, ok := c.strategy.Predict(message)
	if !ok || candidate == domain.TopicGeneral || candidate == domain.TopicNone {
		return res
	}
	if candidate != ruleTopic {
		c.logger.Debug("statistical classifier overrides rules",
			"rule_topic", ruleTopic, "statistical_topic", candidate)
	}
	res.Topic = candidate
	res.Source = SourceStatistical
	return res
}
