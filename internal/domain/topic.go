// Package domain defines the core types shared by the dialogue router.
package domain

// Topic routes a message to the handler that produces its grounding context.
type Topic string

const (
	// TopicNone is the zero value: no topic has been classified yet.
	TopicNone Topic = ""
	// TopicAssistance is a request to reach a human operator.
	TopicAssistance Topic = "assistance"
	// TopicIPURLCheck asks for the reputation of an IP address or URL.
	TopicIPURLCheck Topic = "ip_url_check"
	// TopicIPURLQualityCheck asks for the extended (quality) reputation check.
	TopicIPURLQualityCheck Topic = "ip_url_quality_check"
	// TopicMalware covers malware, virus and spyware questions.
	TopicMalware Topic = "malware"
	// TopicEmailCheck asks whether an email address appears in public leaks.
	TopicEmailCheck Topic = "email_check"
	// TopicGeneral falls back to the knowledge base.
	TopicGeneral Topic = "general"
)

var knownTopics = map[Topic]struct{}{
	TopicAssistance:        {},
	TopicIPURLCheck:        {},
	TopicIPURLQualityCheck: {},
	TopicMalware:           {},
	TopicEmailCheck:        {},
	TopicGeneral:           {},
}

// ParseTopic converts a label into a Topic. It reports false for unknown labels.
func ParseTopic(s string) (Topic, bool) {
	t := Topic(s)
	_, ok := knownTopics[t]
	return t, ok
}

// IsIPURL reports whether the topic is one of the reputation lookups.
func (t Topic) IsIPURL() bool {
	return t == TopicIPURLCheck || t == TopicIPURLQualityCheck
}

func (t Topic) String() string {
	if t == TopicNone {
		return "none"
	}
	return string(t)
}
