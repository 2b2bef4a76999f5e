// Package classifier maps free-text messages to dialogue topics.
//
// Classification is driven by an ordered rule table whose phrase lists come
// from a YAML document (embedded defaults, optionally overridden on disk).
// An optional statistical Strategy can refine the rule-based label.
package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// DefaultLongMessageWords is the word count above which a message is long.
const DefaultLongMessageWords = 30

// Rules holds the phrase tables used by the classifier and the dialogue fast paths.
type Rules struct {
	LongMessageWords     int      `yaml:"long_message_words"`
	Presentation         []string `yaml:"presentation"`
	Assistance           []string `yaml:"assistance"`
	ChangeTopic          []string `yaml:"change_topic"`
	QualityCheck         []string `yaml:"quality_check"`
	Malware              []string `yaml:"malware"`
	EmailKeywords        []string `yaml:"email_keywords"`
	EmailExclusions      []string `yaml:"email_exclusions"`
	Unresolved           []string `yaml:"unresolved"`
	SimulatedTurnMarkers []string `yaml:"simulated_turn_markers"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic("classifier: embedded rules are invalid: " + err.Error())
	}
	return r
}

// LoadRules reads a YAML rules file. Keys missing from the file keep their
// embedded defaults. An empty path returns the defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	r := DefaultRules()
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	r.normalize()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return r, nil
}

// ParseRules decodes a complete YAML rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	r.normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that every table the dialogue depends on is populated.
func (r *Rules) Validate() error {
	if r.LongMessageWords <= 0 {
		return fmt.Errorf("long_message_words must be > 0")
	}
	required := map[string][]string{
		"assistance":     r.Assistance,
		"malware":        r.Malware,
		"email_keywords": r.EmailKeywords,
		"unresolved":     r.Unresolved,
		"change_topic":   r.ChangeTopic,
	}
	for name, list := range required {
		if len(list) == 0 {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

// normalize lowercases the case-insensitive tables. Simulated turn markers
// are matched verbatim and left untouched.
func (r *Rules) normalize() {
	for _, list := range []*[]string{
		&r.Presentation, &r.Assistance, &r.ChangeTopic, &r.QualityCheck,
		&r.Malware, &r.EmailKeywords, &r.EmailExclusions, &r.Unresolved,
	} {
		out := (*list)[:0]
		for _, p := range *list {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				out = append(out, p)
			}
		}
		*list = out
	}
}

// IsPresentation reports an exact (case-insensitive) "introduce yourself" phrase.
func (r *Rules) IsPresentation(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, p := range r.Presentation {
		if m == p {
			return true
		}
	}
	return false
}

// IsAssistanceRequest reports whether the message asks for a human operator.
func (r *Rules) IsAssistanceRequest(message string) bool {
	return containsAny(strings.ToLower(message), r.Assistance)
}

// IsChangeTopic reports an explicit request to start over.
func (r *Rules) IsChangeTopic(message string) bool {
	return containsAny(strings.ToLower(message), r.ChangeTopic)
}

// IsUnresolved reports whether the user says the problem is still open.
func (r *Rules) IsUnresolved(message string) bool {
	return containsAny(strings.ToLower(message), r.Unresolved)
}

// IsLong reports whether the message exceeds LongMessageWords words.
func (r *Rules) IsLong(message string) bool {
	return len(strings.Fields(message)) > r.LongMessageWords
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
