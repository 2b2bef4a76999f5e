package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ashureev/cyberdesk/internal/classifier"
	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/knowledge"
	"github.com/ashureev/cyberdesk/internal/lookup"
	"github.com/ashureev/cyberdesk/internal/observability"
)

// LeakChecker looks up an email address in breach data.
type LeakChecker interface {
	CheckEmail(ctx context.Context, email string) (json.RawMessage, error)
}

// ReputationChecker returns the reputation record of an IP address.
type ReputationChecker interface {
	CheckIP(ctx context.Context, ip string) (json.RawMessage, error)
}

// QualityChecker returns the extended quality score of an IP address.
type QualityChecker interface {
	CheckQuality(ctx context.Context, target string) (json.RawMessage, error)
}

// Resolver maps a host name to an IP address.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// KnowledgeSearcher finds knowledge-base entries relevant to a query.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Entry, error)
}

// DocumentReader reads static documents.
type DocumentReader interface {
	ReadText(name string) (string, error)
	PrettyJSON(name string) (string, error)
}

// handlerResult is the grounding context produced for one turn. A final
// result is returned to the user as is, without calling the model.
type handlerResult struct {
	context string
	final   bool
}

func (o *Orchestrator) dispatch(ctx context.Context, topic domain.Topic, message string) (handlerResult, error) {
	switch topic {
	case domain.TopicIPURLCheck, domain.TopicIPURLQualityCheck:
		return o.handleIPURL(ctx, topic, message)
	case domain.TopicEmailCheck:
		return o.handleEmail(ctx, message)
	case domain.TopicMalware:
		return o.handleMalware()
	default:
		return o.handleKnowledge(ctx, message), nil
	}
}

func (o *Orchestrator) handleIPURL(ctx context.Context, topic domain.Topic, message string) (handlerResult, error) {
	var ip, source string
	if raw := classifier.FirstURL(message); raw != "" {
		host := raw
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
		resolved, err := o.resolver.Resolve(ctx, host)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("url resolution failed", "url", raw, "error", err)
			return handlerResult{context: fmt.Sprintf(msgUnresolvedFormat, raw)}, nil
		}
		ip, source = resolved, raw
	} else {
		ip = classifier.FirstIPv4(message)
	}
	if ip == "" {
		return handlerResult{context: MsgNoIPOrURL}, nil
	}

	var (
		report json.RawMessage
		err    error
	)
	if topic == domain.TopicIPURLQualityCheck {
		report, err = o.quality.CheckQuality(ctx, ip)
		if errors.Is(err, lookup.ErrNoResult) {
			return handlerResult{context: fmt.Sprintf(msgNoQualityFormat, ip)}, nil
		}
	} else {
		report, err = o.reputation.CheckIP(ctx, ip)
	}
	if err != nil {
		return handlerResult{}, external("reputation lookup", err)
	}

	pretty := indentJSON(report)
	if source != "" {
		return handlerResult{context: fmt.Sprintf(ctxIPFromURL, ip, source, pretty)}, nil
	}
	return handlerResult{context: fmt.Sprintf(ctxIPFormat, ip, pretty)}, nil
}

func (o *Orchestrator) handleEmail(ctx context.Context, message string) (handlerResult, error) {
	email := classifier.FirstEmail(message)
	if email == "" {
		return handlerResult{context: MsgNoEmail, final: true}, nil
	}
	raw, err := o.leaks.CheckEmail(ctx, email)
	if err != nil {
		return handlerResult{}, external("leak check", err)
	}
	return handlerResult{context: fmt.Sprintf(ctxLeakFormat, email, FormatLeakResult(raw, email))}, nil
}

func (o *Orchestrator) handleMalware() (handlerResult, error) {
	guide, err := o.docs.PrettyJSON(o.cfg.MalwareGuide)
	if err != nil {
		return handlerResult{}, external("malware guide", err)
	}
	return handlerResult{context: ctxMalwarePrefix + guide}, nil
}

func (o *Orchestrator) handleKnowledge(ctx context.Context, message string) handlerResult {
	entries, err := o.kb.Search(ctx, message)
	if err != nil {
		// The model can still answer from the conversation alone.
		observability.LoggerFromContext(ctx).Warn("knowledge search failed", "error", err)
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.String())
	}
	return handlerResult{context: ctxKnowledge + strings.Join(lines, "\n")}
}

func (o *Orchestrator) presentation() string {
	text, err := o.docs.ReadText(o.cfg.PresentationDoc)
	if err != nil {
		if !errors.Is(err, knowledge.ErrDocumentNotFound) {
			o.logger.Warn("presentation document unreadable", "error", err)
		}
		return DefaultPresentation
	}
	if text = strings.TrimSpace(text); text == "" {
		return DefaultPresentation
	}
	return text
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
