package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/cyberdesk/internal/classifier"
	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/knowledge"
	"github.com/ashureev/cyberdesk/internal/llm"
	"github.com/ashureev/cyberdesk/internal/state"
)

// echoLLM answers with the grounding section of the prompt so tests can see
// what the handlers produced.
type echoLLM struct {
	mu      sync.Mutex
	prompts []string
	suffix  string
	err     error
}

func (e *echoLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, req.Prompt)
	if e.err != nil {
		return "", e.err
	}
	body := req.Prompt
	if i := strings.Index(body, "Storico della conversazione:\n"); i >= 0 {
		body = body[i+len("Storico della conversazione:\n"):]
	}
	if i := strings.LastIndex(body, "\n\nAssistente: "); i >= 0 {
		body = body[:i]
	}
	// Drop the replayed log so markers in it do not truncate the answer.
	if i := strings.Index(body, "\n\n"); i >= 0 {
		body = body[i+2:]
	}
	return "Risposta.\n" + body + e.suffix, nil
}

func (e *echoLLM) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prompts)
}

func (e *echoLLM) lastPrompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		return ""
	}
	return e.prompts[len(e.prompts)-1]
}

type fakeLookups struct {
	mu         sync.Mutex
	ips        []string
	quality    []string
	emails     []string
	leak       string
	qualityErr error
	resolveErr error
	resolved   string
}

func (f *fakeLookups) CheckEmail(_ context.Context, email string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, email)
	if f.leak == "" {
		return json.RawMessage(`{"status":"ok","message":"No public dataleak on it"}`), nil
	}
	return json.RawMessage(f.leak), nil
}

func (f *fakeLookups) CheckIP(_ context.Context, ip string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ips = append(f.ips, ip)
	return json.RawMessage(`{"success":true,"result":{"ipAddress":"` + ip + `","isBogon":false}}`), nil
}

func (f *fakeLookups) CheckQuality(_ context.Context, target string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quality = append(f.quality, target)
	if f.qualityErr != nil {
		return nil, f.qualityErr
	}
	return json.RawMessage(`{"success":true,"risk_score":85}`), nil
}

func (f *fakeLookups) Resolve(_ context.Context, host string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	if f.resolved != "" {
		return f.resolved, nil
	}
	return "93.184.216.34", nil
}

type fakeKB struct {
	entries []knowledge.Entry
	err     error
}

func (k fakeKB) Search(context.Context, string) ([]knowledge.Entry, error) {
	return k.entries, k.err
}

type fakeDocs struct {
	guide        string
	presentation string
}

func (d fakeDocs) ReadText(name string) (string, error) {
	if name == "presentazione.txt" && d.presentation != "" {
		return d.presentation, nil
	}
	return "", knowledge.ErrDocumentNotFound
}

func (d fakeDocs) PrettyJSON(name string) (string, error) {
	if name != "interceptx_malware_guide.json" || d.guide == "" {
		return "", knowledge.ErrDocumentNotFound
	}
	return d.guide, nil
}

type harness struct {
	orch    *Orchestrator
	llm     *echoLLM
	lookups *fakeLookups
	convs   *state.ConversationStore
	ctxs    *state.ContextStore
	queue   *state.FollowUpQueue
}

var errBoom = errors.New("boom")

// stickyFollowUps persists appends but fails every delete.
type stickyFollowUps struct{}

func (stickyFollowUps) LoadFollowUps(context.Context) ([]domain.FollowUpEntry, error) {
	return nil, nil
}

func (stickyFollowUps) AppendFollowUp(context.Context, domain.FollowUpEntry) error { return nil }

func (stickyFollowUps) DeleteFollowUps(context.Context, string) error { return errBoom }

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithContexts(t, state.NewContextStore(state.DefaultRepeatClearAfter))
}

// newHarnessWithContexts wires the orchestrator over a caller-supplied
// topic context store.
func newHarnessWithContexts(t *testing.T, contexts *state.ContextStore) *harness {
	t.Helper()
	ctx := context.Background()
	convs, err := state.NewConversationStore(ctx, nil)
	if err != nil {
		t.Fatalf("NewConversationStore: %v", err)
	}
	queue, err := state.NewFollowUpQueue(ctx, nil)
	if err != nil {
		t.Fatalf("NewFollowUpQueue: %v", err)
	}
	h := &harness{
		llm:     &echoLLM{},
		lookups: &fakeLookups{},
		convs:   convs,
		ctxs:    contexts,
		queue:   queue,
	}
	orch, err := New(Config{}, Deps{
		Classifier:    classifier.New(nil),
		Conversations: h.convs,
		Contexts:      h.ctxs,
		FollowUps:     h.queue,
		LLM:           h.llm,
		Leaks:         h.lookups,
		Reputation:    h.lookups,
		Quality:       h.lookups,
		Resolver:      h.lookups,
		Knowledge:     fakeKB{entries: []knowledge.Entry{{Source: "faq", Key: "backup", Text: "Esegui backup settimanali"}}},
		Documents:     fakeDocs{guide: "{\n  \"prodotto\": \"Intercept X\"\n}"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) turn(t *testing.T, user, msg string) *Turn {
	t.Helper()
	turn, err := h.orch.ProcessTurn(context.Background(), user, msg)
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", msg, err)
	}
	return turn
}
