package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/lookup"
	"github.com/ashureev/cyberdesk/internal/state"
)

func TestMalwareThenEscalation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	turn := h.turn(t, "Mario", "ho un problema con un virus")
	if turn.Topic != domain.TopicMalware {
		t.Fatalf("topic = %s, want malware", turn.Topic)
	}
	if !strings.Contains(turn.Response, "Informazioni su Intercept X:") || !strings.Contains(turn.Response, `"prodotto": "Intercept X"`) {
		t.Fatalf("response does not embed the malware guide: %q", turn.Response)
	}

	turn = h.turn(t, "Mario", "non è stato risolto")
	if got := h.convs.FailedAttempts("Mario"); got != 1 {
		t.Fatalf("failed attempts = %d, want 1", got)
	}
	if !strings.Contains(turn.Response, "tentativo numero 1") {
		t.Fatalf("missing attempt notice: %q", turn.Response)
	}
	if turn.Escalated || h.queue.Contains("Mario") {
		t.Fatal("user must not be escalated after one failure")
	}

	turn = h.turn(t, "Mario", "non è stato risolto")
	if !turn.Escalated || turn.Response != MsgEscalation {
		t.Fatalf("expected escalation, got %+v", turn)
	}
	if !h.queue.Contains("Mario") {
		t.Fatal("user must be in the follow-up list")
	}
	if got := h.convs.FailedAttempts("Mario"); got != 0 {
		t.Fatalf("failed attempts = %d, want reset to 0", got)
	}
	if _, ok := h.ctxs.Context("Mario"); ok {
		t.Fatal("context must be cleared after escalation")
	}
}

func TestResolvedMessageResetsFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.turn(t, "u", "non ho risolto")
	if h.convs.FailedAttempts("u") != 1 {
		t.Fatal("expected one failure")
	}
	h.turn(t, "u", "grazie, ora funziona")
	if h.convs.FailedAttempts("u") != 0 {
		t.Fatal("expected failures reset")
	}
	turn := h.turn(t, "u", "non ho risolto")
	if turn.Escalated {
		t.Fatal("non-consecutive failures must not escalate")
	}
}

func TestIPCheck(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	turn := h.turn(t, "anna", "controlla 8.8.8.8")
	if turn.Topic != domain.TopicIPURLCheck {
		t.Fatalf("topic = %s", turn.Topic)
	}
	if len(h.lookups.ips) != 1 || h.lookups.ips[0] != "8.8.8.8" {
		t.Fatalf("reputation lookups = %v", h.lookups.ips)
	}
	if !strings.Contains(turn.Response, "8.8.8.8") {
		t.Fatalf("response lacks the IP: %q", turn.Response)
	}
	if !strings.Contains(h.llm.lastPrompt(), "Contesto corrente: ip_url_check") {
		t.Fatal("prompt must name the current topic")
	}
}

func TestURLCheckResolvesHost(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	turn := h.turn(t, "anna", "è sicuro https://example.com/login?")
	if turn.Topic != domain.TopicIPURLCheck {
		t.Fatalf("topic = %s", turn.Topic)
	}
	if len(h.lookups.ips) != 1 || h.lookups.ips[0] != "93.184.216.34" {
		t.Fatalf("expected lookup of resolved IP, got %v", h.lookups.ips)
	}
	if !strings.Contains(h.llm.lastPrompt(), "risolto da https://example.com/login") {
		t.Fatalf("prompt lacks the source URL:\n%s", h.llm.lastPrompt())
	}
}

func TestURLResolutionFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.lookups.resolveErr = errBoom

	h.turn(t, "anna", "controlla http://nonexistent.invalid")
	if len(h.lookups.ips) != 0 {
		t.Fatal("no reputation lookup expected")
	}
	if !strings.Contains(h.llm.lastPrompt(), "Non è stato possibile risolvere l'indirizzo http://nonexistent.invalid") {
		t.Fatalf("missing resolution failure context:\n%s", h.llm.lastPrompt())
	}
}

func TestQualityCheck(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	turn := h.turn(t, "anna", "controllo esteso 1.2.3.4")
	if turn.Topic != domain.TopicIPURLQualityCheck {
		t.Fatalf("topic = %s", turn.Topic)
	}
	if len(h.lookups.quality) != 1 || h.lookups.quality[0] != "1.2.3.4" {
		t.Fatalf("quality lookups = %v", h.lookups.quality)
	}

	h.lookups.qualityErr = lookup.ErrNoResult
	h.turn(t, "anna", "controllo esteso 5.6.7.8")
	if !strings.Contains(h.llm.lastPrompt(), "Nessuna informazione disponibile sull'indirizzo 5.6.7.8") {
		t.Fatalf("missing no-result context:\n%s", h.llm.lastPrompt())
	}

	h.lookups.qualityErr = errBoom
	_, err := h.orch.ProcessTurn(context.Background(), "anna", "controllo esteso 9.9.9.9")
	if !errors.Is(err, ErrExternal) {
		t.Fatalf("err = %v, want ErrExternal", err)
	}
}

func TestEmailWithoutAddressShortCircuits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	turn := h.turn(t, "luca", "puoi controllare la mia email?")
	if turn.Topic != domain.TopicEmailCheck {
		t.Fatalf("topic = %s", turn.Topic)
	}
	if turn.Response != RenderHTML(MsgNoEmail) {
		t.Fatalf("response = %q", turn.Response)
	}
	if h.llm.calls() != 0 {
		t.Fatal("the model must not be called")
	}
	if log := h.convs.Conversation("luca"); len(log) != 2 || log[1].Content != MsgNoEmail {
		t.Fatalf("unexpected log %+v", log)
	}
}

func TestEmailLeakReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.turn(t, "luca", "controlla mario.rossi@example.com")
	if len(h.lookups.emails) != 1 || h.lookups.emails[0] != "mario.rossi@example.com" {
		t.Fatalf("emails = %v", h.lookups.emails)
	}
	if !strings.Contains(h.llm.lastPrompt(), "Non sono state trovate fughe di dati pubbliche") {
		t.Fatalf("prompt lacks formatted leak result:\n%s", h.llm.lastPrompt())
	}
}

func TestAssistanceIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	first := h.turn(t, "giulia", "ho bisogno di assistenza")
	if first.Response != MsgAssistanceRegistered || !first.Escalated {
		t.Fatalf("first = %+v", first)
	}
	second := h.turn(t, "giulia", "voglio parlare con un operatore")
	if second.Response != MsgAssistanceRepeated || second.Escalated {
		t.Fatalf("second = %+v", second)
	}
	if names := h.orch.FollowUpList(); len(names) != 1 || names[0] != "giulia" {
		t.Fatalf("follow-up list = %v", names)
	}
	if h.llm.calls() != 0 {
		t.Fatal("assistance must not call the model")
	}
	if log := h.convs.Conversation("giulia"); len(log) != 4 {
		t.Fatalf("conversation has %d messages, want 4", len(log))
	}
}

func TestPresentationIsNotRecorded(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	turn := h.turn(t, "", "  Chi sei?  ")
	if turn.Response != RenderHTML(DefaultPresentation) {
		t.Fatalf("response = %q", turn.Response)
	}
	if len(h.convs.Conversation(domain.AnonymousUser)) != 0 {
		t.Fatal("presentation must not be recorded")
	}
	if _, ok := h.ctxs.Context(domain.AnonymousUser); ok {
		t.Fatal("presentation must not create a context")
	}
	if h.llm.calls() != 0 {
		t.Fatal("presentation must not call the model")
	}
}

func TestChangeTopicClearsContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.turn(t, "u", "ho un malware")
	if c, _ := h.ctxs.Context("u"); c.Topic != domain.TopicMalware {
		t.Fatalf("topic = %s", c.Topic)
	}
	turn := h.turn(t, "u", "cambiamo argomento")
	if turn.Response != MsgChangeTopic {
		t.Fatalf("response = %q", turn.Response)
	}
	if _, ok := h.ctxs.Context("u"); ok {
		t.Fatal("context must be removed")
	}
}

func TestTopicSwitchStartsWithEmptyBuffer(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.turn(t, "u", "ho un malware")
	h.turn(t, "u", "come faccio il backup?")
	c, ok := h.ctxs.Context("u")
	if !ok || c.Topic != domain.TopicGeneral {
		t.Fatalf("context = %+v", c)
	}
	for _, m := range c.Messages {
		if strings.Contains(m, "Intercept X:") {
			t.Fatal("malware context leaked into the new topic")
		}
	}
	if len(c.Messages) != 2 {
		t.Fatalf("buffer = %d messages, want handler output and reply", len(c.Messages))
	}
}

func TestForceClearAfterRepeatedTopic(t *testing.T) {
	t.Parallel()
	// A lenient store leaves the orchestrator's own threshold in charge.
	h := newHarnessWithContexts(t, state.NewContextStore(10))

	for i := 1; i <= 4; i++ {
		h.turn(t, "u", "ho un malware")
		c, _ := h.ctxs.Context("u")
		if c.RepeatCount != i-1 || len(c.Messages) != 2*i {
			t.Fatalf("turn %d: repeat = %d, buffer = %d; want %d, %d", i, c.RepeatCount, len(c.Messages), i-1, 2*i)
		}
	}

	h.turn(t, "u", "ho un malware")
	c, ok := h.ctxs.Context("u")
	if !ok || c.Topic != domain.TopicMalware {
		t.Fatalf("context = %+v, want malware kept", c)
	}
	if c.RepeatCount != 0 {
		t.Fatalf("repeat = %d, want reset to 0", c.RepeatCount)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("buffer = %d messages, want only the fifth turn's handler output and reply", len(c.Messages))
	}
}

func TestSimulatedTurnsStripped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.suffix = "\nUtente: e poi?\nAssistente: niente"

	turn := h.turn(t, "u", "come faccio il backup?")
	if strings.Contains(turn.Response, "Utente:") || strings.Contains(turn.Response, "niente") {
		t.Fatalf("simulated turn not stripped: %q", turn.Response)
	}
}

func TestCompletionFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.err = errBoom

	_, err := h.orch.ProcessTurn(context.Background(), "u", "come faccio il backup?")
	if !errors.Is(err, ErrExternal) || !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want ErrExternal wrapping errBoom", err)
	}
}

func TestRemoveFromFollowUp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.turn(t, "Mario", "ho bisogno di assistenza")
	msg, err := h.orch.RemoveFromFollowUp(context.Background(), "Mario")
	if err != nil {
		t.Fatalf("RemoveFromFollowUp: %v", err)
	}
	if msg != "Mario rimosso dalla lista di follow-up e la conversazione è stata cancellata" {
		t.Fatalf("message = %q", msg)
	}
	if len(h.orch.FollowUpList()) != 0 {
		t.Fatal("queue must be empty")
	}
	if len(h.orch.Conversation("Mario")) != 0 {
		t.Fatal("conversation must be empty after removal")
	}
}

func TestRemoveFromFollowUpCompletesWhenDeleteFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	queue, err := state.NewFollowUpQueue(context.Background(), stickyFollowUps{})
	if err != nil {
		t.Fatalf("NewFollowUpQueue: %v", err)
	}
	h.orch.followups = queue

	h.turn(t, "Mario", "ho bisogno di assistenza")
	if !queue.Contains("Mario") {
		t.Fatal("Mario must be queued")
	}
	if _, err := h.orch.RemoveFromFollowUp(context.Background(), "Mario"); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if queue.Contains("Mario") {
		t.Fatal("queue still holds Mario")
	}
	if len(h.orch.Conversation("Mario")) != 0 {
		t.Fatal("conversation must be cleared despite the delete failure")
	}
	if _, ok := h.ctxs.Context("Mario"); ok {
		t.Fatal("topic context must be cleared despite the delete failure")
	}
}

func TestConcurrentTurnsSameUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.orch.ProcessTurn(context.Background(), "shared", fmt.Sprintf("non ho risolto %d", i)); err != nil {
				t.Errorf("ProcessTurn: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(h.convs.Conversation("shared")); got != 2*n {
		t.Fatalf("conversation has %d messages, want %d", got, 2*n)
	}
	// Every second failure escalates, so the counter alternates 1, 0, 1, ...
	if got := h.convs.FailedAttempts("shared"); got != 0 {
		t.Fatalf("failed attempts = %d, want 0 after an even number of failures", got)
	}
	if names := h.orch.FollowUpList(); len(names) != 1 {
		t.Fatalf("follow-up list = %v, want one entry", names)
	}
}
