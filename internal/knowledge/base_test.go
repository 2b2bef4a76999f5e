package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestBase(t *testing.T) (*Base, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "faq.json", `{"vpn": "Per attivare la VPN apri Intercept X e tocca Protezione.", "password": "Usa un gestore di password."}`)
	writeFile(t, dir, "guide.csv", "titolo,testo\nPhishing,Non aprire allegati sospetti\nBackup,Esegui backup settimanali\n")
	writeFile(t, dir, "notes.txt", "ignored")
	return NewBase(dir, Options{}), dir
}

func TestSearchMatchesJSONAndCSV(t *testing.T) {
	t.Parallel()

	b, _ := newTestBase(t)
	got, err := b.Search(context.Background(), "come attivo la VPN?")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		// "come", "attivo" are not in the base; "vpn" is shorter than the
		// keyword minimum and the full query is not a substring.
		t.Fatalf("expected no match, got %v", got)
	}

	got, err = b.Search(context.Background(), "vpn")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Key != "vpn" || got[0].Source != "faq" {
		t.Fatalf("unexpected result %+v", got)
	}

	got, err = b.Search(context.Background(), "allegati phishing")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0].Text, "Non aprire allegati sospetti") {
		t.Fatalf("unexpected csv result %+v", got)
	}
	if b.Len() != 4 {
		t.Fatalf("Len = %d, want 4", b.Len())
	}
}

func TestSearchRanksByKeywordHits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "kb.json", `["backup del telefono", "backup cifrato del telefono con password", "nessuna relazione"]`)
	b := NewBase(dir, Options{MaxResults: 1})

	got, err := b.Search(context.Background(), "backup cifrato password")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Text != "backup cifrato del telefono con password" {
		t.Fatalf("unexpected ranking %+v", got)
	}
}

func TestReloadAfterInterval(t *testing.T) {
	t.Parallel()

	b, dir := newTestBase(t)
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	if _, err := b.Search(context.Background(), "backup"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	writeFile(t, dir, "extra.json", `["ransomware: isola il dispositivo"]`)

	got, _ := b.Search(context.Background(), "ransomware")
	if len(got) != 0 {
		t.Fatal("index must stay cached inside the interval")
	}

	now = now.Add(DefaultReloadInterval + time.Second)
	got, _ = b.Search(context.Background(), "ransomware")
	if len(got) != 1 {
		t.Fatalf("expected reload after interval, got %v", got)
	}
}

func TestInvalidateAndConcurrentSearch(t *testing.T) {
	t.Parallel()

	b, _ := newTestBase(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				b.Invalidate()
			}
			if _, err := b.Search(context.Background(), "backup"); err != nil {
				t.Errorf("Search: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if b.Len() != 4 {
		t.Fatalf("Len = %d after concurrent reloads", b.Len())
	}
}

func TestSearchMissingDirectory(t *testing.T) {
	t.Parallel()

	b := NewBase(filepath.Join(t.TempDir(), "missing"), Options{})
	if _, err := b.Search(context.Background(), "vpn"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	b, dir := newTestBase(t)
	if _, err := b.Search(context.Background(), "x"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	name, err := b.Save("../../etc/nuove faq.json", strings.NewReader(`{"smishing": "SMS fraudolenti"}`))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "nuove_faq.json" {
		t.Fatalf("name = %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Fatalf("stored file: %v", err)
	}
	got, _ := b.Search(context.Background(), "smishing")
	if len(got) != 1 {
		t.Fatalf("saved file must be searchable immediately, got %v", got)
	}

	if _, err := b.Save("malware.exe", strings.NewReader("MZ")); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("err = %v, want ErrUnsupportedFile", err)
	}
	if _, err := b.Save("broken.json", strings.NewReader("{")); err == nil {
		t.Fatal("expected invalid json to be rejected")
	}
}
