package dialogue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// NoPublicLeakMessage is the service message for a clean address.
const NoPublicLeakMessage = "No public dataleak on it"

const leakSchemaJSON = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string"},
		"message": {"type": "string"},
		"results": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"database_name": {"type": ["string", "null"]}
				}
			}
		}
	}
}`

var leakSchema = jsonschema.MustCompileString("leak_result.json", leakSchemaJSON)

// Fields never reported in the "other data" section.
var leakExcludedFields = map[string]struct{}{
	"database_name":   {},
	"email":           {},
	"password":        {},
	"hashed_password": {},
	"id":              {},
}

// LeakSummary aggregates the entries of a breach report. All slices are
// sorted and free of duplicates.
type LeakSummary struct {
	Count       int
	Databases   []string
	Passwords   []string
	HashedCount int
	OtherFields []string
}

// SummarizeLeaks collapses results into a LeakSummary.
func SummarizeLeaks(results []map[string]any) LeakSummary {
	dbs := make(map[string]struct{})
	passwords := make(map[string]struct{})
	others := make(map[string]struct{})
	hashed := 0

	for _, r := range results {
		if name := stringField(r, "database_name"); name != "" {
			dbs[name] = struct{}{}
		}
		if pw := stringField(r, "password"); pw != "" {
			passwords[pw] = struct{}{}
		}
		if stringField(r, "hashed_password") != "" {
			hashed++
		}
		for k, v := range r {
			if _, skip := leakExcludedFields[k]; skip || isEmpty(v) {
				continue
			}
			others[k] = struct{}{}
		}
	}

	return LeakSummary{
		Count:       len(results),
		Databases:   sortedKeys(dbs),
		Passwords:   sortedKeys(passwords),
		HashedCount: hashed,
		OtherFields: sortedKeys(others),
	}
}

type leakReport struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Results []map[string]any `json:"results"`
}

// FormatLeakResult renders a breach-report payload for email as Italian text.
//
// Unparseable payloads ask the user to retry later; payloads that parse but
// do not have the expected shape point to technical support.
func FormatLeakResult(raw []byte, email string) string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Sprintf("Si è verificato un problema nella lettura dei risultati del controllo per %s. Riprova più tardi.", email)
	}
	if err := leakSchema.Validate(doc); err != nil {
		return fmt.Sprintf("Il servizio di controllo ha restituito dati inattesi per %s. Contatta il supporto tecnico per ricevere assistenza.", email)
	}

	var report leakReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Sprintf("Il servizio di controllo ha restituito dati inattesi per %s. Contatta il supporto tecnico per ricevere assistenza.", email)
	}

	switch {
	case report.Status != "ok":
		return "Il servizio di controllo delle fughe di dati non è al momento disponibile. Riprova più tardi."
	case report.Message == NoPublicLeakMessage:
		return fmt.Sprintf("Buone notizie! Non sono state trovate fughe di dati pubbliche per l'indirizzo %s.\n\n"+
			"Per mantenere al sicuro i tuoi account:\n"+
			"1. Usa password uniche e complesse per ogni servizio.\n"+
			"2. Attiva l'autenticazione a due fattori dove possibile.\n"+
			"3. Diffida di email e messaggi che chiedono le tue credenziali.\n"+
			"4. Controlla periodicamente l'attività dei tuoi account.", email)
	case len(report.Results) == 0:
		return fmt.Sprintf("Non ho trovato informazioni specifiche sulle fughe di dati per l'indirizzo %s.", email)
	}

	s := SummarizeLeaks(report.Results)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Attenzione: l'indirizzo %s compare in %d fughe di dati.\n", email, s.Count)

	if len(s.Databases) > 0 {
		sb.WriteString("\nDatabase compromessi:\n")
		writeList(&sb, s.Databases)
	}
	if len(s.Passwords) > 0 {
		sb.WriteString("\nPassword in chiaro esposte:\n")
		masked := make([]string, len(s.Passwords))
		for i, p := range s.Passwords {
			masked[i] = maskSecret(p)
		}
		writeList(&sb, masked)
	}
	if s.HashedCount > 0 {
		fmt.Fprintf(&sb, "\nPassword cifrate (hash) esposte: %d\n", s.HashedCount)
	}
	if len(s.OtherFields) > 0 {
		sb.WriteString("\nAltri dati esposti:\n")
		writeList(&sb, s.OtherFields)
	}

	sb.WriteString("\nCosa fare subito:\n" +
		"1. Cambia la password degli account coinvolti e di quelli che usano la stessa password.\n" +
		"2. Attiva l'autenticazione a due fattori.\n" +
		"3. Fai attenzione a email di phishing che potrebbero sfruttare questi dati.\n" +
		"4. Valuta l'uso di un gestore di password.")
	return sb.String()
}

func writeList(sb *strings.Builder, items []string) {
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteByte('\n')
	}
}

// maskSecret keeps the first two characters of a password.
func maskSecret(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-2)
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
