package dialogue

import "strings"

// StripSimulatedTurns truncates text at the first marker (for example
// "Utente:") and trims surrounding whitespace. Markers are case-sensitive.
func StripSimulatedTurns(text string, markers []string) string {
	cut := len(text)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if i := strings.Index(text, m); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(text[:cut])
}

// RenderHTML turns newlines into <br> for the chat widget.
func RenderHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", "<br>")
}
