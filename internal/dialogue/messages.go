package dialogue

// Fixed user-facing texts. The service speaks Italian.
const (
	MsgAssistanceRegistered = "Ho registrato la tua richiesta di assistenza. Un operatore ti contatterà al più presto. Grazie per la tua pazienza."
	MsgAssistanceRepeated   = "La tua richiesta di assistenza è già stata registrata. Un operatore ti contatterà al più presto. Grazie per la tua pazienza."
	MsgChangeTopic          = "Va bene, cambiamo argomento. Di cosa vorresti parlare?"
	MsgEscalation           = "Ho notato che stai avendo difficoltà a risolvere il problema. Ho aggiunto il tuo nominativo alla lista per assistenza da parte di un operatore."
	msgAttemptFormat        = "Se il problema persiste, prova a fornire più dettagli o a riformulare la tua domanda. Questo è il tentativo numero %d."
	MsgInternalError        = "Si è verificato un errore interno. Riprova più tardi."
	MsgEmptyAnswer          = "Mi dispiace, non sono riuscito a formulare una risposta. Puoi riformulare la domanda?"
	msgRemovedFormat        = "%s rimosso dalla lista di follow-up e la conversazione è stata cancellata"

	MsgNoEmail          = "Non ho trovato un indirizzo email valido nel tuo messaggio. Scrivi l'indirizzo che vuoi controllare, ad esempio nome@esempio.it."
	MsgNoIPOrURL        = "Non ho trovato un indirizzo IP o un URL nel messaggio. Indica l'indirizzo che vuoi controllare."
	msgUnresolvedFormat = "Non è stato possibile risolvere l'indirizzo %s. Verifica che l'URL sia corretto."
	msgNoQualityFormat  = "Nessuna informazione disponibile sull'indirizzo %s."

	ctxIPFormat      = "Informazioni sull'indirizzo IP %s:\n%s"
	ctxIPFromURL     = "Informazioni sull'indirizzo IP %s (risolto da %s):\n%s"
	ctxMalwarePrefix = "Informazioni su Intercept X:\n"
	ctxKnowledge     = "Informazioni rilevanti dalla knowledge base:\n"
	ctxLeakFormat    = "Risultato del controllo email leak per %s:\n%s"

	// DefaultPresentation is used when no presentation document is available.
	DefaultPresentation = "Ciao! Sono l'assistente di cybersecurity di Cyber Smart Device. " +
		"Posso aiutarti a verificare la reputazione di indirizzi IP e URL, controllare se la tua email " +
		"compare in fughe di dati pubbliche, darti informazioni su malware e su Sophos Intercept X " +
		"e metterti in contatto con un operatore quando serve."
)
