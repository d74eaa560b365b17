package agent

import "fmt"

// messages holds the user-facing strings of the dispatcher and synthesizer.
type messages struct {
	clarification string
	unknownTool   string // tool name
	toolPanicked  string // tool name
	degradedNote  string
	success       func(n int) string
	partial       func(ok, failed int) string
	failure       func(n int) string
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var catalogs = map[string]messages{
	"fr": {
		clarification: "Je ne suis pas sûr d'avoir compris. Pouvez-vous reformuler ?",
		unknownTool:   "Outil inconnu : %s",
		toolPanicked:  "Erreur interne pendant l'exécution de %s.",
		degradedNote:  " La réponse du modèle a été interrompue ; certaines actions ont pu être omises.",
		success: func(n int) string {
			return fmt.Sprintf("%d %s.", n, plural(n, "action réussie", "actions réussies"))
		},
		partial: func(ok, failed int) string {
			return fmt.Sprintf("%d %s, %d %s.", ok, plural(ok, "action réussie", "actions réussies"),
				failed, plural(failed, "échec", "échecs"))
		},
		failure: func(n int) string {
			return fmt.Sprintf("%d %s.", n, plural(n, "action a échoué", "actions ont échoué"))
		},
	},
	"en": {
		clarification: "I'm not sure I understood. Can you rephrase?",
		unknownTool:   "Unknown tool: %s",
		toolPanicked:  "Internal error while running %s.",
		degradedNote:  " The model's response was interrupted; some actions may be missing.",
		success: func(n int) string {
			return fmt.Sprintf("%d %s.", n, plural(n, "action succeeded", "actions succeeded"))
		},
		partial: func(ok, failed int) string {
			return fmt.Sprintf("%d %s, %d failed.", ok, plural(ok, "action succeeded", "actions succeeded"), failed)
		},
		failure: func(n int) string {
			return fmt.Sprintf("%d %s.", n, plural(n, "action failed", "actions failed"))
		},
	},
}

// catalogFor returns the messages for lang, French when unknown.
func catalogFor(lang string) messages {
	if m, ok := catalogs[lang]; ok {
		return m
	}
	return catalogs["fr"]
}
