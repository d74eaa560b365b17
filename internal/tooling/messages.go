package tooling

// catalog holds the user-facing strings returned by executors.
type catalog struct {
	invalidInput   string // tool, error
	storeFailed    string // error
	refineFailed   string // error
	chapterAdded   string // name
	noteCaptured   string
	objectiveAdded string // title, date
	sourceAdded    string // title
	taskAdded      string // title
	promptRefined  string // refined prompt
}

var catalogs = map[string]catalog{
	"fr": {
		invalidInput:   "Entrée invalide pour %s : %v",
		storeFailed:    "Échec de l'enregistrement : %v",
		refineFailed:   "Impossible d'améliorer le prompt : %v",
		chapterAdded:   "Chapitre « %s » ajouté.",
		noteCaptured:   "Note enregistrée.",
		objectiveAdded: "Objectif « %s » ajouté pour le %s.",
		sourceAdded:    "Source « %s » ajoutée à la bibliographie.",
		taskAdded:      "Tâche « %s » ajoutée.",
		promptRefined:  "Prompt amélioré : %s",
	},
	"en": {
		invalidInput:   "Invalid input for %s: %v",
		storeFailed:    "Could not save: %v",
		refineFailed:   "Could not refine the prompt: %v",
		chapterAdded:   "Chapter %q added.",
		noteCaptured:   "Note captured.",
		objectiveAdded: "Objective %q added for %s.",
		sourceAdded:    "Source %q added to the bibliography.",
		taskAdded:      "Task %q added.",
		promptRefined:  "Refined prompt: %s",
	},
}

// catalogFor returns the catalog for lang, French when unknown.
func catalogFor(lang string) catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs["fr"]
}
