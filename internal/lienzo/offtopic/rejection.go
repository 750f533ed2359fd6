package offtopic

import (
	"strings"

	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
)

// Tone selects the register of a polite rejection.
type Tone string

const (
	ToneFriendly Tone = "friendly"
	ToneHelpful  Tone = "helpful"
	ToneFormal   Tone = "formal"
)

// toneByCategory is the fixed category → tone mapping: casual diversions
// get a friendly nudge, personal topics a helpful one, and work topics
// outside this document a formal one.
var toneByCategory = map[lexicon.Category]Tone{
	lexicon.CategoryEntertainment: ToneFriendly,
	lexicon.CategorySmallTalk:     ToneFriendly,
	lexicon.CategoryPersonal:      ToneHelpful,
	lexicon.CategoryUnrelatedWork: ToneFormal,
	lexicon.CategoryGeneralTech:   ToneFormal,
}

// Rejection is a templated redirection returned for off-topic messages.
type Rejection struct {
	Message     string
	Tone        Tone
	Suggestions []string // always exactly 3
}

var rejectionTemplates = map[Tone]map[string]string{
	ToneFriendly: {
		"es": "¡Me encantaría charlar de eso! Pero aquí estoy para ayudarte con el documento QA. ¿Seguimos con el ticket?",
		"en": "I'd love to chat about that! But I'm here to help with the QA document. Shall we get back to the ticket?",
	},
	ToneHelpful: {
		"es": "Entiendo, aunque no soy la mejor ayuda para temas personales. Donde sí puedo ayudarte es con el documento QA.",
		"en": "I understand, though I'm not the best help for personal matters. Where I can help is with the QA document.",
	},
	ToneFormal: {
		"es": "Ese tema queda fuera del alcance de esta conversación. Mi función es ayudarte con el documento QA del ticket.",
		"en": "That topic is outside the scope of this conversation. My role is to help with the ticket's QA document.",
	},
}

var rejectionSuggestions = map[string][]string{
	"es": {
		"Revisar los criterios de aceptación",
		"Mejorar los casos de prueba",
		"Aclarar el resumen del ticket",
	},
	"en": {
		"Review the acceptance criteria",
		"Improve the test cases",
		"Clarify the ticket summary",
	},
}

// PoliteRejection builds the redirection message for an off-topic category.
// lang is "es" or "en"; anything else falls back to English. An optional
// tone argument overrides the fixed category mapping. The returned
// rejection always carries exactly 3 suggestions.
func PoliteRejection(category lexicon.Category, lang string, tone ...Tone) Rejection {
	t, ok := toneByCategory[category]
	if !ok {
		t = ToneFormal
	}
	if len(tone) > 0 {
		if _, known := rejectionTemplates[tone[0]]; known {
			t = tone[0]
		}
	}
	if lang != "es" && lang != "en" {
		lang = "en"
	}
	return Rejection{
		Message:     rejectionTemplates[t][lang],
		Tone:        t,
		Suggestions: rejectionSuggestions[lang],
	}
}

// ConsistentRejection reports whether the category warrants the same firm
// redirection every time. Deliberate diversions (entertainment, personal)
// do; small talk and tech tangents get lighter-touch handling so a simple
// greeting is not met with a boilerplate wall.
func ConsistentRejection(category lexicon.Category) bool {
	switch category {
	case lexicon.CategoryEntertainment, lexicon.CategoryPersonal:
		return true
	default:
		return false
	}
}

// spanishMarkers are cheap signals that a message is in Spanish.
var spanishMarkers = []string{
	"¿", "¡", "á", "é", "í", "ó", "ú", "ñ",
	" el ", " la ", " los ", " las ", " que ", " de ", " está ", " por ",
}

// DetectLanguage guesses "es" or "en" for a message. Used only to pick the
// rejection template language; misdetection degrades to English.
func DetectLanguage(message string) string {
	lower := " " + strings.ToLower(message) + " "
	for _, marker := range spanishMarkers {
		if strings.Contains(lower, marker) {
			return "es"
		}
	}
	return "en"
}
