package offtopic_test

import (
	"strings"
	"testing"

	"github.com/pcastillo/lienzo/internal/lienzo/lexicon"
	"github.com/pcastillo/lienzo/internal/lienzo/offtopic"
)

func TestPoliteRejection_TonePerCategory(t *testing.T) {
	cases := []struct {
		category lexicon.Category
		want     offtopic.Tone
	}{
		{lexicon.CategoryEntertainment, offtopic.ToneFriendly},
		{lexicon.CategorySmallTalk, offtopic.ToneFriendly},
		{lexicon.CategoryPersonal, offtopic.ToneHelpful},
		{lexicon.CategoryUnrelatedWork, offtopic.ToneFormal},
		{lexicon.CategoryGeneralTech, offtopic.ToneFormal},
		{lexicon.Category("unknown"), offtopic.ToneFormal},
	}
	for _, tc := range cases {
		got := offtopic.PoliteRejection(tc.category, "en")
		if got.Tone != tc.want {
			t.Errorf("PoliteRejection(%q) tone = %q, want %q", tc.category, got.Tone, tc.want)
		}
	}
}

func TestPoliteRejection_ToneOverride(t *testing.T) {
	got := offtopic.PoliteRejection(lexicon.CategoryEntertainment, "en", offtopic.ToneFormal)
	if got.Tone != offtopic.ToneFormal {
		t.Errorf("tone = %q, want the formal override", got.Tone)
	}
	if !strings.Contains(got.Message, "outside the scope") {
		t.Errorf("message = %q, want the formal template", got.Message)
	}

	// An unknown override falls back to the category mapping.
	got = offtopic.PoliteRejection(lexicon.CategoryEntertainment, "en", offtopic.Tone("sarcastic"))
	if got.Tone != offtopic.ToneFriendly {
		t.Errorf("tone = %q, want the category default for an unknown override", got.Tone)
	}
}

func TestPoliteRejection_AlwaysThreeSuggestions(t *testing.T) {
	for _, lang := range []string{"es", "en", "fr"} {
		got := offtopic.PoliteRejection(lexicon.CategoryEntertainment, lang)
		if len(got.Suggestions) != 3 {
			t.Errorf("lang %q: %d suggestions, want 3", lang, len(got.Suggestions))
		}
		if got.Message == "" {
			t.Errorf("lang %q: empty rejection message", lang)
		}
	}
}

func TestPoliteRejection_LanguageSelection(t *testing.T) {
	es := offtopic.PoliteRejection(lexicon.CategoryEntertainment, "es")
	if !strings.Contains(es.Message, "documento QA") {
		t.Errorf("Spanish rejection does not mention the document: %q", es.Message)
	}
	en := offtopic.PoliteRejection(lexicon.CategoryEntertainment, "en")
	if !strings.Contains(en.Message, "QA document") {
		t.Errorf("English rejection does not mention the document: %q", en.Message)
	}
	if es.Message == en.Message {
		t.Error("Spanish and English rejections are identical")
	}
}

func TestConsistentRejection_DeliberateDiversionsOnly(t *testing.T) {
	if !offtopic.ConsistentRejection(lexicon.CategoryEntertainment) {
		t.Error("entertainment should get a consistent rejection")
	}
	if !offtopic.ConsistentRejection(lexicon.CategoryPersonal) {
		t.Error("personal should get a consistent rejection")
	}
	if offtopic.ConsistentRejection(lexicon.CategorySmallTalk) {
		t.Error("small talk should not get the boilerplate wall")
	}
	if offtopic.ConsistentRejection(lexicon.CategoryGeneralTech) {
		t.Error("general tech should not get the boilerplate wall")
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"¿Quién ganó el partido?":          "es",
		"Los criterios están mal":          "es",
		"the acceptance criteria is wrong": "en",
		"fix it":                           "en",
	}
	for message, want := range cases {
		if got := offtopic.DetectLanguage(message); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", message, got, want)
		}
	}
}
