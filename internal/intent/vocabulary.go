package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neoKode1/directorchair-core/internal/assets"
	"github.com/neoKode1/directorchair-core/internal/catalog"
)

// Vocabulary holds the keyword tables driving classification and several
// augmentation passes. Loaded once from the embedded data tables.
type Vocabulary struct {
	Greetings       []string            `json:"greetings"`
	QuestionPhrases []string            `json:"question_phrases"`
	GenerationVerbs []string            `json:"generation_verbs"`
	AnalysisVerbs   []string            `json:"analysis_verbs"`
	Categories      map[string][]string `json:"categories"`
	ActionSubtypes  map[string][]string `json:"action_subtypes"`
	CinematicTerms  []string            `json:"cinematic_terms"`
	DirectorNames   []string            `json:"director_names"`

	CharacterConsistency  []string   `json:"character_consistency"`
	VariationTerms        []string   `json:"variation_terms"`
	MultiAngleTerms       []string   `json:"multi_angle_terms"`
	NarrativeIndicators   []string   `json:"narrative_indicators"`
	EnvironmentIndicators []string   `json:"environment_indicators"`
	InteractionIndicators []string   `json:"interaction_indicators"`
	EmotionWords          []string   `json:"emotion_words"`
	ActionVerbs           []string   `json:"action_verbs"`
	WeatherTerms          []string   `json:"weather_terms"`
	TimeOfDayTerms        []string   `json:"time_of_day_terms"`
	ConflictingStyles     [][]string `json:"conflicting_styles"`
}

// LoadVocabulary parses the embedded keyword tables. A parse failure is fatal
// at startup: the classifier has no meaningful degraded mode without them.
func LoadVocabulary() (*Vocabulary, error) {
	var v Vocabulary
	if err := json.Unmarshal(assets.KeywordsJSON, &v); err != nil {
		return nil, fmt.Errorf("parse embedded keyword tables: %w", err)
	}
	if len(v.GenerationVerbs) == 0 || len(v.Categories) == 0 {
		return nil, fmt.Errorf("embedded keyword tables incomplete: missing generation verbs or category sets")
	}
	return &v, nil
}

// CategoryKeywords returns the content-type keyword set for a category.
func (v *Vocabulary) CategoryKeywords(c catalog.Category) []string {
	return v.Categories[string(c)]
}

// containsPhrase reports whether any entry of list occurs in text. Entries
// containing a space are matched as substrings; single words are matched on
// word boundaries so "hi" does not fire inside "high".
func containsPhrase(text string, list []string) (string, bool) {
	words := fieldsSet(text)
	for _, entry := range list {
		if strings.ContainsRune(entry, ' ') {
			if strings.Contains(text, entry) {
				return entry, true
			}
			continue
		}
		if words[entry] {
			return entry, true
		}
	}
	return "", false
}

// matchAll returns every entry of list that occurs in text, using the same
// matching rules as containsPhrase.
func matchAll(text string, list []string) []string {
	words := fieldsSet(text)
	var matched []string
	for _, entry := range list {
		if strings.ContainsRune(entry, ' ') {
			if strings.Contains(text, entry) {
				matched = append(matched, entry)
			}
			continue
		}
		if words[entry] {
			matched = append(matched, entry)
		}
	}
	return matched
}

// fieldsSet tokenizes text into a lowercase word set, trimming punctuation.
func fieldsSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, ".,!?;:'\"()[]")
		if f != "" {
			set[f] = true
		}
	}
	return set
}
