// Package intent classifies a user turn into a typed, actionable Intent.
//
// Classification is deterministic and rule-ordered: an explicit list of
// (name, predicate, builder) records is evaluated in a fixed priority order
// and the first match wins. The ordering is a deliberate design choice to
// keep conversational chatter from being misread as generation requests, and
// it is data the tests can audit rather than buried control flow.
package intent

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/catalog"
)

// ActionSubtype narrows an intent over an attached image to a specific
// operation family.
type ActionSubtype string

// Image-action subtypes.
const (
	SubtypeNone          ActionSubtype = ""
	SubtypeStyleTransfer ActionSubtype = "style-transfer"
	SubtypeEdit          ActionSubtype = "edit"
	SubtypeAnimate       ActionSubtype = "animate"
	SubtypeContextSwap   ActionSubtype = "context-swap"
	SubtypeFrameExtract  ActionSubtype = "frame-extract"
)

// Intent is the classifier's structured judgment about one user turn.
// Created fresh per turn and never mutated after creation.
type Intent struct {
	Category           catalog.Category
	Confidence         float64
	Keywords           []string
	RawContext         string
	RequiresGeneration bool
	AttachedImageRef   string
	ActionSubtype      ActionSubtype
}

// Request carries the classifier inputs for one turn.
type Request struct {
	Text             string
	ForcedCategory   catalog.Category
	AttachedImageRef string
}

// rule is one ordered classification record. match returns nil when the rule
// does not apply; the first non-nil result wins.
type rule struct {
	name  string
	match func(req Request, text string) *Intent
}

// Classifier maps raw text to an Intent using the static keyword tables.
// Safe for concurrent use; it holds no mutable state.
type Classifier struct {
	vocab *Vocabulary
	rules []rule
}

// NewClassifier builds a classifier over the given vocabulary.
func NewClassifier(vocab *Vocabulary) *Classifier {
	c := &Classifier{vocab: vocab}
	c.rules = []rule{
		{"forced-category", c.matchForced},
		{"greeting", c.matchGreeting},
		{"question", c.matchQuestion},
		{"generation-verb", c.matchGenerationVerb},
		{"image-action", c.matchImageAction},
		{"bare-generation-verb", c.matchBareGenerationVerb},
		{"content-type", c.matchContentType},
		{"director-mention", c.matchDirector},
		{"cinematic-residual", c.matchCinematic},
		{"analysis-verb", c.matchAnalysis},
		{"implicit-image", c.matchImplicitImage},
	}
	return c
}

// Classify maps one user turn to an Intent. Pure function of its inputs and
// the static keyword tables; no network access.
func (c *Classifier) Classify(req Request) Intent {
	text := strings.ToLower(strings.TrimSpace(req.Text))

	for _, r := range c.rules {
		if in := r.match(req, text); in != nil {
			in.RawContext = req.Text
			if in.AttachedImageRef == "" {
				in.AttachedImageRef = req.AttachedImageRef
			}
			log.Debug().
				Str("rule", r.name).
				Str("category", string(in.Category)).
				Float64("confidence", in.Confidence).
				Bool("requiresGeneration", in.RequiresGeneration).
				Msg("Intent classified")
			return *in
		}
	}

	// Nothing matched: empty or unparseable input.
	log.Debug().Str("text", req.Text).Msg("Intent fell through all rules, requesting clarification")
	return Intent{
		Category:   catalog.CategoryClarification,
		Confidence: 0.3,
		RawContext: req.Text,
	}
}

// --- rules, in priority order ---

// matchForced short-circuits classification when the caller supplies an
// explicit category; user intent always outranks heuristics.
func (c *Classifier) matchForced(req Request, text string) *Intent {
	if req.ForcedCategory == "" {
		return nil
	}
	return &Intent{
		Category:           req.ForcedCategory,
		Confidence:         0.95,
		RequiresGeneration: true,
	}
}

// matchGreeting keeps greetings from being misread as generation requests.
func (c *Classifier) matchGreeting(req Request, text string) *Intent {
	kw, ok := containsPhrase(text, c.vocab.Greetings)
	if !ok {
		return nil
	}
	return &Intent{
		Category:   catalog.CategoryClarification,
		Confidence: 0.2,
		Keywords:   []string{kw},
	}
}

func (c *Classifier) matchQuestion(req Request, text string) *Intent {
	for _, q := range c.vocab.QuestionPhrases {
		if strings.HasPrefix(text, q) || (strings.ContainsRune(q, ' ') && strings.Contains(text, q)) {
			return &Intent{
				Category:   catalog.CategoryAnalysis,
				Confidence: 0.7,
				Keywords:   []string{strings.TrimSpace(q)},
			}
		}
	}
	return nil
}

// matchGenerationVerb handles explicit verbs ("generate", "create", ...)
// paired with a content-type keyword.
func (c *Classifier) matchGenerationVerb(req Request, text string) *Intent {
	verb, ok := containsPhrase(text, c.vocab.GenerationVerbs)
	if !ok {
		return nil
	}

	for _, cat := range []catalog.Category{
		catalog.CategoryImage, catalog.CategoryVideo, catalog.CategoryAudio,
		catalog.CategoryVoice, catalog.CategoryText,
	} {
		if kw, ok := containsPhrase(text, c.vocab.CategoryKeywords(cat)); ok {
			confidence := 0.85
			if cat == catalog.CategoryImage || cat == catalog.CategoryVideo {
				confidence = 0.9
			}
			return &Intent{
				Category:           cat,
				Confidence:         confidence,
				Keywords:           []string{verb, kw},
				RequiresGeneration: true,
			}
		}
	}

	// Verb without a content type: defer to the image-action rule when an
	// attached image could disambiguate ("make the background blue").
	return nil
}

// matchImageAction classifies edits over an attached image into a subtype.
func (c *Classifier) matchImageAction(req Request, text string) *Intent {
	if req.AttachedImageRef == "" {
		return nil
	}

	// Subtype order matters: animation phrasing often contains edit verbs.
	for _, st := range []ActionSubtype{
		SubtypeAnimate, SubtypeStyleTransfer, SubtypeContextSwap,
		SubtypeFrameExtract, SubtypeEdit,
	} {
		kw, ok := containsPhrase(text, c.vocab.ActionSubtypes[string(st)])
		if !ok {
			continue
		}
		cat := catalog.CategoryImage
		if st == SubtypeAnimate {
			cat = catalog.CategoryVideo
		}
		return &Intent{
			Category:           cat,
			Confidence:         0.95,
			Keywords:           []string{kw},
			RequiresGeneration: true,
			ActionSubtype:      st,
		}
	}
	return nil
}

// matchBareGenerationVerb catches a generation verb that neither named a
// content type nor resolved against an attached image. The request is a
// generation request, but the category needs clarifying.
func (c *Classifier) matchBareGenerationVerb(req Request, text string) *Intent {
	verb, ok := containsPhrase(text, c.vocab.GenerationVerbs)
	if !ok {
		return nil
	}
	return &Intent{
		Category:           catalog.CategoryClarification,
		Confidence:         0.8,
		Keywords:           []string{verb},
		RequiresGeneration: true,
	}
}

// matchContentType treats bare content-type vocabulary as an implicit
// generation request. Video keywords are checked first to catch "animate
// this image" phrasing before the image set fires.
func (c *Classifier) matchContentType(req Request, text string) *Intent {
	type catConf struct {
		cat  catalog.Category
		conf float64
	}
	for _, cc := range []catConf{
		{catalog.CategoryVideo, 0.8},
		{catalog.CategoryImage, 0.8},
		{catalog.CategoryAudio, 0.75},
		{catalog.CategoryVoice, 0.75},
		{catalog.CategoryText, 0.7},
	} {
		if kw, ok := containsPhrase(text, c.vocab.CategoryKeywords(cc.cat)); ok {
			return &Intent{
				Category:           cc.cat,
				Confidence:         cc.conf,
				Keywords:           []string{kw},
				RequiresGeneration: true,
			}
		}
	}
	return nil
}

// matchDirector treats a bare director reference as a visual-style request.
func (c *Classifier) matchDirector(req Request, text string) *Intent {
	if strings.Contains(text, "directed by") {
		return &Intent{
			Category:           catalog.CategoryImage,
			Confidence:         0.9,
			Keywords:           []string{"directed by"},
			RequiresGeneration: true,
		}
	}
	if name, ok := containsPhrase(text, c.vocab.DirectorNames); ok {
		return &Intent{
			Category:           catalog.CategoryImage,
			Confidence:         0.9,
			Keywords:           []string{name},
			RequiresGeneration: true,
		}
	}
	return nil
}

func (c *Classifier) matchCinematic(req Request, text string) *Intent {
	kw, ok := containsPhrase(text, c.vocab.CinematicTerms)
	if !ok {
		return nil
	}
	return &Intent{
		Category:           catalog.CategoryImage,
		Confidence:         0.7,
		Keywords:           []string{kw},
		RequiresGeneration: true,
	}
}

func (c *Classifier) matchAnalysis(req Request, text string) *Intent {
	kw, ok := containsPhrase(text, c.vocab.AnalysisVerbs)
	if !ok {
		return nil
	}
	return &Intent{
		Category:   catalog.CategoryAnalysis,
		Confidence: 0.8,
		Keywords:   []string{kw},
	}
}

// matchImplicitImage is the deliberate bias toward attempting generation:
// any remaining non-empty text becomes an implicit image request.
func (c *Classifier) matchImplicitImage(req Request, text string) *Intent {
	if text == "" {
		return nil
	}
	return &Intent{
		Category:           catalog.CategoryImage,
		Confidence:         0.6,
		RequiresGeneration: true,
	}
}
