package augment

import (
	"strings"
)

// Breakdown is the canonical multi-field decomposition of a prompt. The
// subject/scene field carries the source prompt verbatim so location and
// time-of-day tokens survive the round trip back to a single string.
type Breakdown struct {
	ShotComposition string
	Lens            string
	SubjectScene    string
	Action          string
	Cinematography  string
	TextElements    string
	Style           string
}

// maybeBreakdown decomposes the prompt when it reads like a scene rather
// than a simple subject: at least two narrative, environment, or interaction
// indicators, or a prompt over the length threshold.
func (p *Pipeline) maybeBreakdown(prompt string) *Breakdown {
	lowered := strings.ToLower(prompt)

	indicators := 0
	for _, list := range [][]string{
		p.vocab.NarrativeIndicators,
		p.vocab.EnvironmentIndicators,
		p.vocab.InteractionIndicators,
	} {
		for _, term := range list {
			if containsWord(lowered, term) {
				indicators++
			}
		}
	}

	if indicators < 2 && len(prompt) <= breakdownLengthThreshold {
		return nil
	}
	return p.buildBreakdown(prompt, lowered)
}

// buildBreakdown derives each section by presence rules over the prompt.
func (p *Pipeline) buildBreakdown(prompt, lowered string) *Breakdown {
	b := &Breakdown{SubjectScene: prompt}

	hasPerson := containsAnyWord(lowered, []string{
		"person", "man", "woman", "child", "figure", "portrait", "character", "face",
	})
	hasEnvironment := false
	for _, term := range p.vocab.EnvironmentIndicators {
		if containsWord(lowered, term) {
			hasEnvironment = true
			break
		}
	}

	switch {
	case hasPerson && hasEnvironment:
		b.ShotComposition = "medium shot placing the subject within the environment"
		b.Lens = "35mm lens, natural perspective"
	case hasPerson:
		b.ShotComposition = "framed portrait composition"
		b.Lens = "85mm portrait lens, shallow depth of field"
	case hasEnvironment:
		b.ShotComposition = "wide establishing shot"
		b.Lens = "24mm wide-angle lens, deep focus"
	default:
		b.ShotComposition = "balanced medium shot"
		b.Lens = "50mm lens"
	}

	var verbs []string
	for _, v := range p.vocab.ActionVerbs {
		if containsWord(lowered, v) {
			verbs = append(verbs, v)
		}
	}
	if len(verbs) > 0 {
		b.Action = "natural motion emphasizing " + strings.Join(verbs, ", ")
	} else {
		b.Action = "still, composed moment"
	}

	var emotions []string
	for _, e := range p.vocab.EmotionWords {
		if containsWord(lowered, e) {
			emotions = append(emotions, e)
		}
	}
	if len(emotions) > 0 {
		b.Cinematography = strings.Join(emotions, ", ") + " mood"
	} else {
		b.Cinematography = "cinematic tone"
	}

	if containsAnyWord(lowered, []string{"text", "title", "lettering", "typography", "sign"}) {
		b.TextElements = "render any quoted text accurately and legibly"
	} else {
		b.TextElements = "no text elements"
	}

	b.Style = "cohesive photographic style"
	return b
}

// Serialize flattens the breakdown to the single string a provider accepts.
// The subject/scene section is emitted verbatim.
func (b *Breakdown) Serialize() string {
	sections := []struct{ label, value string }{
		{"Shot", b.ShotComposition},
		{"Lens", b.Lens},
		{"Subject and scene", b.SubjectScene},
		{"Action", b.Action},
		{"Cinematography", b.Cinematography},
		{"Text", b.TextElements},
		{"Style", b.Style},
	}

	var parts []string
	for _, s := range sections {
		if s.value != "" {
			parts = append(parts, s.label+": "+s.value)
		}
	}
	return strings.Join(parts, ". ")
}

func containsWord(lowered, term string) bool {
	if strings.ContainsRune(term, ' ') {
		return strings.Contains(lowered, term)
	}
	for _, f := range strings.Fields(lowered) {
		if strings.Trim(f, ".,!?;:'\"()[]") == term {
			return true
		}
	}
	return false
}

func containsAnyWord(lowered string, terms []string) bool {
	for _, t := range terms {
		if containsWord(lowered, t) {
			return true
		}
	}
	return false
}
