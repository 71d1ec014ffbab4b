package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// weight bounds for emphasis markers. Inputs outside the range are clamped,
// never rejected.
const (
	minWeight = 0.1
	maxWeight = 2.0
)

// fusionResult is ephemeral; only the enhanced prompt flows forward.
type fusionResult struct {
	enhancedPrompt string
	appliedStyle   string
	weightings     map[string]float64
	instructions   []string
}

// clampWeight forces a fusion weight into [minWeight, maxWeight].
func clampWeight(w float64) float64 {
	if w < minWeight {
		return minWeight
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}

// fuse blends the active director's style into the prompt. One uniform pick
// per style pool, visual and lighting terms carry explicit emphasis weights,
// composition and color stay unweighted so emphasis never compounds.
func (p *Pipeline) fuse(ctx context.Context, prompt, directorName, imageRef string) string {
	profile := p.directors.Get(directorName)
	if profile == nil {
		log.Warn().Str("director", directorName).Msg("Active director not in catalog, skipping fusion")
		return prompt
	}

	res := fusionResult{
		appliedStyle: profile.Name,
		weightings:   make(map[string]float64),
	}

	mentionsWeather := p.mentionsWeather(prompt)

	visual := p.pickFiltered(profile.VisualKeywords, mentionsWeather)
	composition := p.pickOne(profile.CompositionStyle)
	lighting := p.pickFiltered(profile.Lighting, mentionsWeather)
	color := p.pickOne(profile.ColorPalette)

	var parts []string
	if visual != "" {
		w := clampWeight(1.2 + p.rng.Float64()*0.1)
		res.weightings[visual] = w
		parts = append(parts, fmt.Sprintf("(%s:%.2f)", visual, w))
	}
	if composition != "" {
		parts = append(parts, composition)
	}
	if lighting != "" {
		w := clampWeight(1.2 + p.rng.Float64()*0.1)
		res.weightings[lighting] = w
		parts = append(parts, fmt.Sprintf("(%s:%.2f)", lighting, w))
	}
	if color != "" {
		parts = append(parts, color+" palette")
	}

	// Reference-image style cues join unweighted.
	if imageRef != "" && p.opts.StyleExtractor != nil {
		if style, err := p.opts.StyleExtractor.ExtractStyle(ctx, imageRef); err != nil {
			log.Warn().Err(err).Msg("Style extraction failed, fusing without reference cues")
		} else if style != nil {
			for _, cue := range []string{style.Lighting, style.Composition, style.Mood} {
				if cue != "" {
					parts = append(parts, cue)
				}
			}
		}
	}

	if phrase := p.directors.SignaturePhrase(profile.Name); phrase != "" {
		parts = append(parts, phrase)
	}

	res.instructions = parts
	res.enhancedPrompt = prompt
	if len(parts) > 0 {
		res.enhancedPrompt = prompt + ", " + strings.Join(parts, ", ")
	}

	log.Debug().
		Str("director", res.appliedStyle).
		Int("instructions", len(res.instructions)).
		Msg("Director fusion applied")

	return res.enhancedPrompt
}

// pickOne draws one element uniformly from list.
func (p *Pipeline) pickOne(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[p.rng.Intn(len(list))]
}

// pickFiltered draws from list with weather-only terms removed unless the
// user's own prompt talks about weather.
func (p *Pipeline) pickFiltered(list []string, allowWeather bool) string {
	if allowWeather {
		return p.pickOne(list)
	}
	eligible := make([]string, 0, len(list))
	for _, term := range list {
		if !p.isWeatherTerm(term) {
			eligible = append(eligible, term)
		}
	}
	return p.pickOne(eligible)
}

func (p *Pipeline) mentionsWeather(prompt string) bool {
	lowered := strings.ToLower(prompt)
	for _, term := range p.vocab.WeatherTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

func (p *Pipeline) isWeatherTerm(term string) bool {
	lowered := strings.ToLower(term)
	for _, w := range p.vocab.WeatherTerms {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}
