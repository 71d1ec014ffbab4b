package augment

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/assets"
)

// policyRule is one banned-term substitution. Term rules are matched on word
// boundaries, case-insensitively, in table order.
type policyRule struct {
	Term        string `json:"term"`
	Replacement string `json:"replacement"`
	Reason      string `json:"reason"`

	re *regexp.Regexp
}

type regexRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Reason      string `json:"reason"`

	re *regexp.Regexp
}

type policyTable struct {
	rules    []policyRule
	fallback []regexRule
}

func loadPolicyTable() (*policyTable, error) {
	var raw struct {
		Rules          []policyRule `json:"rules"`
		RegexFallbacks []regexRule  `json:"regex_fallbacks"`
	}
	if err := json.Unmarshal(assets.ContentPolicyJSON, &raw); err != nil {
		return nil, fmt.Errorf("parse embedded content policy: %w", err)
	}

	t := &policyTable{}
	for _, r := range raw.Rules {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(r.Term) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile policy term %q: %w", r.Term, err)
		}
		r.re = re
		t.rules = append(t.rules, r)
	}
	for _, r := range raw.RegexFallbacks {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile policy fallback %q: %w", r.Pattern, err)
		}
		r.re = re
		t.fallback = append(t.fallback, r)
	}
	return t, nil
}

// apply rewrites every policy hit and records it. This pass never rejects a
// prompt.
func (t *policyTable) apply(prompt string, corrections []Correction) (string, []Correction) {
	for _, r := range t.rules {
		if !r.re.MatchString(prompt) {
			continue
		}
		matched := r.re.FindString(prompt)
		prompt = r.re.ReplaceAllString(prompt, r.Replacement)
		corrections = append(corrections, Correction{
			Pass:        "content-policy",
			Original:    matched,
			Replacement: r.Replacement,
			Reason:      r.Reason,
		})
		log.Info().
			Str("reason", r.Reason).
			Str("replacement", r.Replacement).
			Msg("Content policy substitution applied")
	}
	for _, r := range t.fallback {
		if !r.re.MatchString(prompt) {
			continue
		}
		matched := r.re.FindString(prompt)
		prompt = r.re.ReplaceAllString(prompt, r.Replacement)
		corrections = append(corrections, Correction{
			Pass:        "content-policy",
			Original:    matched,
			Replacement: r.Replacement,
			Reason:      r.Reason,
		})
		log.Info().
			Str("reason", r.Reason).
			Str("replacement", r.Replacement).
			Msg("Content policy fallback substitution applied")
	}
	return prompt, corrections
}

// seedPool is one named style with its curated seeds.
type seedPool struct {
	Name    string   `json:"name"`
	Markers []string `json:"markers"`
	Seeds   []int    `json:"seeds"`
}

type seedPools struct {
	Styles       []seedPool `json:"styles"`
	DefaultStyle string     `json:"default_style"`
	DefaultSeeds []int      `json:"default_seeds"`
}

func loadSeedPools() (*seedPools, error) {
	var pools seedPools
	if err := json.Unmarshal(assets.SeedPoolsJSON, &pools); err != nil {
		return nil, fmt.Errorf("parse embedded seed pools: %w", err)
	}
	if len(pools.DefaultSeeds) == 0 {
		return nil, fmt.Errorf("embedded seed pools missing default seeds")
	}
	return &pools, nil
}

// pick classifies the prompt into a style by first marker hit in table order
// and draws uniformly from that pool.
func (s *seedPools) pick(rng *rand.Rand, prompt string) (string, int) {
	lowered := strings.ToLower(prompt)
	for _, pool := range s.Styles {
		for _, marker := range pool.Markers {
			if strings.Contains(lowered, marker) && len(pool.Seeds) > 0 {
				return pool.Name, pool.Seeds[rng.Intn(len(pool.Seeds))]
			}
		}
	}
	return s.DefaultStyle, s.DefaultSeeds[rng.Intn(len(s.DefaultSeeds))]
}
