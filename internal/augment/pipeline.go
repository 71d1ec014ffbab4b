// Package augment turns a classified request into final generation
// parameters through a fixed-order chain of passes. Every pass is pure given
// its inputs and degrades to identity on failure, so a broken advisory call
// or a malformed table entry never loses the user's prompt.
package augment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/advisory"
	"github.com/neoKode1/directorchair-core/internal/assets"
	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/director"
	"github.com/neoKode1/directorchair-core/internal/intent"
)

// Params is the provider-facing parameter map. Only generic names appear
// here; providers translate to their own fields.
type Params map[string]interface{}

// Correction records one automatic rewrite applied during augmentation.
type Correction struct {
	Pass        string `json:"pass"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Reason      string `json:"reason"`
}

// SessionView is the read-only conversation state augmentation consults.
type SessionView interface {
	ActiveDirector() string
	LastProducedAssetRef() string
}

// validAspectRatios is the provider-portable enum. Anything else falls back
// to the default.
var validAspectRatios = map[string]bool{
	"16:9": true, "9:16": true, "1:1": true,
	"4:3": true, "3:4": true, "21:9": true,
}

const defaultAspectRatio = "16:9"

// Per-category prompt character ceilings.
var lengthCeilings = map[catalog.Category]int{
	catalog.CategoryImage: 1500,
	catalog.CategoryVideo: 1200,
	catalog.CategoryAudio: 600,
	catalog.CategoryVoice: 600,
	catalog.CategoryText:  2000,
}

const defaultLengthCeiling = 1500

// breakdownLengthThreshold triggers the structured breakdown for long
// prompts even without narrative indicators.
const breakdownLengthThreshold = 350

// Options tune per-session pipeline behavior.
type Options struct {
	// AspectRatio overrides the default when it is a member of the enum.
	AspectRatio string
	// StyleExtractor, when set, contributes reference-image style cues to
	// director fusion.
	StyleExtractor director.StyleExtractor
}

// Pipeline owns the augmentation chain. The rand source is injected so
// fusion picks and seed draws are reproducible under a fixed seed.
type Pipeline struct {
	advisory  advisory.Service
	directors *director.Catalog
	vocab     *intent.Vocabulary
	rng       *rand.Rand
	opts      Options

	policy    *policyTable
	negatives map[string][]string
	seeds     *seedPools
}

// NewPipeline builds a pipeline over the embedded tables. A nil rng gets a
// time-seeded source; a nil advisory service disables the rewrite pass.
func NewPipeline(adv advisory.Service, dirs *director.Catalog, vocab *intent.Vocabulary, rng *rand.Rand, opts Options) (*Pipeline, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	policy, err := loadPolicyTable()
	if err != nil {
		return nil, err
	}

	var negatives map[string][]string
	if err := json.Unmarshal(assets.NegativePromptsJSON, &negatives); err != nil {
		return nil, fmt.Errorf("parse embedded negative prompts: %w", err)
	}

	seeds, err := loadSeedPools()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		advisory:  adv,
		directors: dirs,
		vocab:     vocab,
		rng:       rng,
		opts:      opts,
		policy:    policy,
		negatives: negatives,
		seeds:     seeds,
	}, nil
}

// BuildParameters runs the full chain and returns the provider parameter map
// plus every correction applied along the way.
func (p *Pipeline) BuildParameters(ctx context.Context, in intent.Intent, cap *catalog.ModelCapability, sess SessionView) (Params, []Correction) {
	prompt := strings.TrimSpace(in.RawContext)
	var corrections []Correction

	// 1. Advisory rewrite, single attempt, discard on any failure.
	prompt = p.rewrite(ctx, prompt, in.Category)

	// 2. Length ceiling and conflicting style terms.
	prompt, corrections = p.validate(prompt, in.Category, corrections)

	// 3. Director-style fusion.
	if sess != nil {
		if name := sess.ActiveDirector(); name != "" {
			prompt = p.fuse(ctx, prompt, name, referenceImage(in, sess, cap))
		}
	}

	// 4. Structured breakdown for narrative-dense or long prompts.
	if b := p.maybeBreakdown(prompt); b != nil {
		prompt = b.Serialize()
	}

	// 5. Content-policy substitution. Never fails, only rewrites.
	prompt, corrections = p.policy.apply(prompt, corrections)

	// 6 + 7. Assemble the final map.
	params := Params{
		"prompt":       prompt,
		"aspect_ratio": p.aspectRatio(),
	}
	if neg := strings.Join(p.negatives[string(in.Category)], ", "); neg != "" {
		params["negative_prompt"] = neg
	}

	style, seed := p.seeds.pick(p.rng, prompt)
	params["seed"] = seed

	p.categoryFields(params, in.Category)

	if ref := referenceImage(in, sess, cap); ref != "" {
		params["image_url"] = ref
	}

	log.Debug().
		Str("category", string(in.Category)).
		Str("model", cap.ID).
		Str("seedStyle", style).
		Int("corrections", len(corrections)).
		Msg("Augmentation complete")

	return params, corrections
}

// rewrite asks the advisory service for a light category-aware rewrite and
// keeps the original on any failure or empty answer.
func (p *Pipeline) rewrite(ctx context.Context, prompt string, cat catalog.Category) string {
	if p.advisory == nil || prompt == "" {
		return prompt
	}

	user := fmt.Sprintf("Target category: %s\nPrompt: %s", cat, prompt)
	out, err := p.advisory.Complete(ctx, assets.RewriteSystemPrompt, user)
	if err != nil {
		log.Warn().Err(err).Msg("Advisory rewrite failed, keeping original prompt")
		return prompt
	}
	out = strings.TrimSpace(out)
	if out == "" || len(out) > 4*len(prompt)+200 {
		// An empty or runaway rewrite is worse than none.
		return prompt
	}
	return out
}

// validate enforces the per-category length ceiling and strips the later of
// any conflicting style pair, keeping the first occurrence.
func (p *Pipeline) validate(prompt string, cat catalog.Category, corrections []Correction) (string, []Correction) {
	ceiling, ok := lengthCeilings[cat]
	if !ok {
		ceiling = defaultLengthCeiling
	}
	if len(prompt) > ceiling {
		// Clamp the cut to a rune boundary so a multi-byte character is never
		// split into invalid UTF-8.
		cut := ceiling
		for cut > 0 && !utf8.RuneStart(prompt[cut]) {
			cut--
		}
		truncated := strings.TrimSpace(prompt[:cut])
		corrections = append(corrections, Correction{
			Pass:        "validate",
			Original:    fmt.Sprintf("%d characters", len(prompt)),
			Replacement: fmt.Sprintf("%d characters", len(truncated)),
			Reason:      "prompt over category length ceiling",
		})
		prompt = truncated
	}

	for _, pair := range p.vocab.ConflictingStyles {
		if len(pair) != 2 {
			continue
		}
		first := termIndex(prompt, pair[0])
		second := termIndex(prompt, pair[1])
		if first < 0 || second < 0 {
			continue
		}
		keep, drop := pair[0], pair[1]
		if second < first {
			keep, drop = pair[1], pair[0]
		}
		prompt = removeTerm(prompt, drop)
		corrections = append(corrections, Correction{
			Pass:        "validate",
			Original:    drop,
			Replacement: "",
			Reason:      fmt.Sprintf("conflicts with earlier style term %q", keep),
		})
	}
	return prompt, corrections
}

// termRegexp matches term as whole words, case-insensitively, so "cool"
// never fires inside "coolant".
func termRegexp(term string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
}

// termIndex returns the byte offset of the first whole-word occurrence of
// term in prompt, or -1.
func termIndex(prompt, term string) int {
	re, err := termRegexp(term)
	if err != nil {
		return -1
	}
	loc := re.FindStringIndex(prompt)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// removeTerm strips the first whole-word occurrence of term from prompt,
// collapsing the whitespace it leaves behind.
func removeTerm(prompt, term string) string {
	re, err := termRegexp(term)
	if err != nil {
		return prompt
	}
	loc := re.FindStringIndex(prompt)
	if loc == nil {
		return prompt
	}
	out := prompt[:loc[0]] + prompt[loc[1]:]
	out = strings.ReplaceAll(out, "  ", " ")
	out = strings.ReplaceAll(out, " ,", ",")
	return strings.TrimSpace(out)
}

func (p *Pipeline) aspectRatio() string {
	if validAspectRatios[p.opts.AspectRatio] {
		return p.opts.AspectRatio
	}
	return defaultAspectRatio
}

// categoryFields attaches the required provider fields for the category.
func (p *Pipeline) categoryFields(params Params, cat catalog.Category) {
	switch cat {
	case catalog.CategoryImage:
		params["num_images"] = 1
		params["output_format"] = "png"
	case catalog.CategoryVideo:
		params["duration_seconds"] = 5
		params["resolution"] = "1080p"
	case catalog.CategoryAudio:
		params["duration_seconds"] = 30
	case catalog.CategoryVoice:
		params["voice_id"] = "narrator-default"
		params["output_format"] = "mp3"
	}
}

// referenceImage returns the reference to attach, or "" when the capability
// does not accept image input or no reference exists. An explicit upload
// outranks the last produced asset.
func referenceImage(in intent.Intent, sess SessionView, cap *catalog.ModelCapability) string {
	if cap == nil || !cap.AcceptsInput(catalog.InputImage) {
		return ""
	}
	if in.AttachedImageRef != "" {
		return in.AttachedImageRef
	}
	if sess != nil {
		// Follow-up turns without a fresh upload operate on the last output,
		// matching the reference the selection branch already committed to.
		return sess.LastProducedAssetRef()
	}
	return ""
}
