// Package selection picks the generation back-end for an intent under a
// layered priority policy: explicit user override, then action-subtype
// routing, then per-category default policies ending in a quality-ranked
// fallback chain. Each layer's winner stops evaluation.
package selection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/jobs"
)

// ErrNoCapability is returned when nothing in the registry can serve the
// requested category. Callers must not proceed with an undefined model id.
var ErrNoCapability = errors.New("no suitable capability for category")

// TimeRange is a closed [Min, Max] duration estimate.
type TimeRange struct {
	Min time.Duration
	Max time.Duration
}

func (t TimeRange) String() string {
	return fmt.Sprintf("%s-%s", t.Min, t.Max)
}

// Delegation is the engine's decision of which capability to invoke.
type Delegation struct {
	ID             string
	ModelID        string
	Reason         string
	Confidence     float64
	EstimatedTime  TimeRange
	Parameters     map[string]interface{}
	IntentCategory catalog.Category
}

// SessionView is the read-only slice of conversation state the engine
// consults: stored preferences, a pending action subtype, and the last
// produced asset.
type SessionView interface {
	// Preference returns the stored model preference for a category.
	// disabled is true when the user has opted the category out entirely.
	Preference(cat catalog.Category) (modelID string, disabled bool)
	PendingActionSubtype() intent.ActionSubtype
	LastProducedAssetRef() string
}

// Quality-ranked fallback chains, walked top-down until a registered
// capability is found. Ids are catalog data; swapping the embedded catalog
// swaps these defaults.
var (
	imageQualityChain = []string{
		"fal-ai/flux-pro/v1.1-ultra",
		"fal-ai/stable-diffusion-v35-large",
		"fal-ai/luma-photon/flash",
		"fal-ai/flux/schnell",
	}
	textToVideoChain = []string{
		"fal-ai/veo3",
		"fal-ai/kling-video/v2.1/master",
		"fal-ai/luma-dream-machine/ray-2",
		"fal-ai/ltx-video/fast",
	}
	imageToVideoChain = []string{
		"fal-ai/kling-video/v2.1/master",
		"fal-ai/minimax/hailuo-02",
		"fal-ai/luma-dream-machine/ray-2",
	}

	// subtypeCapabilities routes each image-action subtype to its fixed
	// capability.
	subtypeCapabilities = map[intent.ActionSubtype]string{
		intent.SubtypeStyleTransfer: "fal-ai/flux-pro/kontext",
		intent.SubtypeEdit:          "fal-ai/flux-pro/kontext",
		intent.SubtypeContextSwap:   "fal-ai/flux-pro/kontext",
		intent.SubtypeFrameExtract:  "fal-ai/flux-pro/kontext",
		intent.SubtypeAnimate:       "fal-ai/kling-video/v2.1/master",
	}

	// overrideMarkers introduce an explicit model reference in the request.
	overrideMarkers = []string{"using ", "with ", "via ", "on ", "through "}
)

// Engine selects capabilities against an immutable registry.
type Engine struct {
	registry *catalog.Registry
	vocab    *intent.Vocabulary
}

// NewEngine creates a selection engine.
func NewEngine(registry *catalog.Registry, vocab *intent.Vocabulary) *Engine {
	return &Engine{registry: registry, vocab: vocab}
}

// Select resolves a delegation for the intent, or (nil, nil) when the intent
// does not require generation or the user disabled the category.
func (e *Engine) Select(in intent.Intent, sess SessionView) (*Delegation, error) {
	if !in.RequiresGeneration {
		return nil, nil
	}

	var preferredID string
	if sess != nil {
		modelID, disabled := sess.Preference(in.Category)
		if disabled {
			log.Info().
				Str("category", string(in.Category)).
				Msg("Generation disabled by user preference for category")
			return nil, nil
		}
		preferredID = modelID
	}

	// 1. Explicit override: user intent always outranks heuristics.
	if cap := e.explicitOverride(in.RawContext); cap != nil {
		return e.delegate(in, cap, "explicit user override in request"), nil
	}

	// 2. Action-subtype routing.
	if cap, reason := e.subtypeRoute(in, sess, preferredID); cap != nil {
		return e.delegate(in, cap, reason), nil
	}

	// 3. Stored per-category preference, when it resolves.
	if preferredID != "" {
		if cap := e.registry.Get(preferredID); cap != nil && cap.Category == in.Category {
			return e.delegate(in, cap, "stored user preference for category"), nil
		}
		log.Warn().
			Str("preferred", preferredID).
			Str("category", string(in.Category)).
			Msg("Stored preference does not resolve in registry, falling back to defaults")
	}

	// 4. Category default policies.
	if cap, reason := e.categoryDefault(in, sess); cap != nil {
		return e.delegate(in, cap, reason), nil
	}

	// Hard failure: log enough context to diagnose the catalog state.
	log.Error().
		Str("category", string(in.Category)).
		Str("rawContext", in.RawContext).
		Interface("registry", e.registry.Snapshot()).
		Msg("No capability resolves for category")
	return nil, fmt.Errorf("%w: %s", ErrNoCapability, in.Category)
}

// explicitOverride scans the raw request for "using X / with X / via X"
// patterns or a literal capability label, resolved against the registry.
func (e *Engine) explicitOverride(raw string) *catalog.ModelCapability {
	lowered := strings.ToLower(raw)

	for _, marker := range overrideMarkers {
		idx := strings.Index(lowered, marker)
		if idx < 0 {
			continue
		}
		tail := lowered[idx+len(marker):]
		// Bound the candidate phrase at the next clause break.
		if cut := strings.IndexAny(tail, ",.;"); cut >= 0 {
			tail = tail[:cut]
		}
		if cap := e.registry.Resolve(tail); cap != nil {
			log.Debug().
				Str("marker", strings.TrimSpace(marker)).
				Str("model", cap.ID).
				Msg("Explicit model override detected")
			return cap
		}
	}

	// A literal label/id mention without a marker still counts.
	return e.registry.Resolve(lowered)
}

// subtypeRoute routes pending or classified image-action subtypes to their
// fixed capability, honoring a user preference within the subtype's category.
func (e *Engine) subtypeRoute(in intent.Intent, sess SessionView, preferredID string) (*catalog.ModelCapability, string) {
	subtype := in.ActionSubtype
	if subtype == intent.SubtypeNone && sess != nil {
		subtype = sess.PendingActionSubtype()
	}
	if subtype == intent.SubtypeNone {
		return nil, ""
	}

	fixedID, ok := subtypeCapabilities[subtype]
	if !ok {
		return nil, ""
	}
	fixed := e.registry.Get(fixedID)
	if fixed == nil {
		log.Warn().
			Str("subtype", string(subtype)).
			Str("capability", fixedID).
			Msg("Subtype capability missing from registry, falling back to category defaults")
		return nil, ""
	}

	// A stored preference in the same category wins within the subtype's
	// compatible set, as long as it also accepts an image input.
	if preferredID != "" {
		if pref := e.registry.Get(preferredID); pref != nil &&
			pref.Category == fixed.Category && pref.AcceptsInput(catalog.InputImage) {
			return pref, fmt.Sprintf("user preference within %s routing", subtype)
		}
	}

	return fixed, fmt.Sprintf("routed by action subtype %s", subtype)
}

// categoryDefault applies the per-category selection policy.
func (e *Engine) categoryDefault(in intent.Intent, sess SessionView) (*catalog.ModelCapability, string) {
	raw := strings.ToLower(in.RawContext)

	switch in.Category {
	case catalog.CategoryImage:
		if _, ok := containsFromVocab(raw, e.vocab.CharacterConsistency); ok {
			if cap := e.firstWithStrength(catalog.CategoryImage, "character consistency"); cap != nil {
				return cap, "character consistency requested"
			}
		}
		if _, ok := containsFromVocab(raw, e.vocab.VariationTerms); ok {
			// Variations re-render the same prompt; a capability demanding a
			// reference image would anchor every step to one frame.
			if cap := e.walkChain(imageQualityChain); cap != nil {
				return cap, "variation request routed to text-to-image"
			}
		}
		if cap := e.walkChain(imageQualityChain); cap != nil {
			return cap, "quality-ranked default for image"
		}

	case catalog.CategoryVideo:
		hasImage := in.AttachedImageRef != "" || (sess != nil && sess.LastProducedAssetRef() != "")
		multiAngle := false
		if _, ok := containsFromVocab(raw, e.vocab.MultiAngleTerms); ok {
			multiAngle = true
		}

		chain := textToVideoChain
		branch := "text-to-video"
		if hasImage {
			chain = imageToVideoChain
			branch = "image-to-video"
		}

		if multiAngle {
			if cap := e.firstWithStrength(catalog.CategoryVideo, "multi-angle"); cap != nil {
				if !hasImage || cap.AcceptsInput(catalog.InputImage) {
					return cap, "multi-angle coverage requested"
				}
			}
		}
		for _, id := range chain {
			cap := e.registry.Get(id)
			if cap == nil {
				continue
			}
			if hasImage && !cap.AcceptsInput(catalog.InputImage) {
				continue
			}
			return cap, fmt.Sprintf("quality-ranked default for %s", branch)
		}

	case catalog.CategoryVoice:
		if cap := e.firstWithStrength(catalog.CategoryVoice, "natural"); cap != nil {
			return cap, "natural voice synthesis preferred"
		}
		if caps := e.registry.ForCategory(catalog.CategoryVoice); len(caps) > 0 {
			return caps[0], "first available voice capability"
		}

	default:
		if caps := e.registry.ForCategory(in.Category); len(caps) > 0 {
			return caps[0], fmt.Sprintf("first available %s capability", in.Category)
		}
	}

	return nil, ""
}

// firstWithStrength returns the first capability of the category advertising
// a strength containing the marker.
func (e *Engine) firstWithStrength(cat catalog.Category, marker string) *catalog.ModelCapability {
	for _, cap := range e.registry.ForCategory(cat) {
		for _, s := range cap.Strengths {
			if strings.Contains(s, marker) {
				return cap
			}
		}
	}
	return nil
}

// walkChain returns the first chain entry present in the registry.
func (e *Engine) walkChain(chain []string) *catalog.ModelCapability {
	for _, id := range chain {
		if cap := e.registry.Get(id); cap != nil {
			return cap
		}
	}
	return nil
}

// delegate assembles the Delegation for a chosen capability.
func (e *Engine) delegate(in intent.Intent, cap *catalog.ModelCapability, reason string) *Delegation {
	d := &Delegation{
		ID:             jobs.GenerateID(jobs.DelegationPrefix),
		ModelID:        cap.ID,
		Reason:         reason,
		Confidence:     in.Confidence,
		EstimatedTime:  estimateTime(cap),
		IntentCategory: in.Category,
	}

	log.Info().
		Str("delegationId", d.ID).
		Str("model", d.ModelID).
		Str("reason", reason).
		Str("category", string(in.Category)).
		Str("estimated", d.EstimatedTime.String()).
		Msg("Selection complete")

	return d
}

// estimateTime derives the expected wait solely from the capability's
// efficiency tier, adjusted by category.
func estimateTime(cap *catalog.ModelCapability) TimeRange {
	var tr TimeRange
	switch cap.Efficiency {
	case catalog.EfficiencyHigh:
		tr = TimeRange{Min: 30 * time.Second, Max: 120 * time.Second}
	case catalog.EfficiencyLow:
		tr = TimeRange{Min: 2 * time.Minute, Max: 10 * time.Minute}
	default:
		tr = TimeRange{Min: 1 * time.Minute, Max: 5 * time.Minute}
	}

	switch cap.Category {
	case catalog.CategoryVideo:
		// Video synthesis dominates queue time at every tier.
		tr.Min *= 2
		tr.Max *= 2
	case catalog.CategoryVoice, catalog.CategoryAudio:
		tr.Min /= 2
		tr.Max /= 2
		if tr.Min < 15*time.Second {
			tr.Min = 15 * time.Second
		}
	}
	return tr
}

// containsFromVocab is a tiny wrapper so policy code reads declaratively.
func containsFromVocab(text string, list []string) (string, bool) {
	for _, entry := range list {
		if strings.Contains(text, entry) {
			return entry, true
		}
	}
	return "", false
}
