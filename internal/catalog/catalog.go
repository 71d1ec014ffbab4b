// Package catalog maintains the registry of generation back-ends.
//
// The registry is built once at startup from the embedded descriptor list and
// is read-only afterwards, so it can be shared across sessions without
// locking. Strengths, limitations, and best-use notes are derived from
// substring rules over each descriptor's id and category rather than being
// hand-maintained per model.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/assets"
)

// Category is the content category a capability serves.
type Category string

// Content categories understood by the decision core.
const (
	CategoryImage         Category = "image"
	CategoryVideo         Category = "video"
	CategoryAudio         Category = "audio"
	CategoryVoice         Category = "voice"
	CategoryText          Category = "text"
	CategoryAnalysis      Category = "analysis"
	CategoryClarification Category = "clarification"
)

// Valid reports whether c is one of the fixed category values.
func (c Category) Valid() bool {
	switch c {
	case CategoryImage, CategoryVideo, CategoryAudio, CategoryVoice,
		CategoryText, CategoryAnalysis, CategoryClarification:
		return true
	}
	return false
}

// Efficiency tiers derived from the capability id.
const (
	EfficiencyHigh   = "high"
	EfficiencyMedium = "medium"
	EfficiencyLow    = "low"
)

// InputAsset kinds a capability accepts.
const (
	InputText  = "text"
	InputImage = "image"
)

// Descriptor is a raw endpoint descriptor as it appears in the embedded
// catalog data.
type Descriptor struct {
	ID                 string   `json:"id"`
	Category           Category `json:"category"`
	Label              string   `json:"label"`
	Description        string   `json:"description"`
	AcceptsInputAssets []string `json:"accepts_input_assets"`
}

// ModelCapability is a registered generation back-end plus derived metadata.
// Immutable after registry construction.
type ModelCapability struct {
	ID          string
	Category    Category
	Label       string
	Description string
	Strengths   []string
	Limitations []string
	BestFor     []string
	Efficiency  string

	acceptsInputAssets map[string]bool
}

// AcceptsInput reports whether the capability accepts the given input asset
// kind ("text", "image").
func (c *ModelCapability) AcceptsInput(kind string) bool {
	return c.acceptsInputAssets[kind]
}

// Registry is the immutable capability catalog.
type Registry struct {
	byID       map[string]*ModelCapability
	byCategory map[Category][]*ModelCapability
	ordered    []*ModelCapability
}

// Load builds the registry from the embedded descriptor list.
func Load() (*Registry, error) {
	var descriptors []Descriptor
	if err := json.Unmarshal(assets.CapabilitiesJSON, &descriptors); err != nil {
		return nil, fmt.Errorf("parse embedded capability catalog: %w", err)
	}
	return New(descriptors), nil
}

// New builds a registry from raw descriptors. Descriptors without an id are
// skipped with a warning; they must not take down startup.
func New(descriptors []Descriptor) *Registry {
	r := &Registry{
		byID:       make(map[string]*ModelCapability),
		byCategory: make(map[Category][]*ModelCapability),
	}

	for i, d := range descriptors {
		if d.ID == "" {
			log.Warn().Int("index", i).Str("label", d.Label).Msg("Skipping capability descriptor without id")
			continue
		}
		if !d.Category.Valid() {
			log.Warn().Str("id", d.ID).Str("category", string(d.Category)).Msg("Skipping capability descriptor with unknown category")
			continue
		}

		cap := derive(d)
		r.byID[cap.ID] = cap
		r.byCategory[cap.Category] = append(r.byCategory[cap.Category], cap)
		r.ordered = append(r.ordered, cap)
	}

	log.Debug().Int("capabilities", len(r.ordered)).Msg("Capability registry built")
	return r
}

// derive fills in strengths/limitations/bestFor/efficiency from substring
// rules over the descriptor id and category.
func derive(d Descriptor) *ModelCapability {
	cap := &ModelCapability{
		ID:                 d.ID,
		Category:           d.Category,
		Label:              d.Label,
		Description:        d.Description,
		Efficiency:         EfficiencyMedium,
		acceptsInputAssets: make(map[string]bool),
	}
	for _, a := range d.AcceptsInputAssets {
		cap.acceptsInputAssets[a] = true
	}

	id := strings.ToLower(d.ID)

	// Efficiency tier from speed markers in the id.
	switch {
	case containsAny(id, "schnell", "fast", "turbo", "flash"):
		cap.Efficiency = EfficiencyHigh
		cap.Strengths = append(cap.Strengths, "rapid iteration")
		cap.BestFor = append(cap.BestFor, "prototyping and drafts")
		cap.Limitations = append(cap.Limitations, "less fine detail than flagship models")
	case containsAny(id, "ultra", "master", "large", "pro"):
		cap.Efficiency = EfficiencyLow
		cap.Strengths = append(cap.Strengths, "maximum output fidelity")
		cap.BestFor = append(cap.BestFor, "final deliverables")
		cap.Limitations = append(cap.Limitations, "longer generation times")
	}

	// Character consistency.
	if containsAny(id, "pulid", "consistent", "character") {
		cap.Strengths = append(cap.Strengths, "character consistency across generations")
		cap.BestFor = append(cap.BestFor, "recurring subjects and consistent faces")
	}

	// Editing.
	if containsAny(id, "kontext", "edit", "inpaint") {
		cap.Strengths = append(cap.Strengths, "instruction-based editing of a source image")
		cap.BestFor = append(cap.BestFor, "targeted edits and context swaps")
		cap.Limitations = append(cap.Limitations, "requires a reference image")
	}

	// Typography.
	if containsAny(id, "ideogram") {
		cap.Strengths = append(cap.Strengths, "accurate in-image text rendering")
		cap.BestFor = append(cap.BestFor, "posters and typography-heavy layouts")
	}

	// Camera control / multi-angle coverage.
	if containsAny(id, "kling", "camera") {
		cap.Strengths = append(cap.Strengths, "camera control and multi-angle coverage")
		cap.BestFor = append(cap.BestFor, "cinematic sequences and angle variations")
	}

	// Natural voice synthesis.
	if d.Category == CategoryVoice && containsAny(id, "playai", "natural") {
		cap.Strengths = append(cap.Strengths, "natural conversational voice synthesis")
		cap.BestFor = append(cap.BestFor, "narration and dialogue")
	}

	if cap.acceptsInputAssets[InputImage] {
		cap.Strengths = append(cap.Strengths, "accepts a reference image input")
	} else if d.Category == CategoryImage || d.Category == CategoryVideo {
		cap.Limitations = append(cap.Limitations, "text input only, no reference image")
	}

	return cap
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Get returns the capability with the given id, or nil.
func (r *Registry) Get(id string) *ModelCapability {
	return r.byID[id]
}

// ForCategory returns the capabilities registered for a category, in catalog
// order. The returned slice must not be modified.
func (r *Registry) ForCategory(c Category) []*ModelCapability {
	return r.byCategory[c]
}

// All returns every registered capability in catalog order.
func (r *Registry) All() []*ModelCapability {
	return r.ordered
}

// Resolve matches free text against capability labels and ids. It returns the
// first capability whose label or id (or the id's final path segment) appears
// in the text, case-insensitively. Longer labels are preferred over shorter
// ones so "flux pro 1.1 ultra" beats "flux".
func (r *Registry) Resolve(text string) *ModelCapability {
	lowered := strings.ToLower(text)

	var best *ModelCapability
	bestLen := 0
	for _, cap := range r.ordered {
		for _, needle := range resolveNeedles(cap) {
			if len(needle) > bestLen && containsNeedle(lowered, needle) {
				best = cap
				bestLen = len(needle)
			}
		}
	}
	return best
}

// containsNeedle matches multi-word and path-like needles as substrings, and
// single-word needles only between letter boundaries so "kling" does not fire
// inside "walking". Digits do not break a match, letting "veo" claim "veo3".
func containsNeedle(text, needle string) bool {
	if needle == "" {
		return false
	}
	if strings.ContainsAny(needle, " /") {
		return strings.Contains(text, needle)
	}
	for idx := 0; ; {
		i := strings.Index(text[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		idx = end
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// resolveNeedles returns the lowercase substrings a capability can be
// addressed by: its full label, its id, and meaningful label words. A
// capability may carry an id without a label, so label needles are optional.
func resolveNeedles(cap *ModelCapability) []string {
	needles := []string{strings.ToLower(cap.ID)}
	label := strings.ToLower(strings.TrimSpace(cap.Label))
	if fields := strings.Fields(label); len(fields) > 0 {
		needles = append(needles, label)
		// First word of the label ("flux", "kling", "veo") for casual
		// references, skipping generic short words.
		if first := fields[0]; len(first) >= 3 {
			needles = append(needles, first)
		}
	}
	// Final id path segment ("schnell", "kontext", "veo3"), unless it is a
	// generic speed or tier word that would collide with ordinary prose.
	if i := strings.LastIndex(cap.ID, "/"); i >= 0 {
		seg := strings.ToLower(cap.ID[i+1:])
		if len(seg) >= 4 && !genericSegments[seg] {
			needles = append(needles, seg)
		}
	}
	return needles
}

var genericSegments = map[string]bool{
	"fast":   true,
	"flash":  true,
	"turbo":  true,
	"master": true,
}

// Snapshot returns the registered ids per category for diagnostics. Used in
// selection-failure logs so the attempted catalog state is visible.
func (r *Registry) Snapshot() map[Category][]string {
	snap := make(map[Category][]string, len(r.byCategory))
	for cat, caps := range r.byCategory {
		ids := make([]string, 0, len(caps))
		for _, c := range caps {
			ids = append(ids, c.ID)
		}
		snap[cat] = ids
	}
	return snap
}
