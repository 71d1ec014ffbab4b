// Package director holds the cinematic style profiles used by prompt fusion.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neoKode1/directorchair-core/internal/assets"
)

// Profile describes one director's visual vocabulary. Every list is a pool
// the fusion pass samples from.
type Profile struct {
	Name             string   `json:"name"`
	Genres           []string `json:"genres"`
	VisualKeywords   []string `json:"visual_keywords"`
	CompositionStyle []string `json:"composition_style"`
	CameraMotion     []string `json:"camera_motion"`
	Lighting         []string `json:"lighting"`
	ColorPalette     []string `json:"color_palette"`
	SettingTropes    []string `json:"setting_tropes"`
}

// ExtractedStyle is the result of analyzing a reference image for style cues.
type ExtractedStyle struct {
	Lighting     string
	ColorPalette string
	Composition  string
	Mood         string
}

// StyleExtractor derives style cues from a reference image. Implementations
// typically call a vision model; fusion treats a nil extractor or an error as
// "no reference style".
type StyleExtractor interface {
	ExtractStyle(ctx context.Context, imageRef string) (*ExtractedStyle, error)
}

type profileFile struct {
	Profiles         []Profile         `json:"profiles"`
	SignaturePhrases map[string]string `json:"signature_phrases"`
}

// Catalog is the loaded set of director profiles.
type Catalog struct {
	byName     map[string]*Profile
	ordered    []*Profile
	signatures map[string]string
}

// Load parses the embedded director profiles.
func Load() (*Catalog, error) {
	var f profileFile
	if err := json.Unmarshal(assets.DirectorsJSON, &f); err != nil {
		return nil, fmt.Errorf("parse embedded director profiles: %w", err)
	}

	c := &Catalog{
		byName:     make(map[string]*Profile, len(f.Profiles)),
		signatures: make(map[string]string, len(f.SignaturePhrases)),
	}
	for i := range f.Profiles {
		p := &f.Profiles[i]
		c.byName[strings.ToLower(p.Name)] = p
		c.ordered = append(c.ordered, p)
	}
	for name, phrase := range f.SignaturePhrases {
		c.signatures[strings.ToLower(name)] = phrase
	}
	return c, nil
}

// Get returns the profile whose name matches, case-insensitively. Partial
// names resolve when they match exactly one profile ("nolan", "wes").
func (c *Catalog) Get(name string) *Profile {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := c.byName[key]; ok {
		return p
	}

	var match *Profile
	for lowered, p := range c.byName {
		if strings.Contains(lowered, key) && key != "" {
			if match != nil {
				return nil
			}
			match = p
		}
	}
	return match
}

// All returns the profiles in catalog order.
func (c *Catalog) All() []*Profile {
	return c.ordered
}

// SignaturePhrase returns the fixed trailing phrase for a director, or ""
// when none is defined.
func (c *Catalog) SignaturePhrase(name string) string {
	return c.signatures[strings.ToLower(strings.TrimSpace(name))]
}
