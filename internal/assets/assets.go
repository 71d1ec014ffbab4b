// Package assets provides embedded static data tables and prompt templates.
//
// Keyword vocabularies, the capability catalog, director profiles, the content
// policy table, negative prompts, and seed pools are all declarative JSON
// embedded at compile time, so classification and selection behavior can be
// tuned without touching logic.
package assets

import (
	_ "embed"
)

// --- Data tables ---

// KeywordsJSON holds the classifier and augmentation vocabularies.
//
//go:embed data/keywords.json
var KeywordsJSON []byte

// CapabilitiesJSON holds the raw generation back-end descriptors the
// capability registry is built from.
//
//go:embed data/capabilities.json
var CapabilitiesJSON []byte

// DirectorsJSON holds the director style profiles and their signature phrases.
//
//go:embed data/directors.json
var DirectorsJSON []byte

// ContentPolicyJSON holds the ordered banned-term substitution table and its
// regex fallbacks.
//
//go:embed data/content_policy.json
var ContentPolicyJSON []byte

// NegativePromptsJSON holds the per-category negative prompt term lists.
//
//go:embed data/negative_prompts.json
var NegativePromptsJSON []byte

// SeedPoolsJSON holds the named style seed pools and their marker vocabularies.
//
//go:embed data/seed_pools.json
var SeedPoolsJSON []byte

// --- Advisory system prompts ---

// RescoreSystemPrompt constrains the advisory intent re-scoring pass to
// keyword/confidence refinement only.
//
//go:embed prompts/rescore-system.txt
var RescoreSystemPrompt string

// RewriteSystemPrompt constrains the advisory prompt rewrite pass.
//
//go:embed prompts/rewrite-system.txt
var RewriteSystemPrompt string

// ChatSystemPrompt is used for free-form conversational replies when a turn
// does not require generation.
//
//go:embed prompts/chat-system.txt
var ChatSystemPrompt string
