// Package jobs provides identifiers for delegations and workflows.
package jobs

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// ID prefixes used across the decision core.
const (
	WorkflowPrefix   = "wf-"
	DelegationPrefix = "del-"
	StepPrefix       = "step-"
)

// GenerateID creates a new cryptographically random ID with the given prefix.
// The prefix should include a trailing dash, e.g. "wf-", "del-".
func GenerateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s id", prefix)
	}
	return prefix + hex.EncodeToString(b)
}
