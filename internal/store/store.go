// Package store persists per-session preferences, the active director, and
// workflow audit records.
package store

import (
	"context"
	"errors"

	"github.com/neoKode1/directorchair-core/internal/catalog"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Preference is the stored per-category model choice. Disabled means the
// user opted the category out of generation entirely.
type Preference struct {
	ModelID  string `json:"modelId" dynamodbav:"modelId"`
	Disabled bool   `json:"disabled" dynamodbav:"disabled"`
}

// PreferenceStore is the persistence boundary for conversation sessions.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, sessionID string) (map[catalog.Category]Preference, error)
	SetPreference(ctx context.Context, sessionID string, cat catalog.Category, pref Preference) error
	GetActiveDirector(ctx context.Context, sessionID string) (string, error)
	SetActiveDirector(ctx context.Context, sessionID, name string) error
	PutWorkflowAudit(ctx context.Context, sessionID, workflowID string, payload interface{}) error
	GetWorkflowAudit(ctx context.Context, sessionID, workflowID string, out interface{}) error
}
