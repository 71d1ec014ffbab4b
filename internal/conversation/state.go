package conversation

import (
	"sync"

	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/selection"
	"github.com/neoKode1/directorchair-core/internal/store"
)

// maxUserContext bounds how many recent turns are kept for advisory replies.
const maxUserContext = 12

// State is the only mutable object a session owns. It is guarded by its own
// mutex because the selection and augmentation layers read it through their
// view interfaces while a turn is in flight.
type State struct {
	mu sync.Mutex

	sessionID            string
	currentIntent        *intent.Intent
	pendingDelegations   []*selection.Delegation
	completedDelegations []*selection.Delegation
	userContext          []string
	preferences          map[catalog.Category]store.Preference
	activeDirector       string
	lastProducedAssetRef string
	generationAuthorized bool
	pendingActionSubtype intent.ActionSubtype
}

func newState(sessionID string) *State {
	return &State{
		sessionID:   sessionID,
		preferences: make(map[catalog.Category]store.Preference),
	}
}

// Preference satisfies the selection engine's session view.
func (s *State) Preference(cat catalog.Category) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.preferences[cat]
	return p.ModelID, p.Disabled
}

func (s *State) PendingActionSubtype() intent.ActionSubtype {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingActionSubtype
}

func (s *State) LastProducedAssetRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProducedAssetRef
}

func (s *State) ActiveDirector() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeDirector
}

// RecordProducedAsset satisfies the workflow result recorder.
func (s *State) RecordProducedAsset(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProducedAssetRef = ref
}

func (s *State) setIntent(in intent.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentIntent = &in
	if in.ActionSubtype != intent.SubtypeNone {
		s.pendingActionSubtype = in.ActionSubtype
	}
}

func (s *State) rememberTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userContext = append(s.userContext, text)
	if len(s.userContext) > maxUserContext {
		s.userContext = s.userContext[len(s.userContext)-maxUserContext:]
	}
}

func (s *State) recentContext() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.userContext))
	copy(out, s.userContext)
	return out
}

func (s *State) addPending(d *selection.Delegation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingDelegations = append(s.pendingDelegations, d)
}

// completeWorkflow confirms every pending delegation and closes the
// authorization window, so the next generation turn plans afresh and asks
// for authorization again.
func (s *State) completeWorkflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedDelegations = append(s.completedDelegations, s.pendingDelegations...)
	s.pendingDelegations = nil
	s.currentIntent = nil
	s.generationAuthorized = false
}

// rejectPending discards pending delegations without confirming them. Used
// when their workflow failed or was superseded by a newer plan.
func (s *State) rejectPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingDelegations = nil
}

func (s *State) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingDelegations)
}

func (s *State) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completedDelegations)
}

func (s *State) authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationAuthorized
}

func (s *State) setAuthorized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generationAuthorized = v
}

// reset clears turn-scoped state, keeping preferences, the active director,
// completed work, and conversational memory.
func (s *State) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentIntent = nil
	s.pendingDelegations = nil
	s.generationAuthorized = false
	s.pendingActionSubtype = intent.SubtypeNone
}
