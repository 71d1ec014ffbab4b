// Package conversation threads the decision core together: one engine per
// session, one turn in flight at a time, strict classify → select → augment →
// expand ordering.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/advisory"
	"github.com/neoKode1/directorchair-core/internal/assets"
	"github.com/neoKode1/directorchair-core/internal/augment"
	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/director"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/metrics"
	"github.com/neoKode1/directorchair-core/internal/provider"
	"github.com/neoKode1/directorchair-core/internal/selection"
	"github.com/neoKode1/directorchair-core/internal/store"
	"github.com/neoKode1/directorchair-core/internal/workflow"
)

// ErrTurnInFlight rejects a second concurrent turn on the same session.
var ErrTurnInFlight = errors.New("a turn is already in flight for this session")

// fallbackReply is the deterministic answer when the advisory service is
// unavailable.
const fallbackReply = "I can help you generate images, video, audio, or voice clips. Tell me what you would like to create."

// TurnResult is everything one processed turn produced.
type TurnResult struct {
	Reply       string
	Intent      intent.Intent
	Delegation  *selection.Delegation
	Workflow    *workflow.Workflow
	Corrections []augment.Correction
}

// Config wires an engine. Store and Directors are required; Advisory and
// Submitter are optional and degrade to deterministic replies and plan-only
// turns respectively.
type Config struct {
	SessionID    string
	Registry     *catalog.Registry
	Classifier   *intent.Classifier
	Selector     *selection.Engine
	Pipeline     *augment.Pipeline
	Orchestrator *workflow.Orchestrator
	Directors    *director.Catalog
	Store        store.PreferenceStore
	Advisory     advisory.Service
	Submitter    provider.Submitter
}

// Engine processes turns for a single session.
type Engine struct {
	cfg   Config
	state *State

	// turnMu serializes turns. TryLock so a second caller is rejected
	// immediately instead of queued.
	turnMu sync.Mutex

	pendingWorkflow *workflow.Workflow
}

// NewEngine creates a session engine and loads persisted preferences and the
// active director.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("conversation: session id is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation: preference store is required")
	}

	st := newState(cfg.SessionID)

	prefs, err := cfg.Store.GetPreferences(ctx, cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load preferences for %s: %w", cfg.SessionID, err)
	}
	for cat, p := range prefs {
		st.preferences[cat] = p
	}

	name, err := cfg.Store.GetActiveDirector(ctx, cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load active director for %s: %w", cfg.SessionID, err)
	}
	st.activeDirector = name

	log.Info().
		Str("sessionId", cfg.SessionID).
		Int("preferences", len(prefs)).
		Str("activeDirector", name).
		Msg("Conversation session initialized")

	return &Engine{cfg: cfg, state: st}, nil
}

// State exposes the session state for diagnostics.
func (e *Engine) State() *State { return e.state }

// ProcessTurn runs one user turn through the full decision chain.
func (e *Engine) ProcessTurn(ctx context.Context, text string, attachments []string) (*TurnResult, error) {
	if !e.turnMu.TryLock() {
		return nil, ErrTurnInFlight
	}
	defer e.turnMu.Unlock()

	rec := metrics.New().
		Operation("process-turn").
		Property("sessionId", e.state.sessionID)
	defer rec.Flush()

	e.state.rememberTurn(text)

	var attached string
	if len(attachments) > 0 {
		attached = attachments[0]
	}

	start := time.Now()
	in := e.cfg.Classifier.Classify(intent.Request{Text: text, AttachedImageRef: attached})
	if e.cfg.Advisory != nil {
		in = intent.Rescore(ctx, e.cfg.Advisory, in)
	}
	rec.Latency("ClassifyLatencyMs", time.Since(start)).
		Property("category", string(in.Category)).
		Property("confidence", in.Confidence)

	e.state.setIntent(in)

	if !in.RequiresGeneration || !generative(in.Category) {
		rec.Count("AdvisoryReply")
		return &TurnResult{Reply: e.chatReply(ctx, text), Intent: in}, nil
	}

	// No text capability ships in the catalog; answer text requests directly.
	if in.Category == catalog.CategoryText && len(e.cfg.Registry.ForCategory(catalog.CategoryText)) == 0 {
		rec.Count("AdvisoryReply")
		return &TurnResult{Reply: e.chatReply(ctx, text), Intent: in}, nil
	}

	start = time.Now()
	d, err := e.cfg.Selector.Select(in, e.state)
	rec.Latency("SelectLatencyMs", time.Since(start))
	if err != nil {
		rec.Count("SelectionFailed")
		return nil, err
	}
	if d == nil {
		return &TurnResult{
			Reply:  fmt.Sprintf("Generation for %s is turned off in your preferences. Use /prefer %s <model> to re-enable it.", in.Category, in.Category),
			Intent: in,
		}, nil
	}

	cap := e.cfg.Registry.Get(d.ModelID)
	start = time.Now()
	params, corrections := e.cfg.Pipeline.BuildParameters(ctx, in, cap, e.state)
	d.Parameters = params
	rec.Latency("AugmentLatencyMs", time.Since(start))

	start = time.Now()
	wf, err := e.cfg.Orchestrator.Expand(ctx, in, e.state, d)
	if err != nil {
		return nil, err
	}
	rec.Latency("ExpandLatencyMs", time.Since(start)).
		Metric("WorkflowSteps", float64(len(wf.Steps)), "Count")

	if e.pendingWorkflow != nil {
		// A newer plan supersedes the one still awaiting authorization; its
		// delegation is rejected, not completed.
		e.state.rejectPending()
	}
	e.state.addPending(d)
	e.pendingWorkflow = wf

	res := &TurnResult{
		Intent:      in,
		Delegation:  d,
		Workflow:    wf,
		Corrections: corrections,
	}

	if !e.state.authorized() {
		res.Reply = fmt.Sprintf(
			"Planned %d step(s) on %s (estimated %s). Run /authorize to start generation.",
			len(wf.Steps), d.ModelID, d.EstimatedTime)
		rec.Count("AwaitingAuthorization")
		return res, nil
	}

	err = e.runPending(ctx, res)
	return res, err
}

// Authorize grants generation authorization and runs any pending workflow.
func (e *Engine) Authorize(ctx context.Context) (*TurnResult, error) {
	if !e.turnMu.TryLock() {
		return nil, ErrTurnInFlight
	}
	defer e.turnMu.Unlock()

	e.state.setAuthorized(true)

	if e.pendingWorkflow == nil {
		return &TurnResult{Reply: "Generation authorized. Your next request will run immediately."}, nil
	}

	res := &TurnResult{Workflow: e.pendingWorkflow}
	err := e.runPending(ctx, res)
	return res, err
}

// Reset clears pending work, the current intent, and authorization.
func (e *Engine) Reset() {
	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	e.state.reset()
	e.pendingWorkflow = nil
	log.Info().Str("sessionId", e.state.sessionID).Msg("Session reset")
}

// SetPreference stores a per-category model preference (or opt-out) and
// applies it to the live session.
func (e *Engine) SetPreference(ctx context.Context, cat catalog.Category, pref store.Preference) error {
	if !cat.Valid() {
		return fmt.Errorf("unknown category %q", cat)
	}
	if pref.ModelID != "" && e.cfg.Registry.Get(pref.ModelID) == nil {
		return fmt.Errorf("unknown model %q", pref.ModelID)
	}
	if err := e.cfg.Store.SetPreference(ctx, e.state.sessionID, cat, pref); err != nil {
		return err
	}

	e.state.mu.Lock()
	e.state.preferences[cat] = pref
	e.state.mu.Unlock()
	return nil
}

// SetActiveDirector stores the fusion director. An empty name clears it.
func (e *Engine) SetActiveDirector(ctx context.Context, name string) error {
	resolved := ""
	if name != "" {
		p := e.cfg.Directors.Get(name)
		if p == nil {
			return fmt.Errorf("unknown director %q", name)
		}
		resolved = p.Name
	}
	if err := e.cfg.Store.SetActiveDirector(ctx, e.state.sessionID, resolved); err != nil {
		return err
	}

	e.state.mu.Lock()
	e.state.activeDirector = resolved
	e.state.mu.Unlock()
	return nil
}

// runPending executes the pending workflow, writes the audit record, and
// closes the authorization window: each workflow needs its own authorization.
func (e *Engine) runPending(ctx context.Context, res *TurnResult) error {
	wf := e.pendingWorkflow
	if wf == nil {
		return nil
	}

	if e.cfg.Submitter == nil {
		res.Reply = "No generation provider is configured; the plan above was not submitted."
		return nil
	}

	execErr := e.cfg.Orchestrator.Execute(ctx, wf, e.cfg.Submitter, e.state)
	e.writeAudit(ctx, wf, res.Corrections)
	e.pendingWorkflow = nil

	if execErr != nil {
		e.state.rejectPending()
		e.state.setAuthorized(false)
		return execErr
	}

	e.state.completeWorkflow()

	var refs []string
	for _, s := range wf.Steps {
		if s.ResultRef != "" {
			refs = append(refs, s.ResultRef)
		}
	}
	res.Reply = fmt.Sprintf("Workflow %s completed: %s", wf.ID, strings.Join(refs, ", "))
	return nil
}

type stepAudit struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ModelID   string `json:"modelId"`
	Status    string `json:"status"`
	ResultRef string `json:"resultRef,omitempty"`
	Error     string `json:"error,omitempty"`
}

type workflowAudit struct {
	Template    string               `json:"template"`
	Status      string               `json:"status"`
	Steps       []stepAudit          `json:"steps"`
	Corrections []augment.Correction `json:"corrections,omitempty"`
}

func (e *Engine) writeAudit(ctx context.Context, wf *workflow.Workflow, corrections []augment.Correction) {
	audit := workflowAudit{
		Template:    string(wf.Template),
		Status:      string(wf.Status),
		Corrections: corrections,
	}
	for _, s := range wf.Steps {
		audit.Steps = append(audit.Steps, stepAudit{
			ID:        s.ID,
			Name:      s.Name,
			ModelID:   s.ModelID,
			Status:    string(s.Status),
			ResultRef: s.ResultRef,
			Error:     s.Error,
		})
	}

	if err := e.cfg.Store.PutWorkflowAudit(ctx, e.state.sessionID, wf.ID, audit); err != nil {
		log.Warn().Err(err).Str("workflowId", wf.ID).Msg("Failed to persist workflow audit")
	}
}

// chatReply answers a non-generation turn through the advisory service,
// falling back to a fixed reply.
func (e *Engine) chatReply(ctx context.Context, text string) string {
	if e.cfg.Advisory == nil {
		return fallbackReply
	}

	var b strings.Builder
	recent := e.state.recentContext()
	if len(recent) > 1 {
		b.WriteString("Recent conversation:\n")
		for _, line := range recent[:len(recent)-1] {
			b.WriteString("- " + line + "\n")
		}
	}
	b.WriteString("User: " + text)

	out, err := e.cfg.Advisory.Complete(ctx, assets.ChatSystemPrompt, b.String())
	if err != nil || strings.TrimSpace(out) == "" {
		log.Warn().Err(err).Msg("Advisory chat reply failed, using fallback")
		return fallbackReply
	}
	return strings.TrimSpace(out)
}

// generative reports whether a category maps to a generation capability
// family rather than a conversational outcome.
func generative(c catalog.Category) bool {
	switch c {
	case catalog.CategoryImage, catalog.CategoryVideo, catalog.CategoryAudio,
		catalog.CategoryVoice, catalog.CategoryText:
		return true
	}
	return false
}
