package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/neoKode1/directorchair-core/internal/augment"
	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/director"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/provider"
	"github.com/neoKode1/directorchair-core/internal/selection"
	"github.com/neoKode1/directorchair-core/internal/store"
	"github.com/neoKode1/directorchair-core/internal/workflow"
)

type fakeSubmitter struct {
	submits int
	fail    bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, capabilityID string, params map[string]interface{}) (provider.Handle, error) {
	f.submits++
	if f.fail {
		return "", errors.New("provider offline")
	}
	return provider.Handle(fmt.Sprintf("h-%d", f.submits)), nil
}

func (f *fakeSubmitter) Poll(ctx context.Context, h provider.Handle) (provider.Result, error) {
	return provider.Result{State: provider.StateCompleted, AssetRef: "asset://" + string(h)}, nil
}

func newTestEngine(t *testing.T, sub provider.Submitter) (*Engine, store.PreferenceStore) {
	t.Helper()

	reg, err := catalog.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	vocab, err := intent.LoadVocabulary()
	if err != nil {
		t.Fatalf("load vocabulary: %v", err)
	}
	dirs, err := director.Load()
	if err != nil {
		t.Fatalf("load directors: %v", err)
	}
	pipeline, err := augment.NewPipeline(nil, dirs, vocab, nil, augment.Options{})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	selector := selection.NewEngine(reg, vocab)
	mem := store.NewMemoryStore()

	eng, err := NewEngine(context.Background(), Config{
		SessionID:    "sess-test",
		Registry:     reg,
		Classifier:   intent.NewClassifier(vocab),
		Selector:     selector,
		Pipeline:     pipeline,
		Orchestrator: workflow.NewOrchestrator(selector, pipeline, reg),
		Directors:    dirs,
		Store:        mem,
		Submitter:    sub,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng, mem
}

func TestProcessTurnGreeting(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	res, err := eng.ProcessTurn(context.Background(), "hello there", nil)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.Delegation != nil || res.Workflow != nil {
		t.Errorf("greeting produced a plan: %+v", res)
	}
	if res.Reply == "" {
		t.Error("greeting reply is empty")
	}
}

func TestProcessTurnPlansBeforeAuthorization(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeSubmitter{})

	res, err := eng.ProcessTurn(context.Background(),
		"generate an image of a lighthouse at sunset, using Flux", nil)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	if res.Intent.Category != catalog.CategoryImage || !res.Intent.RequiresGeneration {
		t.Fatalf("intent = %+v, want generative image intent", res.Intent)
	}
	if res.Delegation == nil || res.Delegation.ModelID != "fal-ai/flux-pro/v1.1-ultra" {
		t.Fatalf("delegation = %+v, want explicit Flux override", res.Delegation)
	}
	if res.Workflow == nil || len(res.Workflow.Steps) != 1 {
		t.Fatalf("workflow = %+v, want single-step plan", res.Workflow)
	}
	if !strings.Contains(res.Reply, "/authorize") {
		t.Errorf("reply = %q, want authorization hint", res.Reply)
	}

	neg, _ := res.Delegation.Parameters["negative_prompt"].(string)
	if neg == "" {
		t.Error("delegation parameters missing negative prompt")
	}
	landscape := map[int]bool{
		135790: true, 246801: true, 357912: true, 468023: true,
		579134: true, 680245: true, 791356: true, 802467: true,
	}
	seed, _ := res.Delegation.Parameters["seed"].(int)
	if !landscape[seed] {
		t.Errorf("seed = %d, want a landscape pool member", seed)
	}

	if eng.State().pendingCount() != 1 {
		t.Errorf("pending delegations = %d, want 1", eng.State().pendingCount())
	}
}

func TestAuthorizeRunsPendingWorkflow(t *testing.T) {
	sub := &fakeSubmitter{}
	eng, mem := newTestEngine(t, sub)
	ctx := context.Background()

	plan, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	res, err := eng.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if res.Workflow == nil || res.Workflow.Status != workflow.StatusCompleted {
		t.Fatalf("workflow after authorize = %+v, want completed", res.Workflow)
	}
	if !strings.Contains(res.Reply, "completed") {
		t.Errorf("reply = %q, want completion summary", res.Reply)
	}
	if eng.State().pendingCount() != 0 {
		t.Errorf("pending delegations = %d, want 0 after execution", eng.State().pendingCount())
	}
	if eng.State().LastProducedAssetRef() == "" {
		t.Error("last produced asset not recorded")
	}

	var audit struct {
		Status string `json:"status"`
		Steps  []struct {
			ModelID string `json:"modelId"`
		} `json:"steps"`
	}
	if err := mem.GetWorkflowAudit(ctx, "sess-test", plan.Workflow.ID, &audit); err != nil {
		t.Fatalf("GetWorkflowAudit() error = %v", err)
	}
	if audit.Status != "completed" || len(audit.Steps) != 1 {
		t.Errorf("audit = %+v, want completed single step", audit)
	}
}

func TestPreAuthorizationCoversOneWorkflow(t *testing.T) {
	sub := &fakeSubmitter{}
	eng, _ := newTestEngine(t, sub)
	ctx := context.Background()

	if _, err := eng.Authorize(ctx); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	res, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.Workflow == nil || res.Workflow.Status != workflow.StatusCompleted {
		t.Fatalf("workflow = %+v, want executed immediately", res.Workflow)
	}
	if sub.submits != 1 {
		t.Errorf("submits = %d, want 1", sub.submits)
	}

	// The authorization window closed with that workflow; the next turn
	// plans again and waits.
	res, err = eng.ProcessTurn(ctx, "generate an image of a misty forest", nil)
	if err != nil {
		t.Fatalf("second ProcessTurn() error = %v", err)
	}
	if res.Workflow == nil || res.Workflow.Status == workflow.StatusCompleted {
		t.Fatalf("second workflow = %+v, want pending plan", res.Workflow)
	}
	if sub.submits != 1 {
		t.Errorf("submits = %d, want no unauthorized execution", sub.submits)
	}
}

func TestWorkflowCompletionClosesAuthorization(t *testing.T) {
	sub := &fakeSubmitter{}
	eng, _ := newTestEngine(t, sub)
	ctx := context.Background()

	if _, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if _, err := eng.Authorize(ctx); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if eng.State().authorized() {
		t.Error("authorization still open after the workflow completed")
	}
	eng.state.mu.Lock()
	current := eng.state.currentIntent
	eng.state.mu.Unlock()
	if current != nil {
		t.Error("current intent not cleared after the workflow completed")
	}

	res, err := eng.ProcessTurn(ctx, "generate an image of a misty forest", nil)
	if err != nil {
		t.Fatalf("second ProcessTurn() error = %v", err)
	}
	if !strings.Contains(res.Reply, "/authorize") {
		t.Errorf("reply = %q, want a fresh authorization hint", res.Reply)
	}
	if sub.submits != 1 {
		t.Errorf("submits = %d, want only the authorized workflow executed", sub.submits)
	}
}

func TestNewPlanSupersedesPendingDelegation(t *testing.T) {
	sub := &fakeSubmitter{}
	eng, _ := newTestEngine(t, sub)
	ctx := context.Background()

	if _, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	second, err := eng.ProcessTurn(ctx, "generate an image of a misty forest, using schnell", nil)
	if err != nil {
		t.Fatalf("second ProcessTurn() error = %v", err)
	}
	if eng.State().pendingCount() != 1 {
		t.Fatalf("pending delegations = %d, want the superseded plan discarded", eng.State().pendingCount())
	}

	if _, err := eng.Authorize(ctx); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if eng.State().completedCount() != 1 {
		t.Fatalf("completed delegations = %d, want only the executed plan", eng.State().completedCount())
	}
	eng.state.mu.Lock()
	doneModel := eng.state.completedDelegations[0].ModelID
	eng.state.mu.Unlock()
	if doneModel != second.Delegation.ModelID {
		t.Errorf("completed delegation model = %s, want %s", doneModel, second.Delegation.ModelID)
	}
	if sub.submits != len(second.Workflow.Steps) {
		t.Errorf("submits = %d, want the latest plan's %d step(s)", sub.submits, len(second.Workflow.Steps))
	}
}

func TestSecondConcurrentTurnRejected(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	eng.turnMu.Lock()
	defer eng.turnMu.Unlock()

	if _, err := eng.ProcessTurn(context.Background(), "hello", nil); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("ProcessTurn() error = %v, want ErrTurnInFlight", err)
	}
	if _, err := eng.Authorize(context.Background()); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("Authorize() error = %v, want ErrTurnInFlight", err)
	}
}

func TestResetClearsPendingWork(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeSubmitter{})
	ctx := context.Background()

	if _, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	eng.Reset()

	if eng.State().pendingCount() != 0 {
		t.Error("pending delegations survived reset")
	}
	if eng.State().authorized() {
		t.Error("authorization survived reset")
	}

	res, err := eng.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if res.Workflow != nil {
		t.Errorf("workflow after reset+authorize = %+v, want none", res.Workflow)
	}
}

func TestPreferenceNoneDisablesGeneration(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeSubmitter{})
	ctx := context.Background()

	if err := eng.SetPreference(ctx, catalog.CategoryImage, store.Preference{Disabled: true}); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}

	res, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.Delegation != nil {
		t.Errorf("delegation = %+v, want nil for a disabled category", res.Delegation)
	}
	if !strings.Contains(res.Reply, "turned off") {
		t.Errorf("reply = %q, want opt-out explanation", res.Reply)
	}
}

func TestSetPreferenceValidation(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if err := eng.SetPreference(ctx, catalog.Category("music"), store.Preference{}); err == nil {
		t.Error("SetPreference() accepted an unknown category")
	}
	if err := eng.SetPreference(ctx, catalog.CategoryImage, store.Preference{ModelID: "fal-ai/not-real"}); err == nil {
		t.Error("SetPreference() accepted an unknown model")
	}
	if err := eng.SetPreference(ctx, catalog.CategoryImage, store.Preference{ModelID: "fal-ai/flux/schnell"}); err != nil {
		t.Errorf("SetPreference() error = %v", err)
	}
}

func TestSetActiveDirector(t *testing.T) {
	eng, mem := newTestEngine(t, nil)
	ctx := context.Background()

	if err := eng.SetActiveDirector(ctx, "nobody famous"); err == nil {
		t.Error("SetActiveDirector() accepted an unknown name")
	}

	if err := eng.SetActiveDirector(ctx, "nolan"); err != nil {
		t.Fatalf("SetActiveDirector() error = %v", err)
	}
	if got := eng.State().ActiveDirector(); got != "Christopher Nolan" {
		t.Errorf("active director = %q, want canonical name", got)
	}
	persisted, err := mem.GetActiveDirector(ctx, "sess-test")
	if err != nil || persisted != "Christopher Nolan" {
		t.Errorf("persisted director = %q, %v", persisted, err)
	}

	if err := eng.SetActiveDirector(ctx, ""); err != nil {
		t.Fatalf("clearing director error = %v", err)
	}
	if got := eng.State().ActiveDirector(); got != "" {
		t.Errorf("active director = %q, want cleared", got)
	}
}

func TestWorkflowFailureSurfacedAndAudited(t *testing.T) {
	sub := &fakeSubmitter{fail: true}
	eng, mem := newTestEngine(t, sub)
	ctx := context.Background()

	plan, err := eng.ProcessTurn(ctx, "generate an image of a quiet harbor", nil)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	if _, err := eng.Authorize(ctx); err == nil {
		t.Fatal("Authorize() error = nil, want step failure surfaced")
	}

	var audit struct {
		Status string `json:"status"`
	}
	if err := mem.GetWorkflowAudit(ctx, "sess-test", plan.Workflow.ID, &audit); err != nil {
		t.Fatalf("GetWorkflowAudit() error = %v", err)
	}
	if audit.Status != "failed" {
		t.Errorf("audit status = %q, want failed", audit.Status)
	}

	// A failed workflow rejects its delegation and closes the window.
	if eng.State().pendingCount() != 0 {
		t.Error("failed workflow left its delegation pending")
	}
	if eng.State().completedCount() != 0 {
		t.Error("failed workflow was marked completed")
	}
	if eng.State().authorized() {
		t.Error("authorization still open after a failed workflow")
	}
}
