package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/neoKode1/directorchair-core/internal/augment"
	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/director"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/provider"
	"github.com/neoKode1/directorchair-core/internal/selection"
)

type stubSession struct {
	pending intent.ActionSubtype
}

func (s *stubSession) Preference(catalog.Category) (string, bool)    { return "", false }
func (s *stubSession) PendingActionSubtype() intent.ActionSubtype    { return s.pending }
func (s *stubSession) LastProducedAssetRef() string                  { return "" }
func (s *stubSession) ActiveDirector() string                        { return "" }

type fakeSubmitter struct {
	submits   int
	failOn    int
	failState bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, capabilityID string, params map[string]interface{}) (provider.Handle, error) {
	f.submits++
	if f.failOn > 0 && f.submits == f.failOn {
		return "", errors.New("provider rejected the job")
	}
	return provider.Handle(fmt.Sprintf("h-%d", f.submits)), nil
}

func (f *fakeSubmitter) Poll(ctx context.Context, h provider.Handle) (provider.Result, error) {
	if f.failState {
		return provider.Result{State: provider.StateFailed, Error: "render crashed"}, nil
	}
	return provider.Result{State: provider.StateCompleted, AssetRef: "asset://" + string(h)}, nil
}

type captureRecorder struct {
	refs []string
}

func (c *captureRecorder) RecordProducedAsset(ref string) { c.refs = append(c.refs, ref) }

func newTestOrchestrator(t *testing.T) *Orchestrator {
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
	return NewOrchestrator(selection.NewEngine(reg, vocab), pipeline, reg)
}

func genIntent(raw string) intent.Intent {
	return intent.Intent{
		Category:           catalog.CategoryImage,
		Confidence:         0.9,
		RawContext:         raw,
		RequiresGeneration: true,
	}
}

func TestExpandAnglesSharesOneModel(t *testing.T) {
	o := newTestOrchestrator(t)

	wf, err := o.Expand(context.Background(), genIntent("show the hero statue from multiple angles"), &stubSession{}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if wf.Template != TemplateAngles {
		t.Errorf("template = %s, want angles", wf.Template)
	}
	if len(wf.Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(wf.Steps))
	}
	if wf.Status != StatusPending || wf.CurrentStepIndex != 0 {
		t.Errorf("new workflow status/index = %s/%d", wf.Status, wf.CurrentStepIndex)
	}

	model := wf.Steps[0].ModelID
	for _, s := range wf.Steps {
		if s.ModelID != model {
			t.Errorf("step %s model = %s, want all steps sharing %s", s.Name, s.ModelID, model)
		}
		if !strings.HasPrefix(s.Description, "show the hero statue from multiple angles") {
			t.Errorf("step %s description = %q, want shared base", s.Name, s.Description)
		}
		if s.Params["prompt"] == "" {
			t.Errorf("step %s has empty prompt", s.Name)
		}
	}
}

func TestExpandSingleReusesDelegation(t *testing.T) {
	o := newTestOrchestrator(t)

	base := &selection.Delegation{
		ModelID:       "fal-ai/flux/schnell",
		Parameters:    augment.Params{"prompt": "a red barn in a field", "seed": 42},
		EstimatedTime: selection.TimeRange{Min: 30 * time.Second, Max: 2 * time.Minute},
	}
	wf, err := o.Expand(context.Background(), genIntent("a red barn in a field"), &stubSession{}, base)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if wf.Template != TemplateSingle || len(wf.Steps) != 1 {
		t.Fatalf("Expand() = %s/%d steps, want single/1", wf.Template, len(wf.Steps))
	}
	step := wf.Steps[0]
	if step.ModelID != base.ModelID {
		t.Errorf("step model = %s, want the delegation's %s", step.ModelID, base.ModelID)
	}
	if step.Params["seed"] != 42 {
		t.Errorf("step params = %v, want the delegation's parameters reused", step.Params)
	}
	if step.EstimatedTime != base.EstimatedTime {
		t.Errorf("step estimate = %v, want %v", step.EstimatedTime, base.EstimatedTime)
	}

	// Multi-step templates plan their own steps and ignore the base.
	wf, err = o.Expand(context.Background(), genIntent("show the statue from multiple angles"), &stubSession{}, base)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if wf.Template != TemplateAngles || len(wf.Steps) != 5 {
		t.Fatalf("Expand() = %s/%d steps, want angles/5", wf.Template, len(wf.Steps))
	}
	if wf.Steps[0].Params["seed"] == 42 {
		t.Error("angle step reused the delegation's parameters, want per-step params")
	}
}

func TestExpandTemplates(t *testing.T) {
	o := newTestOrchestrator(t)
	tests := []struct {
		raw      string
		template Template
		steps    int
	}{
		{"three different takes on this character", TemplateVariations, 3},
		{"a story about a lighthouse keeper", TemplateSceneSequence, 3},
		{"a red barn in a field", TemplateSingle, 1},
	}
	for _, tt := range tests {
		wf, err := o.Expand(context.Background(), genIntent(tt.raw), &stubSession{}, nil)
		if err != nil {
			t.Fatalf("Expand(%q) error = %v", tt.raw, err)
		}
		if wf.Template != tt.template || len(wf.Steps) != tt.steps {
			t.Errorf("Expand(%q) = %s/%d steps, want %s/%d",
				tt.raw, wf.Template, len(wf.Steps), tt.template, tt.steps)
		}
	}
}

func TestExecuteCompletesSequentially(t *testing.T) {
	o := newTestOrchestrator(t)
	wf, err := o.Expand(context.Background(), genIntent("show the statue from multiple angles"), &stubSession{}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	sub := &fakeSubmitter{}
	rec := &captureRecorder{}
	if err := o.Execute(context.Background(), wf, sub, rec); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if wf.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", wf.Status)
	}
	if wf.CurrentStepIndex != len(wf.Steps) {
		t.Errorf("currentStepIndex = %d, want %d", wf.CurrentStepIndex, len(wf.Steps))
	}
	if len(rec.refs) != len(wf.Steps) {
		t.Errorf("recorded refs = %d, want one per step", len(rec.refs))
	}
	for _, s := range wf.Steps {
		if s.Status != StatusCompleted || s.ResultRef == "" {
			t.Errorf("step %s = %s/%q, want completed with result", s.Name, s.Status, s.ResultRef)
		}
	}

	// Running a finished workflow again is a no-op.
	submitted := sub.submits
	if err := o.Execute(context.Background(), wf, sub, rec); err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if sub.submits != submitted {
		t.Errorf("second Execute() submitted %d more jobs", sub.submits-submitted)
	}
}

func TestExecuteHaltsOnStepFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	wf, err := o.Expand(context.Background(), genIntent("show the statue from multiple angles"), &stubSession{}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	sub := &fakeSubmitter{failOn: 2}
	if err := o.Execute(context.Background(), wf, sub, nil); err == nil {
		t.Fatal("Execute() error = nil, want step failure")
	}
	if wf.Status != StatusFailed {
		t.Errorf("status = %s, want failed", wf.Status)
	}
	if wf.Steps[0].Status != StatusCompleted || wf.Steps[0].ResultRef == "" {
		t.Error("first step result was not kept")
	}
	if wf.Steps[1].Status != StatusFailed {
		t.Errorf("second step status = %s, want failed", wf.Steps[1].Status)
	}
	if wf.Steps[2].Status != StatusPending {
		t.Errorf("third step status = %s, want pending (skipped)", wf.Steps[2].Status)
	}
	if sub.submits != 2 {
		t.Errorf("submits = %d, want halt after the failing step", sub.submits)
	}

	// A failed workflow refuses to run further.
	if err := o.Execute(context.Background(), wf, sub, nil); err == nil {
		t.Fatal("Execute() on a failed workflow = nil, want error")
	}
}

func TestExecuteProviderReportedFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	wf, err := o.Expand(context.Background(), genIntent("a red barn in a field"), &stubSession{}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	sub := &fakeSubmitter{failState: true}
	err = o.Execute(context.Background(), wf, sub, nil)
	if err == nil || !strings.Contains(err.Error(), "render crashed") {
		t.Fatalf("Execute() error = %v, want provider failure surfaced", err)
	}
	if wf.Status != StatusFailed {
		t.Errorf("status = %s, want failed", wf.Status)
	}
}
