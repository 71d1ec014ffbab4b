// Package workflow expands multi-output requests into fixed step plans and
// runs them strictly in order against a provider.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neoKode1/directorchair-core/internal/augment"
	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/jobs"
	"github.com/neoKode1/directorchair-core/internal/provider"
	"github.com/neoKode1/directorchair-core/internal/selection"
)

// Status of a workflow or a single step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Template names the step plan a request expanded into.
type Template string

const (
	TemplateAngles        Template = "angles"
	TemplateVariations    Template = "variations"
	TemplateSceneSequence Template = "scene-sequence"
	TemplateSingle        Template = "single"
)

// Step is one generation in the plan.
type Step struct {
	ID            string
	Name          string
	Description   string
	ModelID       string
	Params        augment.Params
	EstimatedTime selection.TimeRange
	Status        Status
	ResultRef     string
	Error         string
}

// Workflow is an ordered step plan with execution state.
type Workflow struct {
	ID               string
	Template         Template
	Status           Status
	Steps            []*Step
	CurrentStepIndex int
}

// SessionView is the read-only conversation state threaded through step
// selection and augmentation.
type SessionView interface {
	selection.SessionView
	augment.SessionView
}

// ResultRecorder receives each completed step's asset so follow-up turns can
// reference it.
type ResultRecorder interface {
	RecordProducedAsset(ref string)
}

// descriptor suffixes per template. Steps share the base description and
// differ only here.
var (
	angleSteps = []struct{ name, suffix string }{
		{"profile", "profile view from the side"},
		{"back", "view from directly behind"},
		{"three-quarter", "three-quarter view"},
		{"close-up", "close-up framing"},
		{"low-angle", "dramatic low-angle view"},
	}
	variationSteps = []struct{ name, suffix string }{
		{"variation-1", "alternate pose and expression"},
		{"variation-2", "different lighting and wardrobe"},
		{"variation-3", "new background setting"},
	}
	sceneSteps = []struct{ name, suffix string }{
		{"establishing", "wide establishing shot"},
		{"medium", "medium shot on the main subject"},
		{"close-up", "emotional close-up"},
	}
)

// Orchestrator expands and executes workflows. Every step re-enters the
// selection engine so step wording can still influence model choice.
type Orchestrator struct {
	engine   *selection.Engine
	pipeline *augment.Pipeline
	registry *catalog.Registry
}

func NewOrchestrator(engine *selection.Engine, pipeline *augment.Pipeline, registry *catalog.Registry) *Orchestrator {
	return &Orchestrator{engine: engine, pipeline: pipeline, registry: registry}
}

// Expand builds the step plan for a generation intent. A non-nil base
// delegation is reused verbatim for the single-step template, so the executed
// parameters are exactly the ones the caller already reported and the
// augmentation chain does not run a second time.
func (o *Orchestrator) Expand(ctx context.Context, in intent.Intent, sess SessionView, base *selection.Delegation) (*Workflow, error) {
	template, plan := detectTemplate(in.RawContext)

	wf := &Workflow{
		ID:       jobs.GenerateID(jobs.WorkflowPrefix),
		Template: template,
		Status:   StatusPending,
	}

	if template == TemplateSingle && base != nil && base.Parameters != nil {
		wf.Steps = append(wf.Steps, &Step{
			ID:            jobs.GenerateID(jobs.StepPrefix),
			Name:          "single",
			Description:   in.RawContext,
			ModelID:       base.ModelID,
			Params:        base.Parameters,
			EstimatedTime: base.EstimatedTime,
			Status:        StatusPending,
		})
		log.Info().
			Str("workflowId", wf.ID).
			Str("template", string(wf.Template)).
			Int("steps", 1).
			Msg("Workflow expanded")
		return wf, nil
	}

	for _, planned := range plan {
		desc := in.RawContext
		if planned.suffix != "" {
			desc = in.RawContext + ", " + planned.suffix
		}

		stepIntent := in
		stepIntent.RawContext = desc

		modelID, est, err := o.resolveStepModel(stepIntent, sess)
		if err != nil {
			return nil, err
		}

		cap := o.registry.Get(modelID)
		params, _ := o.pipeline.BuildParameters(ctx, stepIntent, cap, sess)

		wf.Steps = append(wf.Steps, &Step{
			ID:            jobs.GenerateID(jobs.StepPrefix),
			Name:          planned.name,
			Description:   desc,
			ModelID:       modelID,
			Params:        params,
			EstimatedTime: est,
			Status:        StatusPending,
		})
	}

	log.Info().
		Str("workflowId", wf.ID).
		Str("template", string(wf.Template)).
		Int("steps", len(wf.Steps)).
		Msg("Workflow expanded")
	return wf, nil
}

// resolveStepModel re-enters selection for a step and falls back to the
// first capability of the category when selection yields nothing.
func (o *Orchestrator) resolveStepModel(in intent.Intent, sess SessionView) (string, selection.TimeRange, error) {
	d, err := o.engine.Select(in, sess)
	if err == nil && d != nil {
		return d.ModelID, d.EstimatedTime, nil
	}

	caps := o.registry.ForCategory(in.Category)
	if len(caps) == 0 {
		return "", selection.TimeRange{}, fmt.Errorf("no capability available for workflow step (%s)", in.Category)
	}
	log.Warn().
		Str("category", string(in.Category)).
		Str("fallback", caps[0].ID).
		Msg("Step selection yielded nothing, using category fallback")
	return caps[0].ID, selection.TimeRange{Min: time.Minute, Max: 5 * time.Minute}, nil
}

// Execute runs the plan strictly sequentially. The first step failure marks
// the workflow failed and halts; completed step results are kept as-is.
func (o *Orchestrator) Execute(ctx context.Context, wf *Workflow, submitter provider.Submitter, rec ResultRecorder) error {
	if wf.Status == StatusFailed {
		return fmt.Errorf("workflow %s already failed at step %d", wf.ID, wf.CurrentStepIndex)
	}
	wf.Status = StatusInProgress

	for wf.CurrentStepIndex < len(wf.Steps) {
		step := wf.Steps[wf.CurrentStepIndex]
		step.Status = StatusInProgress

		log.Info().
			Str("workflowId", wf.ID).
			Str("stepId", step.ID).
			Str("step", step.Name).
			Str("model", step.ModelID).
			Msg("Executing workflow step")

		ref, err := o.runStep(ctx, step, submitter)
		if err != nil {
			step.Status = StatusFailed
			step.Error = err.Error()
			wf.Status = StatusFailed
			log.Error().Err(err).
				Str("workflowId", wf.ID).
				Str("stepId", step.ID).
				Msg("Workflow step failed, halting remaining steps")
			return fmt.Errorf("step %s (%s): %w", step.ID, step.Name, err)
		}

		step.Status = StatusCompleted
		step.ResultRef = ref
		if rec != nil && ref != "" {
			rec.RecordProducedAsset(ref)
		}
		wf.CurrentStepIndex++
	}

	wf.Status = StatusCompleted
	log.Info().Str("workflowId", wf.ID).Msg("Workflow completed")
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, step *Step, submitter provider.Submitter) (string, error) {
	h, err := submitter.Submit(ctx, step.ModelID, step.Params)
	if err != nil {
		return "", err
	}

	maxWait := step.EstimatedTime.Max * 2
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	res, err := provider.Await(ctx, submitter, h, 2*time.Second, maxWait)
	if err != nil {
		return "", err
	}
	if res.State == provider.StateFailed {
		if res.Error != "" {
			return "", fmt.Errorf("provider reported failure: %s", res.Error)
		}
		return "", fmt.Errorf("provider reported failure")
	}
	return res.AssetRef, nil
}

// detectTemplate scans for the trigger phrase families.
func detectTemplate(prompt string) (Template, []struct{ name, suffix string }) {
	lowered := strings.ToLower(prompt)

	angleTrigger := strings.Contains(lowered, "multiple angle") ||
		strings.Contains(lowered, "different angle") ||
		strings.Contains(lowered, "various angle") ||
		strings.Contains(lowered, "multi-angle")
	if angleTrigger {
		return TemplateAngles, angleSteps
	}

	if strings.Contains(lowered, "character") &&
		(strings.Contains(lowered, "variation") ||
			strings.Contains(lowered, "different") ||
			strings.Contains(lowered, "multiple")) {
		return TemplateVariations, variationSteps
	}

	if strings.Contains(lowered, "scene") ||
		strings.Contains(lowered, "sequence") ||
		strings.Contains(lowered, "story") {
		return TemplateSceneSequence, sceneSteps
	}

	return TemplateSingle, []struct{ name, suffix string }{{"single", ""}}
}
