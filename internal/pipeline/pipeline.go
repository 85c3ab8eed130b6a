package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Step is one stage of a check.
type Step interface {
	// Do executes the step. Non-fatal problems are recorded as results on
	// the run; an error means the remaining regular steps cannot continue.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps []Step

	// finalSteps run after the regular steps, even when those failed or the
	// context was cancelled.
	finalSteps []Step

	logger *slog.Logger

	// continueOnError keeps executing regular steps after one fails.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a regular step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple regular steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalStep appends a step that always runs once the regular steps are
// done. Final steps receive a context that is never cancelled, since their
// job is to turn partial state into a report.
func (p *Pipeline) AddFinalStep(step Step) {
	p.finalSteps = append(p.finalSteps, step)
}

// Execute runs the regular steps in sequence, checking for cancellation
// before each one, then the final steps.
//
// When ctx is cancelled the run is marked interrupted and ctx.Err() is
// returned after the final steps have run. Otherwise the first step error
// is returned (or nil with continueOnError).
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	start := time.Now()
	firstErr := p.executeSteps(ctx, run)

	if ctx.Err() != nil {
		run.markInterrupted()
	}

	finalCtx := context.WithoutCancel(ctx)
	for _, step := range p.finalSteps {
		p.logger.Debug("executing final step", "step", step.Name())
		if err := step.Do(finalCtx, run); err != nil {
			p.logger.Error("final step failed", "step", step.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	p.logger.Debug("pipeline finished",
		"root", run.Root,
		"elapsed", time.Since(start),
		"interrupted", run.Interrupted(),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	return firstErr
}

func (p *Pipeline) executeSteps(ctx context.Context, run *Run) error {
	var firstErr error
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name(), "root", run.Root)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"root", run.Root,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				return firstErr
			}
		}
	}
	return firstErr
}

// StepCount returns the number of regular and final steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finalSteps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalSteps {
		names = append(names, step.Name())
	}
	return names
}
