package pipeline

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newTestRun() *Run {
	return NewRunFS("site", fstest.MapFS{})
}

// TestPipelineAddStep tests step registration and ordering.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	if p.StepCount() != 0 {
		t.Errorf("expected 0 steps, got %d", p.StepCount())
	}

	p.AddFinalStep(&mockStep{name: "final"})
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	names := p.StepNames()
	expected := []string{"first", "second", "third", "final"}
	if len(names) != len(expected) {
		t.Fatalf("got %v, expected %v", names, expected)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, names[i], expected[i])
		}
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddFinalStep(record("final"))
		p.AddSteps(record("step-1"), record("step-2"))

		if err := p.Execute(context.Background(), newTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 3 || order[0] != "step-1" || order[1] != "step-2" || order[2] != "final" {
			t.Errorf("wrong execution order: %v", order)
		}
	})

	t.Run("stops on first error but runs final steps", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		skipped := &mockStep{name: "should-not-run"}
		final := &mockStep{name: "final"}

		p := New()
		p.AddStep(&mockStep{name: "failing", doFunc: func(context.Context, *Run) error { return expectedErr }})
		p.AddStep(skipped)
		p.AddFinalStep(final)

		err := p.Execute(context.Background(), newTestRun())
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
		if skipped.callCount != 0 {
			t.Error("second step should not have been called")
		}
		if final.callCount != 1 {
			t.Error("final step should have been called")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		next := &mockStep{name: "should-run"}

		p := New(WithContinueOnError(true))
		p.AddStep(&mockStep{name: "failing", doFunc: func(context.Context, *Run) error { return expectedErr }})
		p.AddStep(next)

		if err := p.Execute(context.Background(), newTestRun()); !errors.Is(err, expectedErr) {
			t.Errorf("expected the first error to be returned, got %v", err)
		}
		if next.callCount != 1 {
			t.Error("second step should have been called")
		}
	})

	t.Run("cancellation marks the run interrupted", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		run := newTestRun()

		var finalCtxErr error
		p := New()
		p.AddStep(&mockStep{name: "cancel", doFunc: func(context.Context, *Run) error {
			cancel()
			return nil
		}})
		never := &mockStep{name: "never"}
		p.AddStep(never)
		p.AddFinalStep(&mockStep{name: "final", doFunc: func(ctx context.Context, _ *Run) error {
			finalCtxErr = ctx.Err()
			return nil
		}})

		err := p.Execute(ctx, run)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if never.callCount != 0 {
			t.Error("steps after cancellation should not run")
		}
		if !run.Interrupted() {
			t.Error("expected the run to be interrupted")
		}
		if finalCtxErr != nil {
			t.Errorf("final step saw a cancelled context: %v", finalCtxErr)
		}
		if !run.Report().Interrupted {
			t.Error("expected the report to be interrupted")
		}
	})
}

// TestPipelineWithLogger tests that a nil logger falls back to the default.
func TestPipelineWithLogger(t *testing.T) {
	t.Parallel()

	p := New(WithLogger(nil))
	if p.logger == nil {
		t.Error("expected a default logger")
	}
}
