package app

import (
	"context"
	"io"
	"strings"
	"testing"
)

// runPipeline drives a controller against the mock executor the same way the
// headless command does: one loop, frames applied in arrival order.
func runPipeline(t *testing.T, mock *MockExecutor) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	c := NewController(mock, mock, cfg, NewLogger(io.Discard))

	err := c.StartClone(context.Background(), CloneRequest{
		RepoURL:     "https://github.com/acme/shopping-cart",
		Language:    "nodejs",
		GithubToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	stream, err := c.StartExecution(context.Background(), ExecRequest{TestCommand: "npm test"})
	if err != nil {
		t.Fatal(err)
	}

	for c.Phase() == PhaseStreaming {
		raw, err := stream.Recv()
		if err != nil {
			c.HandleDisconnect(err)
			break
		}
		c.HandleFrame(raw)
	}
	return c
}

func TestMockPipeline_EndToEnd(t *testing.T) {
	mock := NewMockExecutor()
	mock.FrameDelay = 0
	c := runPipeline(t, mock)

	if c.Phase() != PhaseDone {
		t.Fatalf("phase = %s (%s), want done", c.Phase(), c.FailureMessage())
	}
	final := c.Final()
	if final == nil || !final.Passed || final.TotalFixed != 1 {
		t.Fatalf("final = %+v", final)
	}
	if final.BranchName != "SHOPPING_CART_AI_Fix" {
		t.Fatalf("branch = %q", final.BranchName)
	}
	if len(c.Logs()) == 0 || len(c.Fixes()) != 1 || len(c.CIRuns()) != 2 {
		t.Fatalf("accumulated: %d logs, %d fixes, %d runs", len(c.Logs()), len(c.Fixes()), len(c.CIRuns()))
	}
	if got := c.Steps().StatusOf("committing"); got != StepDone {
		t.Fatalf("committing = %s", got)
	}
	if got := c.NextPRAction(); got != PRActionDraft {
		t.Fatalf("action = %d, want draft (no auto PR)", got)
	}

	draft := c.BuildDraft()
	if !strings.Contains(draft.Body, "src/cart.js") {
		t.Fatalf("draft body missing fixed file:\n%s", draft.Body)
	}
	if err := c.SubmitPR(context.Background(), draft); err != nil {
		t.Fatal(err)
	}
	if c.NextPRAction() != PRActionExists {
		t.Fatal("submitted PR must flip the view to exists")
	}
}

func TestMockPipeline_AutoPR(t *testing.T) {
	mock := NewMockExecutor()
	mock.FrameDelay = 0
	mock.AutoPR = true
	c := runPipeline(t, mock)

	if c.Phase() != PhaseDone {
		t.Fatalf("phase = %s, want done", c.Phase())
	}
	if got := c.NextPRAction(); got != PRActionExists {
		t.Fatalf("action = %d, want exists (pipeline created the PR)", got)
	}
	if c.PRResult() == nil || !strings.Contains(c.PRResult().URL, "/pull/") {
		t.Fatalf("pr = %+v", c.PRResult())
	}
	if mock.PRCalls != 0 {
		t.Fatal("no explicit create call should have been made")
	}
}

func TestMockPipeline_Failure(t *testing.T) {
	mock := NewMockExecutor()
	mock.FrameDelay = 0
	mock.FailRun = true
	c := runPipeline(t, mock)

	if c.Phase() != PhaseFailed || c.FailureStage() != StageExecuting {
		t.Fatalf("phase = %s stage = %s", c.Phase(), c.FailureStage())
	}
	if len(c.Logs()) == 0 {
		t.Fatal("logs up to the failure must be retained")
	}
	if c.NextPRAction() != PRActionNone {
		t.Fatal("failed run offers no PR action")
	}
}
