package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockExecutor simulates the remote services so the dashboard runs without a
// server: CreateSession answers instantly, Dial returns a stream that plays
// a scripted pipeline, CreatePR fabricates a URL. Tests drive it with zero
// FrameDelay for determinism.
type MockExecutor struct {
	// FailRun makes the scripted pipeline end with an error frame.
	FailRun bool
	// AutoPR emits a pr_created frame before complete, like a server that
	// was handed a token and opened the PR itself.
	AutoPR bool
	// FrameDelay paces the scripted frames. Zero means as fast as the
	// reader drains them.
	FrameDelay time.Duration

	PRCalls int
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{FrameDelay: 40 * time.Millisecond}
}

func (m *MockExecutor) CreateSession(_ context.Context, req CreateSessionRequest) (string, error) {
	if req.RepoURL == "" {
		return "", errors.New("mock: repo_url is required")
	}
	return uuid.NewString(), nil
}

func (m *MockExecutor) CreatePR(_ context.Context, req CreatePRRequest) (PRResult, error) {
	m.PRCalls++
	if req.GithubToken == "" {
		return PRResult{}, errors.New("Cannot create PR: no credentials provided")
	}
	return PRResult{
		URL:      fmt.Sprintf("https://github.com/%s/pull/%d", req.RepoFullName, m.PRCalls),
		RepoName: req.RepoFullName,
	}, nil
}

func (m *MockExecutor) ListRepos(_ context.Context) ([]Repository, error) {
	return []Repository{
		{ID: 1, Name: "shopping-cart", FullName: "acme/shopping-cart", HTMLURL: "https://github.com/acme/shopping-cart",
			Description: "Demo cart service with failing tests", UpdatedAt: "2026-08-21T10:00:00Z", Language: "TypeScript"},
		{ID: 2, Name: "inventory-api", FullName: "acme/inventory-api", Private: true, HTMLURL: "https://github.com/acme/inventory-api",
			Description: "Inventory REST API", UpdatedAt: "2026-08-18T16:30:00Z", Language: "Python"},
	}, nil
}

func (m *MockExecutor) Dial(_ context.Context, frame InitFrame) (Stream, error) {
	if frame.RepoURL == "" || frame.BranchName == "" {
		return nil, errors.New("mock: incomplete init frame")
	}
	s := &mockStream{
		frames: make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	go m.play(s, frame)
	return s, nil
}

type mockStream struct {
	frames chan []byte
	done   chan struct{}
	closed bool
}

func (s *mockStream) Recv() ([]byte, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, errors.New("mock stream closed")
		}
		return frame, nil
	case <-s.done:
		return nil, errors.New("mock stream closed")
	}
}

func (s *mockStream) Close() error {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *mockStream) emit(delay time.Duration, v interface{}) bool {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.done:
			return false
		}
	}
	frame, _ := json.Marshal(v)
	select {
	case s.frames <- frame:
		return true
	case <-s.done:
		return false
	}
}

// play emits the scripted run in the same order the healing server streams
// a real one.
func (m *MockExecutor) play(s *mockStream, frame InitFrame) {
	defer close(s.frames)

	d := m.FrameDelay
	ts := func() string { return time.Now().UTC().Format("15:04:05") }
	log := func(line string) bool {
		return s.emit(d, map[string]interface{}{"type": "log", "line": line, "ts": ts()})
	}
	step := func(id string, status StepStatus) bool {
		return s.emit(d, map[string]interface{}{"type": "step", "step": id, "status": status})
	}

	if !step("cloning", StepDone) {
		return
	}
	log(fmt.Sprintf("  ✓ Using existing session %.8s…", frame.SessionID))

	step("running_tests", StepRunning)
	log(fmt.Sprintf("▶ Running test suite (iteration 1/%d)", frame.MaxIterations))
	if frame.TestCommand != "" {
		log("  $ " + frame.TestCommand)
	}
	log("  FAIL src/cart.test.js")
	log("  ● applies discount > rounds totals to cents")

	if m.FailRun {
		step("running_tests", StepError)
		s.emit(d, map[string]interface{}{"type": "error", "message": "Test execution failed: container exited with code 137"})
		return
	}

	s.emit(d, map[string]interface{}{
		"type": "iteration", "iteration": 1, "total": frame.MaxIterations,
		"status": "failed", "errors_count": 2,
	})
	log("  ✗ 2 error(s) found")
	step("running_tests", StepDone)

	step("analyzing", StepRunning)
	log("▶ Analyzing failures…")
	log("  Error: LOGIC in src/cart.js at line 42")
	step("analyzing", StepDone)

	step("fixing", StepRunning)
	log("▶ Generating AI fix…")
	s.emit(d, map[string]interface{}{"type": "fix", "fix": Fix{
		File:          "src/cart.js",
		BugType:       "LOGIC",
		LineNumber:    42,
		CommitMessage: "fix(src/cart.js): discount applied before tax instead of after",
		Status:        FixStatusFixed,
		Description:   "Discount was applied before tax calculation.",
		Explanation: &FixExplanation{
			RootCause:   "Discount was applied before tax, inflating rounded totals.",
			ChangesMade: "Moved the discount application after the tax step.",
			Impact:      "Cart total tests now pass.",
		},
	}})
	log("  ✓ Fix applied")
	step("fixing", StepDone)

	step("verifying", StepRunning)
	log(fmt.Sprintf("▶ Re-running tests (iteration 2/%d)", frame.MaxIterations))
	s.emit(d, map[string]interface{}{
		"type": "iteration", "iteration": 2, "total": frame.MaxIterations,
		"status": "passed", "errors_count": 0,
	})
	log("  ✓ All tests passing!")
	step("verifying", StepDone)

	step("committing", StepRunning)
	log(fmt.Sprintf("▶ Committing 1 file(s) to %s…", frame.BranchName))
	log("  ✓ committed (9f3c21ab)")
	step("committing", StepDone)

	if m.AutoPR && frame.GithubToken != "" {
		owner, name := SplitRepoURL(frame.RepoURL)
		full := owner + "/" + name
		step("pr_creation", StepRunning)
		log("▶ Creating Pull Request...")
		s.emit(d, map[string]interface{}{
			"type": "pr_created",
			"pr_url": "https://github.com/" + full + "/pull/7", "repo_name": full,
		})
		step("pr_creation", StepDone)
	}

	s.emit(d, map[string]interface{}{"type": "complete", "result": FinalResult{
		SessionID:        frame.SessionID,
		Status:           "passed",
		Passed:           true,
		Iterations:       2,
		BranchName:       frame.BranchName,
		CommitHash:       "9f3c21ab77e1402f8b3d1d3c2a9f5e6b8c0d4a21",
		TimeTakenSeconds: 148.3,
		RepoURL:          frame.RepoURL,
		TotalFailures:    2,
		TotalFixed:       1,
	}})
}
