package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeAPI struct {
	sessionID  string
	sessionErr error
	pr         PRResult
	prErr      error
	prCalls    int
}

func (f *fakeAPI) CreateSession(_ context.Context, _ CreateSessionRequest) (string, error) {
	if f.sessionErr != nil {
		return "", f.sessionErr
	}
	if f.sessionID == "" {
		return "sess-1", nil
	}
	return f.sessionID, nil
}

func (f *fakeAPI) CreatePR(_ context.Context, _ CreatePRRequest) (PRResult, error) {
	f.prCalls++
	return f.pr, f.prErr
}

func (f *fakeAPI) ListRepos(_ context.Context) ([]Repository, error) { return nil, nil }

type fakeStream struct {
	closes int
}

func (s *fakeStream) Recv() ([]byte, error) { select {} }
func (s *fakeStream) Close() error          { s.closes++; return nil }

type fakeDialer struct {
	stream  *fakeStream
	dialErr error
	frames  []InitFrame
}

func (d *fakeDialer) Dial(_ context.Context, frame InitFrame) (Stream, error) {
	d.frames = append(d.frames, frame)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if d.stream == nil {
		d.stream = &fakeStream{}
	}
	return d.stream, nil
}

func newTestController(api *fakeAPI, dialer *fakeDialer) *Controller {
	cfg := DefaultConfig()
	return NewController(api, dialer, cfg, NewLogger(io.Discard))
}

// startStreaming walks a controller through clone + execution setup.
func startStreaming(t *testing.T, c *Controller) {
	t.Helper()
	err := c.StartClone(context.Background(), CloneRequest{
		RepoURL:        "https://github.com/acme/shopping-cart",
		Language:       "nodejs",
		TeamName:       "RIFT ORGANISERS",
		TeamLeaderName: "Saiyam Kumar",
		GithubToken:    "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.StartExecution(context.Background(), ExecRequest{TestCommand: "npm test"}); err != nil {
		t.Fatal(err)
	}
	if c.Phase() != PhaseStreaming {
		t.Fatalf("phase = %s, want streaming", c.Phase())
	}
}

func TestController_CloneFailure(t *testing.T) {
	c := newTestController(&fakeAPI{sessionErr: errors.New("clone timed out")}, &fakeDialer{})
	err := c.StartClone(context.Background(), CloneRequest{RepoURL: "https://github.com/a/b", Language: "python"})
	if err == nil {
		t.Fatal("expected error")
	}
	if c.Phase() != PhaseFailed {
		t.Fatalf("phase = %s, want failed", c.Phase())
	}
	if c.FailureStage() != StageCloning {
		t.Fatalf("stage = %q, want cloning", c.FailureStage())
	}
}

func TestController_StartCloneGuardedByPhase(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	if err := c.StartClone(context.Background(), CloneRequest{RepoURL: "https://github.com/a/b", Language: "python"}); err == nil {
		t.Fatal("a second session must be rejected while one is live")
	}
}

func TestController_InitFrameContents(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestController(&fakeAPI{sessionID: "sess-42"}, dialer)
	startStreaming(t, c)

	if len(dialer.frames) != 1 {
		t.Fatalf("expected exactly one init frame, got %d", len(dialer.frames))
	}
	frame := dialer.frames[0]
	if frame.SessionID != "sess-42" {
		t.Fatalf("session_id = %q", frame.SessionID)
	}
	if frame.BranchName != "RIFT_ORGANISERS_SAIYAM_KUMAR_AI_Fix" {
		t.Fatalf("branch_name = %q", frame.BranchName)
	}
	if frame.Branch != "main" || frame.TestCommand != "npm test" || frame.GithubToken != "tok" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestController_SecondStreamPrevented(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	if _, err := c.StartExecution(context.Background(), ExecRequest{}); err == nil {
		t.Fatal("opening a second stream must be rejected")
	}
}

func TestController_AccumulatesInArrivalOrder(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)

	frames := []string{
		`{"type":"step","step":"cloning","status":"done"}`,
		`{"type":"log","line":"$ git clone","ts":"10:00:00"}`,
		`{"type":"step","step":"running_tests","status":"running"}`,
		`{"type":"iteration","iteration":1,"total":5,"status":"failed","errors_count":3}`,
		`{"type":"fix","fix":{"file":"src/a.js","bug_type":"LOGIC","status":"fixed","commit_message":"fix: a"}}`,
		`{"type":"log","line":"second line","ts":"10:00:02"}`,
	}
	for _, f := range frames {
		c.HandleFrame([]byte(f))
	}

	if got := len(c.Logs()); got != 2 {
		t.Fatalf("logs = %d, want 2", got)
	}
	if c.Logs()[0].Text != "$ git clone" || c.Logs()[1].Text != "second line" {
		t.Fatal("log order must match arrival order")
	}
	if got := len(c.CIRuns()); got != 1 || c.CIRuns()[0].ErrorsCount != 3 {
		t.Fatalf("unexpected CI runs: %+v", c.CIRuns())
	}
	if got := c.MaxIterations(); got != 5 {
		t.Fatalf("max iterations hint = %d, want 5", got)
	}
	if got := len(c.Fixes()); got != 1 {
		t.Fatalf("fixes = %d, want 1", got)
	}
	if got := c.Steps().StatusOf("running_tests"); got != StepRunning {
		t.Fatalf("running_tests = %s", got)
	}
	if c.Phase() != PhaseStreaming {
		t.Fatalf("phase = %s, want streaming", c.Phase())
	}
}

func TestController_MalformedFramesHaveNoEffect(t *testing.T) {
	valid := []string{
		`{"type":"log","line":"a","ts":"1"}`,
		`{"type":"step","step":"fixing","status":"running"}`,
		`{"type":"fix","fix":{"file":"f.js","status":"failed","error_message":"nope"}}`,
	}
	junk := []string{
		`garbage`,
		`{"type":"mystery"}`,
		`{"type":"log","line":"missing ts"}`,
		`{"type":"step","step":"nope","status":"running"}`,
	}

	clean := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, clean)
	for _, f := range valid {
		clean.HandleFrame([]byte(f))
	}

	dirty := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, dirty)
	for i, f := range valid {
		dirty.HandleFrame([]byte(junk[i%len(junk)]))
		dirty.HandleFrame([]byte(f))
		dirty.HandleFrame([]byte(junk[(i+1)%len(junk)]))
	}

	if len(clean.Logs()) != len(dirty.Logs()) ||
		len(clean.Fixes()) != len(dirty.Fixes()) ||
		clean.Steps().StatusOf("fixing") != dirty.Steps().StatusOf("fixing") ||
		clean.Phase() != dirty.Phase() {
		t.Fatal("interleaved malformed frames must leave state identical")
	}
}

func TestController_CompleteIsTerminalAndIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestController(&fakeAPI{}, dialer)
	startStreaming(t, c)

	first := `{"type":"complete","result":{"passed":true,"iterations":2,"branch_name":"B_AI_Fix","total_fixed":1}}`
	second := `{"type":"complete","result":{"passed":false,"iterations":9,"branch_name":"OTHER"}}`
	c.HandleFrame([]byte(first))
	if c.Phase() != PhaseDone {
		t.Fatalf("phase = %s, want done", c.Phase())
	}
	if dialer.stream.closes == 0 {
		t.Fatal("terminal event must close the stream")
	}

	c.HandleFrame([]byte(second))
	if c.Final().Iterations != 2 || !c.Final().Passed {
		t.Fatalf("second complete must be a no-op, got %+v", c.Final())
	}
}

func TestController_ErrorFrameFails(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"log","line":"some progress","ts":"1"}`))
	c.HandleFrame([]byte(`{"type":"error","message":"Test execution failed: oom"}`))

	if c.Phase() != PhaseFailed || c.FailureStage() != StageExecuting {
		t.Fatalf("phase = %s stage = %s", c.Phase(), c.FailureStage())
	}
	if c.FailureMessage() != "Test execution failed: oom" {
		t.Fatalf("message = %q", c.FailureMessage())
	}
	if len(c.Logs()) != 1 {
		t.Fatal("logs accumulated before the failure must survive")
	}
}

func TestController_AbnormalDisconnectFails(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleDisconnect(errors.New("websocket: close 1006"))

	if c.Phase() != PhaseFailed {
		t.Fatalf("phase = %s, want failed (never stuck in streaming)", c.Phase())
	}
	if c.FailureMessage() == "" {
		t.Fatal("disconnect must synthesize a message")
	}
	if !strings.Contains(c.FailureMessage(), "connection closed unexpectedly") {
		t.Fatalf("message = %q", c.FailureMessage())
	}
}

func TestController_DisconnectAfterCompleteIgnored(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix"}}`))
	c.HandleDisconnect(errors.New("normal teardown"))
	if c.Phase() != PhaseDone {
		t.Fatalf("phase = %s, want done", c.Phase())
	}
}

func TestController_TickOnlyWhileStreaming(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	c.Tick()
	if c.ElapsedSeconds() != 0 {
		t.Fatal("ticks before streaming must not count")
	}
	startStreaming(t, c)
	c.Tick()
	c.Tick()
	if c.ElapsedSeconds() != 2 {
		t.Fatalf("elapsed = %d, want 2", c.ElapsedSeconds())
	}
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":false}}`))
	c.Tick()
	if c.ElapsedSeconds() != 2 {
		t.Fatal("ticks after the terminal event must not count")
	}
}

func TestController_ResetClearsEverything(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestController(&fakeAPI{}, dialer)
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"log","line":"x","ts":"1"}`))
	c.HandleFrame([]byte(`{"type":"step","step":"cloning","status":"done"}`))
	c.HandleFrame([]byte(`{"type":"fix","fix":{"file":"a.js"}}`))
	c.HandleFrame([]byte(`{"type":"iteration","iteration":1,"status":"failed"}`))
	c.HandleFrame([]byte(`{"type":"pr_created","pr_url":"https://github.com/a/b/pull/1"}`))
	c.Tick()
	c.Reset()

	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
	if dialer.stream.closes == 0 {
		t.Fatal("reset must close the open stream")
	}
	if c.Session() != nil || c.Final() != nil || c.PRResult() != nil {
		t.Fatal("reset must clear session, final result and PR state")
	}
	if len(c.Logs()) != 0 || len(c.Fixes()) != 0 || len(c.CIRuns()) != 0 {
		t.Fatal("reset must clear accumulated sequences")
	}
	if c.Steps().CurrentIndex() != -1 || c.ElapsedSeconds() != 0 {
		t.Fatal("reset must clear steps and elapsed time")
	}

	// round trip: a fresh run starts cleanly from idle
	startStreaming(t, c)
	if len(c.Logs()) != 0 {
		t.Fatal("new session must not inherit old logs")
	}
}

func TestController_ResetFromFailed(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleDisconnect(nil)
	c.Reset()
	if c.Phase() != PhaseIdle || c.FailureMessage() != "" || c.FailureStage() != "" {
		t.Fatal("reset must clear failure state")
	}
}

func TestController_PRActionDraftWithoutPriorPR(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix","total_fixed":1}}`))
	if got := c.NextPRAction(); got != PRActionDraft {
		t.Fatalf("action = %d, want draft", got)
	}
}

func TestController_PRActionExistsWithPriorPR(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"pr_created","pr_url":"https://github.com/a/b/pull/9","repo_name":"a/b"}`))
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix"}}`))
	if got := c.NextPRAction(); got != PRActionExists {
		t.Fatalf("action = %d, want exists", got)
	}
	if c.PRResult() == nil || c.PRResult().URL != "https://github.com/a/b/pull/9" {
		t.Fatalf("pr result = %+v", c.PRResult())
	}
}

func TestController_PRActionNoneWhenFailedOrNoBranch(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":false,"branch_name":"B_AI_Fix"}}`))
	if got := c.NextPRAction(); got != PRActionNone {
		t.Fatalf("failed run: action = %d, want none", got)
	}

	c.Reset()
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":null}}`))
	if got := c.NextPRAction(); got != PRActionNone {
		t.Fatalf("no branch: action = %d, want none", got)
	}
}

func TestController_SubmitPRSuccess(t *testing.T) {
	api := &fakeAPI{pr: PRResult{URL: "https://github.com/acme/shopping-cart/pull/3", RepoName: "acme/shopping-cart"}}
	c := newTestController(api, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix","total_fixed":1}}`))

	if err := c.SubmitPR(context.Background(), c.BuildDraft()); err != nil {
		t.Fatal(err)
	}
	if c.PRResult() == nil || c.PRResult().URL == "" {
		t.Fatal("submission success must record the PR")
	}
	if got := c.NextPRAction(); got != PRActionExists {
		t.Fatalf("after submission action = %d, want exists", got)
	}
}

func TestController_SubmitPRFailureKeepsDraft(t *testing.T) {
	api := &fakeAPI{prErr: errors.New("Cannot create PR: no commits between main and B_AI_Fix")}
	c := newTestController(api, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix"}}`))

	if err := c.SubmitPR(context.Background(), c.BuildDraft()); err == nil {
		t.Fatal("expected submission error")
	}
	if c.PRResult() != nil {
		t.Fatal("failed submission must not record a PR")
	}
	if c.PRError() == "" {
		t.Fatal("failed submission must surface the message")
	}
	if got := c.NextPRAction(); got != PRActionDraft {
		t.Fatalf("after failure action = %d, want draft (user-initiated retry)", got)
	}
}

func TestController_SubmitPRSerialized(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix"}}`))

	if _, err := c.PreparePRSubmit(PRDraft{Title: "t"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PreparePRSubmit(PRDraft{Title: "t"}); !errors.Is(err, ErrPRSubmitInFlight) {
		t.Fatalf("expected ErrPRSubmitInFlight, got %v", err)
	}
	c.CompletePRSubmit(PRResult{}, errors.New("rejected"))
	if _, err := c.PreparePRSubmit(PRDraft{Title: "t"}); err != nil {
		t.Fatalf("retry after completion must be allowed: %v", err)
	}
}

func TestController_FiveFixScenario(t *testing.T) {
	c := newTestController(&fakeAPI{}, &fakeDialer{})
	startStreaming(t, c)

	statuses := []string{"fixed", "fixed", "fixed", "fixed", "failed"}
	for i, s := range statuses {
		frame := `{"type":"fix","fix":{"file":"src/f` + string(rune('0'+i)) + `.js","bug_type":"LOGIC","status":"` + s + `","commit_message":"fix: thing"}}`
		c.HandleFrame([]byte(frame))
	}
	c.HandleFrame([]byte(`{"type":"complete","result":{"passed":true,"branch_name":"B_AI_Fix","total_fixed":4}}`))

	var fixedCount, failedCount int
	for _, f := range c.Fixes() {
		switch f.Status {
		case FixStatusFixed:
			fixedCount++
		case FixStatusFailed:
			failedCount++
		}
	}
	if fixedCount != 4 || failedCount != 1 {
		t.Fatalf("fixes = %d fixed / %d failed, want 4/1", fixedCount, failedCount)
	}

	draft := c.BuildDraft()
	if !strings.Contains(draft.Body, "| Files fixed | 4 |") {
		t.Fatalf("draft body must count 4 fixed files:\n%s", draft.Body)
	}
	if !strings.Contains(draft.Title, "4") {
		t.Fatalf("multi-fix title should reference the count, got %q", draft.Title)
	}
}
