package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Phase is the top-level state of the session controller.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseConfiguring Phase = "configuring"
	PhaseStreaming   Phase = "streaming"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Failing stages, recorded alongside PhaseFailed.
const (
	StageCloning   = "cloning"
	StageExecuting = "executing"
)

// ErrPRSubmitInFlight guards against a second PR submission while one is
// still pending.
var ErrPRSubmitInFlight = errors.New("a pull request submission is already in flight")

type CloneRequest struct {
	RepoURL        string
	Language       string
	TeamName       string
	TeamLeaderName string
	GithubToken    string
}

type ExecRequest struct {
	InstallCommand string
	TestCommand    string
}

// Controller owns all mutable session state and every transition of the
// pipeline view. It is single-owner: exactly one goroutine (the UI loop, or
// the headless run loop) may call its methods, and inbound frames must be
// applied strictly in arrival order.
type Controller struct {
	api    ExecutorAPI
	dialer StreamDialer
	logger *Logger

	baseBranch    string
	userID        string
	maxIterations int

	phase       Phase
	session     *Session
	teamName    string
	leaderName  string
	githubToken string

	steps *StepRegistry
	logs  []LogLine
	fixes []Fix
	runs  []CIRun
	final *FinalResult

	prResult     *PRResult
	prSubmitting bool
	prError      string

	cloning     bool
	dialing     bool
	stream      Stream
	elapsedSecs int

	failStage   string
	failMessage string
}

func NewController(api ExecutorAPI, dialer StreamDialer, cfg Config, logger *Logger) *Controller {
	return &Controller{
		api:           api,
		dialer:        dialer,
		logger:        logger,
		baseBranch:    cfg.BaseBranch,
		userID:        cfg.UserID,
		maxIterations: cfg.MaxIterations,
		phase:         PhaseIdle,
		steps:         NewStepRegistry(),
	}
}

// API and Dialer expose the external collaborators so the UI can run their
// blocking calls off the update loop.
func (c *Controller) API() ExecutorAPI     { return c.api }
func (c *Controller) Dialer() StreamDialer { return c.dialer }

func (c *Controller) Phase() Phase           { return c.phase }
func (c *Controller) Session() *Session      { return c.session }
func (c *Controller) Steps() *StepRegistry   { return c.steps }
func (c *Controller) Logs() []LogLine        { return c.logs }
func (c *Controller) Fixes() []Fix           { return c.fixes }
func (c *Controller) CIRuns() []CIRun        { return c.runs }
func (c *Controller) Final() *FinalResult    { return c.final }
func (c *Controller) PRResult() *PRResult    { return c.prResult }
func (c *Controller) PRError() string        { return c.prError }
func (c *Controller) PRSubmitting() bool     { return c.prSubmitting }
func (c *Controller) ElapsedSeconds() int    { return c.elapsedSecs }
func (c *Controller) MaxIterations() int     { return c.maxIterations }
func (c *Controller) FailureStage() string   { return c.failStage }
func (c *Controller) FailureMessage() string { return c.failMessage }

// BranchName returns the branch the pipeline will push to for the active
// session, derived deterministically from team metadata or the repo name.
func (c *Controller) BranchName() string {
	if c.session == nil {
		return ""
	}
	return DeriveBranchName(c.teamName, c.leaderName, c.session.RepoName)
}

// BeginClone reserves the idle controller for one clone attempt and returns
// the request to send. The UI runs the blocking call off-loop and reports
// back through CompleteClone; phase only changes on the outcome.
func (c *Controller) BeginClone(req CloneRequest) (CreateSessionRequest, error) {
	if c.phase != PhaseIdle {
		return CreateSessionRequest{}, fmt.Errorf("cannot start a clone while phase is %s", c.phase)
	}
	if c.cloning {
		return CreateSessionRequest{}, errors.New("a clone request is already in flight")
	}
	c.cloning = true
	return CreateSessionRequest{
		RepoURL:  req.RepoURL,
		Language: req.Language,
		UserID:   c.userID,
	}, nil
}

// CompleteClone applies the outcome of a clone attempt started with
// BeginClone: configuring on success, a cloning-stage failure otherwise.
func (c *Controller) CompleteClone(req CloneRequest, sessionID string, err error) {
	c.cloning = false
	if err != nil {
		c.fail(StageCloning, err.Error())
		return
	}
	owner, name := SplitRepoURL(req.RepoURL)
	c.session = &Session{
		ID:        sessionID,
		RepoURL:   req.RepoURL,
		RepoOwner: owner,
		RepoName:  name,
		Language:  req.Language,
	}
	c.teamName = req.TeamName
	c.leaderName = req.TeamLeaderName
	c.githubToken = req.GithubToken
	c.phase = PhaseConfiguring
	if c.logger != nil {
		c.logger.Info("clone complete", map[string]interface{}{
			"session_id": sessionID,
			"repo":       c.session.RepoFullName(),
		})
	}
}

// StartClone performs a full synchronous clone. Headless mode and tests use
// it; the TUI splits the phases so the HTTP call runs off-loop.
func (c *Controller) StartClone(ctx context.Context, req CloneRequest) error {
	apiReq, err := c.BeginClone(req)
	if err != nil {
		return err
	}
	id, err := c.api.CreateSession(ctx, apiReq)
	c.CompleteClone(req, id, err)
	return err
}

// PrepareExecution freezes the install/test commands and builds the single
// init frame. Opening a second stream while one is active is a programming
// error and rejected here.
func (c *Controller) PrepareExecution(req ExecRequest) (InitFrame, error) {
	if c.phase != PhaseConfiguring || c.session == nil {
		return InitFrame{}, fmt.Errorf("cannot start execution while phase is %s", c.phase)
	}
	if c.stream != nil || c.dialing {
		return InitFrame{}, errors.New("a stream is already open")
	}
	c.dialing = true
	c.session.InstallCommand = req.InstallCommand
	c.session.TestCommand = req.TestCommand
	return InitFrame{
		RepoURL:        c.session.RepoURL,
		Language:       c.session.Language,
		InstallCommand: req.InstallCommand,
		TestCommand:    req.TestCommand,
		Branch:         c.baseBranch,
		BranchName:     c.BranchName(),
		MaxIterations:  c.maxIterations,
		SessionID:      c.session.ID,
		GithubToken:    c.githubToken,
	}, nil
}

// CompleteExecution adopts the opened stream and enters streaming, or folds
// a dial failure into the executing stage.
func (c *Controller) CompleteExecution(stream Stream, err error) {
	c.dialing = false
	if err != nil {
		c.fail(StageExecuting, err.Error())
		return
	}
	c.stream = stream
	c.elapsedSecs = 0
	c.phase = PhaseStreaming
}

// StartExecution opens the streaming channel synchronously and returns it
// for the caller's read loop; the controller keeps it only for teardown.
func (c *Controller) StartExecution(ctx context.Context, req ExecRequest) (Stream, error) {
	frame, err := c.PrepareExecution(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.dialer.Dial(ctx, frame)
	c.CompleteExecution(stream, err)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// HandleFrame decodes and applies one raw frame. Malformed and unknown
// frames are dropped with a diagnostic and zero side effects. Frames that
// race past a terminal transition are ignored.
func (c *Controller) HandleFrame(raw []byte) {
	if c.phase != PhaseStreaming {
		return
	}
	event, err := DecodeEvent(raw)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("dropping frame", map[string]interface{}{"reason": err.Error()})
		}
		return
	}
	c.handleEvent(event)
}

func (c *Controller) handleEvent(event Event) {
	switch e := event.(type) {
	case LogEvent:
		c.logs = append(c.logs, e.Line)
	case StepEvent:
		c.steps.Upsert(e.Step, e.Status)
	case IterationEvent:
		c.runs = append(c.runs, CIRun{
			Iteration:   e.Iteration,
			Status:      e.Status,
			ErrorsCount: e.ErrorsCount,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		})
		if e.Total > 0 {
			c.maxIterations = e.Total
		}
	case FixEvent:
		c.fixes = append(c.fixes, e.Fix)
	case PRCreatedEvent:
		pr := e.PR
		c.prResult = &pr
	case CompleteEvent:
		result := e.Result
		c.final = &result
		c.teardown()
		c.phase = PhaseDone
		if c.logger != nil {
			c.logger.Info("pipeline complete", map[string]interface{}{
				"passed":     result.Passed,
				"iterations": result.Iterations,
			})
		}
	case ErrorEvent:
		c.fail(StageExecuting, e.Message)
	}
}

// HandleDisconnect reports that the stream's read loop ended. An abnormal
// close before any terminal frame is a failure, never a hang; a close after
// complete/error/reset is the expected teardown and is ignored.
func (c *Controller) HandleDisconnect(err error) {
	if c.phase != PhaseStreaming {
		return
	}
	msg := "connection closed unexpectedly"
	if err != nil {
		msg = fmt.Sprintf("connection closed unexpectedly: %v", err)
	}
	c.fail(StageExecuting, msg)
}

// Tick advances the elapsed-time counter, one call per second while
// streaming. Ticks in any other phase are ignored.
func (c *Controller) Tick() {
	if c.phase == PhaseStreaming {
		c.elapsedSecs++
	}
}

// Reset tears down any open stream and returns the controller to idle with
// empty accumulated state, ready for a fresh StartClone.
func (c *Controller) Reset() {
	c.teardown()
	c.phase = PhaseIdle
	c.session = nil
	c.teamName = ""
	c.leaderName = ""
	c.githubToken = ""
	c.steps.Reset()
	c.logs = nil
	c.fixes = nil
	c.runs = nil
	c.final = nil
	c.prResult = nil
	c.prSubmitting = false
	c.prError = ""
	c.cloning = false
	c.dialing = false
	c.elapsedSecs = 0
	c.failStage = ""
	c.failMessage = ""
}

// fail folds any terminal failure into phase + stage + message. All failure
// paths, explicit protocol errors and silent disconnects alike, come through
// here so teardown is unconditional.
func (c *Controller) fail(stage, message string) {
	c.teardown()
	c.phase = PhaseFailed
	c.failStage = stage
	c.failMessage = message
	if c.logger != nil {
		c.logger.Error("pipeline failed", map[string]interface{}{
			"stage":   stage,
			"message": message,
		})
	}
}

func (c *Controller) teardown() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
}

// PRAction is the coordinator's decision at the streaming→done transition.
type PRAction int

const (
	// PRActionNone: run did not pass or produced no branch; nothing to offer.
	PRActionNone PRAction = iota
	// PRActionExists: a pull request is already known; show it.
	PRActionExists
	// PRActionDraft: offer an editable draft for user submission.
	PRActionDraft
)

// NextPRAction decides between the auto-success view and the create-request
// view. The decision reads accumulated state only, so a pr_created event
// counts no matter when it arrived relative to complete.
func (c *Controller) NextPRAction() PRAction {
	if c.phase != PhaseDone || c.final == nil {
		return PRActionNone
	}
	if !c.final.Passed || c.final.BranchName == "" {
		return PRActionNone
	}
	if c.prResult != nil {
		return PRActionExists
	}
	return PRActionDraft
}

// BuildDraft recomputes the default title/body from current data. Manual
// edits are never preserved across re-entry; callers get a fresh draft.
func (c *Controller) BuildDraft() PRDraft {
	return BuildPRDraft(DraftInput{
		Session:    c.session,
		Final:      c.final,
		Fixes:      c.fixes,
		TeamName:   c.teamName,
		LeaderName: c.leaderName,
		BaseBranch: c.baseBranch,
		Now:        time.Now().UTC(),
	})
}

// PreparePRSubmit validates and freezes one submission attempt, returning
// the request for the caller to send. The controller stays busy until
// CompletePRSubmit is called with the outcome.
func (c *Controller) PreparePRSubmit(draft PRDraft) (CreatePRRequest, error) {
	if c.phase != PhaseDone || c.final == nil || c.session == nil {
		return CreatePRRequest{}, fmt.Errorf("cannot submit a pull request while phase is %s", c.phase)
	}
	if c.prSubmitting {
		return CreatePRRequest{}, ErrPRSubmitInFlight
	}
	c.prSubmitting = true
	c.prError = ""
	return CreatePRRequest{
		RepoFullName: c.session.RepoFullName(),
		BranchName:   c.final.BranchName,
		BaseBranch:   c.baseBranch,
		Title:        draft.Title,
		Body:         draft.Body,
		GithubToken:  c.githubToken,
	}, nil
}

// CompletePRSubmit records the outcome of a submission started with
// PreparePRSubmit. Failures keep the draft view; retry is user-initiated.
func (c *Controller) CompletePRSubmit(result PRResult, err error) {
	c.prSubmitting = false
	if err != nil {
		c.prError = truncateMessage(err.Error(), 500)
		return
	}
	c.prResult = &result
	c.prError = ""
}

// SubmitPR performs a full synchronous submission. Headless mode and tests
// use it; the TUI splits the phases so the blocking call runs off-loop.
func (c *Controller) SubmitPR(ctx context.Context, draft PRDraft) error {
	req, err := c.PreparePRSubmit(draft)
	if err != nil {
		return err
	}
	result, err := c.api.CreatePR(ctx, req)
	c.CompletePRSubmit(result, err)
	return err
}
