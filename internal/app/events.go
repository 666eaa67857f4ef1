package app

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSkipFrame marks a frame that failed to decode and must be dropped
// without touching session state. The protocol evolves additively, so an
// unknown event type is not an error condition.
var ErrSkipFrame = errors.New("skip frame")

// Event is one decoded message from the streaming channel.
type Event interface {
	eventType() string
}

type LogEvent struct {
	Line LogLine
}

type StepEvent struct {
	Step   string
	Status StepStatus
}

type IterationEvent struct {
	Iteration   int
	Status      string
	ErrorsCount int
	Total       int // max-iterations display hint, 0 when absent
}

type FixEvent struct {
	Fix Fix
}

type CompleteEvent struct {
	Result FinalResult
}

type ErrorEvent struct {
	Message string
}

type PRCreatedEvent struct {
	PR PRResult
}

func (LogEvent) eventType() string       { return "log" }
func (StepEvent) eventType() string      { return "step" }
func (IterationEvent) eventType() string { return "iteration" }
func (FixEvent) eventType() string       { return "fix" }
func (CompleteEvent) eventType() string  { return "complete" }
func (ErrorEvent) eventType() string     { return "error" }
func (PRCreatedEvent) eventType() string { return "pr_created" }

// DecodeEvent parses one raw frame into a typed event. Anything that is not
// valid JSON, lacks a recognized type, or fails required-field validation is
// reported via ErrSkipFrame so the caller can drop it silently.
func DecodeEvent(raw []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrSkipFrame, err)
	}

	switch head.Type {
	case "log":
		var frame struct {
			Line *string `json:"line"`
			TS   *string `json:"ts"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Line == nil || frame.TS == nil {
			return nil, fmt.Errorf("%w: log frame missing line/ts", ErrSkipFrame)
		}
		return LogEvent{Line: LogLine{Text: *frame.Line, Timestamp: *frame.TS}}, nil

	case "step":
		var frame struct {
			Step   *string `json:"step"`
			Status *string `json:"status"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Step == nil || frame.Status == nil {
			return nil, fmt.Errorf("%w: step frame missing step/status", ErrSkipFrame)
		}
		if !KnownStep(*frame.Step) {
			return nil, fmt.Errorf("%w: unknown step %q", ErrSkipFrame, *frame.Step)
		}
		status := StepStatus(*frame.Status)
		switch status {
		case StepPending, StepRunning, StepDone, StepError:
		default:
			return nil, fmt.Errorf("%w: unknown step status %q", ErrSkipFrame, *frame.Status)
		}
		return StepEvent{Step: *frame.Step, Status: status}, nil

	case "iteration":
		var frame struct {
			Iteration   *int    `json:"iteration"`
			Status      *string `json:"status"`
			ErrorsCount int     `json:"errors_count"`
			Total       int     `json:"total"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Iteration == nil || frame.Status == nil {
			return nil, fmt.Errorf("%w: iteration frame missing iteration/status", ErrSkipFrame)
		}
		if *frame.Iteration < 1 {
			return nil, fmt.Errorf("%w: iteration number %d", ErrSkipFrame, *frame.Iteration)
		}
		return IterationEvent{
			Iteration:   *frame.Iteration,
			Status:      *frame.Status,
			ErrorsCount: frame.ErrorsCount,
			Total:       frame.Total,
		}, nil

	case "fix":
		var frame struct {
			Fix *struct {
				File          *string         `json:"file"`
				BugType       string          `json:"bug_type"`
				LineNumber    *int            `json:"line_number"`
				CommitMessage string          `json:"commit_message"`
				Status        string          `json:"status"`
				ErrorMessage  string          `json:"error_message"`
				Description   string          `json:"description"`
				Explanation   *FixExplanation `json:"explanation"`
			} `json:"fix"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Fix == nil || frame.Fix.File == nil || *frame.Fix.File == "" {
			return nil, fmt.Errorf("%w: fix frame missing fix.file", ErrSkipFrame)
		}
		fix := Fix{
			File:          *frame.Fix.File,
			BugType:       frame.Fix.BugType,
			CommitMessage: frame.Fix.CommitMessage,
			Status:        frame.Fix.Status,
			ErrorMessage:  frame.Fix.ErrorMessage,
			Description:   frame.Fix.Description,
			Explanation:   frame.Fix.Explanation,
		}
		if frame.Fix.LineNumber != nil && *frame.Fix.LineNumber > 0 {
			fix.LineNumber = *frame.Fix.LineNumber
		}
		if fix.Status == "" {
			fix.Status = FixStatusFixed
		}
		if fix.Status != FixStatusFixed && fix.Status != FixStatusFailed {
			return nil, fmt.Errorf("%w: unknown fix status %q", ErrSkipFrame, fix.Status)
		}
		return FixEvent{Fix: fix}, nil

	case "complete":
		var frame struct {
			Result *FinalResult `json:"result"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Result == nil {
			return nil, fmt.Errorf("%w: complete frame missing result", ErrSkipFrame)
		}
		return CompleteEvent{Result: *frame.Result}, nil

	case "error":
		var frame struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Message == nil {
			return nil, fmt.Errorf("%w: error frame missing message", ErrSkipFrame)
		}
		return ErrorEvent{Message: *frame.Message}, nil

	case "pr_created":
		var frame struct {
			PRURL    *string `json:"pr_url"`
			RepoName string  `json:"repo_name"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil || frame.PRURL == nil || *frame.PRURL == "" {
			return nil, fmt.Errorf("%w: pr_created frame missing pr_url", ErrSkipFrame)
		}
		return PRCreatedEvent{PR: PRResult{URL: *frame.PRURL, RepoName: frame.RepoName}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrSkipFrame, head.Type)
	}
}
