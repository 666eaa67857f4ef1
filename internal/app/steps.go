package app

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepError   StepStatus = "error"
)

type StepDefinition struct {
	ID    string
	Label string
}

// StepCatalog is the fixed, ordered catalogue of pipeline stages. Display
// order always comes from here, never from event arrival order. The server
// only reports pr_creation when it opens the pull request itself.
var StepCatalog = []StepDefinition{
	{ID: "cloning", Label: "Cloning repository"},
	{ID: "running_tests", Label: "Running tests"},
	{ID: "analyzing", Label: "Analyzing failures"},
	{ID: "fixing", Label: "Applying AI fixes"},
	{ID: "verifying", Label: "Verifying fixes"},
	{ID: "committing", Label: "Committing changes"},
	{ID: "pr_creation", Label: "Creating pull request"},
}

// KnownStep reports whether id names a catalogued pipeline stage.
func KnownStep(id string) bool {
	for _, def := range StepCatalog {
		if def.ID == id {
			return true
		}
	}
	return false
}

// StepRegistry tracks reported per-step status. Upserts are idempotent and
// keyed by step id; steps are never removed outside Reset.
type StepRegistry struct {
	statuses map[string]StepStatus
}

func NewStepRegistry() *StepRegistry {
	return &StepRegistry{statuses: make(map[string]StepStatus)}
}

// Upsert records the latest status for a catalogued step. Unknown ids are
// rejected, as is any attempt to pull a reported step back to pending.
func (r *StepRegistry) Upsert(id string, status StepStatus) bool {
	if !KnownStep(id) {
		return false
	}
	switch status {
	case StepPending, StepRunning, StepDone, StepError:
	default:
		return false
	}
	if prev, ok := r.statuses[id]; ok && status == StepPending && prev != StepPending {
		return false
	}
	r.statuses[id] = status
	return true
}

// StatusOf defaults to pending for steps never reported.
func (r *StepRegistry) StatusOf(id string) StepStatus {
	if s, ok := r.statuses[id]; ok {
		return s
	}
	return StepPending
}

// Reported reports whether the server ever mentioned the step.
func (r *StepRegistry) Reported(id string) bool {
	_, ok := r.statuses[id]
	return ok
}

// CurrentIndex returns the catalogue index of the first reported step that is
// not done, driving the progress indicator. When nothing has been reported it
// returns -1; when every reported step is done it returns the index of the
// last reported one.
func (r *StepRegistry) CurrentIndex() int {
	if len(r.statuses) == 0 {
		return -1
	}
	last := -1
	for i, def := range StepCatalog {
		status, ok := r.statuses[def.ID]
		if !ok {
			continue
		}
		if status != StepDone {
			return i
		}
		last = i
	}
	return last
}

func (r *StepRegistry) Reset() {
	r.statuses = make(map[string]StepStatus)
}
