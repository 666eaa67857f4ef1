package app

import "strings"

// Session is one run of the healing pipeline against one repository. The
// identifier is assigned by the execution agent when the clone succeeds.
type Session struct {
	ID             string `json:"id"`
	RepoURL        string `json:"repo_url"`
	RepoOwner      string `json:"repo_owner"`
	RepoName       string `json:"repo_name"`
	Language       string `json:"language"`
	InstallCommand string `json:"install_command,omitempty"`
	TestCommand    string `json:"test_command,omitempty"`
}

// RepoFullName returns "owner/name", or just the name when the owner could
// not be derived from the URL.
func (s *Session) RepoFullName() string {
	if s.RepoOwner == "" {
		return s.RepoName
	}
	return s.RepoOwner + "/" + s.RepoName
}

// SplitRepoURL derives owner and repository name from a GitHub-style URL.
func SplitRepoURL(repoURL string) (owner, name string) {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		owner = parts[len(parts)-2]
		name = parts[len(parts)-1]
		if strings.Contains(owner, ":") || strings.Contains(owner, ".") {
			// scheme/host remnants from short URLs like "github.com/name"
			owner = ""
		}
	} else if len(parts) == 1 {
		name = parts[0]
	}
	return owner, name
}

type LogLine struct {
	Text      string `json:"line"`
	Timestamp string `json:"ts"`
}

const (
	FixStatusFixed  = "fixed"
	FixStatusFailed = "failed"
)

// Fix is one file-level change attempted by the remote agent.
type Fix struct {
	File          string          `json:"file"`
	BugType       string          `json:"bug_type"`
	LineNumber    int             `json:"line_number"` // 0 when unknown
	CommitMessage string          `json:"commit_message"`
	Status        string          `json:"status"` // fixed | failed
	ErrorMessage  string          `json:"error_message,omitempty"`
	Description   string          `json:"description,omitempty"`
	Explanation   *FixExplanation `json:"explanation,omitempty"`
}

type FixExplanation struct {
	RootCause   string `json:"root_cause"`
	ChangesMade string `json:"changes_made"`
	Impact      string `json:"impact"`
}

// CIRun is one test-execution attempt, numbered by the server. Iteration
// numbers are displayed as received and are not assumed contiguous.
type CIRun struct {
	Iteration    int    `json:"iteration"`
	Status       string `json:"status"` // passed | failed
	ErrorsCount  int    `json:"errors_count"`
	FixesApplied int    `json:"fixes_applied"`
	Timestamp    string `json:"timestamp"`
}

// FinalResult is the terminal snapshot delivered by the complete event.
type FinalResult struct {
	SessionID        string  `json:"session_id"`
	Status           string  `json:"status"` // passed | failed | partial_fix
	Passed           bool    `json:"passed"`
	Iterations       int     `json:"iterations"`
	BranchName       string  `json:"branch_name"`
	CommitHash       string  `json:"commit_hash"`
	TimeTakenSeconds float64 `json:"time_taken_seconds"`
	RepoURL          string  `json:"repo_url"`
	TotalFailures    int     `json:"total_failures"`
	TotalFixed       int     `json:"total_fixed"`
}

// PRDraft is the editable title/body proposed before submission.
type PRDraft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PRResult records that a pull request exists, whether created here or
// autonomously by the pipeline.
type PRResult struct {
	URL      string `json:"pr_url"`
	RepoName string `json:"repo_name,omitempty"`
}

// Repository is one entry of the read-only repo picker listing.
type Repository struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Private     bool   `json:"private"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
	Language    string `json:"language"`
}
