package app

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxTitleLen = 72
	draftFooter = "*Generated by GreenBranch AI*"
)

// DraftInput carries everything the builder needs. Now is injected so the
// generation timestamp in the body is deterministic under test.
type DraftInput struct {
	Session    *Session
	Final      *FinalResult
	Fixes      []Fix
	TeamName   string
	LeaderName string
	BaseBranch string
	Now        time.Time
}

// BuildPRDraft computes the default pull-request title and markdown body
// from the fix sequence and the terminal snapshot. Same inputs, same draft.
func BuildPRDraft(in DraftInput) PRDraft {
	fixed := make([]Fix, 0, len(in.Fixes))
	failed := make([]Fix, 0)
	for _, f := range in.Fixes {
		if f.Status == FixStatusFixed {
			fixed = append(fixed, f)
		} else {
			failed = append(failed, f)
		}
	}

	repoName := ""
	if in.Session != nil {
		repoName = in.Session.RepoName
	}

	return PRDraft{
		Title: draftTitle(fixed, repoName),
		Body:  draftBody(in, fixed, failed),
	}
}

func draftTitle(fixed []Fix, repoName string) string {
	if repoName == "" {
		repoName = "repository"
	}
	switch len(fixed) {
	case 0:
		return truncateMessage("Automated test fixes for "+repoName, maxTitleLen)
	case 1:
		msg := strings.TrimSpace(fixed[0].CommitMessage)
		msg = trimFixPrefix(msg)
		if msg == "" {
			msg = "Automated fix for " + fixed[0].File
		}
		return truncateMessage(msg, maxTitleLen)
	default:
		if category, uniform := uniformBugType(fixed); uniform {
			return truncateMessage(
				fmt.Sprintf("Resolve %d %s issues in %s", len(fixed), strings.ToLower(category), repoName),
				maxTitleLen)
		}
		return truncateMessage(fmt.Sprintf("Apply %d automated fixes to %s", len(fixed), repoName), maxTitleLen)
	}
}

// trimFixPrefix drops a conventional-commit style "fix:" or "fix(scope):"
// lead-in so the title reads as a sentence.
func trimFixPrefix(msg string) string {
	lower := strings.ToLower(msg)
	if !strings.HasPrefix(lower, "fix") {
		return msg
	}
	rest := msg[3:]
	if strings.HasPrefix(rest, "(") {
		if i := strings.Index(rest, "):"); i >= 0 {
			return strings.TrimSpace(rest[i+2:])
		}
		return msg
	}
	if strings.HasPrefix(rest, ":") {
		return strings.TrimSpace(rest[1:])
	}
	return msg
}

func uniformBugType(fixes []Fix) (string, bool) {
	if len(fixes) == 0 {
		return "", false
	}
	category := fixes[0].BugType
	for _, f := range fixes[1:] {
		if f.BugType != category {
			return "", false
		}
	}
	if category == "" {
		return "", false
	}
	return category, true
}

func draftBody(in DraftInput, fixed, failed []Fix) string {
	var b strings.Builder

	b.WriteString("## AI Fix Summary\n\n")

	b.WriteString("| | |\n|---|---|\n")
	if in.Session != nil {
		fmt.Fprintf(&b, "| Repository | %s |\n", in.Session.RepoFullName())
	}
	if in.Final != nil {
		if in.Final.BranchName != "" {
			fmt.Fprintf(&b, "| Branch | `%s` |\n", in.Final.BranchName)
		}
		fmt.Fprintf(&b, "| Target branch | `%s` |\n", in.BaseBranch)
		if in.Final.CommitHash != "" {
			fmt.Fprintf(&b, "| Commit | `%s` |\n", shortHash(in.Final.CommitHash))
		}
		fmt.Fprintf(&b, "| Elapsed | %.1fs |\n", in.Final.TimeTakenSeconds)
	}
	fmt.Fprintf(&b, "| Files fixed | %d |\n", len(fixed))
	if !in.Now.IsZero() {
		fmt.Fprintf(&b, "| Generated | %s |\n", in.Now.Format(time.RFC3339))
	}
	if in.TeamName != "" {
		fmt.Fprintf(&b, "| Team | %s |\n", in.TeamName)
	}
	if in.LeaderName != "" {
		fmt.Fprintf(&b, "| Team leader | %s |\n", in.LeaderName)
	}
	b.WriteString("\n")

	for i, fix := range fixed {
		fmt.Fprintf(&b, "### %d. `%s`\n", i+1, fix.File)
		if fix.BugType != "" {
			if fix.LineNumber > 0 {
				fmt.Fprintf(&b, "- **Bug type:** %s (line %d)\n", fix.BugType, fix.LineNumber)
			} else {
				fmt.Fprintf(&b, "- **Bug type:** %s\n", fix.BugType)
			}
		}
		if fix.CommitMessage != "" {
			fmt.Fprintf(&b, "- **Commit:** %s\n", fix.CommitMessage)
		}
		if exp := fix.Explanation; exp != nil && (exp.RootCause != "" || exp.ChangesMade != "" || exp.Impact != "") {
			if exp.RootCause != "" {
				fmt.Fprintf(&b, "- **Root cause:** %s\n", exp.RootCause)
			}
			if exp.ChangesMade != "" {
				fmt.Fprintf(&b, "- **Changes made:** %s\n", exp.ChangesMade)
			}
			if exp.Impact != "" {
				fmt.Fprintf(&b, "- **Impact:** %s\n", exp.Impact)
			}
		} else if fix.Description != "" {
			fmt.Fprintf(&b, "- %s\n", fix.Description)
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("### Attempted but not fixed\n")
		for _, fix := range failed {
			if fix.ErrorMessage != "" {
				fmt.Fprintf(&b, "- `%s`: %s\n", fix.File, truncateMessage(fix.ErrorMessage, 200))
			} else {
				fmt.Fprintf(&b, "- `%s`\n", fix.File)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	b.WriteString(draftFooter)
	b.WriteString("\n")
	return b.String()
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
