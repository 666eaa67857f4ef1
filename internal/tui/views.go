package tui

import (
	"fmt"
	"strings"

	"greenbranch/internal/app"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	var body string
	switch m.ctrl.Phase() {
	case app.PhaseIdle:
		body = m.viewSetup()
	case app.PhaseConfiguring:
		body = m.viewCommands()
	case app.PhaseStreaming:
		body = m.viewDashboard()
	case app.PhaseDone:
		body = m.viewDone()
	case app.PhaseFailed:
		body = m.viewFailed()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewHeader(), body)
}

func (m *Model) viewHeader() string {
	title := headerStyle.Render("GreenBranch")
	meta := "phase: " + string(m.ctrl.Phase())
	if m.mockMode {
		meta += " · mock"
	}
	if s := m.ctrl.Session(); s != nil {
		meta += " · " + s.RepoFullName()
	}
	return title + headerMetaStyle.Render(meta)
}

func (m *Model) viewSetup() string {
	var b strings.Builder
	b.WriteString(paneTitleStyle.Render("Start a healing run"))
	b.WriteString("\n\n")
	labels := [fieldCount]string{"Repository URL", "Team name", "Team leader"}
	for i, in := range m.setupInputs {
		b.WriteString(labelStyle.Render(labels[i]))
		b.WriteByte('\n')
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	if len(m.repos) > 0 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%d repositories available, ctrl+p cycles them into the URL field", len(m.repos))))
		b.WriteByte('\n')
	}
	if m.busy {
		b.WriteString(warnStyle.Render(m.spinnerFrame() + " " + m.busyText))
		b.WriteByte('\n')
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteByte('\n')
	}
	pane := paneStyle.Width(m.paneWidth()).Render(b.String())
	return pane + "\n" + helpStyle.Render("tab next field · enter continue · ctrl+c quit")
}

func (m *Model) viewCommands() string {
	var b strings.Builder
	b.WriteString(paneTitleStyle.Render("Pipeline commands"))
	b.WriteString("\n\n")
	if s := m.ctrl.Session(); s != nil {
		b.WriteString(labelStyle.Render("Repository ") + valueStyle.Render(s.RepoFullName()) + "\n")
		b.WriteString(labelStyle.Render("Branch     ") + valueStyle.Render(m.ctrl.BranchName()) + "\n\n")
	}
	labels := [cmdFieldCount]string{"Install command", "Test command"}
	for i, in := range m.cmdInputs {
		b.WriteString(labelStyle.Render(labels[i]))
		b.WriteByte('\n')
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	if m.busy {
		b.WriteString(warnStyle.Render(m.spinnerFrame() + " " + m.busyText))
		b.WriteByte('\n')
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteByte('\n')
	}
	pane := paneStyle.Width(m.paneWidth()).Render(b.String())
	return pane + "\n" + helpStyle.Render("enter on the last field starts the pipeline · ctrl+c quit")
}

func (m *Model) viewDashboard() string {
	steps := paneStyle.Render(m.renderSteps())
	logs := paneStyle.Render(
		paneTitleStyle.Render("Live output") + "\n" + logStyle.Render(m.logView.View()),
	)
	top := lipgloss.JoinHorizontal(lipgloss.Top, steps, logs)

	var foot strings.Builder
	foot.WriteString(m.renderIterations())
	foot.WriteString(helpStyle.Render(fmt.Sprintf(
		"%s elapsed %ds · ↑/↓ scroll logs · ctrl+c quit",
		m.spinnerFrame(), m.ctrl.ElapsedSeconds(),
	)))
	return lipgloss.JoinVertical(lipgloss.Left, top, foot.String())
}

func (m *Model) renderSteps() string {
	var b strings.Builder
	b.WriteString(paneTitleStyle.Render("Pipeline"))
	b.WriteByte('\n')
	reg := m.ctrl.Steps()
	for _, def := range app.StepCatalog {
		if def.ID == "pr_creation" && !reg.Reported(def.ID) {
			continue
		}
		var line string
		switch reg.StatusOf(def.ID) {
		case app.StepDone:
			line = stepDoneStyle.Render("✓ " + def.Label)
		case app.StepRunning:
			line = stepRunningStyle.Render(m.spinnerFrame() + " " + def.Label)
		case app.StepError:
			line = errorStyle.Render("✗ " + def.Label)
		default:
			line = stepPendingStyle.Render("· " + def.Label)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *Model) renderIterations() string {
	runs := m.ctrl.CIRuns()
	if len(runs) == 0 {
		return ""
	}
	var parts []string
	for _, run := range runs {
		label := fmt.Sprintf("#%d", run.Iteration)
		switch run.Status {
		case "passed":
			parts = append(parts, successStyle.Render(label+" passed"))
		default:
			parts = append(parts, errorStyle.Render(fmt.Sprintf("%s %s (%d errors)", label, run.Status, run.ErrorsCount)))
		}
	}
	line := labelStyle.Render(fmt.Sprintf("Test runs (max %d): ", m.ctrl.MaxIterations())) + strings.Join(parts, labelStyle.Render(" → "))
	return paneStyle.Width(m.paneWidth()).Render(line) + "\n"
}

func (m *Model) viewDone() string {
	final := m.ctrl.Final()
	var b strings.Builder
	if final.Passed {
		b.WriteString(successStyle.Render("✓ Tests passing"))
	} else {
		b.WriteString(warnStyle.Render("Run finished without a green test suite"))
	}
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Status      ") + valueStyle.Render(final.Status) + "\n")
	b.WriteString(labelStyle.Render("Iterations  ") + valueStyle.Render(fmt.Sprintf("%d", final.Iterations)) + "\n")
	b.WriteString(labelStyle.Render("Fixed       ") + valueStyle.Render(fmt.Sprintf("%d of %d failures", final.TotalFixed, final.TotalFailures)) + "\n")
	if final.BranchName != "" {
		b.WriteString(labelStyle.Render("Branch      ") + valueStyle.Render(final.BranchName) + "\n")
	}
	if final.CommitHash != "" {
		b.WriteString(labelStyle.Render("Commit      ") + valueStyle.Render(shortHash(final.CommitHash)) + "\n")
	}
	b.WriteString(labelStyle.Render("Duration    ") + valueStyle.Render(fmt.Sprintf("%.1fs", final.TimeTakenSeconds)) + "\n")

	summary := paneStyle.Width(m.paneWidth()).Render(b.String())

	switch m.ctrl.NextPRAction() {
	case app.PRActionExists:
		return lipgloss.JoinVertical(lipgloss.Left, summary, m.viewPRExists(),
			helpStyle.Render("r new run · q quit"))
	case app.PRActionDraft:
		return lipgloss.JoinVertical(lipgloss.Left, summary, m.viewPRDraft())
	default:
		return lipgloss.JoinVertical(lipgloss.Left, summary,
			helpStyle.Render("r new run · q quit"))
	}
}

func (m *Model) viewPRExists() string {
	pr := m.ctrl.PRResult()
	var b strings.Builder
	b.WriteString(successStyle.Render("Pull request ready"))
	b.WriteString("\n\n")
	b.WriteString(linkStyle.Render(pr.URL))
	b.WriteByte('\n')
	return paneStyle.Width(m.paneWidth()).Render(b.String())
}

func (m *Model) viewPRDraft() string {
	var b strings.Builder
	b.WriteString(paneTitleStyle.Render("Create pull request"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Title"))
	b.WriteByte('\n')
	b.WriteString(m.prTitle.View())
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Body"))
	b.WriteByte('\n')
	b.WriteString(m.prBody.View())
	b.WriteByte('\n')
	if m.ctrl.PRSubmitting() {
		b.WriteString(warnStyle.Render(m.spinnerFrame() + " Submitting pull request…"))
		b.WriteByte('\n')
	}
	if msg := m.ctrl.PRError(); msg != "" {
		b.WriteString(errorStyle.Render(msg))
		b.WriteByte('\n')
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteByte('\n')
	}
	pane := paneStyle.Width(m.paneWidth()).Render(b.String())
	help := "tab switch field · ctrl+s submit · ctrl+r regenerate · esc release focus"
	if m.prFocus < 0 {
		help = "tab edit draft · ctrl+s submit · r new run · q quit"
	}
	return pane + "\n" + helpStyle.Render(help)
}

func (m *Model) viewFailed() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("✗ Pipeline failed"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Stage   ") + valueStyle.Render(m.ctrl.FailureStage()) + "\n")
	b.WriteString(labelStyle.Render("Reason  ") + valueStyle.Render(m.ctrl.FailureMessage()) + "\n")

	logs := m.ctrl.Logs()
	if len(logs) > 0 {
		b.WriteByte('\n')
		b.WriteString(labelStyle.Render("Last output"))
		b.WriteByte('\n')
		start := len(logs) - 10
		if start < 0 {
			start = 0
		}
		for _, line := range logs[start:] {
			b.WriteString(logStyle.Render(line.Text))
			b.WriteByte('\n')
		}
	}
	pane := paneStyle.Width(m.paneWidth()).Render(b.String())
	return pane + "\n" + helpStyle.Render("r retry from the start · q quit")
}

func (m *Model) spinnerFrame() string {
	return spinnerFrames[m.spin%len(spinnerFrames)]
}

func (m *Model) paneWidth() int {
	w := m.width - 4
	if w > 100 {
		w = 100
	}
	if w < 40 {
		w = 40
	}
	return w
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
