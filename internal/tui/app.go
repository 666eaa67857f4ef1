package tui

import (
	"context"
	"strings"
	"time"

	"greenbranch/internal/app"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/bubbletea"
)

// setup form field order
const (
	fieldRepo = iota
	fieldTeam
	fieldLeader
	fieldCount
)

// command form field order
const (
	fieldInstall = iota
	fieldTest
	cmdFieldCount
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Model is the dashboard: one screen per controller phase plus the PR views
// layered on top of done.
type Model struct {
	ctrl *app.Controller
	cfg  app.Config

	width  int
	height int

	setupInputs [fieldCount]textinput.Model
	cmdInputs   [cmdFieldCount]textinput.Model
	focus       int

	repos     []app.Repository
	repoIndex int

	logView  viewport.Model
	logCount int

	prTitle    textinput.Model
	prBody     textarea.Model
	prFocus    int
	draftReady bool

	stream   app.Stream
	busy     bool
	busyText string
	spin     int
	errMsg   string
	mockMode bool
}

type cloneResultMsg struct {
	req app.CloneRequest
	id  string
	err error
}

type execStartedMsg struct {
	stream app.Stream
	err    error
}

type frameMsg struct {
	raw []byte
	err error
}

type tickMsg time.Time

type spinMsg time.Time

type reposMsg struct {
	repos []app.Repository
	err   error
}

type prSubmitMsg struct {
	result app.PRResult
	err    error
}

func New(ctrl *app.Controller, cfg app.Config, prefs app.Prefs, mockMode bool) *Model {
	m := &Model{
		ctrl:     ctrl,
		cfg:      cfg,
		mockMode: mockMode,
		width:    100,
		height:   30,
	}

	repo := textinput.New()
	repo.Placeholder = "https://github.com/owner/repo"
	repo.CharLimit = 256
	repo.Width = 60
	repo.SetValue(prefs.RepoURL)
	repo.Focus()

	team := textinput.New()
	team.Placeholder = "Team name (optional)"
	team.CharLimit = 128
	team.Width = 60
	team.SetValue(coalesce(prefs.TeamName, cfg.TeamName))

	leader := textinput.New()
	leader.Placeholder = "Team leader (optional)"
	leader.CharLimit = 128
	leader.Width = 60
	leader.SetValue(coalesce(prefs.TeamLeaderName, cfg.TeamLeaderName))

	m.setupInputs = [fieldCount]textinput.Model{repo, team, leader}

	install := textinput.New()
	install.Placeholder = "install command (blank for default)"
	install.CharLimit = 256
	install.Width = 60

	test := textinput.New()
	test.Placeholder = "test command (blank for default)"
	test.CharLimit = 256
	test.Width = 60

	m.cmdInputs = [cmdFieldCount]textinput.Model{install, test}

	m.logView = viewport.New(80, 14)

	m.prTitle = textinput.New()
	m.prTitle.CharLimit = 120
	m.prTitle.Width = 72

	m.prBody = textarea.New()
	m.prBody.CharLimit = 0
	m.prBody.SetWidth(76)
	m.prBody.SetHeight(12)

	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchReposCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLogView()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case reposMsg:
		if msg.err == nil {
			m.repos = msg.repos
		}
		return m, nil

	case cloneResultMsg:
		m.busy = false
		m.ctrl.CompleteClone(msg.req, msg.id, msg.err)
		if m.ctrl.Phase() == app.PhaseConfiguring {
			m.focus = fieldInstall
			m.cmdInputs[fieldInstall].Focus()
		}
		return m, nil

	case execStartedMsg:
		m.busy = false
		m.ctrl.CompleteExecution(msg.stream, msg.err)
		if m.ctrl.Phase() != app.PhaseStreaming {
			return m, nil
		}
		m.stream = msg.stream
		m.logCount = 0
		return m, tea.Batch(m.waitFrameCmd(msg.stream), m.tickCmd())

	case frameMsg:
		if msg.err != nil {
			m.ctrl.HandleDisconnect(msg.err)
		} else {
			m.ctrl.HandleFrame(msg.raw)
		}
		m.refreshLogView()
		switch m.ctrl.Phase() {
		case app.PhaseStreaming:
			return m, m.waitFrameCmd(m.stream)
		case app.PhaseDone:
			m.enterDoneView()
		}
		return m, nil

	case tickMsg:
		m.ctrl.Tick()
		m.spin++
		if m.ctrl.Phase() == app.PhaseStreaming {
			return m, m.tickCmd()
		}
		return m, nil

	case spinMsg:
		m.spin++
		if m.busy || m.ctrl.PRSubmitting() {
			return m, m.spinCmd()
		}
		return m, nil

	case prSubmitMsg:
		m.ctrl.CompletePRSubmit(msg.result, msg.err)
		return m, nil
	}

	return m, m.updateFocusedInput(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.ctrl.Reset()
		return m, tea.Quit
	}

	switch m.ctrl.Phase() {
	case app.PhaseIdle:
		return m.handleSetupKey(msg)
	case app.PhaseConfiguring:
		return m.handleCommandKey(msg)
	case app.PhaseStreaming:
		return m.handleStreamingKey(msg)
	case app.PhaseDone:
		return m.handleDoneKey(msg)
	case app.PhaseFailed:
		return m.handleFailedKey(msg)
	}
	return m, nil
}

func (m *Model) handleSetupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch msg.String() {
	case "tab", "down":
		m.setFocus((m.focus + 1) % fieldCount)
		return m, nil
	case "shift+tab", "up":
		m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, nil
	case "ctrl+p":
		// cycle repo picker suggestions into the URL field
		if len(m.repos) > 0 {
			m.repoIndex = (m.repoIndex + 1) % len(m.repos)
			m.setupInputs[fieldRepo].SetValue(m.repos[m.repoIndex].HTMLURL)
		}
		return m, nil
	case "enter":
		if m.focus < fieldCount-1 {
			m.setFocus(m.focus + 1)
			return m, nil
		}
		return m.startClone()
	}
	var cmd tea.Cmd
	m.setupInputs[m.focus], cmd = m.setupInputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) handleCommandKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch msg.String() {
	case "tab", "down":
		m.setCmdFocus((m.focus + 1) % cmdFieldCount)
		return m, nil
	case "shift+tab", "up":
		m.setCmdFocus((m.focus + cmdFieldCount - 1) % cmdFieldCount)
		return m, nil
	case "enter":
		if m.focus < cmdFieldCount-1 {
			m.setCmdFocus(m.focus + 1)
			return m, nil
		}
		return m.startExecution()
	}
	var cmd tea.Cmd
	m.cmdInputs[m.focus], cmd = m.cmdInputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) handleStreamingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

func (m *Model) handleDoneKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	action := m.ctrl.NextPRAction()

	switch msg.String() {
	case "r":
		if action != app.PRActionDraft || m.prFocus < 0 {
			m.resetForNewRun()
			return m, nil
		}
	case "q":
		if action != app.PRActionDraft || m.prFocus < 0 {
			m.ctrl.Reset()
			return m, tea.Quit
		}
	}

	if action != app.PRActionDraft {
		return m, nil
	}

	switch msg.String() {
	case "tab", "shift+tab":
		m.setPRFocus((m.prFocus + 1) % 2)
		return m, nil
	case "esc":
		// park focus so r/q act as shortcuts again
		m.prFocus = -1
		m.prTitle.Blur()
		m.prBody.Blur()
		return m, nil
	case "ctrl+s":
		return m.submitPR()
	case "ctrl+r":
		// recompute the draft from current data, discarding edits
		draft := m.ctrl.BuildDraft()
		m.prTitle.SetValue(draft.Title)
		m.prBody.SetValue(draft.Body)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.prFocus {
	case 0:
		m.prTitle, cmd = m.prTitle.Update(msg)
	case 1:
		m.prBody, cmd = m.prBody.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleFailedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		m.resetForNewRun()
		return m, nil
	case "q":
		m.ctrl.Reset()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) startClone() (tea.Model, tea.Cmd) {
	repoURL := strings.TrimSpace(m.setupInputs[fieldRepo].Value())
	if repoURL == "" {
		m.errMsg = "repository URL is required"
		return m, nil
	}
	req := app.CloneRequest{
		RepoURL:        repoURL,
		Language:       m.cfg.Language,
		TeamName:       strings.TrimSpace(m.setupInputs[fieldTeam].Value()),
		TeamLeaderName: strings.TrimSpace(m.setupInputs[fieldLeader].Value()),
		GithubToken:    m.cfg.GithubToken,
	}
	apiReq, err := m.ctrl.BeginClone(req)
	if err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	m.errMsg = ""
	m.busy = true
	m.busyText = "Cloning repository…"
	return m, tea.Batch(m.cloneCmd(req, apiReq), m.spinCmd())
}

func (m *Model) startExecution() (tea.Model, tea.Cmd) {
	req := app.ExecRequest{
		InstallCommand: strings.TrimSpace(m.cmdInputs[fieldInstall].Value()),
		TestCommand:    strings.TrimSpace(m.cmdInputs[fieldTest].Value()),
	}
	frame, err := m.ctrl.PrepareExecution(req)
	if err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	m.errMsg = ""
	m.busy = true
	m.busyText = "Opening stream…"
	return m, tea.Batch(m.dialCmd(frame), m.spinCmd())
}

func (m *Model) submitPR() (tea.Model, tea.Cmd) {
	draft := app.PRDraft{
		Title: strings.TrimSpace(m.prTitle.Value()),
		Body:  m.prBody.Value(),
	}
	req, err := m.ctrl.PreparePRSubmit(draft)
	if err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	m.errMsg = ""
	return m, tea.Batch(m.submitPRCmd(req), m.spinCmd())
}

// enterDoneView prepares the PR layer once, at the terminal transition.
// Reopening recomputes the draft from current data; manual edits do not
// survive re-entry.
func (m *Model) enterDoneView() {
	if m.draftReady {
		return
	}
	m.draftReady = true
	if m.ctrl.NextPRAction() == app.PRActionDraft {
		draft := m.ctrl.BuildDraft()
		m.prTitle.SetValue(draft.Title)
		m.prBody.SetValue(draft.Body)
		m.prFocus = -1
		m.prTitle.Blur()
		m.prBody.Blur()
	}
}

func (m *Model) resetForNewRun() {
	m.ctrl.Reset()
	m.stream = nil
	m.busy = false
	m.errMsg = ""
	m.draftReady = false
	m.prFocus = 0
	m.logCount = 0
	m.logView.SetContent("")
	for i := range m.cmdInputs {
		m.cmdInputs[i].SetValue("")
		m.cmdInputs[i].Blur()
	}
	m.setFocus(fieldRepo)
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.setupInputs {
		if j == i {
			m.setupInputs[j].Focus()
		} else {
			m.setupInputs[j].Blur()
		}
	}
}

func (m *Model) setCmdFocus(i int) {
	m.focus = i
	for j := range m.cmdInputs {
		if j == i {
			m.cmdInputs[j].Focus()
		} else {
			m.cmdInputs[j].Blur()
		}
	}
}

func (m *Model) setPRFocus(i int) {
	m.prFocus = i
	if i == 0 {
		m.prTitle.Focus()
		m.prBody.Blur()
	} else {
		m.prTitle.Blur()
		m.prBody.Focus()
	}
}

func (m *Model) updateFocusedInput(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.ctrl.Phase() {
	case app.PhaseIdle:
		m.setupInputs[m.focus], cmd = m.setupInputs[m.focus].Update(msg)
	case app.PhaseConfiguring:
		m.cmdInputs[m.focus], cmd = m.cmdInputs[m.focus].Update(msg)
	case app.PhaseDone:
		switch m.prFocus {
		case 0:
			m.prTitle, cmd = m.prTitle.Update(msg)
		case 1:
			m.prBody, cmd = m.prBody.Update(msg)
		}
	}
	return cmd
}

func (m *Model) resizeLogView() {
	w := m.width - 30
	if w < 40 {
		w = 40
	}
	h := m.height - 12
	if h < 6 {
		h = 6
	}
	m.logView.Width = w
	m.logView.Height = h
}

// refreshLogView appends only new lines and keeps the view pinned to the
// bottom unless the user scrolled away.
func (m *Model) refreshLogView() {
	logs := m.ctrl.Logs()
	if len(logs) == m.logCount {
		return
	}
	atBottom := m.logView.AtBottom() || m.logCount == 0
	var b strings.Builder
	for _, line := range logs {
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	m.logView.SetContent(b.String())
	m.logCount = len(logs)
	if atBottom {
		m.logView.GotoBottom()
	}
}

func (m *Model) cloneCmd(req app.CloneRequest, apiReq app.CreateSessionRequest) tea.Cmd {
	api := m.ctrl.API()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		id, err := api.CreateSession(ctx, apiReq)
		return cloneResultMsg{req: req, id: id, err: err}
	}
}

func (m *Model) dialCmd(frame app.InitFrame) tea.Cmd {
	dialer := m.ctrl.Dialer()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		stream, err := dialer.Dial(ctx, frame)
		return execStartedMsg{stream: stream, err: err}
	}
}

func (m *Model) waitFrameCmd(stream app.Stream) tea.Cmd {
	return func() tea.Msg {
		raw, err := stream.Recv()
		return frameMsg{raw: raw, err: err}
	}
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// spinCmd keeps the spinner moving while a one-shot request is in flight
// and no streaming tick is running.
func (m *Model) spinCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return spinMsg(t)
	})
}

func (m *Model) fetchReposCmd() tea.Cmd {
	api := m.ctrl.API()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		repos, err := api.ListRepos(ctx)
		return reposMsg{repos: repos, err: err}
	}
}

func (m *Model) submitPRCmd(req app.CreatePRRequest) tea.Cmd {
	api := m.ctrl.API()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		result, err := api.CreatePR(ctx, req)
		return prSubmitMsg{result: result, err: err}
	}
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
