package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bkonkle/cowork/internal/store"
	"github.com/bkonkle/cowork/internal/task"
)

// Pane represents the different panes in the dashboard.
type Pane int

const (
	// PaneTasks is the tasks list pane.
	PaneTasks Pane = iota
	// PaneEvents is the event feed pane.
	PaneEvents
)

// Source is the read side of the task state store.
type Source interface {
	Tasks() []*task.Task
	History() []*task.Task
	Get(id string) (*task.Task, bool)
	Prompts(taskID string) []*task.Confirmation
	Connection(taskID string) string
}

// Actions are the task operations the dashboard can trigger.
type Actions interface {
	Confirm(ctx context.Context, promptID string, accept bool) error
	Cancel(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) (*task.Task, error)
}

// KeyMap defines the key bindings for the dashboard.
type KeyMap struct {
	Quit     key.Binding
	Help     key.Binding
	Tab      key.Binding
	ShiftTab key.Binding
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Approve  key.Binding
	Deny     key.Binding
	Cancel   key.Binding
	Refresh  key.Binding
	History  key.Binding
	Follow   key.Binding
	Clear    key.Binding
	Top      key.Binding
	Bottom   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next pane"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev pane"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("j/↓", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Approve: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "approve"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "deny"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "cancel task"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh task"),
		),
		History: key.NewBinding(
			key.WithKeys("H"),
			key.WithHelp("H", "toggle history"),
		),
		Follow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "follow events"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear events"),
		),
		Top: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "go to bottom"),
		),
	}
}

// Model is the main dashboard model.
type Model struct {
	// Data
	tasks   []*task.Task
	prompts []*task.Confirmation
	events  []EventLine

	// UI State
	activePane   Pane
	taskCursor   int
	eventOffset  int
	eventFollow  bool
	showHistory  bool
	showHelp     bool
	showDetails  bool
	detailsModal *TaskDetailsModal
	statusMsg    string
	errorMsg     string

	// Dimensions
	width  int
	height int

	keys KeyMap

	src     Source
	actions Actions
	changes <-chan store.Change

	maxEvents       int
	refreshInterval time.Duration
	actionTimeout   time.Duration
}

// NewModel creates a dashboard reading from src, acting through actions and
// redrawing on every store change received from changes.
func NewModel(src Source, actions Actions, changes <-chan store.Change) Model {
	m := Model{
		tasks:           make([]*task.Task, 0),
		events:          make([]EventLine, 0),
		activePane:      PaneTasks,
		eventFollow:     true,
		keys:            DefaultKeyMap(),
		src:             src,
		actions:         actions,
		changes:         changes,
		maxEvents:       500,
		refreshInterval: time.Second,
		actionTimeout:   30 * time.Second,
	}
	m.reload()
	return m
}

// tickMsg is sent on each refresh interval.
type tickMsg time.Time

// actionResultMsg contains the result of an action.
type actionResultMsg struct {
	action string
	taskID string
	err    error
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.tick(),
		waitForChange(m.changes),
	)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// reload re-reads the store snapshot.
func (m *Model) reload() {
	if m.src == nil {
		return
	}
	if m.showHistory {
		m.tasks = m.src.History()
	} else {
		m.tasks = m.src.Tasks()
	}
	m.prompts = m.src.Prompts("")
	if m.taskCursor >= len(m.tasks) {
		m.taskCursor = max(0, len(m.tasks)-1)
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.reload()
		return m, m.tick()

	case changeMsg:
		m.reload()
		if m.src != nil {
			if line, ok := describe(m.src, store.Change(msg), time.Now()); ok {
				m.AddEvent(line)
			}
		}
		return m, waitForChange(m.changes)

	case actionResultMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("%s %s failed: %v", msg.action, msg.taskID, msg.err)
		} else {
			m.statusMsg = fmt.Sprintf("%s %s: ok", msg.action, msg.taskID)
		}
		m.reload()
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		if m.showDetails {
			m.showDetails = false
			return m, nil
		}
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
	}

	if m.showDetails && m.detailsModal != nil {
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, m.detailsModal.Update(msg)
	}

	m.errorMsg = ""
	m.statusMsg = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Tab), key.Matches(msg, m.keys.ShiftTab):
		m.activePane = (m.activePane + 1) % 2

	case key.Matches(msg, m.keys.Up):
		m.navigateUp()

	case key.Matches(msg, m.keys.Down):
		m.navigateDown()

	case key.Matches(msg, m.keys.Approve):
		return m, m.answer(true)

	case key.Matches(msg, m.keys.Deny):
		return m, m.answer(false)

	case key.Matches(msg, m.keys.Cancel):
		if t := m.selectedTask(); t != nil && !t.Status.IsTerminal() {
			return m, m.cancelTask(t.ID)
		}

	case key.Matches(msg, m.keys.Refresh):
		if t := m.selectedTask(); t != nil {
			return m, m.refreshTask(t.ID)
		}

	case key.Matches(msg, m.keys.History):
		m.showHistory = !m.showHistory
		m.taskCursor = 0
		m.reload()

	case key.Matches(msg, m.keys.Follow):
		if m.activePane == PaneEvents {
			m.eventFollow = !m.eventFollow
			if m.eventFollow {
				m.scrollEventsToBottom()
			}
		}

	case key.Matches(msg, m.keys.Clear):
		if m.activePane == PaneEvents {
			m.events = make([]EventLine, 0)
			m.eventOffset = 0
		}

	case key.Matches(msg, m.keys.Top):
		if m.activePane == PaneEvents {
			m.eventOffset = 0
			m.eventFollow = false
		}

	case key.Matches(msg, m.keys.Bottom):
		if m.activePane == PaneEvents {
			m.scrollEventsToBottom()
		}

	case key.Matches(msg, m.keys.Enter):
		if t := m.selectedTask(); t != nil && m.activePane == PaneTasks {
			conn := ""
			if m.src != nil {
				conn = m.src.Connection(t.ID)
			}
			m.detailsModal = NewTaskDetailsModal(t, conn, m.width, m.height)
			m.showDetails = true
		}
	}

	return m, nil
}

func (m *Model) navigateUp() {
	switch m.activePane {
	case PaneTasks:
		if m.taskCursor > 0 {
			m.taskCursor--
		}
	case PaneEvents:
		if m.eventOffset > 0 {
			m.eventOffset--
			m.eventFollow = false
		}
	}
}

func (m *Model) navigateDown() {
	switch m.activePane {
	case PaneTasks:
		if m.taskCursor < len(m.tasks)-1 {
			m.taskCursor++
		}
	case PaneEvents:
		if m.eventOffset < len(m.events)-m.eventPaneHeight() {
			m.eventOffset++
			m.eventFollow = false
		}
	}
}

func (m *Model) scrollEventsToBottom() {
	m.eventOffset = max(0, len(m.events)-m.eventPaneHeight())
}

func (m *Model) eventPaneHeight() int {
	return max(1, m.height/3-4)
}

func (m Model) selectedTask() *task.Task {
	if m.taskCursor < len(m.tasks) {
		return m.tasks[m.taskCursor]
	}
	return nil
}

// pendingPrompt returns the prompt y/n applies to: the selected task's
// oldest pending prompt, else the oldest pending prompt overall.
func (m Model) pendingPrompt() *task.Confirmation {
	if len(m.prompts) == 0 {
		return nil
	}
	if t := m.selectedTask(); t != nil {
		for _, p := range m.prompts {
			if p.TaskID == t.ID {
				return p
			}
		}
	}
	return m.prompts[0]
}

func (m Model) answer(accept bool) tea.Cmd {
	p := m.pendingPrompt()
	if p == nil || m.actions == nil {
		return nil
	}
	action := "Deny"
	if accept {
		action = "Approve"
	}
	return m.run(action, p.TaskID, func(ctx context.Context) error {
		return m.actions.Confirm(ctx, p.ID, accept)
	})
}

func (m Model) cancelTask(id string) tea.Cmd {
	if m.actions == nil {
		return nil
	}
	return m.run("Cancel", id, func(ctx context.Context) error {
		return m.actions.Cancel(ctx, id)
	})
}

func (m Model) refreshTask(id string) tea.Cmd {
	if m.actions == nil {
		return nil
	}
	return m.run("Refresh", id, func(ctx context.Context) error {
		_, err := m.actions.Refresh(ctx, id)
		return err
	})
}

func (m Model) run(action, id string, fn func(context.Context) error) tea.Cmd {
	timeout := m.actionTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return actionResultMsg{action: action, taskID: id, err: fn(ctx)}
	}
}

// AddEvent appends a line to the events pane.
func (m *Model) AddEvent(line EventLine) {
	m.events = append(m.events, line)
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
		if m.eventOffset > 0 {
			m.eventOffset--
		}
	}
	if m.eventFollow {
		m.scrollEventsToBottom()
	}
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if m.showDetails && m.detailsModal != nil {
		return lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			m.detailsModal.View(),
			lipgloss.WithWhitespaceChars(" "),
			lipgloss.WithWhitespaceForeground(lipgloss.Color("0")))
	}

	return m.renderMainView()
}

func (m Model) renderMainView() string {
	var sb strings.Builder

	sb.WriteString(TitleStyle.Width(m.width).Render("Cowork Dashboard"))
	sb.WriteString("\n")

	reserved := 4
	banner := m.renderPromptBanner()
	if banner != "" {
		reserved++
	}
	topHeight := (m.height - reserved) * 2 / 3
	bottomHeight := m.height - reserved - topHeight

	taskBox := PaneBorder(m.activePane == PaneTasks).
		Width(m.width - 2).
		Height(topHeight).
		Render(m.renderTaskPane(m.width-4, topHeight-2))
	sb.WriteString(taskBox)
	sb.WriteString("\n")

	if banner != "" {
		sb.WriteString(banner)
		sb.WriteString("\n")
	}

	eventBox := PaneBorder(m.activePane == PaneEvents).
		Width(m.width - 2).
		Height(bottomHeight).
		Render(m.renderEventPane(m.width-4, bottomHeight-2))
	sb.WriteString(eventBox)
	sb.WriteString("\n")

	sb.WriteString(m.renderStatusBar())
	return sb.String()
}

func (m Model) renderTaskPane(width, height int) string {
	var sb strings.Builder

	title := "Tasks"
	if m.showHistory {
		title = "History"
	}
	sb.WriteString(HeaderStyle.Render(fmt.Sprintf("%s [%d]", title, len(m.tasks))))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", max(0, width)))
	sb.WriteString("\n")

	if len(m.tasks) == 0 {
		sb.WriteString(MutedStyle.Render("No tasks"))
		return sb.String()
	}

	goalWidth := max(10, width-48)
	for i, t := range m.tasks {
		if i >= height-3 {
			sb.WriteString(MutedStyle.Render(fmt.Sprintf("... and %d more", len(m.tasks)-i)))
			break
		}

		selected := i == m.taskCursor && m.activePane == PaneTasks
		prefix := "  "
		if selected {
			prefix = "> "
		}

		conn := ""
		if m.src != nil {
			conn = m.src.Connection(t.ID)
		}

		id := MutedStyle.Width(10).Render(Truncate(t.ID, 9))
		goal := lipgloss.NewStyle().Width(goalWidth).Render(Truncate(t.Goal, goalWidth-1))
		status := lipgloss.NewStyle().
			Width(13).
			Foreground(TaskStatusColor(t.Status)).
			Render(string(t.Status))
		progress := ""
		if p := t.Progress; p != nil && p.TotalSteps > 0 {
			progress = MutedStyle.Render(fmt.Sprintf("%d/%d", p.CurrentStep, p.TotalSteps))
		}

		line := fmt.Sprintf("%s%s %s %s %s %s %s", prefix, TaskStatusIcon(t.Status), ConnectionIcon(conn), id, goal, status, progress)
		if selected {
			line = SelectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")

		if t.Status == task.StatusFailed && t.Error != "" {
			errLine := fmt.Sprintf("    ↳ %s", Truncate(t.Error, max(10, width-6)))
			sb.WriteString(ErrorStyle.Italic(true).Render(errLine))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (m Model) renderPromptBanner() string {
	p := m.pendingPrompt()
	if p == nil {
		return ""
	}
	text := fmt.Sprintf("%s asks: %s  [y] approve  [n] deny", p.TaskID, p.Message)
	if p.Dangerous {
		text = "⚠ " + text
	}
	if n := len(m.prompts); n > 1 {
		text += fmt.Sprintf("  (+%d more)", n-1)
	}
	return PromptStyle.Width(m.width).Render(Truncate(text, max(10, m.width-2)))
}

func (m Model) renderEventPane(width, height int) string {
	var sb strings.Builder

	headerParts := []string{"Events"}
	if m.eventFollow {
		headerParts = append(headerParts, SuccessStyle.Render("[follow]"))
	}
	sb.WriteString(HeaderStyle.Render(strings.Join(headerParts, " ")))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", max(0, width)))
	sb.WriteString("\n")

	if len(m.events) == 0 {
		sb.WriteString(MutedStyle.Render("No events yet."))
		return sb.String()
	}

	visible := height - 3
	end := min(m.eventOffset+visible, len(m.events))
	for i := m.eventOffset; i < end; i++ {
		line := m.events[i]
		ts := MutedStyle.Render(line.Timestamp.Format("[15:04:05]"))
		id := InfoStyle.Render(Truncate(line.TaskID, 9))
		content := lipgloss.NewStyle().
			Foreground(LevelColor(line.Level)).
			Render(Truncate(line.Content, max(10, width-23)))
		sb.WriteString(fmt.Sprintf("%s %s %s\n", ts, id, content))
	}

	return sb.String()
}

func (m Model) renderStatusBar() string {
	left := ""
	switch {
	case m.errorMsg != "":
		left = ErrorStyle.Render(m.errorMsg)
	case m.statusMsg != "":
		left = InfoStyle.Render(m.statusMsg)
	default:
		if t := m.selectedTask(); t != nil && m.src != nil {
			if conn := m.src.Connection(t.ID); conn != "" {
				left = fmt.Sprintf("%s %s", ConnectionIcon(conn), conn)
			}
		}
	}

	right := HelpStyle.Render("[?] help  [q] quit  [tab] switch pane")

	padding := max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return StatusBarStyle.Width(m.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (m Model) renderHelp() string {
	var sb strings.Builder

	sb.WriteString(TitleStyle.Width(m.width).Render("Cowork Dashboard - Help"))
	sb.WriteString("\n\n")

	sections := []struct {
		title string
		keys  []string
	}{
		{
			title: "Navigation",
			keys: []string{
				"Tab / Shift+Tab  Switch pane",
				"j/k or ↓/↑       Navigate list",
				"Enter            Show task details",
			},
		},
		{
			title: "Task Actions (Tasks pane)",
			keys: []string{
				"y / n            Approve or deny the pending confirmation",
				"x                Cancel task",
				"r                Refresh task",
				"H                Toggle active tasks / history",
			},
		},
		{
			title: "Event Actions (Events pane)",
			keys: []string{
				"f                Toggle follow mode",
				"c                Clear events",
				"g / G            Go to top / bottom",
			},
		},
		{
			title: "General",
			keys: []string{
				"?                Toggle help",
				"q / Ctrl+C       Quit",
			},
		},
	}

	for _, section := range sections {
		sb.WriteString(HeaderStyle.Render(section.title))
		sb.WriteString("\n")
		for _, k := range section.keys {
			sb.WriteString("  " + k + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(HelpStyle.Render("Press ? to close help"))
	return sb.String()
}
