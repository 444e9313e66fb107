package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bkonkle/cowork/internal/task"
)

// TaskDetailsModal renders a modal showing a full task record.
type TaskDetailsModal struct {
	task       *task.Task
	connection string
	tabs       *TabsModel
	width      int
	height     int
}

// NewTaskDetailsModal creates a new task details modal.
func NewTaskDetailsModal(t *task.Task, connection string, width, height int) *TaskDetailsModal {
	m := &TaskDetailsModal{
		task:       t,
		connection: connection,
		width:      width,
		height:     height,
	}
	m.tabs = NewTabsModel([]Tab{
		{Title: "Overview", Content: m.overview},
		{Title: "Result", Content: m.result},
		{Title: "Metadata", Content: m.metadata},
	}, m.innerWidth())
	return m
}

// Update handles tab navigation keys.
func (m *TaskDetailsModal) Update(msg tea.KeyMsg) tea.Cmd {
	m.tabs.HandleKey(msg)
	return nil
}

func (m *TaskDetailsModal) innerWidth() int {
	return max(20, min(m.width*4/5, 80)-6)
}

// View renders the task details modal.
func (m *TaskDetailsModal) View() string {
	if m.task == nil {
		return ""
	}

	modalWidth := min(m.width*4/5, 80)
	modalHeight := min(m.height*4/5, 24)

	var sb strings.Builder
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		Width(modalWidth - 4)
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", m.task.ID, Truncate(m.task.Goal, modalWidth-8))))
	sb.WriteString("\n\n")
	sb.WriteString(m.tabs.View())
	sb.WriteString("\n\n")
	sb.WriteString(MutedStyle.Render("[←/→ switch tab] [Esc close]"))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(1, 2).
		Width(modalWidth).
		Height(modalHeight).
		Render(sb.String())
}

func (m *TaskDetailsModal) overview() string {
	t := m.task
	var sb strings.Builder

	statusStyle := lipgloss.NewStyle().Foreground(TaskStatusColor(t.Status))
	fmt.Fprintf(&sb, "Status:     %s %s\n", TaskStatusIcon(t.Status), statusStyle.Render(string(t.Status)))
	if m.connection != "" {
		fmt.Fprintf(&sb, "Channel:    %s %s\n", ConnectionIcon(m.connection), m.connection)
	}
	if p := t.Progress; p != nil && p.TotalSteps > 0 {
		fmt.Fprintf(&sb, "Progress:   step %d/%d (%.0f%%)", p.CurrentStep, p.TotalSteps, p.Percent)
		if p.FailedSteps > 0 {
			sb.WriteString(ErrorStyle.Render(fmt.Sprintf(", %d failed", p.FailedSteps)))
		}
		sb.WriteString("\n")
	}
	if !t.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Created:    %s\n", t.CreatedAt.Local().Format(time.DateTime))
	}
	if t.StartedAt != nil {
		fmt.Fprintf(&sb, "Started:    %s\n", t.StartedAt.Local().Format(time.DateTime))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(&sb, "Completed:  %s\n", t.CompletedAt.Local().Format(time.DateTime))
	}
	if d := t.Duration(); d > 0 {
		fmt.Fprintf(&sb, "Duration:   %s\n", d.Round(time.Second))
	}
	if t.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(m.innerWidth()).Render(t.Description))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *TaskDetailsModal) result() string {
	t := m.task
	if t.Error != "" {
		return ErrorStyle.Width(m.innerWidth()).Render(t.Error)
	}
	if t.Result == "" {
		return MutedStyle.Render("(no result yet)")
	}
	return lipgloss.NewStyle().Width(m.innerWidth()).Render(t.Result)
}

func (m *TaskDetailsModal) metadata() string {
	if len(m.task.Metadata) == 0 {
		return MutedStyle.Render("(none)")
	}
	keys := make([]string, 0, len(m.task.Metadata))
	for k := range m.task.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %v\n", InfoStyle.Render(k+":"), m.task.Metadata[k])
	}
	return sb.String()
}
