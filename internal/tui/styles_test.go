package tui

import (
	"strings"
	"testing"

	"github.com/bkonkle/cowork/internal/task"
)

func TestTaskStatusIcon(t *testing.T) {
	tests := []struct {
		status task.Status
		icon   string
	}{
		{task.StatusNotStarted, "○"},
		{task.StatusPlanning, "◔"},
		{task.StatusExecuting, "◐"},
		{task.StatusCompleted, "✓"},
		{task.StatusFailed, "✗"},
		{task.StatusCancelled, "⊘"},
		{task.Status("bogus"), "?"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			icon := TaskStatusIcon(tt.status)
			if !strings.Contains(icon, tt.icon) {
				t.Errorf("TaskStatusIcon(%q) = %q, expected to contain %q", tt.status, icon, tt.icon)
			}
		})
	}
}

func TestTaskStatusColor(t *testing.T) {
	tests := []struct {
		status task.Status
		color  string
	}{
		{task.StatusExecuting, string(ColorWarning)},
		{task.StatusCompleted, string(ColorSuccess)},
		{task.StatusFailed, string(ColorError)},
		{task.Status(""), "255"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := string(TaskStatusColor(tt.status)); got != tt.color {
				t.Errorf("TaskStatusColor(%q) = %s, expected %s", tt.status, got, tt.color)
			}
		})
	}
}

func TestConnectionIcon(t *testing.T) {
	tests := []struct {
		state string
		icon  string
	}{
		{"open", "●"},
		{"connecting", "◌"},
		{"closed_retrying", "◌"},
		{"closed_exhausted", "●"},
		{"closed_clean", "○"},
		{"", " "},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if icon := ConnectionIcon(tt.state); !strings.Contains(icon, tt.icon) {
				t.Errorf("ConnectionIcon(%q) = %q, expected to contain %q", tt.state, icon, tt.icon)
			}
		})
	}
}

func TestLevelColor(t *testing.T) {
	for _, level := range []string{"error", "warn", "success", "info", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if color := LevelColor(level); color == "" {
				t.Errorf("expected non-empty color for level %s", level)
			}
		})
	}
}

func TestPaneBorder(t *testing.T) {
	if rendered := PaneBorder(true).Render("test"); rendered == "" {
		t.Error("expected focused border to render content")
	}

	if rendered := PaneBorder(false).Render("test"); rendered == "" {
		t.Error("expected unfocused border to render content")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "he..."},
		{"test", 4, "test"},
		{"test", 3, "tes"},
		{"hello world this is long", 10, "hello w..."},
		{"résumé draft", 6, "rés..."},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := Truncate(tt.input, tt.max)
			if result != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, expected %q", tt.input, tt.max, result, tt.expected)
			}
		})
	}
}
