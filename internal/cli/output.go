package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/bkonkle/cowork/internal/task"
)

// render writes v as JSON or YAML when -o asks for it, and otherwise calls
// table to print the human-readable form.
func render(w io.Writer, v any, table func(w io.Writer) error) error {
	switch outputFormat {
	case "json":
		return printJSON(w, v)
	case "yaml", "yml":
		return printYAML(w, v)
	case "", "table", "text":
		return table(w)
	default:
		return fmt.Errorf("unknown output format %q (expected table, json or yaml)", outputFormat)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// colorStatus colors a status for terminal output. Backend vocabulary is
// normalized first so "success" and "completed" share a color.
func colorStatus(status string) string {
	if !isTerminal() {
		return status
	}

	switch task.NormalizeStatus(status) {
	case task.StatusCompleted:
		return color.GreenString(status)
	case task.StatusExecuting, task.StatusPlanning:
		return color.YellowString(status)
	case task.StatusFailed:
		return color.RedString(status)
	case task.StatusCancelled:
		return color.MagentaString(status)
	default:
		return status
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// formatMillis renders a backend duration in milliseconds.
func formatMillis(ms float64) string {
	if ms <= 0 {
		return "-"
	}
	d := time.Duration(ms * float64(time.Millisecond))
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return formatDuration(d)
}

// formatTime renders a backend timestamp in local time, or "-".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// isTerminal checks if stdout is a terminal (TTY).
// This is used to determine whether to use colors in output.
func isTerminal() bool {
	return isTTY(os.Stdout)
}

// isTTY reports whether f is an interactive terminal. /dev/null is a
// character device but not a terminal.
func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
