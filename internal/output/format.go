// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tasksync/internal/cache"
	"tasksync/internal/queue"
	"tasksync/internal/service"
)

const (
	// SectionSeparator is the separator line for output sections.
	SectionSeparator = "------------"

	// PendingTitle heads the queued-task section of the list output.
	PendingTitle = "pending sync"
)

// FormatTask formats a task line.
// Format: "{N:>4}  {NAME}\n", with " [done]" appended for completed tasks.
func FormatTask(w io.Writer, num int, task service.Task) {
	name := normalizeName(task.Name)
	if task.Completed {
		name += " [done]"
	}
	fmt.Fprintf(w, "%4d  %s\n", num, name)
}

// FormatPending formats a queued task line, numbered qN.
func FormatPending(w io.Writer, num int, e queue.Entry) {
	fmt.Fprintf(w, "%4s  %s\n", fmt.Sprintf("q%d", num), normalizeName(e.Name))
}

// FormatSection formats a section header.
func FormatSection(w io.Writer, title string) {
	fmt.Fprintln(w, SectionSeparator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, SectionSeparator)
}

// FormatField formats an aligned "key: value" status line.
func FormatField(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%-12s %s\n", key+":", value)
}

// FormatCacheEntry formats one stored response.
func FormatCacheEntry(w io.Writer, snap cache.Snapshot) {
	fmt.Fprintf(w, "%3d  %s  %s\n", snap.Status, snap.Time().UTC().Format(time.RFC3339), snap.Key)
}

// YesNo renders a boolean for status output.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// List renders a string list, or "-" when empty.
func List(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// normalizeName normalizes a task name for display.
// - Empty or whitespace-only names become "(untitled)"
// - Newlines are replaced with spaces
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.ReplaceAll(name, "\n", " ")

	if strings.TrimSpace(name) == "" {
		return "(untitled)"
	}
	return name
}
