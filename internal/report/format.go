// Package report renders blackboard records for the CLI as aligned tables
// or line-delimited JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/swarm/internal/knowledge"
	"github.com/dyluth/swarm/pkg/blackboard"
)

// OutputFormat selects how list commands print their results.
type OutputFormat string

const (
	// OutputFormatDefault prints a table with truncated text.
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL prints complete records as line-delimited JSON.
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	}
	return "", fmt.Errorf("unknown output format: %s (use 'default' or 'jsonl')", s)
}

// Now is the reference time for relative ages. Tests pin it.
var Now = time.Now

// Messages writes an agent's messages as a table.
func Messages(w io.Writer, messages []*blackboard.Message, agentID string) int {
	if len(messages) == 0 {
		fmt.Fprintf(w, "No messages for '%s'\n", agentID)
		return 0
	}

	fmt.Fprintf(w, "Messages for '%s':\n\n", agentID)
	row := "%-10s %-14s %-9s %-9s %-8s %-4s %s\n"
	fmt.Fprintf(w, row, "ID", "FROM", "KIND", "URGENCY", "AGE", "NEW", "CONTENT")
	fmt.Fprintf(w, row, dashes(10), dashes(14), dashes(9), dashes(9), dashes(8), dashes(4), dashes(40))
	for _, m := range messages {
		unread := ""
		if !m.Read {
			unread = "*"
		}
		fmt.Fprintf(w, row,
			formatID(m.ID),
			truncate(m.Sender, 14),
			m.Kind,
			m.Urgency,
			formatAge(m.CreatedAtMs),
			unread,
			firstLine(m.Content, 50),
		)
	}

	fmt.Fprintf(w, "\n%s\n", plural(len(messages), "message"))
	return len(messages)
}

// Tasks writes tasks as a table.
func Tasks(w io.Writer, tasks []*blackboard.Task) int {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found")
		return 0
	}

	row := "%-10s %-9s %-7s %-14s %-8s %-16s %s\n"
	fmt.Fprintf(w, row, "ID", "STATUS", "PRI", "ASSIGNEE", "AGE", "REQUIRES", "DESCRIPTION")
	fmt.Fprintf(w, row, dashes(10), dashes(9), dashes(7), dashes(14), dashes(8), dashes(16), dashes(40))
	for _, t := range tasks {
		fmt.Fprintf(w, row,
			formatID(t.ID),
			t.Status,
			formatPriority(t.Priority),
			orDash(truncate(t.Assignee, 14)),
			formatAge(t.CreatedAtMs),
			orDash(truncate(strings.Join(t.Requires, ","), 16)),
			firstLine(t.Description, 50),
		)
	}

	fmt.Fprintf(w, "\n%s\n", plural(len(tasks), "task"))
	return len(tasks)
}

// TaskDetail writes every field of one task.
func TaskDetail(w io.Writer, t *blackboard.Task) {
	fmt.Fprintf(w, "Task %s\n\n", t.ID)
	field := "  %-12s %s\n"
	fmt.Fprintf(w, field, "Status:", t.Status)
	fmt.Fprintf(w, field, "Priority:", formatPriority(t.Priority))
	fmt.Fprintf(w, field, "Requires:", orDash(strings.Join(t.Requires, ", ")))
	fmt.Fprintf(w, field, "Assignee:", orDash(t.Assignee))
	fmt.Fprintf(w, field, "Created:", formatAge(t.CreatedAtMs))
	if t.AssignedAtMs > 0 {
		fmt.Fprintf(w, field, "Assigned:", formatAge(t.AssignedAtMs))
	}
	if t.CompletedAtMs > 0 {
		fmt.Fprintf(w, field, "Completed:", formatAge(t.CompletedAtMs))
		fmt.Fprintf(w, field, "Success:", fmt.Sprint(t.Success))
		fmt.Fprintf(w, field, "Outcome:", orDash(t.Outcome))
	}
	if t.ReclaimCount > 0 {
		fmt.Fprintf(w, field, "Reclaimed:", fmt.Sprintf("%d time(s)", t.ReclaimCount))
	}
	if t.Source != "" {
		fmt.Fprintf(w, field, "Source:", t.Source)
	}
	fmt.Fprintf(w, "\n%s\n", t.Description)
}

// Agents writes agents as a table.
func Agents(w io.Writer, agents []*blackboard.Agent) int {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents found")
		return 0
	}

	row := "%-18s %-8s %-10s %-8s %s\n"
	fmt.Fprintf(w, row, "AGENT", "STATUS", "TASK", "SEEN", "SPECIALTIES")
	fmt.Fprintf(w, row, dashes(18), dashes(8), dashes(10), dashes(8), dashes(30))
	for _, a := range agents {
		fmt.Fprintf(w, row,
			truncate(a.ID, 18),
			a.Status,
			orDash(formatID(a.CurrentTask)),
			formatAge(a.LastSeenMs),
			orDash(strings.Join(a.Specialties, ",")),
		)
	}

	fmt.Fprintf(w, "\n%s\n", plural(len(agents), "agent"))
	return len(agents)
}

// Matches writes knowledge search results, best match first.
func Matches(w io.Writer, matches []knowledge.Match, query string) int {
	if len(matches) == 0 {
		fmt.Fprintf(w, "No knowledge matches '%s'\n", query)
		return 0
	}

	row := "%-10s %-5s %-12s %-14s %-8s %s\n"
	fmt.Fprintf(w, row, "ID", "SCORE", "CATEGORY", "AUTHOR", "AGE", "TITLE")
	fmt.Fprintf(w, row, dashes(10), dashes(5), dashes(12), dashes(14), dashes(8), dashes(40))
	for _, m := range matches {
		fmt.Fprintf(w, row,
			formatID(m.Entry.ID),
			fmt.Sprint(m.Score),
			m.Entry.Category,
			truncate(m.Entry.Author, 14),
			formatAge(m.Entry.CreatedAtMs),
			firstLine(m.Entry.Title, 50),
		)
	}

	fmt.Fprintf(w, "\n%s\n", plural(len(matches), "match"))
	return len(matches)
}

// Decisions writes decision records as a table.
func Decisions(w io.Writer, records []*blackboard.DecisionRecord) int {
	if len(records) == 0 {
		fmt.Fprintln(w, "No decisions recorded")
		return 0
	}

	row := "%-10s %-14s %-4s %-8s %s\n"
	fmt.Fprintf(w, row, "ID", "AUTHOR", "OK", "AGE", "DECISION")
	fmt.Fprintf(w, row, dashes(10), dashes(14), dashes(4), dashes(8), dashes(40))
	for _, d := range records {
		ok := "no"
		if d.Success {
			ok = "yes"
		}
		fmt.Fprintf(w, row,
			formatID(d.ID),
			truncate(d.Author, 14),
			ok,
			formatAge(d.CreatedAtMs),
			firstLine(d.Decision, 50),
		)
	}

	fmt.Fprintf(w, "\n%s\n", plural(len(records), "decision"))
	return len(records)
}

// Notes writes an agent's notes oldest first.
func Notes(w io.Writer, notes []*blackboard.Note, agentID string) int {
	if len(notes) == 0 {
		fmt.Fprintf(w, "No notes for '%s'\n", agentID)
		return 0
	}
	for _, n := range notes {
		fmt.Fprintf(w, "[%s] %-8s %s\n", formatAge(n.CreatedAtMs), n.Kind, n.Content)
	}
	return len(notes)
}

// Stats writes knowledge base totals.
func Stats(w io.Writer, s *knowledge.Stats) {
	fmt.Fprintf(w, "Learnings:  %d\n", s.Learnings)
	fmt.Fprintf(w, "Decisions:  %d (%d successful)\n", s.Decisions, s.SuccessfulDecisions)

	if len(s.ByCategory) > 0 {
		fmt.Fprintln(w, "\nBy category:")
		for _, c := range blackboard.Categories() {
			if n := s.ByCategory[c]; n > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", c, n)
			}
		}
	}

	if len(s.ByAuthor) > 0 {
		fmt.Fprintln(w, "\nBy author:")
		for _, author := range sortedKeys(s.ByAuthor) {
			fmt.Fprintf(w, "  %-14s %d\n", author, s.ByAuthor[author])
		}
	}
}

// JSONL writes each record as a single JSON object on its own line.
func JSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// SingleJSON writes one value as pretty-printed JSON.
func SingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates an ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatPriority(p float64) string {
	return fmt.Sprintf("%.4g", p)
}

// firstLine returns the first non-blank line of s, truncated to max characters.
func firstLine(s string, max int) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return truncate(trimmed, max)
		}
	}
	return "-"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func dashes(n int) string {
	return strings.Repeat("-", n)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "ch") {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// formatAge renders a millisecond timestamp relative to Now, like "2m ago".
func formatAge(ms int64) string {
	if ms == 0 {
		return "-"
	}

	diff := Now().Sub(time.UnixMilli(ms))
	switch {
	case diff < 0:
		return "now"
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
