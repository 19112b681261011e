// Package blackboard provides type-safe Go definitions and Redis schema patterns
// for the swarm coordination store. The blackboard is the shared durable state
// through which every agent, the coordinator and the CLI interact.
//
// All Redis keys and channels are namespaced by instance name to enable multiple
// swarm instances to safely coexist on a single Redis server.
package blackboard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Agent is a participant that sends and receives messages and may be assigned tasks.
// Agents are created lazily on first contact and are never deleted.
type Agent struct {
	ID          string      `json:"id"`           // Stable agent identifier (e.g. "backend-1")
	Specialties []string    `json:"specialties"`  // Normalized lowercase skill labels
	Status      AgentStatus `json:"status"`       // Mutated only by the coordinator
	CurrentTask string      `json:"current_task"` // Task ID while busy, empty otherwise
	CreatedAtMs int64       `json:"created_at_ms"`
	LastSeenMs  int64       `json:"last_seen_ms"` // Last observed activity
	Version     int64       `json:"version"`      // Incremented on every coordinator transition
}

// AgentStatus is the coordinator's view of an agent's availability.
type AgentStatus string

const (
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusOffline AgentStatus = "offline"
)

// Message is a single delivery to one recipient's mailbox.
// A broadcast produces one Message per recipient sharing a CorrelationID.
type Message struct {
	ID            string      `json:"id"`                       // UUIDv7, time-ordered and never reused
	Sender        string      `json:"sender"`                   // Agent ID of the author
	Recipient     string      `json:"recipient"`                // Agent ID owning the mailbox
	CorrelationID string      `json:"correlation_id,omitempty"` // Shared by all copies of a broadcast
	Kind          MessageKind `json:"kind"`
	Content       string      `json:"content"`
	Urgency       Urgency     `json:"urgency"`
	CreatedAtMs   int64       `json:"created_at_ms"`
	Read          bool        `json:"read"`
}

// MessageKind distinguishes how a message entered the mailbox.
type MessageKind string

const (
	MessageKindDirect    MessageKind = "direct"
	MessageKindBroadcast MessageKind = "broadcast"
	MessageKindTask      MessageKind = "task"   // Assignment notifications from the coordinator
	MessageKindSystem    MessageKind = "system" // Reclamation and other coordinator notices
)

// Urgency is a display hint. It never changes delivery order.
type Urgency string

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Rank orders urgencies for display: emergency > urgent > normal.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyEmergency:
		return 2
	case UrgencyUrgent:
		return 1
	default:
		return 0
	}
}

// Task is a unit of work discovered from a plain-language description.
// Tasks move open -> assigned -> complete, and back to open only through reclamation.
type Task struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	ContentHash   string     `json:"content_hash"`          // SHA-256 of the normalized description
	Requires      []string   `json:"requires"`              // Specialties an assignee must hold (all of them)
	Priority      float64    `json:"priority"`              // Higher is more urgent
	Status        TaskStatus `json:"status"`
	Assignee      string     `json:"assignee,omitempty"`
	CreatedAtMs   int64      `json:"created_at_ms"`
	AssignedAtMs  int64      `json:"assigned_at_ms,omitempty"`
	CompletedAtMs int64      `json:"completed_at_ms,omitempty"`
	Outcome       string     `json:"outcome,omitempty"`
	Success       bool       `json:"success,omitempty"`
	ReclaimCount  int        `json:"reclaim_count"`
	Source        string     `json:"source,omitempty"` // Who discovered the task
	Version       int64      `json:"version"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusAssigned TaskStatus = "assigned"
	TaskStatusComplete TaskStatus = "complete"
)

// KnowledgeEntry is a write-once learning shared by an agent.
type KnowledgeEntry struct {
	ID          string   `json:"id"`
	Author      string   `json:"author"`
	Category    Category `json:"category"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	CreatedAtMs int64    `json:"created_at_ms"`
}

// Category is the fixed vocabulary for knowledge entries.
type Category string

const (
	CategoryGeneral      Category = "general"
	CategoryDebugging    Category = "debugging"
	CategoryArchitecture Category = "architecture"
	CategoryTooling      Category = "tooling"
	CategoryProcess      Category = "process"
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryTesting      Category = "testing"
)

// Categories lists every valid category in display order.
func Categories() []Category {
	return []Category{
		CategoryGeneral, CategoryDebugging, CategoryArchitecture, CategoryTooling,
		CategoryProcess, CategorySecurity, CategoryPerformance, CategoryTesting,
	}
}

// DecisionRecord captures what was decided, why, and how it turned out.
type DecisionRecord struct {
	ID          string   `json:"id"`
	Author      string   `json:"author"`
	Decision    string   `json:"decision"`
	Context     string   `json:"context"`
	Outcome     string   `json:"outcome"`
	Success     bool     `json:"success"`
	Lessons     []string `json:"lessons"`
	TaskID      string   `json:"task_id,omitempty"`
	CreatedAtMs int64    `json:"created_at_ms"`
}

// Note is a private, append-only jotting in an agent's own notebook.
type Note struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	Kind        string `json:"kind"` // Free-form label, "note" when omitted
	Content     string `json:"content"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// BroadcastEvent is published after a broadcast has been fanned out to mailboxes.
// Relays forward it to external channels.
type BroadcastEvent struct {
	CorrelationID string   `json:"correlation_id"`
	Sender        string   `json:"sender"`
	Content       string   `json:"content"`
	Urgency       Urgency  `json:"urgency"`
	Recipients    []string `json:"recipients"`
	CreatedAtMs   int64    `json:"created_at_ms"`
}

// Validate checks if the Agent has valid field values.
func (a *Agent) Validate() error {
	if err := ValidateAgentID(a.ID); err != nil {
		return err
	}
	if err := a.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if a.Status == AgentStatusBusy && a.CurrentTask == "" {
		return fmt.Errorf("busy agent %q has no current task", a.ID)
	}
	return nil
}

// Validate checks if the AgentStatus is a valid enum value.
func (s AgentStatus) Validate() error {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusOffline:
		return nil
	default:
		return fmt.Errorf("unknown agent status: %q", s)
	}
}

// Validate checks if the Message has valid field values.
func (m *Message) Validate() error {
	if !isValidUUID(m.ID) {
		return fmt.Errorf("invalid message ID: not a valid UUID")
	}
	if err := ValidateAgentID(m.Sender); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	if err := ValidateAgentID(m.Recipient); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if err := m.Kind.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	return m.Urgency.Validate()
}

// Validate checks if the MessageKind is a valid enum value.
func (k MessageKind) Validate() error {
	switch k {
	case MessageKindDirect, MessageKindBroadcast, MessageKindTask, MessageKindSystem:
		return nil
	default:
		return fmt.Errorf("unknown message kind: %q", k)
	}
}

// Validate checks if the Urgency is a valid enum value.
func (u Urgency) Validate() error {
	switch u {
	case UrgencyNormal, UrgencyUrgent, UrgencyEmergency:
		return nil
	default:
		return fmt.Errorf("unknown urgency: %q (must be normal, urgent or emergency)", u)
	}
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("task description cannot be empty")
	}
	if t.ContentHash == "" {
		return fmt.Errorf("task content hash cannot be empty")
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if t.Status == TaskStatusOpen && t.Assignee != "" {
		return fmt.Errorf("open task cannot have an assignee")
	}
	if t.Status == TaskStatusAssigned && t.Assignee == "" {
		return fmt.Errorf("assigned task must have an assignee")
	}
	return nil
}

// Validate checks if the TaskStatus is a valid enum value.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusOpen, TaskStatusAssigned, TaskStatusComplete:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Validate checks if the KnowledgeEntry has valid field values.
func (e *KnowledgeEntry) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid entry ID: not a valid UUID")
	}
	if err := ValidateAgentID(e.Author); err != nil {
		return fmt.Errorf("author: %w", err)
	}
	if err := e.Category.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Errorf("body cannot be empty")
	}
	return nil
}

// Validate checks if the Category is a valid enum value.
func (c Category) Validate() error {
	for _, known := range Categories() {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("unknown category: %q", c)
}

// Validate checks if the DecisionRecord has valid field values.
func (d *DecisionRecord) Validate() error {
	if !isValidUUID(d.ID) {
		return fmt.Errorf("invalid decision ID: not a valid UUID")
	}
	if err := ValidateAgentID(d.Author); err != nil {
		return fmt.Errorf("author: %w", err)
	}
	if strings.TrimSpace(d.Decision) == "" {
		return fmt.Errorf("decision cannot be empty")
	}
	if d.TaskID != "" && !isValidUUID(d.TaskID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}
	return nil
}

// Validate checks if the Note has valid field values.
func (n *Note) Validate() error {
	if !isValidUUID(n.ID) {
		return fmt.Errorf("invalid note ID: not a valid UUID")
	}
	if err := ValidateAgentID(n.Author); err != nil {
		return fmt.Errorf("author: %w", err)
	}
	if strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("note content cannot be empty")
	}
	return nil
}

// ValidateAgentID rejects identifiers that would break key namespacing.
func ValidateAgentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("agent ID cannot be empty")
	}
	if strings.ContainsAny(id, ": \t\n") {
		return fmt.Errorf("agent ID %q must not contain ':' or whitespace", id)
	}
	return nil
}

// NormalizeLabels lowercases and trims labels, dropping empties and duplicates.
// First-seen order is preserved. Used for tags and specialties alike.
func NormalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
