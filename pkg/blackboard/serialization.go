package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Array fields are
// JSON-encoded into single hash fields; numbers and booleans use their
// strconv text form.

// AgentToHash converts an Agent struct to a Redis hash format.
func AgentToHash(a *Agent) (map[string]interface{}, error) {
	specialtiesJSON, err := marshalStrings(a.Specialties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal specialties: %w", err)
	}

	return map[string]interface{}{
		"id":            a.ID,
		"specialties":   specialtiesJSON,
		"status":        string(a.Status),
		"current_task":  a.CurrentTask,
		"created_at_ms": strconv.FormatInt(a.CreatedAtMs, 10),
		"last_seen_ms":  strconv.FormatInt(a.LastSeenMs, 10),
		"version":       strconv.FormatInt(a.Version, 10),
	}, nil
}

// HashToAgent converts a Redis hash to an Agent struct.
func HashToAgent(hash map[string]string) (*Agent, error) {
	specialties, err := unmarshalStrings(hash["specialties"])
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal specialties: %w", err)
	}

	status := AgentStatus(hash["status"])
	if status == "" {
		status = AgentStatusIdle
	}

	return &Agent{
		ID:          hash["id"],
		Specialties: specialties,
		Status:      status,
		CurrentTask: hash["current_task"],
		CreatedAtMs: parseInt(hash["created_at_ms"]),
		LastSeenMs:  parseInt(hash["last_seen_ms"]),
		Version:     parseInt(hash["version"]),
	}, nil
}

// MessageToHash converts a Message struct to a Redis hash format.
func MessageToHash(m *Message) map[string]interface{} {
	return map[string]interface{}{
		"id":             m.ID,
		"sender":         m.Sender,
		"recipient":      m.Recipient,
		"correlation_id": m.CorrelationID,
		"kind":           string(m.Kind),
		"content":        m.Content,
		"urgency":        string(m.Urgency),
		"created_at_ms":  strconv.FormatInt(m.CreatedAtMs, 10),
		"read":           strconv.FormatBool(m.Read),
	}
}

// HashToMessage converts a Redis hash to a Message struct.
func HashToMessage(hash map[string]string) (*Message, error) {
	if hash["id"] == "" {
		return nil, fmt.Errorf("message hash has no id")
	}
	read, _ := strconv.ParseBool(hash["read"])

	return &Message{
		ID:            hash["id"],
		Sender:        hash["sender"],
		Recipient:     hash["recipient"],
		CorrelationID: hash["correlation_id"],
		Kind:          MessageKind(hash["kind"]),
		Content:       hash["content"],
		Urgency:       Urgency(hash["urgency"]),
		CreatedAtMs:   parseInt(hash["created_at_ms"]),
		Read:          read,
	}, nil
}

// TaskToHash converts a Task struct to a Redis hash format.
// The requires array is JSON-encoded.
func TaskToHash(t *Task) (map[string]interface{}, error) {
	requiresJSON, err := marshalStrings(t.Requires)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requires: %w", err)
	}

	return map[string]interface{}{
		"id":              t.ID,
		"description":     t.Description,
		"content_hash":    t.ContentHash,
		"requires":        requiresJSON,
		"priority":        strconv.FormatFloat(t.Priority, 'f', -1, 64),
		"status":          string(t.Status),
		"assignee":        t.Assignee,
		"created_at_ms":   strconv.FormatInt(t.CreatedAtMs, 10),
		"assigned_at_ms":  strconv.FormatInt(t.AssignedAtMs, 10),
		"completed_at_ms": strconv.FormatInt(t.CompletedAtMs, 10),
		"outcome":         t.Outcome,
		"success":         strconv.FormatBool(t.Success),
		"reclaim_count":   strconv.Itoa(t.ReclaimCount),
		"source":          t.Source,
		"version":         strconv.FormatInt(t.Version, 10),
	}, nil
}

// HashToTask converts a Redis hash to a Task struct.
func HashToTask(hash map[string]string) (*Task, error) {
	requires, err := unmarshalStrings(hash["requires"])
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal requires: %w", err)
	}

	priority, err := strconv.ParseFloat(hash["priority"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid priority field: %w", err)
	}

	success, _ := strconv.ParseBool(hash["success"])
	reclaimCount, _ := strconv.Atoi(hash["reclaim_count"])

	return &Task{
		ID:            hash["id"],
		Description:   hash["description"],
		ContentHash:   hash["content_hash"],
		Requires:      requires,
		Priority:      priority,
		Status:        TaskStatus(hash["status"]),
		Assignee:      hash["assignee"],
		CreatedAtMs:   parseInt(hash["created_at_ms"]),
		AssignedAtMs:  parseInt(hash["assigned_at_ms"]),
		CompletedAtMs: parseInt(hash["completed_at_ms"]),
		Outcome:       hash["outcome"],
		Success:       success,
		ReclaimCount:  reclaimCount,
		Source:        hash["source"],
		Version:       parseInt(hash["version"]),
	}, nil
}

// KnowledgeEntryToHash converts a KnowledgeEntry struct to a Redis hash format.
func KnowledgeEntryToHash(e *KnowledgeEntry) (map[string]interface{}, error) {
	tagsJSON, err := marshalStrings(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	return map[string]interface{}{
		"id":            e.ID,
		"author":        e.Author,
		"category":      string(e.Category),
		"title":         e.Title,
		"body":          e.Body,
		"tags":          tagsJSON,
		"created_at_ms": strconv.FormatInt(e.CreatedAtMs, 10),
	}, nil
}

// HashToKnowledgeEntry converts a Redis hash to a KnowledgeEntry struct.
func HashToKnowledgeEntry(hash map[string]string) (*KnowledgeEntry, error) {
	tags, err := unmarshalStrings(hash["tags"])
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	return &KnowledgeEntry{
		ID:          hash["id"],
		Author:      hash["author"],
		Category:    Category(hash["category"]),
		Title:       hash["title"],
		Body:        hash["body"],
		Tags:        tags,
		CreatedAtMs: parseInt(hash["created_at_ms"]),
	}, nil
}

// DecisionRecordToHash converts a DecisionRecord struct to a Redis hash format.
func DecisionRecordToHash(d *DecisionRecord) (map[string]interface{}, error) {
	lessonsJSON, err := marshalStrings(d.Lessons)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lessons: %w", err)
	}

	return map[string]interface{}{
		"id":            d.ID,
		"author":        d.Author,
		"decision":      d.Decision,
		"context":       d.Context,
		"outcome":       d.Outcome,
		"success":       strconv.FormatBool(d.Success),
		"lessons":       lessonsJSON,
		"task_id":       d.TaskID,
		"created_at_ms": strconv.FormatInt(d.CreatedAtMs, 10),
	}, nil
}

// HashToDecisionRecord converts a Redis hash to a DecisionRecord struct.
func HashToDecisionRecord(hash map[string]string) (*DecisionRecord, error) {
	lessons, err := unmarshalStrings(hash["lessons"])
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
	}
	success, _ := strconv.ParseBool(hash["success"])

	return &DecisionRecord{
		ID:          hash["id"],
		Author:      hash["author"],
		Decision:    hash["decision"],
		Context:     hash["context"],
		Outcome:     hash["outcome"],
		Success:     success,
		Lessons:     lessons,
		TaskID:      hash["task_id"],
		CreatedAtMs: parseInt(hash["created_at_ms"]),
	}, nil
}

// NoteToHash converts a Note struct to a Redis hash format.
func NoteToHash(n *Note) map[string]interface{} {
	return map[string]interface{}{
		"id":            n.ID,
		"author":        n.Author,
		"kind":          n.Kind,
		"content":       n.Content,
		"created_at_ms": strconv.FormatInt(n.CreatedAtMs, 10),
	}
}

// HashToNote converts a Redis hash to a Note struct.
func HashToNote(hash map[string]string) *Note {
	return &Note{
		ID:          hash["id"],
		Author:      hash["author"],
		Kind:        hash["kind"],
		Content:     hash["content"],
		CreatedAtMs: parseInt(hash["created_at_ms"]),
	}
}

// TimeScore converts a millisecond timestamp to a Redis ZSET score.
// Float64 represents every millisecond timestamp until the year 287396 exactly.
func TimeScore(ms int64) float64 {
	return float64(ms)
}

// TimeFromScore converts a Redis ZSET score back to a millisecond timestamp.
func TimeFromScore(score float64) int64 {
	return int64(score)
}

// marshalStrings JSON-encodes a string slice, writing nil as "[]".
func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalStrings decodes a JSON string array, returning an empty slice for "".
func unmarshalStrings(raw string) ([]string, error) {
	var values []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, err
		}
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func parseInt(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
