// Package knowledge is the shared, append-only knowledge base: learnings,
// decision records with outcomes, personal notes, keyword search and
// aggregate statistics.
package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Store reads and writes knowledge records on the blackboard.
type Store struct {
	client *blackboard.Client
	log    *logrus.Entry
	now    func() time.Time
}

// Options configures a Store.
type Options struct {
	Logger *logrus.Entry
	Now    func() time.Time
}

// New creates a Store.
func New(client *blackboard.Client, opts Options) *Store {
	s := &Store{client: client, log: opts.Logger, now: opts.Now}
	if s.log == nil {
		s.log = logging.New("knowledge", client.Instance())
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Learning is the input to ShareLearning.
type Learning struct {
	Author   string
	Category blackboard.Category // Empty means general
	Title    string
	Body     string
	Tags     []string
}

// ShareLearning stores a new knowledge entry and returns its ID.
// Tags are lowercased, trimmed and de-duplicated in first-seen order.
func (s *Store) ShareLearning(ctx context.Context, in Learning) (string, error) {
	category := in.Category
	if category == "" {
		category = blackboard.CategoryGeneral
	}

	entry := &blackboard.KnowledgeEntry{
		ID:          uuid.New().String(),
		Author:      in.Author,
		Category:    category,
		Title:       strings.TrimSpace(in.Title),
		Body:        strings.TrimSpace(in.Body),
		Tags:        blackboard.NormalizeLabels(in.Tags),
		CreatedAtMs: s.now().UnixMilli(),
	}
	if err := entry.Validate(); err != nil {
		return "", blackboard.Validation("share_learning", "%v", err)
	}

	hash, err := blackboard.KnowledgeEntryToHash(entry)
	if err != nil {
		return "", blackboard.Storage("share_learning", err)
	}

	instance := s.client.Instance()
	err = s.client.Atomic(ctx, "share_learning", func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, blackboard.LearningKey(instance, entry.ID), hash)
		pipe.ZAdd(ctx, blackboard.LearningsKey(instance), redis.Z{
			Score:  blackboard.TimeScore(entry.CreatedAtMs),
			Member: entry.ID,
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	logging.Event(s.log, "learning_shared", logrus.Fields{
		"entry_id": entry.ID,
		"author":   entry.Author,
		"category": string(entry.Category),
	})
	return entry.ID, nil
}

// Decision is the input to RecordDecision.
type Decision struct {
	Author   string
	Decision string
	Context  string
	Outcome  string
	Success  bool
	Lessons  []string
	TaskID   string // Optional link to the task the decision was made for
}

// RecordDecision stores a decision record and returns its ID.
func (s *Store) RecordDecision(ctx context.Context, in Decision) (string, error) {
	lessons := make([]string, 0, len(in.Lessons))
	for _, l := range in.Lessons {
		if l = strings.TrimSpace(l); l != "" {
			lessons = append(lessons, l)
		}
	}

	record := &blackboard.DecisionRecord{
		ID:          uuid.New().String(),
		Author:      in.Author,
		Decision:    strings.TrimSpace(in.Decision),
		Context:     strings.TrimSpace(in.Context),
		Outcome:     strings.TrimSpace(in.Outcome),
		Success:     in.Success,
		Lessons:     lessons,
		TaskID:      in.TaskID,
		CreatedAtMs: s.now().UnixMilli(),
	}
	if err := record.Validate(); err != nil {
		return "", blackboard.Validation("record_decision", "%v", err)
	}

	hash, err := blackboard.DecisionRecordToHash(record)
	if err != nil {
		return "", blackboard.Storage("record_decision", err)
	}

	instance := s.client.Instance()
	err = s.client.Atomic(ctx, "record_decision", func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, blackboard.DecisionKey(instance, record.ID), hash)
		pipe.ZAdd(ctx, blackboard.DecisionsKey(instance), redis.Z{
			Score:  blackboard.TimeScore(record.CreatedAtMs),
			Member: record.ID,
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	logging.Event(s.log, "decision_recorded", logrus.Fields{
		"decision_id": record.ID,
		"author":      record.Author,
		"success":     record.Success,
		"task_id":     record.TaskID,
	})
	return record.ID, nil
}

// DecisionFilter narrows Decisions.
type DecisionFilter struct {
	Author string
	Limit  int
}

// Decisions returns decision records newest first.
func (s *Store) Decisions(ctx context.Context, filter DecisionFilter) ([]*blackboard.DecisionRecord, error) {
	if filter.Limit < 0 {
		return nil, blackboard.Validation("decisions", "limit must be >= 0, got %d", filter.Limit)
	}

	records, err := s.client.ListDecisionRecords(ctx)
	if err != nil {
		return nil, blackboard.Storage("decisions", err)
	}

	out := make([]*blackboard.DecisionRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if filter.Author != "" && records[i].Author != filter.Author {
			continue
		}
		out = append(out, records[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// AddNote appends a note to the agent's personal notebook.
func (s *Store) AddNote(ctx context.Context, agentID, kind, content string) (string, error) {
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "note"
	}
	note := &blackboard.Note{
		ID:          uuid.New().String(),
		Author:      agentID,
		Kind:        kind,
		Content:     strings.TrimSpace(content),
		CreatedAtMs: s.now().UnixMilli(),
	}
	if err := note.Validate(); err != nil {
		return "", blackboard.Validation("add_note", "%v", err)
	}

	instance := s.client.Instance()
	err := s.client.Atomic(ctx, "add_note", func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, blackboard.NoteKey(instance, note.ID), blackboard.NoteToHash(note))
		pipe.ZAdd(ctx, blackboard.NotesKey(instance, agentID), redis.Z{
			Score:  blackboard.TimeScore(note.CreatedAtMs),
			Member: note.ID,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return note.ID, nil
}

// Notes returns the agent's notes oldest first.
func (s *Store) Notes(ctx context.Context, agentID string) ([]*blackboard.Note, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return nil, blackboard.Validation("notes", "%v", err)
	}
	notes, err := s.client.ListNotes(ctx, agentID)
	if err != nil {
		return nil, blackboard.Storage("notes", err)
	}
	return notes, nil
}
