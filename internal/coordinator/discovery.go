package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Candidate is a potential task handed in by a discovery collaborator.
type Candidate struct {
	Description string
	Requires    []string
	Priority    float64
	Source      string
}

// Scoring inputs used when a description carries no explicit priority.
// Priority is then (value * urgency) / (max(1, effort) * max(1, risk)).
const (
	defaultValue   = 5.0
	defaultUrgency = 5.0
	defaultEffort  = 5.0
	defaultRisk    = 1.0
)

// annotationPattern matches an inline "[key=value ...]" block.
var annotationPattern = regexp.MustCompile(`\[([^\[\]]*=[^\[\]]*)\]`)

// ParseCandidate turns a raw description into a Candidate.
//
// The description may carry one annotation block, for example
// "Fix login redirect [p=8 needs=frontend,auth]" or "Tune cache [v=8 u=5 e=3 r=1]".
// Recognized keys: p (explicit priority), needs (comma-separated specialties),
// v, u, e, r (value, urgency, effort and risk for the computed priority).
// Unknown keys are ignored. The annotation is stripped from the description.
func ParseCandidate(raw string) (Candidate, error) {
	var cand Candidate
	var explicit *float64
	value, urgency, effort, risk := defaultValue, defaultUrgency, defaultEffort, defaultRisk

	description := raw
	if loc := annotationPattern.FindStringSubmatchIndex(raw); loc != nil {
		body := raw[loc[2]:loc[3]]
		description = raw[:loc[0]] + " " + raw[loc[1]:]

		for _, field := range strings.Fields(body) {
			key, val, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			key = strings.ToLower(key)

			if key == "needs" || key == "skills" || key == "requires" {
				cand.Requires = append(cand.Requires, strings.Split(val, ",")...)
				continue
			}

			var target *float64
			switch key {
			case "p", "priority":
				explicit = new(float64)
				target = explicit
			case "v", "val", "value":
				target = &value
			case "u", "urg", "urgency":
				target = &urgency
			case "e", "eff", "effort":
				target = &effort
			case "r", "risk":
				target = &risk
			default:
				continue
			}

			n, err := strconv.ParseFloat(val, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				return Candidate{}, blackboard.Validation("discover_tasks", "invalid %s=%q in %q", key, val, raw)
			}
			*target = n
		}
	}

	cand.Description = strings.Join(strings.Fields(description), " ")
	cand.Requires = blackboard.NormalizeLabels(cand.Requires)
	if explicit != nil {
		cand.Priority = *explicit
	} else {
		cand.Priority = ROI(value, urgency, effort, risk)
	}
	return cand, nil
}

// ROI scores a task by return on investment.
func ROI(value, urgency, effort, risk float64) float64 {
	return (value * urgency) / (math.Max(1, effort) * math.Max(1, risk))
}

// ContentHash returns the deduplication key for a description: the SHA-256 of
// the whitespace-collapsed, lowercased text.
func ContentHash(description string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(description), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// DiscoverTasks parses raw descriptions and creates a task for each one not
// seen before. It returns only the newly created tasks; resubmitting known
// descriptions yields an empty slice.
func (c *Coordinator) DiscoverTasks(ctx context.Context, raw []string) ([]*blackboard.Task, error) {
	candidates := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		cand, err := ParseCandidate(r)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return c.DiscoverCandidates(ctx, candidates)
}

// DiscoverCandidates creates tasks for candidates whose normalized description
// has no task yet. Every candidate is validated before anything is written.
// Each task is created in its own transaction; a storage failure part-way
// returns the tasks created so far alongside the error.
func (c *Coordinator) DiscoverCandidates(ctx context.Context, candidates []Candidate) ([]*blackboard.Task, error) {
	normalized := make([]Candidate, len(candidates))
	for i, cand := range candidates {
		cand.Description = strings.Join(strings.Fields(cand.Description), " ")
		cand.Requires = blackboard.NormalizeLabels(cand.Requires)
		normalized[i] = cand
		if cand.Description == "" {
			return nil, blackboard.Validation("discover_tasks", "candidate %d has an empty description", i)
		}
		if math.IsNaN(cand.Priority) || math.IsInf(cand.Priority, 0) {
			return nil, blackboard.Validation("discover_tasks", "candidate %d has a non-finite priority", i)
		}
	}

	created := make([]*blackboard.Task, 0)
	for _, cand := range normalized {
		task, err := c.createTask(ctx, cand)
		if err != nil {
			return created, err
		}
		if task == nil {
			continue
		}
		created = append(created, task)
		c.logEvent("task_discovered", logrus.Fields{
			"task_id":  task.ID,
			"priority": task.Priority,
			"requires": task.Requires,
			"source":   task.Source,
		})
	}
	return created, nil
}

var errDuplicateTask = errors.New("duplicate task")

// createTask writes the task and its hash index together. It returns nil
// without error when the hash index already points at a task.
func (c *Coordinator) createTask(ctx context.Context, cand Candidate) (*blackboard.Task, error) {
	instance := c.client.Instance()
	hash := ContentHash(cand.Description)
	indexKey := blackboard.TaskByHashKey(instance, hash)

	var task *blackboard.Task
	err := c.client.Watch(ctx, "discover_tasks", func(tx *redis.Tx) error {
		existing, err := tx.Exists(ctx, indexKey).Result()
		if err != nil {
			return err
		}
		if existing > 0 {
			return errDuplicateTask
		}

		now := c.nowMs()
		t := &blackboard.Task{
			ID:          uuid.New().String(),
			Description: cand.Description,
			ContentHash: hash,
			Requires:    cand.Requires,
			Priority:    cand.Priority,
			Status:      blackboard.TaskStatusOpen,
			CreatedAtMs: now,
			Source:      cand.Source,
			Version:     1,
		}
		fields, err := blackboard.TaskToHash(t)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, blackboard.TaskKey(instance, t.ID), fields)
			pipe.ZAdd(ctx, blackboard.TasksKey(instance), redis.Z{Score: blackboard.TimeScore(now), Member: t.ID})
			pipe.SAdd(ctx, blackboard.TaskStatusKey(instance, blackboard.TaskStatusOpen), t.ID)
			pipe.Set(ctx, indexKey, t.ID, 0)
			return nil
		})
		if err == nil {
			task = t
		}
		return err
	}, indexKey)

	if errors.Is(err, errDuplicateTask) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}
