package coordinator

import (
	"context"
	"strings"

	"github.com/dyluth/swarm/internal/knowledge"
	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Outcome describes how a task ended.
type Outcome struct {
	Summary string
	Success bool

	// Record asks for a decision record to be written to the knowledge base.
	Record   bool
	Decision string // Defaults to the task description
	Context  string
	Lessons  []string
}

// CompleteTask marks the agent's assigned task complete and frees the agent.
// An agent that does not hold the task gets an ownership error and nothing changes.
func (c *Coordinator) CompleteTask(ctx context.Context, agentID, taskID string, outcome Outcome) (*blackboard.Task, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return nil, blackboard.Validation("complete_task", "%v", err)
	}
	if taskID == "" {
		return nil, blackboard.Validation("complete_task", "task ID cannot be empty")
	}

	instance := c.client.Instance()
	agentKey := blackboard.AgentKey(instance, agentID)
	taskKey := blackboard.TaskKey(instance, taskID)

	var completed *blackboard.Task
	err := c.client.Watch(ctx, "complete_task", func(tx *redis.Tx) error {
		task, err := blackboard.ReadTask(ctx, tx, instance, taskID)
		if blackboard.IsNotFound(err) {
			return blackboard.TaskUnavailable("complete_task", taskID, "does not exist")
		}
		if err != nil {
			return err
		}
		if task.Status != blackboard.TaskStatusAssigned || task.Assignee != agentID {
			return blackboard.Ownership("complete_task", agentID, taskID)
		}

		now := c.nowMs()
		agent, err := blackboard.ReadAgent(ctx, tx, instance, agentID)
		if blackboard.IsNotFound(err) {
			agent = &blackboard.Agent{ID: agentID, Specialties: []string{}, CreatedAtMs: now}
		} else if err != nil {
			return err
		}

		task.Status = blackboard.TaskStatusComplete
		task.CompletedAtMs = now
		task.Outcome = strings.TrimSpace(outcome.Summary)
		task.Success = outcome.Success
		task.Version++
		if agent.CurrentTask == taskID || agent.CurrentTask == "" {
			agent.Status = blackboard.AgentStatusIdle
			agent.CurrentTask = ""
			agent.Version++
		}
		agent.LastSeenMs = now

		taskFields, err := blackboard.TaskToHash(task)
		if err != nil {
			return err
		}
		agentFields, err := blackboard.AgentToHash(agent)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, taskKey, taskFields)
			pipe.HSet(ctx, agentKey, agentFields)
			pipe.SAdd(ctx, blackboard.AgentsKey(instance), agentID)
			pipe.SRem(ctx, blackboard.TaskStatusKey(instance, blackboard.TaskStatusAssigned), taskID)
			return nil
		})
		if err == nil {
			completed = task
		}
		return err
	}, agentKey, taskKey)
	if err != nil {
		return nil, err
	}

	c.logEvent("task_completed", logrus.Fields{
		"task_id": completed.ID,
		"agent":   agentID,
		"success": completed.Success,
	})

	if outcome.Record && c.recorder != nil {
		decision := outcome.Decision
		if strings.TrimSpace(decision) == "" {
			decision = completed.Description
		}
		_, err := c.recorder.RecordDecision(ctx, knowledge.Decision{
			Author:   agentID,
			Decision: decision,
			Context:  outcome.Context,
			Outcome:  completed.Outcome,
			Success:  completed.Success,
			Lessons:  outcome.Lessons,
			TaskID:   completed.ID,
		})
		if err != nil {
			logging.Warn(c.log, "decision_record_failed", err, logrus.Fields{"task_id": completed.ID})
		}
	}
	return completed, nil
}
