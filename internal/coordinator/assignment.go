package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// AssignTask gives an open task to an idle agent as one compare-and-swap over
// the task and agent records. Of two racing calls for the same task exactly
// one succeeds; the other gets a task-unavailable error.
//
// The agent is notified after the assignment commits. A failed notification
// is logged and does not undo the assignment.
func (c *Coordinator) AssignTask(ctx context.Context, agentID, taskID string) (*blackboard.Task, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return nil, blackboard.Validation("assign_task", "%v", err)
	}
	if taskID == "" {
		return nil, blackboard.Validation("assign_task", "task ID cannot be empty")
	}

	instance := c.client.Instance()
	agentKey := blackboard.AgentKey(instance, agentID)
	taskKey := blackboard.TaskKey(instance, taskID)

	var assigned *blackboard.Task
	err := c.client.Watch(ctx, "assign_task", func(tx *redis.Tx) error {
		agent, err := blackboard.ReadAgent(ctx, tx, instance, agentID)
		if blackboard.IsNotFound(err) {
			return blackboard.Validation("assign_task", "agent %q is not registered", agentID)
		}
		if err != nil {
			return err
		}
		task, err := blackboard.ReadTask(ctx, tx, instance, taskID)
		if blackboard.IsNotFound(err) {
			return blackboard.TaskUnavailable("assign_task", taskID, "does not exist")
		}
		if err != nil {
			return err
		}

		if task.Status != blackboard.TaskStatusOpen {
			return blackboard.TaskUnavailable("assign_task", taskID, "is %s", task.Status)
		}
		if agent.Status != blackboard.AgentStatusIdle || agent.CurrentTask != "" {
			return blackboard.AgentBusy("assign_task", agentID, agent.Status)
		}
		if !qualifies(c.specialtiesOf(agent), task.Requires) {
			return blackboard.TaskUnavailable("assign_task", taskID, "requires one of %v, %s has none", task.Requires, agentID)
		}

		now := c.nowMs()
		task.Status = blackboard.TaskStatusAssigned
		task.Assignee = agentID
		task.AssignedAtMs = now
		task.Version++
		agent.Status = blackboard.AgentStatusBusy
		agent.CurrentTask = taskID
		agent.Version++

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
			pipe.SRem(ctx, blackboard.TaskStatusKey(instance, blackboard.TaskStatusOpen), taskID)
			pipe.SAdd(ctx, blackboard.TaskStatusKey(instance, blackboard.TaskStatusAssigned), taskID)
			return nil
		})
		if err == nil {
			assigned = task
		}
		return err
	}, agentKey, taskKey)
	if err != nil {
		return nil, err
	}

	c.logEvent("task_assigned", logrus.Fields{
		"task_id":  assigned.ID,
		"agent":    agentID,
		"priority": assigned.Priority,
	})
	c.notify(ctx, agentID, blackboard.MessageKindTask,
		fmt.Sprintf("Task %s assigned to you: %s", assigned.ID, describeTask(assigned)))

	return assigned, nil
}

// AssignBest assigns the agent the best open task it qualifies for: highest
// priority, then oldest, then lowest ID. When another caller takes a
// candidate first the next one is tried. Returns (nil, nil) when no open task
// fits.
func (c *Coordinator) AssignBest(ctx context.Context, agentID string) (*blackboard.Task, error) {
	agent, err := c.agent(ctx, "assign_best", agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != blackboard.AgentStatusIdle || agent.CurrentTask != "" {
		return nil, blackboard.AgentBusy("assign_best", agentID, agent.Status)
	}

	ids, err := c.client.TaskIDsWithStatus(ctx, blackboard.TaskStatusOpen)
	if err != nil {
		return nil, blackboard.Storage("assign_best", err)
	}
	open, err := c.client.GetTasks(ctx, ids)
	if err != nil {
		return nil, blackboard.Storage("assign_best", err)
	}

	skills := c.specialtiesOf(agent)
	candidates := make([]*blackboard.Task, 0, len(open))
	for _, t := range open {
		if t.Status == blackboard.TaskStatusOpen && qualifies(skills, t.Requires) {
			candidates = append(candidates, t)
		}
	}
	RankTasks(candidates)

	for _, t := range candidates {
		task, err := c.AssignTask(ctx, agentID, t.ID)
		if errors.Is(err, blackboard.ErrTaskUnavailable) {
			continue
		}
		return task, err
	}
	return nil, nil
}

// RankTasks orders tasks for assignment: priority descending, then creation
// time ascending, then ID ascending. The order is total, so every coordinator
// ranks the same tasks identically.
func RankTasks(tasks []*blackboard.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.CreatedAtMs != b.CreatedAtMs {
			return a.CreatedAtMs < b.CreatedAtMs
		}
		return a.ID < b.ID
	})
}
