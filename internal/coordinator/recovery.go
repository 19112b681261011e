package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ReclaimStalled reopens tasks that have been assigned for longer than the
// reclaim timeout. The holder is told through its mailbox. A holder silent
// since the assignment is forced idle; one that has heartbeated since stays
// busy until its next heartbeat releases it. Returns the reopened tasks.
func (c *Coordinator) ReclaimStalled(ctx context.Context) ([]*blackboard.Task, error) {
	ids, err := c.client.TaskIDsWithStatus(ctx, blackboard.TaskStatusAssigned)
	if err != nil {
		return nil, blackboard.Storage("reclaim_stalled", err)
	}
	assigned, err := c.client.GetTasks(ctx, ids)
	if err != nil {
		return nil, blackboard.Storage("reclaim_stalled", err)
	}

	timeout := c.reclaimTimeout.Milliseconds()
	reclaimed := make([]*blackboard.Task, 0)
	for _, candidate := range assigned {
		if candidate.Status != blackboard.TaskStatusAssigned || c.nowMs()-candidate.AssignedAtMs <= timeout {
			continue
		}

		task, err := c.reclaim(ctx, candidate.ID, candidate.Assignee, timeout)
		if err != nil {
			return reclaimed, err
		}
		if task == nil {
			continue
		}
		reclaimed = append(reclaimed, task)

		c.logEvent("task_reclaimed", logrus.Fields{
			"task_id":       task.ID,
			"agent":         candidate.Assignee,
			"assigned_ms":   candidate.AssignedAtMs,
			"reclaim_count": task.ReclaimCount,
		})
		c.notify(ctx, candidate.Assignee, blackboard.MessageKindSystem,
			fmt.Sprintf("Task %s was reclaimed after %s without completion: %s",
				task.ID, c.reclaimTimeout.Round(time.Second), task.Description))
	}
	return reclaimed, nil
}

// reclaim reopens one task if it is still stalled under the same holder.
// Returns nil when the task moved on before the transaction ran.
func (c *Coordinator) reclaim(ctx context.Context, taskID, holder string, timeout int64) (*blackboard.Task, error) {
	instance := c.client.Instance()
	taskKey := blackboard.TaskKey(instance, taskID)
	agentKey := blackboard.AgentKey(instance, holder)

	var reopened *blackboard.Task
	err := c.client.Watch(ctx, "reclaim_stalled", func(tx *redis.Tx) error {
		reopened = nil
		task, err := blackboard.ReadTask(ctx, tx, instance, taskID)
		if blackboard.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if task.Status != blackboard.TaskStatusAssigned || task.Assignee != holder || c.nowMs()-task.AssignedAtMs <= timeout {
			return nil
		}

		agent, err := blackboard.ReadAgent(ctx, tx, instance, holder)
		if err != nil && !blackboard.IsNotFound(err) {
			return err
		}

		assignedAt := task.AssignedAtMs
		task.Status = blackboard.TaskStatusOpen
		task.Assignee = ""
		task.AssignedAtMs = 0
		task.ReclaimCount++
		task.Version++
		taskFields, err := blackboard.TaskToHash(task)
		if err != nil {
			return err
		}

		var agentFields map[string]interface{}
		if agent != nil && agent.CurrentTask == taskID && agent.LastSeenMs <= assignedAt {
			agent.Status = blackboard.AgentStatusIdle
			agent.CurrentTask = ""
			agent.Version++
			if agentFields, err = blackboard.AgentToHash(agent); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, taskKey, taskFields)
			if agentFields != nil {
				pipe.HSet(ctx, agentKey, agentFields)
			}
			pipe.SRem(ctx, blackboard.TaskStatusKey(instance, blackboard.TaskStatusAssigned), taskID)
			pipe.SAdd(ctx, blackboard.TaskStatusKey(instance, blackboard.TaskStatusOpen), taskID)
			return nil
		})
		if err == nil {
			reopened = task
		}
		return err
	}, taskKey, agentKey)
	if err != nil {
		return nil, err
	}
	return reopened, nil
}
