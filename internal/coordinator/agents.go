package coordinator

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RegisterAgent records an agent's self-declared specialties and counts as
// activity. Configured specialties still take precedence when matching.
func (c *Coordinator) RegisterAgent(ctx context.Context, agentID string, specialties []string) (*blackboard.Agent, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return nil, blackboard.Validation("register_agent", "%v", err)
	}
	skills, err := json.Marshal(blackboard.NormalizeLabels(specialties))
	if err != nil {
		return nil, blackboard.Validation("register_agent", "%v", err)
	}

	instance := c.client.Instance()
	now := c.nowMs()
	err = c.client.Atomic(ctx, "register_agent", func(pipe redis.Pipeliner) error {
		blackboard.QueueEnsureAgent(ctx, pipe, instance, agentID, now)
		blackboard.QueueTouchAgent(ctx, pipe, instance, agentID, now)
		pipe.HSet(ctx, blackboard.AgentKey(instance, agentID), "specialties", string(skills))
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logEvent("agent_registered", logrus.Fields{"agent": agentID, "specialties": specialties})
	return c.agent(ctx, "register_agent", agentID)
}

// Heartbeat records that the agent is alive. An offline agent comes back as
// idle, and a busy agent whose task was reclaimed in the meantime is released.
// Unknown agents are created.
func (c *Coordinator) Heartbeat(ctx context.Context, agentID string) (*blackboard.Agent, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return nil, blackboard.Validation("heartbeat", "%v", err)
	}

	instance := c.client.Instance()
	agentKey := blackboard.AgentKey(instance, agentID)

	var result *blackboard.Agent
	var previous blackboard.AgentStatus
	err := c.client.Watch(ctx, "heartbeat", func(tx *redis.Tx) error {
		now := c.nowMs()
		agent, err := blackboard.ReadAgent(ctx, tx, instance, agentID)
		if blackboard.IsNotFound(err) {
			agent = &blackboard.Agent{
				ID:          agentID,
				Specialties: []string{},
				Status:      blackboard.AgentStatusIdle,
				CreatedAtMs: now,
			}
		} else if err != nil {
			return err
		}
		previous = agent.Status

		switch agent.Status {
		case blackboard.AgentStatusOffline:
			agent.Status = blackboard.AgentStatusIdle
		case blackboard.AgentStatusBusy:
			holds, err := c.stillHolds(ctx, tx, agent)
			if err != nil {
				return err
			}
			if !holds {
				agent.Status = blackboard.AgentStatusIdle
				agent.CurrentTask = ""
			}
		}
		if agent.Status != previous {
			agent.Version++
		}
		agent.LastSeenMs = now

		fields, err := blackboard.AgentToHash(agent)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, agentKey, fields)
			pipe.SAdd(ctx, blackboard.AgentsKey(instance), agentID)
			return nil
		})
		if err == nil {
			result = agent
		}
		return err
	}, agentKey)
	if err != nil {
		return nil, err
	}

	if previous != "" && previous != result.Status {
		c.logEvent("agent_status_changed", logrus.Fields{
			"agent": agentID,
			"from":  string(previous),
			"to":    string(result.Status),
		})
	}
	return result, nil
}

// stillHolds reports whether the busy agent's current task is still assigned
// to it. The task key joins the transaction's watch set.
func (c *Coordinator) stillHolds(ctx context.Context, tx *redis.Tx, agent *blackboard.Agent) (bool, error) {
	if agent.CurrentTask == "" {
		return false, nil
	}
	instance := c.client.Instance()
	if err := tx.Watch(ctx, blackboard.TaskKey(instance, agent.CurrentTask)).Err(); err != nil {
		return false, err
	}
	task, err := blackboard.ReadTask(ctx, tx, instance, agent.CurrentTask)
	if blackboard.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return task.Status == blackboard.TaskStatusAssigned && task.Assignee == agent.ID, nil
}

// IdleAgents returns agents that can take work right now: status idle, seen
// within the busy timeout, and holding no assigned task. Sorted by ID.
func (c *Coordinator) IdleAgents(ctx context.Context) ([]*blackboard.Agent, error) {
	agents, err := c.client.ListAgents(ctx)
	if err != nil {
		return nil, blackboard.Storage("get_idle_agents", err)
	}
	holders, err := c.taskHolders(ctx)
	if err != nil {
		return nil, blackboard.Storage("get_idle_agents", err)
	}

	cutoff := c.nowMs() - c.busyTimeout.Milliseconds()
	idle := make([]*blackboard.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Status != blackboard.AgentStatusIdle || a.CurrentTask != "" {
			continue
		}
		if a.LastSeenMs < cutoff {
			continue
		}
		if _, busy := holders[a.ID]; busy {
			continue
		}
		idle = append(idle, a)
	}
	return idle, nil
}

// taskHolders returns the set of agents that are assignees of assigned tasks.
func (c *Coordinator) taskHolders(ctx context.Context) (map[string]struct{}, error) {
	ids, err := c.client.TaskIDsWithStatus(ctx, blackboard.TaskStatusAssigned)
	if err != nil {
		return nil, err
	}
	tasks, err := c.client.GetTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	holders := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.Status == blackboard.TaskStatusAssigned {
			holders[t.Assignee] = struct{}{}
		}
	}
	return holders, nil
}

// MarkInactive moves idle agents that have been silent longer than the
// offline threshold to offline, and returns their IDs.
func (c *Coordinator) MarkInactive(ctx context.Context) ([]string, error) {
	agents, err := c.client.ListAgents(ctx)
	if err != nil {
		return nil, blackboard.Storage("mark_inactive", err)
	}

	instance := c.client.Instance()
	threshold := c.offlineAfter.Milliseconds()
	marked := make([]string, 0)
	for _, candidate := range agents {
		if candidate.Status != blackboard.AgentStatusIdle || c.nowMs()-candidate.LastSeenMs <= threshold {
			continue
		}

		agentKey := blackboard.AgentKey(instance, candidate.ID)
		changed := false
		err := c.client.Watch(ctx, "mark_inactive", func(tx *redis.Tx) error {
			changed = false
			agent, err := blackboard.ReadAgent(ctx, tx, instance, candidate.ID)
			if err != nil {
				return err
			}
			if agent.Status != blackboard.AgentStatusIdle || c.nowMs()-agent.LastSeenMs <= threshold {
				return nil
			}
			agent.Status = blackboard.AgentStatusOffline
			agent.Version++
			fields, err := blackboard.AgentToHash(agent)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, agentKey, fields)
				return nil
			})
			changed = err == nil
			return err
		}, agentKey)
		if err != nil {
			return marked, err
		}
		if changed {
			marked = append(marked, candidate.ID)
			c.logEvent("agent_offline", logrus.Fields{"agent": candidate.ID, "last_seen_ms": candidate.LastSeenMs})
		}
	}
	return marked, nil
}

// RollCall makes sure every configured agent has a record, applies configured
// specialties, and returns all known agents sorted by ID. Declared agents are
// not treated as seen.
func (c *Coordinator) RollCall(ctx context.Context) ([]*blackboard.Agent, error) {
	ids := make([]string, 0, len(c.specialties))
	for id := range c.specialties {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) > 0 {
		instance := c.client.Instance()
		now := c.nowMs()
		err := c.client.Atomic(ctx, "roll_call", func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				skills, err := json.Marshal(c.specialties[id])
				if err != nil {
					return err
				}
				blackboard.QueueDeclareAgent(ctx, pipe, instance, id, now)
				pipe.HSet(ctx, blackboard.AgentKey(instance, id), "specialties", string(skills))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	agents, err := c.client.ListAgents(ctx)
	if err != nil {
		return nil, blackboard.Storage("roll_call", err)
	}
	return agents, nil
}

func (c *Coordinator) agent(ctx context.Context, op, agentID string) (*blackboard.Agent, error) {
	agent, err := c.client.GetAgent(ctx, agentID)
	if blackboard.IsNotFound(err) {
		return nil, blackboard.Validation(op, "agent %q is not registered", agentID)
	}
	if err != nil {
		return nil, blackboard.Storage(op, err)
	}
	return agent, nil
}
