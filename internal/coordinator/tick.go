package coordinator

import (
	"context"
	"errors"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/sirupsen/logrus"
)

// Assignment pairs an agent with the task it was given during a tick.
type Assignment struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

// TickReport summarizes one coordination cycle.
type TickReport struct {
	Reclaimed   []*blackboard.Task `json:"reclaimed"`
	Offline     []string           `json:"offline"`
	Assignments []Assignment       `json:"assignments"`
}

// Tick runs one coordination cycle: reclaim stalled tasks, mark long-silent
// agents offline, then give each idle agent (in ID order) its best task.
// It does a bounded amount of work and returns; callers schedule it.
func (c *Coordinator) Tick(ctx context.Context) (*TickReport, error) {
	report := &TickReport{Assignments: []Assignment{}}

	reclaimed, err := c.ReclaimStalled(ctx)
	report.Reclaimed = reclaimed
	if err != nil {
		return report, err
	}

	offline, err := c.MarkInactive(ctx)
	report.Offline = offline
	if err != nil {
		return report, err
	}

	idle, err := c.IdleAgents(ctx)
	if err != nil {
		return report, err
	}
	for _, agent := range idle {
		task, err := c.AssignBest(ctx, agent.ID)
		if errors.Is(err, blackboard.ErrAgentBusy) {
			// Another caller gave this agent work since we listed it.
			continue
		}
		if err != nil {
			return report, err
		}
		if task != nil {
			report.Assignments = append(report.Assignments, Assignment{AgentID: agent.ID, TaskID: task.ID})
		}
	}

	c.logEvent("tick_complete", logrus.Fields{
		"reclaimed":   len(report.Reclaimed),
		"offline":     len(report.Offline),
		"assignments": len(report.Assignments),
	})
	return report, nil
}
