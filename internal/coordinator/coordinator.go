// Package coordinator tracks agents, turns discovered descriptions into
// tasks, and matches idle agents to open tasks. Every state transition is a
// compare-and-swap over the blackboard so that concurrent coordinators and
// agents never double-assign a task.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/swarm/internal/knowledge"
	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/sirupsen/logrus"
)

// Default timeouts applied when Options leaves them zero.
const (
	DefaultBusyTimeout    = 10 * time.Minute
	DefaultReclaimTimeout = 30 * time.Minute
	DefaultOfflineAfter   = time.Hour
)

// Notifier delivers coordinator notices to an agent's mailbox.
// *mailbox.Queue satisfies it.
type Notifier interface {
	Notify(ctx context.Context, recipient string, kind blackboard.MessageKind, content string) error
}

// DecisionRecorder persists the decision record written on task completion.
// *knowledge.Store satisfies it.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, in knowledge.Decision) (string, error)
}

// Options configures a Coordinator.
type Options struct {
	// Specialties maps agent IDs to their configured skills. Configured
	// specialties take precedence over those an agent registered itself.
	Specialties map[string][]string

	// BusyTimeout is how recently an agent must have been seen to count as idle.
	BusyTimeout time.Duration
	// ReclaimTimeout is how long a task may stay assigned before it is reopened.
	ReclaimTimeout time.Duration
	// OfflineAfter is how long an idle agent may stay silent before it is marked offline.
	OfflineAfter time.Duration

	Notifier Notifier
	Recorder DecisionRecorder
	Logger   *logrus.Entry
	Now      func() time.Time
}

// Coordinator owns task and agent status transitions.
type Coordinator struct {
	client         *blackboard.Client
	specialties    map[string][]string
	busyTimeout    time.Duration
	reclaimTimeout time.Duration
	offlineAfter   time.Duration
	notifier       Notifier
	recorder       DecisionRecorder
	log            *logrus.Entry
	now            func() time.Time
}

// New creates a Coordinator. Zero timeouts take their defaults.
func New(client *blackboard.Client, opts Options) *Coordinator {
	c := &Coordinator{
		client:         client,
		specialties:    make(map[string][]string, len(opts.Specialties)),
		busyTimeout:    opts.BusyTimeout,
		reclaimTimeout: opts.ReclaimTimeout,
		offlineAfter:   opts.OfflineAfter,
		notifier:       opts.Notifier,
		recorder:       opts.Recorder,
		log:            opts.Logger,
		now:            opts.Now,
	}
	for id, skills := range opts.Specialties {
		c.specialties[id] = blackboard.NormalizeLabels(skills)
	}
	if c.busyTimeout <= 0 {
		c.busyTimeout = DefaultBusyTimeout
	}
	if c.reclaimTimeout <= 0 {
		c.reclaimTimeout = DefaultReclaimTimeout
	}
	if c.offlineAfter <= 0 {
		c.offlineAfter = DefaultOfflineAfter
	}
	if c.log == nil {
		c.log = logging.New("coordinator", client.Instance())
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Task returns a task by ID.
func (c *Coordinator) Task(ctx context.Context, taskID string) (*blackboard.Task, error) {
	task, err := c.client.GetTask(ctx, taskID)
	if blackboard.IsNotFound(err) {
		return nil, blackboard.Validation("task", "task %s does not exist", taskID)
	}
	if err != nil {
		return nil, blackboard.Storage("task", err)
	}
	return task, nil
}

// TaskFilter narrows Tasks. An empty Status lists every task.
type TaskFilter struct {
	Status blackboard.TaskStatus
}

// Tasks lists tasks in creation order.
func (c *Coordinator) Tasks(ctx context.Context, filter TaskFilter) ([]*blackboard.Task, error) {
	if filter.Status != "" {
		if err := filter.Status.Validate(); err != nil {
			return nil, blackboard.Validation("tasks", "%v", err)
		}
	}

	ids, err := c.client.TaskIDs(ctx)
	if err != nil {
		return nil, blackboard.Storage("tasks", err)
	}
	tasks, err := c.client.GetTasks(ctx, ids)
	if err != nil {
		return nil, blackboard.Storage("tasks", err)
	}
	if filter.Status == "" {
		return tasks, nil
	}

	out := tasks[:0]
	for _, t := range tasks {
		if t.Status == filter.Status {
			out = append(out, t)
		}
	}
	return out, nil
}

// specialtiesOf returns the skills used to match an agent against tasks.
func (c *Coordinator) specialtiesOf(agent *blackboard.Agent) []string {
	if configured, ok := c.specialties[agent.ID]; ok {
		return configured
	}
	return agent.Specialties
}

// qualifies reports whether skills share at least one requirement. A task
// with no requirements suits anyone.
func qualifies(skills, requires []string) bool {
	if len(requires) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		have[s] = struct{}{}
	}
	for _, r := range requires {
		if _, ok := have[r]; ok {
			return true
		}
	}
	return false
}

func (c *Coordinator) notify(ctx context.Context, agentID string, kind blackboard.MessageKind, content string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, agentID, kind, content); err != nil {
		logging.Warn(c.log, "notification_failed", err, logrus.Fields{"agent": agentID})
	}
}

func (c *Coordinator) logEvent(eventType string, fields logrus.Fields) {
	logging.Event(c.log, eventType, fields)
}

func (c *Coordinator) nowMs() int64 {
	return c.now().UnixMilli()
}

func describeTask(t *blackboard.Task) string {
	return fmt.Sprintf("%s (priority %g)", t.Description, t.Priority)
}
