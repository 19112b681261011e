// Package watch polls the blackboard on behalf of CLI commands that wait for
// something to happen.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/swarm/internal/mailbox"
	"github.com/dyluth/swarm/pkg/blackboard"
)

// DefaultInterval is the polling period used when callers pass zero.
const DefaultInterval = 200 * time.Millisecond

// PollForAssignment waits until agentID holds an assigned task and returns it.
// A zero timeout waits until ctx is done.
func PollForAssignment(ctx context.Context, client *blackboard.Client, agentID string, interval, timeout time.Duration) (*blackboard.Task, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		task, err := currentAssignment(ctx, client, agentID)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for an assignment after %v", timeout)
		case <-ticker.C:
		}
	}
}

func currentAssignment(ctx context.Context, client *blackboard.Client, agentID string) (*blackboard.Task, error) {
	agent, err := client.GetAgent(ctx, agentID)
	if blackboard.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, blackboard.Storage("watch", err)
	}
	if agent.CurrentTask == "" {
		return nil, nil
	}

	task, err := client.GetTask(ctx, agent.CurrentTask)
	if blackboard.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, blackboard.Storage("watch", err)
	}
	if task.Status != blackboard.TaskStatusAssigned || task.Assignee != agentID {
		return nil, nil
	}
	return task, nil
}

// Inbox is the mailbox surface FollowInbox needs. *mailbox.Queue satisfies it.
type Inbox interface {
	Listen(ctx context.Context, agentID string, opts mailbox.ListenOptions) ([]*blackboard.Message, error)
}

// FollowInbox calls handle for every message delivered to agentID from
// sinceMs onwards, in delivery order, until ctx is done or handle fails.
// Each message is handled once even when several share a timestamp.
func FollowInbox(ctx context.Context, inbox Inbox, agentID string, sinceMs int64, interval time.Duration, handle func(*blackboard.Message) error) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// IDs already handled at the current sinceMs boundary.
	seen := map[string]struct{}{}

	for {
		messages, err := inbox.Listen(ctx, agentID, mailbox.ListenOptions{SinceMs: sinceMs})
		if err != nil {
			return err
		}
		for _, m := range messages {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			if err := handle(m); err != nil {
				return err
			}
			if m.CreatedAtMs > sinceMs {
				sinceMs = m.CreatedAtMs
				seen = map[string]struct{}{}
			}
			seen[m.ID] = struct{}{}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
