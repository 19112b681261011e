// Package mailbox implements the per-agent message queue: direct sends,
// best-effort broadcasts, ordered restartable listening and read tracking.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SystemSender is the sender recorded on coordinator notices.
// It is never registered as an agent.
const SystemSender = "swarm"

// Options configures a Queue.
type Options struct {
	// ValidateRecipients rejects sends to agents that never registered
	// instead of creating their mailbox lazily.
	ValidateRecipients bool
	Logger             *logrus.Entry
	Now                func() time.Time
}

// Queue is the message queue over the blackboard.
type Queue struct {
	client             *blackboard.Client
	validateRecipients bool
	log                *logrus.Entry
	now                func() time.Time
}

// New creates a Queue.
func New(client *blackboard.Client, opts Options) *Queue {
	q := &Queue{
		client:             client,
		validateRecipients: opts.ValidateRecipients,
		log:                opts.Logger,
		now:                opts.Now,
	}
	if q.log == nil {
		q.log = logging.New("mailbox", client.Instance())
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// Send delivers content to a single recipient and returns the new message ID.
// An empty urgency means normal.
func (q *Queue) Send(ctx context.Context, sender, recipient, content string, urgency blackboard.Urgency) (string, error) {
	msg, err := q.newMessage("send", sender, recipient, content, urgency, blackboard.MessageKindDirect)
	if err != nil {
		return "", err
	}
	if err := q.deliver(ctx, "send", msg, true); err != nil {
		return "", err
	}

	logging.Event(q.log, "message_sent", logrus.Fields{
		"message_id": msg.ID,
		"sender":     msg.Sender,
		"recipient":  msg.Recipient,
		"urgency":    string(msg.Urgency),
	})
	return msg.ID, nil
}

// Notify delivers a coordinator notice. The sender is SystemSender and the
// recipient's mailbox is always created on demand.
func (q *Queue) Notify(ctx context.Context, recipient string, kind blackboard.MessageKind, content string) error {
	msg, err := q.newMessage("notify", SystemSender, recipient, content, blackboard.UrgencyNormal, kind)
	if err != nil {
		return err
	}
	return q.deliver(ctx, "notify", msg, false)
}

// BroadcastResult reports the per-recipient outcome of a broadcast.
type BroadcastResult struct {
	CorrelationID string
	Delivered     map[string]string // recipient -> message ID
	Failed        map[string]error  // recipient -> failure
}

// Recipients returns the recipients that received the broadcast, sorted.
func (r *BroadcastResult) Recipients() []string {
	out := make([]string, 0, len(r.Delivered))
	for id := range r.Delivered {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Broadcast sends content to every known agent except the sender.
//
// Each delivery is independent: a failure for one recipient does not undo the
// others. The returned error joins every per-recipient failure and is nil
// when all deliveries succeeded. The result is always returned once input
// validation has passed.
func (q *Queue) Broadcast(ctx context.Context, sender, content string, urgency blackboard.Urgency) (*BroadcastResult, error) {
	if urgency == "" {
		urgency = blackboard.UrgencyNormal
	}
	if err := blackboard.ValidateAgentID(sender); err != nil {
		return nil, blackboard.Validation("broadcast", "sender: %v", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, blackboard.Validation("broadcast", "content cannot be empty")
	}
	if err := urgency.Validate(); err != nil {
		return nil, blackboard.Validation("broadcast", "%v", err)
	}

	now := q.now()
	if err := q.client.EnsureAgent(ctx, sender, now.UnixMilli()); err != nil {
		return nil, err
	}

	agentIDs, err := q.client.AgentIDs(ctx)
	if err != nil {
		return nil, blackboard.Storage("broadcast", err)
	}

	result := &BroadcastResult{
		CorrelationID: uuid.New().String(),
		Delivered:     make(map[string]string),
		Failed:        make(map[string]error),
	}

	var failures []error
	for _, recipient := range agentIDs {
		if recipient == sender {
			continue
		}
		msg, err := q.newMessage("broadcast", sender, recipient, content, urgency, blackboard.MessageKindBroadcast)
		if err == nil {
			msg.CorrelationID = result.CorrelationID
			err = q.deliver(ctx, "broadcast", msg, false)
		}
		if err != nil {
			result.Failed[recipient] = err
			failures = append(failures, fmt.Errorf("%s: %w", recipient, err))
			continue
		}
		result.Delivered[recipient] = msg.ID
	}

	logging.Event(q.log, "broadcast_sent", logrus.Fields{
		"correlation_id": result.CorrelationID,
		"sender":         sender,
		"delivered":      len(result.Delivered),
		"failed":         len(result.Failed),
	})

	if len(result.Delivered) > 0 {
		ev := &blackboard.BroadcastEvent{
			CorrelationID: result.CorrelationID,
			Sender:        sender,
			Content:       content,
			Urgency:       urgency,
			Recipients:    result.Recipients(),
			CreatedAtMs:   now.UnixMilli(),
		}
		if err := q.client.PublishBroadcast(ctx, ev); err != nil {
			logging.Warn(q.log, "broadcast_publish_failed", err, logrus.Fields{"correlation_id": result.CorrelationID})
		}
	}

	if len(failures) > 0 {
		return result, fmt.Errorf("broadcast reached %d of %d recipients: %w",
			len(result.Delivered), len(result.Delivered)+len(result.Failed), errors.Join(failures...))
	}
	return result, nil
}

// ListenOptions filters a Listen call.
type ListenOptions struct {
	UnreadOnly bool
	SinceMs    int64 // Only messages created at or after this time; 0 means all
	Limit      int   // Maximum messages returned; 0 means no limit
}

// Listen returns the agent's messages in delivery order (creation time, then ID).
// Calling Listen again on unchanged state returns the same result, so a
// restarted agent can resume. Listening counts as activity for the agent.
func (q *Queue) Listen(ctx context.Context, agentID string, opts ListenOptions) ([]*blackboard.Message, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return nil, blackboard.Validation("listen", "%v", err)
	}
	if opts.Limit < 0 {
		return nil, blackboard.Validation("listen", "limit must be >= 0, got %d", opts.Limit)
	}

	if err := q.client.EnsureAgent(ctx, agentID, q.now().UnixMilli()); err != nil {
		return nil, err
	}

	messages, err := q.inbox(ctx, "listen", agentID, opts.SinceMs, opts.UnreadOnly)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(messages) > opts.Limit {
		messages = messages[:opts.Limit]
	}
	return messages, nil
}

// UnreadCount returns how many of the agent's messages are unread.
// Unlike Listen it does not count as activity.
func (q *Queue) UnreadCount(ctx context.Context, agentID string) (int, error) {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return 0, blackboard.Validation("unread_count", "%v", err)
	}
	messages, err := q.inbox(ctx, "unread_count", agentID, 0, true)
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// MarkRead flags a message in the agent's mailbox as read. Marking an
// already-read message is a no-op.
func (q *Queue) MarkRead(ctx context.Context, messageID, agentID string) error {
	if err := blackboard.ValidateAgentID(agentID); err != nil {
		return blackboard.Validation("mark_read", "%v", err)
	}
	if strings.TrimSpace(messageID) == "" {
		return blackboard.Validation("mark_read", "message ID cannot be empty")
	}

	ok, err := q.client.InboxContains(ctx, agentID, messageID)
	if err != nil {
		return blackboard.Storage("mark_read", err)
	}
	if !ok {
		return blackboard.Validation("mark_read", "message %s is not in the mailbox of %q", messageID, agentID)
	}

	key := blackboard.MessageKey(q.client.Instance(), messageID)
	return q.client.Atomic(ctx, "mark_read", func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "read", "true")
		return nil
	})
}

// SortByUrgency reorders messages for display: emergency first, then urgent,
// then normal, keeping delivery order within each level.
func SortByUrgency(messages []*blackboard.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Urgency.Rank() > messages[j].Urgency.Rank()
	})
}

func (q *Queue) inbox(ctx context.Context, op, agentID string, sinceMs int64, unreadOnly bool) ([]*blackboard.Message, error) {
	ids, err := q.client.InboxIDs(ctx, agentID, sinceMs)
	if err != nil {
		return nil, blackboard.Storage(op, err)
	}
	messages, err := q.client.GetMessages(ctx, ids)
	if err != nil {
		return nil, blackboard.Storage(op, err)
	}
	if !unreadOnly {
		return messages, nil
	}

	unread := messages[:0]
	for _, m := range messages {
		if !m.Read {
			unread = append(unread, m)
		}
	}
	return unread, nil
}

func (q *Queue) newMessage(op, sender, recipient, content string, urgency blackboard.Urgency, kind blackboard.MessageKind) (*blackboard.Message, error) {
	if urgency == "" {
		urgency = blackboard.UrgencyNormal
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, blackboard.Storage(op, fmt.Errorf("failed to generate message ID: %w", err))
	}

	msg := &blackboard.Message{
		ID:          id.String(),
		Sender:      sender,
		Recipient:   recipient,
		Kind:        kind,
		Content:     content,
		Urgency:     urgency,
		CreatedAtMs: q.now().UnixMilli(),
	}
	if err := msg.Validate(); err != nil {
		return nil, blackboard.Validation(op, "%v", err)
	}
	return msg, nil
}

// deliver writes the message, its mailbox entry and lazy agent records in one
// MULTI/EXEC so a message is never visible without its mailbox entry.
func (q *Queue) deliver(ctx context.Context, op string, msg *blackboard.Message, registerSender bool) error {
	if q.validateRecipients {
		exists, err := q.client.AgentExists(ctx, msg.Recipient)
		if err != nil {
			return blackboard.Storage(op, err)
		}
		if !exists {
			return blackboard.UnknownRecipient(op, msg.Recipient)
		}
	}

	instance := q.client.Instance()
	return q.client.Atomic(ctx, op, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, blackboard.MessageKey(instance, msg.ID), blackboard.MessageToHash(msg))
		pipe.ZAdd(ctx, blackboard.InboxKey(instance, msg.Recipient), redis.Z{
			Score:  blackboard.TimeScore(msg.CreatedAtMs),
			Member: msg.ID,
		})
		blackboard.QueueEnsureAgent(ctx, pipe, instance, msg.Recipient, msg.CreatedAtMs)
		if registerSender {
			blackboard.QueueEnsureAgent(ctx, pipe, instance, msg.Sender, msg.CreatedAtMs)
			blackboard.QueueTouchAgent(ctx, pipe, instance, msg.Sender, msg.CreatedAtMs)
		}
		return nil
	})
}
