package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MaxTxRetries bounds how often an optimistic transaction is retried after a
// concurrent writer touched one of its watched keys.
const MaxTxRetries = 16

// Client provides instance-scoped Redis operations for the blackboard.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new blackboard client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, timeouts)
//   - instanceName: swarm instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if strings.Contains(instanceName, ":") {
		return nil, fmt.Errorf("instance name %q must not contain ':'", instanceName)
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Instance returns the instance name used to namespace keys.
func (c *Client) Instance() string {
	return c.instanceName
}

// Atomic queues writes in a MULTI/EXEC block. Either every queued command is
// applied or none is. Failures are reported as storage errors under op.
func (c *Client) Atomic(ctx context.Context, op string, fn func(pipe redis.Pipeliner) error) error {
	_, err := c.rdb.TxPipelined(ctx, fn)
	return Storage(op, err)
}

// Watch runs fn as an optimistic transaction over keys (WATCH/MULTI/EXEC).
// fn reads through tx and commits with tx.TxPipelined. When another writer
// modifies a watched key the whole of fn is re-run, up to MaxTxRetries times.
//
// Classified errors returned by fn pass through untouched; anything else is
// reported as a storage error.
func (c *Client) Watch(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < MaxTxRetries; attempt++ {
		err := c.rdb.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Storage(op, err)
	}
	return Storage(op, fmt.Errorf("transaction conflicted %d times", MaxTxRetries))
}

// QueueEnsureAgent queues the lazy creation of an agent record on contact.
// Existing fields are left untouched, so this is safe to queue every time.
func QueueEnsureAgent(ctx context.Context, pipe redis.Pipeliner, instanceName, agentID string, nowMs int64) {
	queueAgentDefaults(ctx, pipe, instanceName, agentID, nowMs, nowMs)
}

// QueueDeclareAgent queues the creation of an agent that is known from
// configuration but has not been heard from. Its last-seen time stays zero.
func QueueDeclareAgent(ctx context.Context, pipe redis.Pipeliner, instanceName, agentID string, nowMs int64) {
	queueAgentDefaults(ctx, pipe, instanceName, agentID, nowMs, 0)
}

func queueAgentDefaults(ctx context.Context, pipe redis.Pipeliner, instanceName, agentID string, createdMs, lastSeenMs int64) {
	key := AgentKey(instanceName, agentID)
	pipe.HSetNX(ctx, key, "id", agentID)
	pipe.HSetNX(ctx, key, "status", string(AgentStatusIdle))
	pipe.HSetNX(ctx, key, "specialties", "[]")
	pipe.HSetNX(ctx, key, "current_task", "")
	pipe.HSetNX(ctx, key, "created_at_ms", strconv.FormatInt(createdMs, 10))
	pipe.HSetNX(ctx, key, "last_seen_ms", strconv.FormatInt(lastSeenMs, 10))
	pipe.HSetNX(ctx, key, "version", "0")
	pipe.SAdd(ctx, AgentsKey(instanceName), agentID)
}

// QueueTouchAgent queues an activity update for an existing or just-ensured agent.
func QueueTouchAgent(ctx context.Context, pipe redis.Pipeliner, instanceName, agentID string, nowMs int64) {
	pipe.HSet(ctx, AgentKey(instanceName, agentID), "last_seen_ms", strconv.FormatInt(nowMs, 10))
}

// EnsureAgent creates the agent record if missing and records activity.
func (c *Client) EnsureAgent(ctx context.Context, agentID string, nowMs int64) error {
	if err := ValidateAgentID(agentID); err != nil {
		return Validation("ensure_agent", "%v", err)
	}
	return c.Atomic(ctx, "ensure_agent", func(pipe redis.Pipeliner) error {
		QueueEnsureAgent(ctx, pipe, c.instanceName, agentID, nowMs)
		QueueTouchAgent(ctx, pipe, c.instanceName, agentID, nowMs)
		return nil
	})
}

// AgentExists reports whether the agent was ever registered.
func (c *Client) AgentExists(ctx context.Context, agentID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, AgentKey(c.instanceName, agentID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check agent existence: %w", err)
	}
	return n > 0, nil
}

// ReadAgent loads an agent through r, which may be the client or a watching transaction.
// Returns (nil, redis.Nil) if the agent doesn't exist.
func ReadAgent(ctx context.Context, r redis.Cmdable, instanceName, agentID string) (*Agent, error) {
	hashData, err := r.HGetAll(ctx, AgentKey(instanceName, agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}
	return HashToAgent(hashData)
}

// GetAgent retrieves an agent by ID.
// Returns (nil, redis.Nil) if the agent doesn't exist. Use IsNotFound() to check.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	return ReadAgent(ctx, c.rdb, c.instanceName, agentID)
}

// AgentIDs returns every known agent ID in ascending order.
func (c *Client) AgentIDs(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, AgentsKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAgents returns every known agent ordered by ID.
func (c *Client) ListAgents(ctx context.Context) ([]*Agent, error) {
	ids, err := c.AgentIDs(ctx)
	if err != nil {
		return nil, err
	}
	hashes, err := c.loadHashes(ctx, keysFor(ids, func(id string) string { return AgentKey(c.instanceName, id) }))
	if err != nil {
		return nil, fmt.Errorf("failed to read agents: %w", err)
	}

	agents := make([]*Agent, 0, len(hashes))
	for _, h := range hashes {
		a, err := HashToAgent(h)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// GetMessage retrieves a message by ID.
// Returns (nil, redis.Nil) if the message doesn't exist.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	hashData, err := c.rdb.HGetAll(ctx, MessageKey(c.instanceName, messageID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read message from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}
	return HashToMessage(hashData)
}

// InboxIDs returns message IDs in an agent's mailbox created at or after sinceMs,
// ordered by creation time and then by ID.
func (c *Client) InboxIDs(ctx context.Context, agentID string, sinceMs int64) ([]string, error) {
	min := "-inf"
	if sinceMs > 0 {
		min = strconv.FormatInt(sinceMs, 10)
	}
	ids, err := c.rdb.ZRangeByScore(ctx, InboxKey(c.instanceName, agentID), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	return ids, nil
}

// InboxContains reports whether messageID was delivered to agentID.
func (c *Client) InboxContains(ctx context.Context, agentID, messageID string) (bool, error) {
	_, err := c.rdb.ZScore(ctx, InboxKey(c.instanceName, agentID), messageID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check inbox: %w", err)
	}
	return true, nil
}

// GetMessages loads messages in the order of ids, skipping IDs with no record.
func (c *Client) GetMessages(ctx context.Context, ids []string) ([]*Message, error) {
	hashes, err := c.loadHashes(ctx, keysFor(ids, func(id string) string { return MessageKey(c.instanceName, id) }))
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	messages := make([]*Message, 0, len(hashes))
	for _, h := range hashes {
		m, err := HashToMessage(h)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// ReadTask loads a task through r, which may be the client or a watching transaction.
// Returns (nil, redis.Nil) if the task doesn't exist.
func ReadTask(ctx context.Context, r redis.Cmdable, instanceName, taskID string) (*Task, error) {
	hashData, err := r.HGetAll(ctx, TaskKey(instanceName, taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}
	return HashToTask(hashData)
}

// GetTask retrieves a task by ID.
// Returns (nil, redis.Nil) if the task doesn't exist.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return ReadTask(ctx, c.rdb, c.instanceName, taskID)
}

// TaskIDs returns every task ID ordered by creation time.
func (c *Client) TaskIDs(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, TasksKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return ids, nil
}

// TaskIDsWithStatus returns the IDs indexed under an open or assigned status, sorted.
func (c *Client) TaskIDsWithStatus(ctx context.Context, status TaskStatus) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, TaskStatusKey(c.instanceName, status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tasks: %w", status, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetTasks loads tasks in the order of ids, skipping IDs with no record.
func (c *Client) GetTasks(ctx context.Context, ids []string) ([]*Task, error) {
	hashes, err := c.loadHashes(ctx, keysFor(ids, func(id string) string { return TaskKey(c.instanceName, id) }))
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	tasks := make([]*Task, 0, len(hashes))
	for _, h := range hashes {
		t, err := HashToTask(h)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// ScanTaskIDs returns the IDs of every task whose ID starts with prefix.
func (c *Client) ScanTaskIDs(ctx context.Context, prefix string) ([]string, error) {
	pattern := TaskKey(c.instanceName, prefix+"*")
	keyPrefix := TaskKey(c.instanceName, "")

	var ids []string
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan tasks: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListKnowledgeEntries returns every knowledge entry ordered by creation time.
func (c *Client) ListKnowledgeEntries(ctx context.Context) ([]*KnowledgeEntry, error) {
	hashes, err := c.rangeHashes(ctx, LearningsKey(c.instanceName), func(id string) string {
		return LearningKey(c.instanceName, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge entries: %w", err)
	}
	entries := make([]*KnowledgeEntry, 0, len(hashes))
	for _, h := range hashes {
		e, err := HashToKnowledgeEntry(h)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize knowledge entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListDecisionRecords returns every decision record ordered by creation time.
func (c *Client) ListDecisionRecords(ctx context.Context) ([]*DecisionRecord, error) {
	hashes, err := c.rangeHashes(ctx, DecisionsKey(c.instanceName), func(id string) string {
		return DecisionKey(c.instanceName, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read decision records: %w", err)
	}
	records := make([]*DecisionRecord, 0, len(hashes))
	for _, h := range hashes {
		d, err := HashToDecisionRecord(h)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize decision record: %w", err)
		}
		records = append(records, d)
	}
	return records, nil
}

// ListNotes returns an agent's notes ordered by creation time.
func (c *Client) ListNotes(ctx context.Context, agentID string) ([]*Note, error) {
	hashes, err := c.rangeHashes(ctx, NotesKey(c.instanceName, agentID), func(id string) string {
		return NoteKey(c.instanceName, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	notes := make([]*Note, 0, len(hashes))
	for _, h := range hashes {
		notes = append(notes, HashToNote(h))
	}
	return notes, nil
}

// rangeHashes loads the hashes for every member of a ZSET index in score order.
func (c *Client) rangeHashes(ctx context.Context, indexKey string, keyFn func(string) string) ([]map[string]string, error) {
	ids, err := c.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return c.loadHashes(ctx, keysFor(ids, keyFn))
}

// loadHashes pipelines HGETALL for every key. Missing keys are skipped.
func (c *Client) loadHashes(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(keys))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func keysFor(ids []string, keyFn func(string) string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFn(id)
	}
	return keys
}

// PublishBroadcast announces a completed broadcast to relays.
// Delivery is at-most-once: events published while no relay listens are lost.
func (c *Client) PublishBroadcast(ctx context.Context, ev *BroadcastEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}
	if err := c.rdb.Publish(ctx, BroadcastEventsChannel(c.instanceName), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to broadcast events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *BroadcastEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of broadcast events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *BroadcastEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors; malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeBroadcasts subscribes to broadcast events for this instance.
// The subscription is confirmed by Redis before this returns, so events
// published afterwards are delivered.
func (c *Client) SubscribeBroadcasts(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, BroadcastEventsChannel(c.instanceName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to broadcast events: %w", err)
	}

	eventsChan := make(chan *BroadcastEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev BroadcastEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal broadcast event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
