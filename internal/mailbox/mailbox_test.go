package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by one millisecond per call so every message gets a distinct timestamp.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func setupQueue(t *testing.T, opts Options) (*Queue, *blackboard.Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		opts.Now = clock.Now
	}
	return New(client, opts), client, mr
}

func TestSend(t *testing.T) {
	q, client, _ := setupQueue(t, Options{})
	ctx := context.Background()

	t.Run("delivers and creates both agents", func(t *testing.T) {
		id, err := q.Send(ctx, "alice", "bob", "hello bob", blackboard.UrgencyUrgent)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		msg, err := client.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "bob", msg.Recipient)
		assert.Equal(t, blackboard.MessageKindDirect, msg.Kind)
		assert.Equal(t, blackboard.UrgencyUrgent, msg.Urgency)
		assert.False(t, msg.Read)

		for _, agent := range []string{"alice", "bob"} {
			exists, err := client.AgentExists(ctx, agent)
			require.NoError(t, err)
			assert.True(t, exists, agent)
		}
	})

	t.Run("defaults urgency to normal", func(t *testing.T) {
		id, err := q.Send(ctx, "alice", "bob", "plain", "")
		require.NoError(t, err)
		msg, err := client.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, blackboard.UrgencyNormal, msg.Urgency)
	})

	t.Run("ids are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			id, err := q.Send(ctx, "alice", "carol", "ping", "")
			require.NoError(t, err)
			assert.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("validation errors write nothing", func(t *testing.T) {
		cases := []struct {
			name, sender, recipient, content string
			urgency                          blackboard.Urgency
		}{
			{"empty sender", "", "bob", "x", ""},
			{"empty recipient", "alice", "", "x", ""},
			{"empty content", "alice", "bob", "  ", ""},
			{"unknown urgency", "alice", "bob", "x", "critical"},
		}
		for _, tc := range cases {
			_, err := q.Send(ctx, tc.sender, tc.recipient, tc.content, tc.urgency)
			assert.True(t, errors.Is(err, blackboard.ErrValidation), tc.name)
		}

		exists, err := client.AgentExists(ctx, "")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestSendValidatesRecipients(t *testing.T) {
	q, client, _ := setupQueue(t, Options{ValidateRecipients: true})
	ctx := context.Background()

	_, err := q.Send(ctx, "alice", "nobody", "hello?", "")
	assert.True(t, errors.Is(err, blackboard.ErrUnknownRecipient))

	exists, err := client.AgentExists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, exists, "rejected send must not register the recipient")

	require.NoError(t, client.EnsureAgent(ctx, "bob", 1))
	_, err = q.Send(ctx, "alice", "bob", "hello", "")
	assert.NoError(t, err)
}

func TestListenOrderingAndRestart(t *testing.T) {
	q, _, _ := setupQueue(t, Options{})
	ctx := context.Background()

	var sent []string
	for _, content := range []string{"one", "two", "three"} {
		urgency := blackboard.UrgencyNormal
		if content == "three" {
			urgency = blackboard.UrgencyEmergency
		}
		id, err := q.Send(ctx, "alice", "bob", content, urgency)
		require.NoError(t, err)
		sent = append(sent, id)
	}

	first, err := q.Listen(ctx, "bob", ListenOptions{})
	require.NoError(t, err)
	require.Len(t, first, 3)
	for i, m := range first {
		assert.Equal(t, sent[i], m.ID, "urgency must not reorder delivery")
	}
	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].CreatedAtMs, first[i].CreatedAtMs)
	}

	// A restarted agent sees exactly the same view.
	second, err := q.Listen(ctx, "bob", ListenOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListenFilters(t *testing.T) {
	q, _, _ := setupQueue(t, Options{})
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"a", "b", "c", "d"} {
		id, err := q.Send(ctx, "alice", "bob", content, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, q.MarkRead(ctx, ids[0], "bob"))

	t.Run("unread only", func(t *testing.T) {
		msgs, err := q.Listen(ctx, "bob", ListenOptions{UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, ids[1], msgs[0].ID)
	})

	t.Run("limit keeps the oldest", func(t *testing.T) {
		msgs, err := q.Listen(ctx, "bob", ListenOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, ids[0], msgs[0].ID)
		assert.Equal(t, ids[1], msgs[1].ID)
	})

	t.Run("since", func(t *testing.T) {
		all, err := q.Listen(ctx, "bob", ListenOptions{})
		require.NoError(t, err)
		msgs, err := q.Listen(ctx, "bob", ListenOptions{SinceMs: all[2].CreatedAtMs})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, ids[2], msgs[0].ID)
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := q.Listen(ctx, "bob", ListenOptions{Limit: -1})
		assert.True(t, errors.Is(err, blackboard.ErrValidation))
	})

	t.Run("empty mailbox registers listener", func(t *testing.T) {
		msgs, err := q.Listen(ctx, "newcomer", ListenOptions{})
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestListenTouchesLastSeen(t *testing.T) {
	q, client, _ := setupQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Send(ctx, "alice", "bob", "hi", "")
	require.NoError(t, err)
	before, err := client.GetAgent(ctx, "bob")
	require.NoError(t, err)

	_, err = q.Listen(ctx, "bob", ListenOptions{})
	require.NoError(t, err)
	after, err := client.GetAgent(ctx, "bob")
	require.NoError(t, err)

	assert.Greater(t, after.LastSeenMs, before.LastSeenMs)
}

func TestMarkRead(t *testing.T) {
	q, _, _ := setupQueue(t, Options{})
	ctx := context.Background()

	id, err := q.Send(ctx, "alice", "bob", "read me", "")
	require.NoError(t, err)

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, q.MarkRead(ctx, id, "bob"))
		require.NoError(t, q.MarkRead(ctx, id, "bob"))

		msgs, err := q.Listen(ctx, "bob", ListenOptions{})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].Read)
	})

	t.Run("rejects another agent's message", func(t *testing.T) {
		err := q.MarkRead(ctx, id, "alice")
		assert.True(t, errors.Is(err, blackboard.ErrValidation))
	})

	t.Run("rejects unknown message", func(t *testing.T) {
		err := q.MarkRead(ctx, "00000000-0000-0000-0000-000000000000", "bob")
		assert.True(t, errors.Is(err, blackboard.ErrValidation))
	})
}

func TestUnreadCount(t *testing.T) {
	q, _, _ := setupQueue(t, Options{})
	ctx := context.Background()

	id, err := q.Send(ctx, "alice", "bob", "1", "")
	require.NoError(t, err)
	_, err = q.Send(ctx, "alice", "bob", "2", "")
	require.NoError(t, err)

	n, err := q.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, q.MarkRead(ctx, id, "bob"))
	n, err = q.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBroadcast(t *testing.T) {
	q, client, _ := setupQueue(t, Options{})
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, client.EnsureAgent(ctx, id, 1))
	}

	sub, err := client.SubscribeBroadcasts(ctx)
	require.NoError(t, err)
	defer sub.Close()

	result, err := q.Broadcast(ctx, "alice", "deploy freeze", blackboard.UrgencyEmergency)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, result.Recipients())
	assert.Empty(t, result.Failed)

	for _, recipient := range []string{"bob", "carol"} {
		msgs, err := q.Listen(ctx, recipient, ListenOptions{})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, blackboard.MessageKindBroadcast, msgs[0].Kind)
		assert.Equal(t, result.CorrelationID, msgs[0].CorrelationID)
		assert.Equal(t, result.Delivered[recipient], msgs[0].ID)
	}

	own, err := q.Listen(ctx, "alice", ListenOptions{})
	require.NoError(t, err)
	assert.Empty(t, own, "sender does not receive its own broadcast")

	select {
	case ev := <-sub.Events():
		assert.Equal(t, result.CorrelationID, ev.CorrelationID)
		assert.Equal(t, []string{"bob", "carol"}, ev.Recipients)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast event was not published")
	}
}

func TestBroadcastWithNoOtherAgents(t *testing.T) {
	q, _, _ := setupQueue(t, Options{})

	result, err := q.Broadcast(context.Background(), "alone", "anyone?", "")
	require.NoError(t, err)
	assert.Empty(t, result.Delivered)
}

func TestBroadcastValidation(t *testing.T) {
	q, _, _ := setupQueue(t, Options{})

	_, err := q.Broadcast(context.Background(), "alice", "", "")
	assert.True(t, errors.Is(err, blackboard.ErrValidation))
}

func TestNotifyDoesNotRegisterSystemSender(t *testing.T) {
	q, client, _ := setupQueue(t, Options{})
	ctx := context.Background()

	require.NoError(t, q.Notify(ctx, "bob", blackboard.MessageKindTask, "task assigned"))

	msgs, err := q.Listen(ctx, "bob", ListenOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, SystemSender, msgs[0].Sender)
	assert.Equal(t, blackboard.MessageKindTask, msgs[0].Kind)

	exists, err := client.AgentExists(ctx, SystemSender)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSortByUrgency(t *testing.T) {
	msgs := []*blackboard.Message{
		{ID: "1", Urgency: blackboard.UrgencyNormal},
		{ID: "2", Urgency: blackboard.UrgencyEmergency},
		{ID: "3", Urgency: blackboard.UrgencyUrgent},
		{ID: "4", Urgency: blackboard.UrgencyEmergency},
	}
	SortByUrgency(msgs)

	var order []string
	for _, m := range msgs {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"2", "4", "3", "1"}, order)
}
