package knowledge

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

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return New(client, Options{Logger: logging.Discard(), Now: now}), mr
}

func TestShareLearning(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	t.Run("normalizes tags", func(t *testing.T) {
		_, err := store.ShareLearning(ctx, Learning{
			Author:   "alice",
			Category: blackboard.CategoryDebugging,
			Title:    "Race in cache warmup",
			Body:     "Guard the map with a mutex",
			Tags:     []string{" Go ", "go", "", "Concurrency"},
		})
		require.NoError(t, err)

		matches, err := store.Search(ctx, "warmup", SearchOptions{})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, []string{"go", "concurrency"}, matches[0].Entry.Tags)
	})

	t.Run("defaults category to general", func(t *testing.T) {
		_, err := store.ShareLearning(ctx, Learning{Author: "bob", Title: "Naming", Body: "Keep it short"})
		require.NoError(t, err)

		matches, err := store.Search(ctx, "naming", SearchOptions{})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, blackboard.CategoryGeneral, matches[0].Entry.Category)
	})

	t.Run("validation leaves store unchanged", func(t *testing.T) {
		before, err := store.Stats(ctx)
		require.NoError(t, err)

		invalid := []Learning{
			{Author: "", Title: "t", Body: "b"},
			{Author: "alice", Title: "", Body: "b"},
			{Author: "alice", Title: "t", Body: ""},
			{Author: "alice", Category: "gossip", Title: "t", Body: "b"},
		}
		for _, in := range invalid {
			_, err := store.ShareLearning(ctx, in)
			assert.True(t, errors.Is(err, blackboard.ErrValidation))
		}

		after, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Learnings, after.Learnings)
	})
}

func TestSearchRanking(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	older, err := store.ShareLearning(ctx, Learning{Author: "a", Title: "Redis tips", Body: "pipeline writes"})
	require.NoError(t, err)
	strong, err := store.ShareLearning(ctx, Learning{Author: "a", Title: "Redis redis", Body: "REDIS everywhere", Tags: []string{"redis"}})
	require.NoError(t, err)
	newer, err := store.ShareLearning(ctx, Learning{Author: "a", Title: "Cache", Body: "backed by redis"})
	require.NoError(t, err)
	_, err = store.ShareLearning(ctx, Learning{Author: "a", Title: "Unrelated", Body: "nothing here"})
	require.NoError(t, err)

	matches, err := store.Search(ctx, "Redis", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, strong, matches[0].Entry.ID)
	assert.Equal(t, 4, matches[0].Score)
	// Equal scores: newest first
	assert.Equal(t, newer, matches[1].Entry.ID)
	assert.Equal(t, older, matches[2].Entry.ID)

	again, err := store.Search(ctx, "redis", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, matches, again, "search is deterministic")
}

func TestSearchEdgeCases(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.ShareLearning(ctx, Learning{Author: "a", Category: blackboard.CategorySecurity, Title: "Rotate keys", Body: "monthly"})
	require.NoError(t, err)
	_, err = store.ShareLearning(ctx, Learning{Author: "a", Category: blackboard.CategoryTooling, Title: "Keys in vault", Body: "use the cli"})
	require.NoError(t, err)

	t.Run("blank query matches nothing", func(t *testing.T) {
		matches, err := store.Search(ctx, "   ", SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("surrounding spaces are part of the query", func(t *testing.T) {
		_, err := store.ShareLearning(ctx, Learning{Author: "a", Title: "Rapid deploys", Body: "ship small"})
		require.NoError(t, err)
		_, err = store.ShareLearning(ctx, Learning{Author: "a", Title: "Public api", Body: "version it"})
		require.NoError(t, err)

		matches, err := store.Search(ctx, " api", SearchOptions{})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Public api", matches[0].Entry.Title)
	})

	t.Run("category filter", func(t *testing.T) {
		matches, err := store.Search(ctx, "keys", SearchOptions{Category: blackboard.CategoryTooling})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Keys in vault", matches[0].Entry.Title)
	})

	t.Run("limit", func(t *testing.T) {
		matches, err := store.Search(ctx, "keys", SearchOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := store.Search(ctx, "keys", SearchOptions{Category: "gossip"})
		assert.True(t, errors.Is(err, blackboard.ErrValidation))
	})
}

func TestRecordDecisionAndStats(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.ShareLearning(ctx, Learning{Author: "alice", Category: blackboard.CategoryArchitecture, Title: "t1", Body: "b"})
	require.NoError(t, err)
	_, err = store.ShareLearning(ctx, Learning{Author: "bob", Category: blackboard.CategoryArchitecture, Title: "t2", Body: "b"})
	require.NoError(t, err)

	first, err := store.RecordDecision(ctx, Decision{
		Author:   "alice",
		Decision: "Use sorted sets for mailboxes",
		Context:  "need ordering",
		Outcome:  "works",
		Success:  true,
		Lessons:  []string{"scores are ms", "  "},
	})
	require.NoError(t, err)
	second, err := store.RecordDecision(ctx, Decision{Author: "alice", Decision: "Poll every second", Success: false})
	require.NoError(t, err)

	_, err = store.RecordDecision(ctx, Decision{Author: "alice", Decision: ""})
	assert.True(t, errors.Is(err, blackboard.ErrValidation))

	records, err := store.Decisions(ctx, DecisionFilter{Author: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID, "newest first")
	assert.Equal(t, first, records[1].ID)
	assert.Equal(t, []string{"scores are ms"}, records[1].Lessons)

	limited, err := store.Decisions(ctx, DecisionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Learnings)
	assert.Equal(t, 2, stats.Decisions)
	assert.Equal(t, 1, stats.SuccessfulDecisions)
	assert.Equal(t, 2, stats.ByCategory[blackboard.CategoryArchitecture])
	assert.Equal(t, 3, stats.ByAuthor["alice"])
	assert.Equal(t, 1, stats.ByAuthor["bob"])
}

func TestStatsEmpty(t *testing.T) {
	store, _ := setupStore(t)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Learnings)
	assert.Empty(t, stats.ByCategory)
}

func TestNotes(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.AddNote(ctx, "alice", "", "remember the staging flag")
	require.NoError(t, err)
	_, err = store.AddNote(ctx, "alice", "todo", "ask bob about the schema")
	require.NoError(t, err)
	_, err = store.AddNote(ctx, "bob", "", "mine")
	require.NoError(t, err)

	_, err = store.AddNote(ctx, "alice", "", " ")
	assert.True(t, errors.Is(err, blackboard.ErrValidation))

	notes, err := store.Notes(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "note", notes[0].Kind)
	assert.Equal(t, "todo", notes[1].Kind)
	assert.Equal(t, "ask bob about the schema", notes[1].Content)
}

func TestStorageFailureIsClassified(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := store.ShareLearning(ctx, Learning{Author: "a", Title: "t", Body: "b"})
	assert.True(t, errors.Is(err, blackboard.ErrStorage))
}
