package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTaskID(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	ids := []string{
		"a1b2c3d4-0000-4000-8000-000000000001",
		"a1b2c3ff-0000-4000-8000-000000000002",
		"ffeedd00-0000-4000-8000-000000000003",
	}
	for _, id := range ids {
		mr.HSet(blackboard.TaskKey("test-instance", id),
			"id", id, "description", "d", "status", "open", "priority", "5", "requires", "[]")
	}

	t.Run("full id", func(t *testing.T) {
		got, err := ResolveTaskID(ctx, client, ids[2])
		require.NoError(t, err)
		assert.Equal(t, ids[2], got)
	})

	t.Run("unique prefix", func(t *testing.T) {
		got, err := ResolveTaskID(ctx, client, "a1b2c3d")
		require.NoError(t, err)
		assert.Equal(t, ids[0], got)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "a1b2c3")
		var amb *AmbiguousError
		require.True(t, errors.As(err, &amb))
		assert.Len(t, amb.Matches, 2)
		assert.True(t, errors.Is(err, blackboard.ErrValidation))
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "a1b2")
		assert.True(t, errors.Is(err, blackboard.ErrValidation))
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "999999")
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("unknown full id", func(t *testing.T) {
		_, err := ResolveTaskID(ctx, client, "00000000-0000-4000-8000-000000000000")
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf))
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	matches := make([]string, 12)
	for i := range matches {
		matches[i] = fmt.Sprintf("abcdef-%02d", i)
	}
	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})
	assert.Contains(t, msg, "matches 12 tasks")
	assert.Contains(t, msg, "abcdef-09")
	assert.NotContains(t, msg, "abcdef-10")
	assert.Contains(t, msg, "...and 2 more")
}
