//go:build integration

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/swarm/internal/logging"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its URL.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// newCoordinator opens a dedicated connection, as a separate process would.
func newCoordinator(t *testing.T, redisURL string) *Coordinator {
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client, err := blackboard.NewClient(opts, "race-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client, Options{Logger: logging.Discard()})
}

func TestAssignTaskRace_RealRedis(t *testing.T) {
	redisURL := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const contenders = 8
	coords := make([]*Coordinator, contenders)
	for i := range coords {
		coords[i] = newCoordinator(t, redisURL)
		_, err := coords[i].RegisterAgent(ctx, fmt.Sprintf("agent-%d", i), nil)
		require.NoError(t, err)
	}

	created, err := coords[0].DiscoverTasks(ctx, []string{"Migrate the billing schema"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	taskID := created[0].ID

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	start := make(chan struct{})
	for i, c := range coords {
		wg.Add(1)
		go func(agentID string, c *Coordinator) {
			defer wg.Done()
			<-start
			_, err := c.AssignTask(ctx, agentID, taskID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, agentID)
			case errors.Is(err, blackboard.ErrTaskUnavailable):
				losers++
			default:
				t.Errorf("unexpected error for %s: %v", agentID, err)
			}
		}(fmt.Sprintf("agent-%d", i), c)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1, "exactly one agent wins the task")
	assert.Equal(t, contenders-1, losers)

	task, err := coords[0].Task(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TaskStatusAssigned, task.Status)
	assert.Equal(t, winners[0], task.Assignee)

	idle, err := coords[0].IdleAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, idle, contenders-1)
}

func TestTickRace_RealRedis(t *testing.T) {
	redisURL := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first := newCoordinator(t, redisURL)
	second := newCoordinator(t, redisURL)

	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := first.RegisterAgent(ctx, id, nil)
		require.NoError(t, err)
	}
	_, err := first.DiscoverTasks(ctx, []string{"Task one", "Task two"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	reports := make([]*TickReport, 2)
	for i, c := range []*Coordinator{first, second} {
		wg.Add(1)
		go func(i int, c *Coordinator) {
			defer wg.Done()
			report, err := c.Tick(ctx)
			assert.NoError(t, err)
			reports[i] = report
		}(i, c)
	}
	wg.Wait()

	assigned := map[string]string{}
	for _, r := range reports {
		require.NotNil(t, r)
		for _, a := range r.Assignments {
			prev, dup := assigned[a.TaskID]
			assert.False(t, dup, "task %s assigned to both %s and %s", a.TaskID, prev, a.AgentID)
			assigned[a.TaskID] = a.AgentID
		}
	}
	assert.Len(t, assigned, 2)

	tasks, err := first.Tasks(ctx, TaskFilter{Status: blackboard.TaskStatusAssigned})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
