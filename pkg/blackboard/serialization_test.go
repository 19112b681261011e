package blackboard

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toStringHash simulates what Redis hands back from HGETALL.
func toStringHash(hash map[string]interface{}) map[string]string {
	out := make(map[string]string, len(hash))
	for k, v := range hash {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestTaskHashFidelity(t *testing.T) {
	original := &Task{
		ID:           uuid.New().String(),
		Description:  "migrate billing",
		ContentHash:  "deadbeef",
		Requires:     []string{"backend", "sql"},
		Priority:     12.5,
		Status:       TaskStatusAssigned,
		Assignee:     "alice",
		CreatedAtMs:  1700000000000,
		AssignedAtMs: 1700000005000,
		ReclaimCount: 2,
		Version:      3,
	}

	hash, err := TaskToHash(original)
	require.NoError(t, err)

	result, err := HashToTask(toStringHash(hash))
	require.NoError(t, err)
	assert.Equal(t, original, result)
}

func TestNilSlicesBecomeEmpty(t *testing.T) {
	hash, err := KnowledgeEntryToHash(&KnowledgeEntry{ID: uuid.New().String()})
	require.NoError(t, err)
	assert.Equal(t, "[]", hash["tags"])

	entry, err := HashToKnowledgeEntry(map[string]string{"id": "x"})
	require.NoError(t, err)
	assert.NotNil(t, entry.Tags)
	assert.Empty(t, entry.Tags)
}

func TestHashToAgentDefaultsStatus(t *testing.T) {
	agent, err := HashToAgent(map[string]string{"id": "alice"})
	require.NoError(t, err)
	assert.Equal(t, AgentStatusIdle, agent.Status)
	assert.Empty(t, agent.Specialties)
}

func TestHashToTaskRejectsBadPriority(t *testing.T) {
	_, err := HashToTask(map[string]string{"id": "x", "priority": "high"})
	assert.Error(t, err)
}

func TestMessageReadFlag(t *testing.T) {
	m := &Message{ID: uuid.New().String(), Read: true}
	result, err := HashToMessage(toStringHash(MessageToHash(m)))
	require.NoError(t, err)
	assert.True(t, result.Read)
}

func TestTimeScore(t *testing.T) {
	ms := int64(1760000000123)
	assert.Equal(t, ms, TimeFromScore(TimeScore(ms)))
}
