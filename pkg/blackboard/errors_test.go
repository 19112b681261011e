package blackboard

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := AgentBusy("assign_task", "alice", AgentStatusBusy)

	assert.True(t, errors.Is(err, ErrAgentBusy))
	assert.False(t, errors.Is(err, ErrTaskUnavailable))
	assert.Equal(t, KindAgentBusy, KindOf(err))
	assert.Contains(t, err.Error(), "assign_task")
	assert.Contains(t, err.Error(), "alice")
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("tick: %w", Ownership("complete_task", "bob", "t-1"))

	assert.True(t, errors.Is(err, ErrOwnership))
	assert.Equal(t, KindOwnership, KindOf(err))
}

func TestStorageWrapping(t *testing.T) {
	assert.NoError(t, Storage("op", nil))

	raw := errors.New("connection refused")
	err := Storage("send", raw)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, raw))

	// Already classified errors keep their kind
	classified := Validation("send", "empty content")
	assert.Equal(t, KindValidation, KindOf(Storage("send", classified)))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
