package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "coordinator", "prod")

	Event(log, "task_assigned", logrus.Fields{"task_id": "t-1", "agent": "alice"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "coordinator", line["component"])
	assert.Equal(t, "prod", line["instance"])
	assert.Equal(t, "task_assigned", line["event_type"])
	assert.Equal(t, "t-1", line["task_id"])
	assert.NotEmpty(t, line["timestamp"])
}

func TestWarnAttachesError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mailbox", "prod")

	Warn(log, "broadcast_publish_failed", errors.New("boom"), nil)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "boom", line["error"])
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Event(Discard(), "x", nil) })
}
