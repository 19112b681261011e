package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr, prevColor := Stdout, Stderr, color.NoColor
	Stdout, Stderr = &out, &errOut
	color.NoColor = true
	t.Cleanup(func() {
		Stdout, Stderr = prevOut, prevErr
		color.NoColor = prevColor
	})
	return &out, &errOut
}

func TestFailureSuggestions(t *testing.T) {
	cause := errors.New("boom")

	t.Run("explanation printed", func(t *testing.T) {
		_, stderr := capture(t)
		err := Failure("Test Error", cause)
		require.Error(t, err)
		assert.Contains(t, stderr.String(), "Test Error\n\nboom\n")
	})

	t.Run("single suggestion printed plainly", func(t *testing.T) {
		_, stderr := capture(t)
		Failure("Test Error", cause, "Try this fix")
		assert.Contains(t, stderr.String(), "\nTry this fix\n")
		assert.NotContains(t, stderr.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, stderr := capture(t)
		Failure("Test Error", cause, "First option", "Second option")
		assert.Contains(t, stderr.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestFailureWrapsCause(t *testing.T) {
	capture(t)
	cause := errors.New("connection refused")
	err := Failure("Cannot reach storage", cause, "Start Redis")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Cannot reach storage: connection refused", err.Error())
}

func TestSuccessAndWarning(t *testing.T) {
	stdout, stderr := capture(t)
	Success("sent %s\n", "abc")
	Warning("careful\n")
	assert.Equal(t, "✓ sent abc\n", stdout.String())
	assert.Equal(t, "⚠️  careful\n", stderr.String())
}
