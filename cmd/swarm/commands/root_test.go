package commands

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/dyluth/swarm/internal/resolver"
	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "swarm",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Usage:", "Help should be displayed")
	assert.Contains(t, buf.String(), "swarm", "Help should show command name")
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// passed to the root command cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	testRoot := &cobra.Command{
		Use:   "swarm",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	testRoot.SetArgs([]string{"--unknown-flag", "value"})

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()
	assert.Error(t, err, "Unknown flag should cause an error")
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := []string{
		"send", "broadcast", "inbox", "read", "unread", "watch",
		"share", "decide", "decisions", "search", "note", "notes", "stats",
		"discover", "tasks", "task", "assign", "complete", "reclaim", "tick",
		"register", "heartbeat", "rollcall", "idle", "relay", "init",
	}
	for _, name := range names {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitGeneric},
		{"validation", blackboard.Validation("send", "empty"), ExitValidation},
		{"unknown recipient", blackboard.UnknownRecipient("send", "zed"), ExitUnknownRecipient},
		{"busy", blackboard.AgentBusy("assign_task", "alice", blackboard.AgentStatusBusy), ExitAgentBusy},
		{"unavailable", blackboard.TaskUnavailable("assign_task", "t1", "not open"), ExitTaskUnavailable},
		{"ownership", blackboard.Ownership("complete_task", "bob", "t1"), ExitOwnership},
		{"storage", blackboard.Storage("listen", errors.New("connection refused")), ExitStorage},
		{"wrapped", fmt.Errorf("invalid input: %w", blackboard.AgentBusy("assign_task", "alice", blackboard.AgentStatusBusy)), ExitAgentBusy},
		{"ambiguous task ID", &resolver.AmbiguousError{ShortID: "abcdef", Matches: []string{"a", "b"}}, ExitValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
