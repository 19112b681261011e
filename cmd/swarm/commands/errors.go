package commands

import (
	"errors"

	"github.com/dyluth/swarm/internal/printer"
	"github.com/dyluth/swarm/internal/report"
	"github.com/dyluth/swarm/internal/resolver"
	"github.com/dyluth/swarm/pkg/blackboard"
)

// Process exit codes, one per error kind.
const (
	ExitOK               = 0
	ExitGeneric          = 1
	ExitValidation       = 2
	ExitUnknownRecipient = 3
	ExitAgentBusy        = 4
	ExitTaskUnavailable  = 5
	ExitOwnership        = 6
	ExitStorage          = 7
)

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, blackboard.ErrValidation):
		return ExitValidation
	case errors.Is(err, blackboard.ErrUnknownRecipient):
		return ExitUnknownRecipient
	case errors.Is(err, blackboard.ErrAgentBusy):
		return ExitAgentBusy
	case errors.Is(err, blackboard.ErrTaskUnavailable):
		return ExitTaskUnavailable
	case errors.Is(err, blackboard.ErrOwnership):
		return ExitOwnership
	case errors.Is(err, blackboard.ErrStorage):
		return ExitStorage
	default:
		return ExitGeneric
	}
}

// fail prints err with a title and suggestions chosen by its kind, and
// returns it wrapped so the exit code survives.
func fail(err error) error {
	var amb *resolver.AmbiguousError
	if errors.As(err, &amb) {
		return printer.Failure("ambiguous task ID", err, resolver.FormatAmbiguousError(amb))
	}

	switch blackboard.KindOf(err) {
	case blackboard.KindValidation:
		return printer.Failure("invalid input", err)
	case blackboard.KindUnknownRecipient:
		return printer.Failure("unknown recipient", err,
			"Check the agent ID, or have the agent run 'swarm heartbeat <agent>' first")
	case blackboard.KindAgentBusy:
		return printer.Failure("agent busy", err,
			"Complete the agent's current task first: swarm complete <agent> <task>")
	case blackboard.KindTaskUnavailable:
		return printer.Failure("task unavailable", err, "List open tasks: swarm tasks --status open")
	case blackboard.KindOwnership:
		return printer.Failure("not the task holder", err, "Only the assigned agent can complete a task")
	case blackboard.KindStorage:
		return printer.Failure("storage unavailable", err, "Check that Redis is reachable and retry")
	}
	if errors.Is(err, blackboard.ErrValidation) {
		return printer.Failure("invalid input", err)
	}
	return printer.Failure("command failed", err)
}

// parseOutput validates an --output flag value.
func parseOutput(s string) (report.OutputFormat, error) {
	format, err := report.ParseFormat(s)
	if err != nil {
		return "", printer.Failure("invalid output format", blackboard.Validation("output", "%v", err),
			"Valid formats: default, jsonl")
	}
	return format, nil
}
