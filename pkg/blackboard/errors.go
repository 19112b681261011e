package blackboard

import (
	"errors"
	"fmt"
)

// Kind classifies every error the coordination layer reports to callers.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindUnknownRecipient Kind = "unknown_recipient"
	KindAgentBusy        Kind = "agent_busy"
	KindTaskUnavailable  Kind = "task_unavailable"
	KindOwnership        Kind = "ownership"
	KindStorage          Kind = "storage"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrUnknownRecipient = &Error{Kind: KindUnknownRecipient}
	ErrAgentBusy        = &Error{Kind: KindAgentBusy}
	ErrTaskUnavailable  = &Error{Kind: KindTaskUnavailable}
	ErrOwnership        = &Error{Kind: KindOwnership}
	ErrStorage          = &Error{Kind: KindStorage}
)

// Error is a classified failure from a coordination operation.
//
// Validation and conflict kinds (agent busy, task unavailable, ownership) are
// expected control flow and leave stored state untouched. Storage errors mean
// the operation may be retried by the caller.
type Error struct {
	Kind Kind
	Op   string // Operation that failed, e.g. "assign_task"
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, ErrAgentBusy) works on any
// wrapped *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Validation reports malformed input. Nothing was written.
func Validation(op string, format string, args ...any) error {
	return newError(KindValidation, op, format, args...)
}

// UnknownRecipient reports a send to an agent that never registered.
func UnknownRecipient(op, recipient string) error {
	return newError(KindUnknownRecipient, op, "agent %q is not registered", recipient)
}

// AgentBusy reports an assignment to an agent that is not idle.
func AgentBusy(op, agentID string, status AgentStatus) error {
	return newError(KindAgentBusy, op, "agent %q is %s", agentID, status)
}

// TaskUnavailable reports a task that is not open or that the agent cannot take.
func TaskUnavailable(op, taskID string, format string, args ...any) error {
	return &Error{Kind: KindTaskUnavailable, Op: op, Err: fmt.Errorf("task %s: %s", taskID, fmt.Sprintf(format, args...))}
}

// Ownership reports an agent acting on a task it does not hold.
func Ownership(op, agentID, taskID string) error {
	return newError(KindOwnership, op, "agent %q does not hold task %s", agentID, taskID)
}

// Storage wraps a store failure. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}
