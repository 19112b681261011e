// Package resolver expands short task ID prefixes typed at the CLI.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/swarm/pkg/blackboard"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// maxListedMatches caps how many candidates FormatAmbiguousError lists.
const maxListedMatches = 10

// ResolveTaskID resolves a short ID prefix to a full task ID.
// A full UUID is checked for existence and returned as-is; anything shorter
// must be at least MinShortIDLength characters and match exactly one task.
func ResolveTaskID(ctx context.Context, client *blackboard.Client, shortID string) (string, error) {
	shortID = strings.TrimSpace(shortID)

	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if _, err := client.GetTask(ctx, shortID); err != nil {
			if blackboard.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", blackboard.Storage("resolve_task", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", blackboard.Validation("resolve_task", "short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := client.ScanTaskIDs(ctx, shortID)
	if err != nil {
		return "", blackboard.Storage("resolve_task", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no task matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no tasks found matching '%s'", e.ShortID)
}

// Is makes a NotFoundError match blackboard.ErrValidation.
func (e *NotFoundError) Is(target error) bool {
	return target == blackboard.ErrValidation
}

// AmbiguousError indicates several tasks matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d tasks", e.ShortID, len(e.Matches))
}

// Is makes an AmbiguousError match blackboard.ErrValidation.
func (e *AmbiguousError) Is(target error) bool {
	return target == blackboard.ErrValidation
}

// FormatAmbiguousError lists the matching IDs (up to ten) for display.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d tasks:\n", err.ShortID, len(err.Matches))

	shown := err.Matches
	if len(shown) > maxListedMatches {
		shown = shown[:maxListedMatches]
	}
	for _, id := range shown {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if extra := len(err.Matches) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "  ...and %d more\n", extra)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the task.")
	return b.String()
}
