package domain

import (
	"fmt"
	"strings"

	"github.com/sf7293/tmanager/internal/errval"
)

// allowedTransitions is the fixed workflow graph. Done is terminal and there
// are no self-loops, so resubmitting the current status is rejected as well.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	ToDo:       {InProgress},
	InProgress: {Done},
	Done:       {},
}

// ValidateTransition returns an errval.ErrValidation error when current -> proposed is not an edge of the workflow
func ValidateTransition(current, proposed TaskStatus) error {
	if !proposed.IsKnown() {
		return fmt.Errorf("%w: unknown status %q", errval.ErrValidation, proposed)
	}

	for _, next := range allowedTransitions[current] {
		if next == proposed {
			return nil
		}
	}

	return fmt.Errorf("%w: could not change status from %s to %s (allowed: %s)", errval.ErrValidation, current, proposed, describeNext(current))
}

func describeNext(s TaskStatus) string {
	next := AllowedNext(s)
	if len(next) == 0 {
		return "none"
	}

	names := make([]string, 0, len(next))
	for _, n := range next {
		names = append(names, string(n))
	}

	return strings.Join(names, ", ")
}

// AllowedNext lists the statuses reachable from s in one step
func AllowedNext(s TaskStatus) []TaskStatus {
	return append([]TaskStatus(nil), allowedTransitions[s]...)
}
