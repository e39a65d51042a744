package taskgraph

import (
	"errors"
	"fmt"
	"strings"

	"taskgraph/internal/task"
	"taskgraph/pkg/graph"
)

var ErrBirthlineAfterDeadline = errors.New("birthline after deadline")

// BirthlineAfterDeadlineError names a task that cannot start before the
// deadline it inherits.
type BirthlineAfterDeadlineError struct {
	Name string
}

func (e *BirthlineAfterDeadlineError) Error() string {
	return fmt.Sprintf("%s: task %q", ErrBirthlineAfterDeadline, e.Name)
}

func (e *BirthlineAfterDeadlineError) Unwrap() error { return ErrBirthlineAfterDeadline }

// UserError is the human-readable form of a failed boundary operation.
type UserError struct {
	ShortName string
	Details   string
	Err       error
}

func (e *UserError) Error() string { return e.ShortName + ": " + e.Details }
func (e *UserError) Unwrap() error { return e.Err }

const internalErrorName = "Internal error"

// describe renders err with task names taken from g. A failure while
// rendering yields an "Internal error" carrying both descriptions.
func describe(g *graph.Graph[task.Task], err error, shortName string) *UserError {
	text, ferr := explain(g, err)
	if ferr != nil {
		return &UserError{
			ShortName: internalErrorName,
			Details: fmt.Sprintf("An error happened while handling another error.\n\nDetails:\n%v\n\n"+
				"The original error was:\n%v\n\nIf you are seeing this message then something is seriously broken.", ferr, err),
			Err: err,
		}
	}
	return &UserError{ShortName: shortName, Details: text, Err: err}
}

func explain(g *graph.Graph[task.Task], err error) (string, error) {
	var (
		cycle    *graph.CycleError
		missing  *graph.NodeError
		birth    *BirthlineAfterDeadlineError
		callback *graph.CallbackError
	)
	switch {
	case errors.As(err, &cycle):
		return cycleDetails(g, cycle)
	case errors.As(err, &missing):
		return fmt.Sprintf("Reference to non-existent task!\n\nFound a reference to the task with ID %d but there is no such task.", missing.ID), nil
	case errors.Is(err, graph.ErrStackOverflow):
		return fmt.Sprintf("Too many dependencies!\n\nTaskgraph currently cannot handle dependency chains longer than %d tasks.", graph.MaxCallDepth), nil
	case errors.As(err, &birth):
		return fmt.Sprintf("Impossible schedule!\n\nThe task '%s' cannot start before the deadline it has to meet: "+
			"its birthline is after its deadline or the deadline of a task that needs it.", birth.Name), nil
	case errors.As(err, &callback):
		return callback.Error(), nil
	default:
		return err.Error(), nil
	}
}

func cycleDetails(g *graph.Graph[task.Task], cycle *graph.CycleError) (string, error) {
	label := func(id graph.ID) (string, error) {
		t, err := g.Get(id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("'%s' (ID: %d)", t.Name, id), nil
	}
	const header = "Circular dependencies detected!\n\n"
	ids := cycle.Trace
	switch len(ids) {
	case 0:
		return "", errors.New("circular dependency error without tasks")
	case 1:
		a, err := label(ids[0])
		if err != nil {
			return "", err
		}
		return header + "The task " + a + " depends on itself.", nil
	case 2:
		a, err := label(ids[0])
		if err != nil {
			return "", err
		}
		b, err := label(ids[1])
		if err != nil {
			return "", err
		}
		return header + "The tasks " + a + " and " + b + " mutually depend on each other.", nil
	}

	first, err := label(ids[0])
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("The task " + first + " is needed by\n")
	for _, id := range ids[1:] {
		l, err := label(id)
		if err != nil {
			return "", err
		}
		sb.WriteString(l + " which is needed by:\n")
	}
	sb.WriteString(first + ", completing the circle.")
	return sb.String(), nil
}
