package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies engine failures for callers.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindProvider    Kind = "provider"
	KindPersistence Kind = "persistence"
)

// Error is the discriminated error returned by every engine operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func providerError(op string, err error) *Error {
	return &Error{Kind: KindProvider, Op: op, Message: "routing provider failed", Err: err}
}

func persistenceError(op, msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: msg, Err: err}
}

// BatchError reports which writes of a concurrent batch failed. Writes that
// succeeded are not undone.
type BatchError struct {
	Op     string
	Total  int
	Failed map[int]error
}

func (e *BatchError) Error() string {
	idx := make([]int, 0, len(e.Failed))
	for i := range e.Failed {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	first := e.Failed[idx[0]]
	return fmt.Sprintf("%s: %d of %d writes failed (first: %v)", e.Op, len(e.Failed), e.Total, first)
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// RenumberError reports a failed reorder. Stranded means the compensating
// writes failed too and the route holds placeholder positions that an
// operator has to repair.
type RenumberError struct {
	RouteID  string
	Phase    int
	Stranded bool
	Err      error
}

func (e *RenumberError) Error() string {
	state := "restored previous order"
	if e.Stranded {
		state = "route left with placeholder positions, operator intervention required"
	}
	return fmt.Sprintf("renumber route %s: phase %d failed, %s: %v", e.RouteID, e.Phase, state, e.Err)
}

func (e *RenumberError) Unwrap() error { return e.Err }

// PartialSplitError reports a split that failed after some groups were
// committed. CreatedRoutes lists the committed routes in group order.
type PartialSplitError struct {
	SourceRouteID string
	CreatedRoutes []string
	FailedGroup   int
	Err           error
}

func (e *PartialSplitError) Error() string {
	return fmt.Sprintf(
		"split route %s: group %d failed after creating [%s]: %v",
		e.SourceRouteID, e.FailedGroup, strings.Join(e.CreatedRoutes, ", "), e.Err,
	)
}

func (e *PartialSplitError) Unwrap() error { return e.Err }
