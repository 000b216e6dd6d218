// Package quota implements dual-level admission control for generation
// requests: per-user limits derived from persisted request history and a
// backend-wide counter with minute/day reset windows.
package quota

import "fmt"

// Scope identifies which level of admission control produced a rejection.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeBackend Scope = "backend"
)

// WindowKind identifies which quota window tripped.
type WindowKind string

const (
	WindowMinute WindowKind = "minute"
	WindowDay    WindowKind = "daily"
)

// Limits holds the request ceilings for one scope.
type Limits struct {
	Minute int
	Daily  int
}

// Policy controls behavior when the store backing a guard is unavailable.
// FailOpen admits the request and logs the failure instead of blocking
// service; fail-closed surfaces the storage error to the caller.
type Policy struct {
	FailOpen bool
}

// LimitError is returned when a quota window is exhausted. The four
// scope/window combinations are distinct, not merged.
type LimitError struct {
	Scope  Scope
	Window WindowKind
	Limit  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s %s limit of %d requests exceeded", e.Scope, e.Window, e.Limit)
}
