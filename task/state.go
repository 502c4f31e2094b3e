// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package task

// State is a point in a Task's lifecycle.
//
//	Created -> Running -> (Suspended -> Resumed -> Running)* -> Completed -> Finalized
//
// Finalized is terminal.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateSuspended
	StateResumed
	StateCompleted
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateResumed:
		return "resumed"
	case StateCompleted:
		return "completed"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}
