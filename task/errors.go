// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package task

import "fmt"

// ContextMisuseError is returned when a suspending operation is invoked
// with a context.Context that does not belong to a live Task started by
// a [Driver].
type ContextMisuseError struct {
	Op string
}

// Error implements the [error] interface.
func (e ContextMisuseError) Error() string {
	return fmt.Sprintf("task: %s can only be called from a task started by a driver", e.Op)
}

// ConcurrentAwaitError is returned when a Task attempts to suspend while
// it already has a pending suspension.
type ConcurrentAwaitError struct {
	TaskID uint64
	State  State
}

// Error implements the [error] interface.
func (e ConcurrentAwaitError) Error() string {
	return fmt.Sprintf("task: task %d cannot await while %s", e.TaskID, e.State)
}
