// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package greenhttp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/z5labs/greenhttp/task"
)

// ContextMisuseError is returned when a suspending call is made with a
// context.Context that does not carry a live task.
type ContextMisuseError = task.ContextMisuseError

// ErrFinished is returned when writing to a [ResponseWriter] after it
// has been finished.
var ErrFinished = errors.New("greenhttp: response already finished")

// TransportError is returned when an HTTP call fails. Response holds
// whatever the server answered, if it answered at all.
type TransportError struct {
	Response *Response
	Cause    error
}

// Error implements the [builtin.error] interface.
func (e TransportError) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("greenhttp: request failed with status %d: %s", e.Response.StatusCode(), e.Cause)
	}
	return fmt.Sprintf("greenhttp: request failed: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e TransportError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the call failed because a timeout expired.
func (e TransportError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(e.Cause, &nerr) && nerr.Timeout()
}

// DecodeError is returned when a response body is not valid JSON.
type DecodeError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e DecodeError) Error() string {
	return fmt.Sprintf("greenhttp: failed to decode response body as json: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e DecodeError) Unwrap() error {
	return e.Cause
}
