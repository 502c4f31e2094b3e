// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield standardizes the attribute keys used across greenhttp logs.
package slogfield

import (
	"log/slog"
	"time"
)

// Any returns an slog.Attr for the supplied value.
func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Uint64 returns an slog.Attr for a uint64.
func Uint64(key string, n uint64) slog.Attr {
	return slog.Uint64(key, n)
}

// TaskID identifies the task a record was emitted from.
func TaskID(id uint64) slog.Attr {
	return slog.Uint64("task_id", id)
}

// TaskState records a task's lifecycle state.
func TaskState(state string) slog.Attr {
	return slog.String("task_state", state)
}

// URL records the target of an outbound request.
func URL(u string) slog.Attr {
	return slog.String("url", u)
}

// Method records the HTTP method of an outbound request.
func Method(m string) slog.Attr {
	return slog.String("http_method", m)
}

// StatusCode records the HTTP status code of a response.
func StatusCode(code int) slog.Attr {
	return slog.Int("http_status_code", code)
}

// Latency records how long an operation took.
func Latency(d time.Duration) slog.Attr {
	return slog.Duration("latency", d)
}
