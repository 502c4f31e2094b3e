// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package greenhttp

import (
	"context"
	"testing"

	"github.com/z5labs/greenhttp/loop"

	"github.com/stretchr/testify/assert"
)

func TestSetEventLoop(t *testing.T) {
	prev := defaultClient.Load()
	t.Cleanup(func() { defaultClient.Store(prev) })

	t.Run("will use the process-wide loop", func(t *testing.T) {
		t.Run("if no loop is given", func(t *testing.T) {
			SetEventLoop(nil)

			assert.Same(t, loop.Default(), EventLoop())
		})
	})

	t.Run("will use the given loop", func(t *testing.T) {
		t.Run("if a loop is given", func(t *testing.T) {
			l := loop.New()
			SetEventLoop(l)

			assert.Same(t, l, EventLoop())
			assert.Same(t, l, Default().Loop())
		})
	})
}

func TestGet(t *testing.T) {
	t.Run("will return a ContextMisuseError", func(t *testing.T) {
		t.Run("if called outside of a task", func(t *testing.T) {
			_, err := Get(context.Background(), "http://127.0.0.1:0")

			var merr ContextMisuseError
			assert.ErrorAs(t, err, &merr)
		})
	})
}
