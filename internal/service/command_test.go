// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the config file does not exist", func(t *testing.T) {
			var out bytes.Buffer
			cmd := NewCommand(&out)
			cmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
		})

		t.Run("if the tracing exporter is unknown", func(t *testing.T) {
			path := writeConfig(t, "port: 0\ntracing:\n  exporter: zipkin\n")

			var out bytes.Buffer
			cmd := NewCommand(&out)
			cmd.SetArgs([]string{"serve", "--config", path})

			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to initialize tracing")
		})
	})

	t.Run("will serve until the context is cancelled", func(t *testing.T) {
		t.Run("if the config is valid", func(t *testing.T) {
			path := writeConfig(t, "port: 0\nshutdown_timeout: 1s\n")

			var out bytes.Buffer
			cmd := NewCommand(&out)
			cmd.SetArgs([]string{"serve", "-c", path})

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			err := cmd.ExecuteContext(ctx)
			require.NoError(t, err)
			assert.Contains(t, out.String(), "started service")
		})
	})
}
