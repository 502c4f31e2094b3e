// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"io"
	"log/slog"
	"strings"

	"github.com/z5labs/greenhttp/pkg/maskslog"
	"github.com/z5labs/greenhttp/pkg/otelslog"

	"gopkg.in/natefinch/lumberjack.v2"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogHandler builds the service's slog.Handler. Records go to stdout
// unless a log file is configured, in which case the file is rotated.
// Query values and passwords in logged urls are masked.
// The returned io.Closer is nil when there is nothing to close.
func newLogHandler(cfg LogConfig, stdout io.Writer) (slog.Handler, io.Closer) {
	out := stdout
	var closer io.Closer
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.Rotation.MaxSizeMB, 1),
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
		}
		out = lj
		closer = lj
	}

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLevel(cfg.Level),
	}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	h = maskslog.NewHandler(h, maskslog.Attr("url", maskslog.URL))
	return otelslog.NewHandler(h), closer
}
