// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging configures the structured logger shared by the
// blinkctl commands and the schema exchange session runner.
package logging

import (
	"os"

	"charm.land/log/v2"
)

// New builds a logger writing to stderr at level, with component as the
// line prefix so a schema-exchange process's log lines can be told apart
// from a one-shot encode/decode invocation.
func New(component string, level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
	logger.SetLevel(parseLevel(level))
	return logger
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
