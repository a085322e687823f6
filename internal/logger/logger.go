// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package logger provides the single zerolog logger instance shared
// across the orchestrator. Every package logs through logger.L instead
// of constructing its own writer.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// L is the process-wide logger. It is a console-only (stderr) logger
// until InitLogger is called, so packages that log during early init
// (before config is parsed) don't panic on a nil pointer.
var L *zerolog.Logger

func init() {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	l := zerolog.New(console).With().Timestamp().Logger()
	L = &l
}

// InitLogger rewires L to log to both the console and a rotating file
// under <dataPath>/logs/ioc.log, at the given zerolog level.
func InitLogger(dataPath string, level int8) error {
	logDir := filepath.Join(dataPath, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "ioc.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	multi := io.MultiWriter(console, fileWriter)

	zerolog.SetGlobalLevel(zerolog.Level(level))
	l := zerolog.New(multi).With().Timestamp().Caller().Logger()
	L = &l

	return nil
}

// BootstrapFatal logs msg at fatal level using whatever logger is
// currently installed (console-only if InitLogger hasn't run yet) and
// exits the process. Used for preconditions that must hold before
// config/logging are available, e.g. "must run as root".
func BootstrapFatal(msg string) {
	L.Fatal().Msg(msg)
}
