// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Command ioc bootstraps the jail orchestration engine: it parses its
// settings file, activates (or opens) the default ZFS source, starts
// the release EOL-check scheduler, and then blocks until signaled.
// There is no interactive CLI or network surface here — every actual
// operation (create/start/stop/...) is driven by embedding the
// internal/lifecycle, internal/release, and internal/update packages
// directly, the way this binary itself does for the pieces it needs
// at startup.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/alchemillahq/sylve/internal/config"
	"github.com/alchemillahq/sylve/internal/datasets"
	"github.com/alchemillahq/sylve/internal/history"
	"github.com/alchemillahq/sylve/internal/hostadapter"
	"github.com/alchemillahq/sylve/internal/logger"
	"github.com/alchemillahq/sylve/internal/release"
	"github.com/alchemillahq/sylve/pkg/zfs"
)

const defaultConfigPath = "./ioc.config.json"

func main() {
	if os.Geteuid() != 0 {
		logger.BootstrapFatal("Root privileges required to manage jails")
	}

	configPath := flag.String("config", defaultConfigPath, "path to orchestrator config file")
	pool := flag.String("pool", "", "ZFS pool to activate as the jail source if none is active yet")
	flag.Parse()

	cfg, err := config.ParseOrchestratorConfig(*configPath)
	if err != nil {
		logger.BootstrapFatal(err.Error())
	}

	if err := logger.InitLogger(cfg.DataPath, cfg.LogLevel); err != nil {
		logger.BootstrapFatal(err.Error())
	}

	host, err := hostadapter.Detect()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("detect host userland")
	}
	logger.L.Info().Str("flavor", string(host.Flavor)).Str("major", host.Major).Msg("detected host")

	z := zfs.New(false)

	source, err := datasets.Default(z)
	if err != nil {
		if *pool == "" {
			logger.L.Fatal().Err(err).Msg("no active jail source and no -pool given")
		}
		source, err = datasets.Activate(z, *pool)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("activate jail source pool")
		}
	}
	logger.L.Info().Str("pool", source.Pool).Msg("jail source active")

	// Opened here so the ledger database is created and migrated at
	// startup; the returned handle is not kept or passed on.
	if _, err := history.Open(cfg.DataPath); err != nil {
		logger.L.Fatal().Err(err).Msg("open history ledger")
	}

	eol, err := release.NewEOLChecker(cfg.EOLCheckCron)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("parse EOL check schedule")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go eol.Run(ctx)

	logger.L.Info().Msg("ioc engine ready")
	<-ctx.Done()
	logger.L.Info().Msg("shutting down")
}
