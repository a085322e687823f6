// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BinaryPaths records the fixed host paths every external command the
// engine invokes is expected to live at (spec §4.13's "must exist at
// fixed paths" list). The engine's packages run those commands by bare
// name through PATH and do not read this table.
type BinaryPaths struct {
	Ifconfig       string `json:"ifconfig"`
	Route          string `json:"route"`
	Mount          string `json:"mount"`
	Umount         string `json:"umount"`
	ZFS            string `json:"zfs"`
	Sysctl         string `json:"sysctl"`
	Dhclient       string `json:"dhclient"`
	IPFW           string `json:"ipfw"`
	Jail           string `json:"jail"`
	Jexec          string `json:"jexec"`
	Jls            string `json:"jls"`
	Rctl           string `json:"rctl"`
	Rtsold         string `json:"rtsold"`
	FreeBSDUpdate  string `json:"freebsdUpdate"`
	HBSDUpdate     string `json:"hbsdUpdate"`
	Pkg            string `json:"pkg"`
	Su             string `json:"su"`
	Rsync          string `json:"rsync"`
	Login          string `json:"login"`
	True           string `json:"true"`
	Sh             string `json:"sh"`
	Echo           string `json:"echo"`
}

// DefaultBinaryPaths matches spec §4.13 verbatim.
func DefaultBinaryPaths() BinaryPaths {
	return BinaryPaths{
		Ifconfig:      "/sbin/ifconfig",
		Route:         "/sbin/route",
		Mount:         "/sbin/mount",
		Umount:        "/sbin/umount",
		ZFS:           "/sbin/zfs",
		Sysctl:        "/sbin/sysctl",
		Dhclient:      "/sbin/dhclient",
		IPFW:          "/sbin/ipfw",
		Jail:          "/usr/sbin/jail",
		Jexec:         "/usr/sbin/jexec",
		Jls:           "/usr/sbin/jls",
		Rctl:          "/usr/sbin/rctl",
		Rtsold:        "/usr/sbin/rtsold",
		FreeBSDUpdate: "/usr/sbin/freebsd-update",
		HBSDUpdate:    "/usr/sbin/hbsd-update",
		Pkg:           "/usr/sbin/pkg",
		Su:            "/usr/bin/su",
		Rsync:         "/usr/bin/rsync",
		Login:         "/usr/bin/login",
		True:          "/usr/bin/true",
		Sh:            "/bin/sh",
		Echo:          "/bin/echo",
	}
}

// MirrorConfig names the default download mirror a release fetch uses
// when a source doesn't override it.
type MirrorConfig struct {
	FreeBSD     string `json:"freebsd"`
	HardenedBSD string `json:"hardenedbsd"`
}

// DefaultMirrors matches the stock mirrors iocage ships with.
func DefaultMirrors() MirrorConfig {
	return MirrorConfig{
		FreeBSD:     "https://download.freebsd.org/ftp/releases",
		HardenedBSD: "https://installer.hardenedbsd.org",
	}
}

// OrchestratorConfig is the engine's own settings, distinct from a
// ZFS-pool-activated source's per-pool configuration: which pool is
// the default activation target, where releases are mirrored from,
// the EOL-check URL and schedule, the host binary paths, and the
// zerolog level. The EOL checker takes only EOLCheckCron and always
// fetches release.EOLCheckURL; Binaries is not read by the engine.
type OrchestratorConfig struct {
	LogLevel       int8         `json:"logLevel"`
	DataPath       string       `json:"dataPath"`
	DefaultSource  string       `json:"defaultSource"`
	Mirrors        MirrorConfig `json:"mirrors"`
	EOLCheckURL    string       `json:"eolCheckUrl"`
	EOLCheckCron   string       `json:"eolCheckCron"`
	Binaries       BinaryPaths  `json:"binaries"`
	MACPrefix      string       `json:"macPrefix"`
}

const defaultEOLCheckURL = "https://www.freebsd.org/security/unsupported.json"
const defaultEOLCheckCron = "0 6 * * *"
const defaultMACPrefix = "02ff60"

// ParseOrchestratorConfig reads path, applying the same defaults iocage
// ships with for anything the file leaves unset.
func ParseOrchestratorConfig(path string) (*OrchestratorConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open orchestrator config: %w", err)
	}
	defer file.Close()

	cfg := &OrchestratorConfig{
		Mirrors:  DefaultMirrors(),
		Binaries: DefaultBinaryPaths(),
	}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse orchestrator config: %w", err)
	}

	if cfg.DataPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve default data path: %w", err)
		}
		cfg.DataPath = filepath.Join(cwd, "data")
	}
	if err := os.MkdirAll(cfg.DataPath, 0755); err != nil {
		return nil, fmt.Errorf("create orchestrator data path: %w", err)
	}

	if cfg.EOLCheckURL == "" {
		cfg.EOLCheckURL = defaultEOLCheckURL
	}
	if cfg.EOLCheckCron == "" {
		cfg.EOLCheckCron = defaultEOLCheckCron
	}
	if cfg.MACPrefix == "" {
		cfg.MACPrefix = defaultMACPrefix
	}

	return cfg, nil
}
