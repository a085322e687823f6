// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ioc.config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestParseOrchestratorConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, `{}`)

	cfg, err := ParseOrchestratorConfig(path)
	if err != nil {
		t.Fatalf("ParseOrchestratorConfig: %v", err)
	}

	if cfg.EOLCheckURL != defaultEOLCheckURL {
		t.Errorf("EOLCheckURL = %q, want default", cfg.EOLCheckURL)
	}
	if cfg.EOLCheckCron != defaultEOLCheckCron {
		t.Errorf("EOLCheckCron = %q, want default", cfg.EOLCheckCron)
	}
	if cfg.MACPrefix != defaultMACPrefix {
		t.Errorf("MACPrefix = %q, want default", cfg.MACPrefix)
	}
	if cfg.Mirrors.FreeBSD == "" || cfg.Mirrors.HardenedBSD == "" {
		t.Errorf("mirrors should default to non-empty values: %+v", cfg.Mirrors)
	}
	if cfg.Binaries.Jail == "" || cfg.Binaries.Jls == "" {
		t.Errorf("binary paths should default to non-empty values: %+v", cfg.Binaries)
	}
	if _, err := os.Stat(cfg.DataPath); err != nil {
		t.Errorf("expected DataPath to be created: %v", err)
	}
}

func TestParseOrchestratorConfigHonorsOverrides(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "custom-data")
	path := writeTestConfig(t, dir, `{
		"logLevel": 1,
		"dataPath": "`+dataPath+`",
		"macPrefix": "aa:bb:cc",
		"eolCheckCron": "0 0 * * 0"
	}`)

	cfg, err := ParseOrchestratorConfig(path)
	if err != nil {
		t.Fatalf("ParseOrchestratorConfig: %v", err)
	}

	if cfg.DataPath != dataPath {
		t.Errorf("DataPath = %q, want %q", cfg.DataPath, dataPath)
	}
	if cfg.MACPrefix != "aa:bb:cc" {
		t.Errorf("MACPrefix override not honored: %q", cfg.MACPrefix)
	}
	if cfg.EOLCheckCron != "0 0 * * 0" {
		t.Errorf("EOLCheckCron override not honored: %q", cfg.EOLCheckCron)
	}
	if cfg.LogLevel != 1 {
		t.Errorf("LogLevel override not honored: %d", cfg.LogLevel)
	}
}

func TestParseOrchestratorConfigMissingFile(t *testing.T) {
	if _, err := ParseOrchestratorConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
