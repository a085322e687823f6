// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package update

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alchemillahq/sylve/internal/hostadapter"
)

func TestToleratedOutput(t *testing.T) {
	if !toleratedOutput("src component not installed, continuing\nNo updates are available to install.\n") {
		t.Errorf("expected the stock freebsd-update no-op message to be tolerated")
	}
	if !toleratedOutput("this release is EOL, exiting") {
		t.Errorf("expected an EOL message to be tolerated")
	}
	if toleratedOutput("cannot resolve update.freebsd.org: unknown host") {
		t.Errorf("a real network failure must not be tolerated")
	}
}

func TestSanitizeName(t *testing.T) {
	got := sanitizeName("13.2-RELEASE/base")
	if strings.ContainsAny(got, "./") {
		t.Errorf("sanitizeName left path separators in %q", got)
	}
	if got != "13-2-RELEASE-base" {
		t.Errorf("sanitizeName(%q) = %q", "13.2-RELEASE/base", got)
	}
}

func TestUpdaterURLsHardenedBSD(t *testing.T) {
	script, conf := updaterURLs(hostadapter.FlavorHardenedBSD, "13.2-STABLE")
	if !strings.Contains(script, "hbsd-update") || !strings.Contains(conf, "hbsd-update.conf") {
		t.Errorf("unexpected hardenedbsd updater URLs: %s %s", script, conf)
	}
}

func TestUpdaterURLsFreeBSD(t *testing.T) {
	script, conf := updaterURLs(hostadapter.FlavorFreeBSD, "13.2-RELEASE")
	if !strings.Contains(script, "svn.freebsd.org") || !strings.Contains(script, "13.2") {
		t.Errorf("unexpected freebsd updater script URL: %s", script)
	}
	if !strings.Contains(conf, "freebsd-update.conf") {
		t.Errorf("unexpected freebsd updater conf URL: %s", conf)
	}
}

func TestRewriteComponentsForcesWorld(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "freebsd-update.conf")
	original := "KeepModifiedMetadata yes\nComponents src world kernel\nVerboseLevel debug\n"
	if err := os.WriteFile(confPath, []byte(original), 0o644); err != nil {
		t.Fatalf("write test conf: %v", err)
	}

	if err := rewriteComponents(confPath); err != nil {
		t.Fatalf("rewriteComponents: %v", err)
	}

	out, err := os.ReadFile(confPath)
	if err != nil {
		t.Fatalf("read rewritten conf: %v", err)
	}

	if strings.Contains(string(out), "Components src world kernel") {
		t.Errorf("original Components line was not rewritten: %s", out)
	}
	if !strings.Contains(string(out), "Components world") {
		t.Errorf("expected a Components world line, got: %s", out)
	}
}

func TestRewriteComponentsAppendsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "hbsd-update.conf")
	if err := os.WriteFile(confPath, []byte("VerboseLevel debug\n"), 0o644); err != nil {
		t.Fatalf("write test conf: %v", err)
	}

	if err := rewriteComponents(confPath); err != nil {
		t.Fatalf("rewriteComponents: %v", err)
	}

	out, err := os.ReadFile(confPath)
	if err != nil {
		t.Fatalf("read rewritten conf: %v", err)
	}
	if !strings.Contains(string(out), "Components world") {
		t.Errorf("expected Components world to be appended, got: %s", out)
	}
}

func TestUpdaterBinaryAndConfName(t *testing.T) {
	if updaterBinary(hostadapter.FlavorHardenedBSD) != "hbsd-update" {
		t.Errorf("wrong hardenedbsd updater binary")
	}
	if updaterBinary(hostadapter.FlavorFreeBSD) != "freebsd-update" {
		t.Errorf("wrong freebsd updater binary")
	}
	if updaterConfName(hostadapter.FlavorHardenedBSD) != "hbsd-update.conf" {
		t.Errorf("wrong hardenedbsd updater conf name")
	}
	if updaterConfName(hostadapter.FlavorFreeBSD) != "freebsd-update.conf" {
		t.Errorf("wrong freebsd updater conf name")
	}
}
