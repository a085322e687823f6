// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package lifecycle

import (
	"strings"
	"testing"

	"github.com/alchemillahq/sylve/internal/configmodel"
	"github.com/alchemillahq/sylve/internal/fstab"
	"github.com/alchemillahq/sylve/internal/hostadapter"
)

func newTestJail(t *testing.T) *Jail {
	t.Helper()

	model, err := configmodel.New("testjail", nil, "")
	if err != nil {
		t.Fatalf("configmodel.New: %v", err)
	}

	return &Jail{
		ID:       "testjail",
		Name:     "testjail",
		RootPath: "/iocage/jails/testjail/root",
		LaunchDir: "/iocage/jails/testjail/launch-scripts",
		Model:    model,
		Fstab:    &fstab.Manager{Path: "/iocage/jails/testjail/fstab"},
		HostInfo: hostadapter.Info{Major: "13.2"},
	}
}

func TestBuildLaunchParamsDefaultNonVNET(t *testing.T) {
	j := newTestJail(t)

	out, err := j.BuildLaunchParams()
	if err != nil {
		t.Fatalf("BuildLaunchParams: %v", err)
	}

	if !strings.Contains(out, "testjail {") {
		t.Fatalf("launch params missing jail name block: %q", out)
	}
	if !strings.Contains(out, "ip4=inherit;") {
		t.Errorf("non-vnet jail should inherit ip4: %q", out)
	}
	if strings.Contains(out, "vnet;") {
		t.Errorf("non-vnet jail should not set the vnet flag: %q", out)
	}
	if !strings.Contains(out, "persist;") {
		t.Errorf("missing persist flag: %q", out)
	}
	if !strings.Contains(out, "sysvmsg=new;") {
		t.Errorf("host 13.2 should support sysvmsg: %q", out)
	}
}

func TestBuildLaunchParamsVNET(t *testing.T) {
	j := newTestJail(t)
	if _, err := j.Model.Set("vnet", "true", false); err != nil {
		t.Fatalf("set vnet: %v", err)
	}

	out, err := j.BuildLaunchParams()
	if err != nil {
		t.Fatalf("BuildLaunchParams: %v", err)
	}

	if !strings.Contains(out, "vnet;") {
		t.Errorf("vnet jail missing the vnet flag: %q", out)
	}
	if strings.Contains(out, "ip4=inherit;") {
		t.Errorf("vnet jail should not inherit ip4: %q", out)
	}
}

func TestBuildLaunchParamsComposedDevfsRuleset(t *testing.T) {
	j := newTestJail(t)
	j.devfsRuleset = 42

	out, err := j.BuildLaunchParams()
	if err != nil {
		t.Fatalf("BuildLaunchParams: %v", err)
	}

	if !strings.Contains(out, "devfs_ruleset=42;") {
		t.Errorf("expected the composed ruleset number to win, got: %q", out)
	}
}

func TestJailRefUsesNameAndID(t *testing.T) {
	j := newTestJail(t)
	ref := j.jailRef()

	if ref.Name != j.Name {
		t.Errorf("jailRef().Name = %q, want %q", ref.Name, j.Name)
	}
	if ref.JID != 0 {
		t.Errorf("jailRef().JID = %d, want 0 for a jail that is not running", ref.JID)
	}
}
