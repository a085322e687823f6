// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package network

import (
	"strings"
	"testing"

	"github.com/alchemillahq/sylve/internal/specialprops"
)

func TestDeriveMACDeterministic(t *testing.T) {
	a := DeriveMAC("myjail", "vnet0", "")
	b := DeriveMAC("myjail", "vnet0", "")

	if a != b {
		t.Fatalf("DeriveMAC not deterministic: %+v != %+v", a, b)
	}
	if a.A == a.B {
		t.Fatalf("epair ends got the same MAC: %s", a.A)
	}
	if !strings.HasPrefix(a.A, DefaultMACPrefix[:2]) {
		t.Fatalf("MAC %s does not start with the locally-administered octet", a.A)
	}
}

func TestDeriveMACDistinctPerJailAndNIC(t *testing.T) {
	base := DeriveMAC("jail1", "vnet0", "")
	otherJail := DeriveMAC("jail2", "vnet0", "")
	otherNIC := DeriveMAC("jail1", "vnet1", "")

	if base == otherJail {
		t.Fatalf("different jails produced the same MAC pair")
	}
	if base == otherNIC {
		t.Fatalf("different NICs on the same jail produced the same MAC pair")
	}
}

func TestDeriveMACCustomPrefix(t *testing.T) {
	pair := DeriveMAC("jail1", "vnet0", "aa:bb:cc")
	if !strings.HasPrefix(pair.A, "aa:bb:cc") {
		t.Fatalf("custom prefix not honored: %s", pair.A)
	}
}

func TestSanitizeVarName(t *testing.T) {
	cases := map[string]string{
		"vnet0":  "vnet0",
		"vnet-0": "vnet_0",
		"epair0.1": "epair0_1",
	}
	for in, want := range cases {
		if got := sanitizeVarName(in); got != want {
			t.Errorf("sanitizeVarName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEpairStartCommandsIncludesBridgeJoin(t *testing.T) {
	e := NewEpair("myjail", "5", specialprops.NICEntry{
		JailIface:   "vnet0",
		BridgeIface: "bridge0",
	}, "")

	cmds := e.StartCommands()
	joined := strings.Join(cmds, "\n")

	if !strings.Contains(joined, "ifconfig bridge0 addm") {
		t.Errorf("non-secure epair did not join its bridge: %s", joined)
	}
	if strings.Contains(joined, "bridge_vnet0_secure") {
		t.Errorf("non-secure epair unexpectedly created a secure bridge: %s", joined)
	}
}

func TestEpairStartCommandsSecureInterposesBridge(t *testing.T) {
	e := NewEpair("myjail", "5", specialprops.NICEntry{
		JailIface:   "vnet0",
		BridgeIface: "bridge0",
		Secure:      true,
	}, "")

	cmds := e.StartCommands()
	joined := strings.Join(cmds, "\n")

	if !strings.Contains(joined, "bridge_vnet0_secure") {
		t.Errorf("secure epair did not interpose a private bridge: %s", joined)
	}
	if !strings.Contains(joined, "ipfw add deny") {
		t.Errorf("secure epair did not add ipfw anti-spoofing rules: %s", joined)
	}
}

func TestEpairStopCommandsDestroysSecureBridge(t *testing.T) {
	e := NewEpair("myjail", "5", specialprops.NICEntry{
		JailIface:   "vnet0",
		BridgeIface: "bridge0",
		Secure:      true,
	}, "")

	cmds := e.StopCommands()
	if len(cmds) != 2 {
		t.Fatalf("expected host epair + secure bridge teardown, got %v", cmds)
	}
}

func TestSplitPrefixIPv4(t *testing.T) {
	addr, mask := splitPrefix("192.168.1.10/24")
	if addr != "192.168.1.10" {
		t.Errorf("addr = %q, want 192.168.1.10", addr)
	}
	if mask != "255.255.255.0" {
		t.Errorf("mask = %q, want 255.255.255.0", mask)
	}
}

func TestSplitPrefixNotACIDR(t *testing.T) {
	addr, mask := splitPrefix("dhcp")
	if addr != "dhcp" || mask != "" {
		t.Errorf("splitPrefix(%q) = (%q, %q), want passthrough", "dhcp", addr, mask)
	}
}

func TestAddressRCConfLinesDHCP(t *testing.T) {
	v4 := specialprops.IPAddressSet{Family: 4}
	if err := v4.Parse("vnet0|dhcp"); err != nil {
		t.Fatalf("parse ip4_addr: %v", err)
	}

	lines := AddressRCConfLines("vnet0", &v4, nil)
	if len(lines) != 1 || !strings.Contains(lines[0], "SYNCDHCP") {
		t.Fatalf("expected a SYNCDHCP rc.conf line, got %v", lines)
	}
}

func TestAddressRCConfLinesStatic(t *testing.T) {
	v4 := specialprops.IPAddressSet{Family: 4}
	if err := v4.Parse("vnet0|10.0.0.5/24"); err != nil {
		t.Fatalf("parse ip4_addr: %v", err)
	}

	lines := AddressRCConfLines("vnet0", &v4, nil)
	if len(lines) != 1 || !strings.Contains(lines[0], "10.0.0.5") || !strings.Contains(lines[0], "netmask") {
		t.Fatalf("expected a static inet rc.conf line, got %v", lines)
	}
}
