// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package specialprops

import (
	"fmt"
	"strings"
)

// NICEntry is one jail_if -> bridge_if mapping. Secure is set when the
// bridge name carried a leading ':', requesting an interposed
// anti-spoofing bridge guarded by ipfw layer-2 rules.
type NICEntry struct {
	JailIface   string
	BridgeIface string
	Secure      bool
}

// NICMap is the value of the "interfaces" config key.
type NICMap struct {
	Entries []NICEntry
}

// Parse reads "jail_if:bridge_if[,jail_if:bridge_if]...".
func (m *NICMap) Parse(raw string) error {
	m.Entries = nil

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		return nil
	}

	for _, member := range strings.Split(raw, ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}

		jailIf, bridgeIf, ok := strings.Cut(member, ":")
		if !ok {
			return fmt.Errorf("interfaces member %q missing jail_if:bridge_if separator", member)
		}

		secure := strings.HasPrefix(bridgeIf, ":")
		if secure {
			bridgeIf = strings.TrimPrefix(bridgeIf, ":")
		}

		if jailIf == "" || bridgeIf == "" {
			return fmt.Errorf("interfaces member %q has an empty side", member)
		}

		m.Entries = append(m.Entries, NICEntry{JailIface: jailIf, BridgeIface: bridgeIf, Secure: secure})
	}

	return nil
}

// String renders back the parsed member list, preserving parse order.
func (m *NICMap) String() string {
	parts := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		bridge := e.BridgeIface
		if e.Secure {
			bridge = ":" + bridge
		}
		parts = append(parts, fmt.Sprintf("%s:%s", e.JailIface, bridge))
	}
	return strings.Join(parts, ",")
}

// Apply emits nothing directly — epair/bridge wiring is done by the
// network builder (C11), which needs the whole map alongside the
// ip4_addr/ip6_addr sets to compose one coherent start script.
func (m *NICMap) Apply(JailRef) ([]string, error) {
	return nil, nil
}
