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

// DefaultRoute is the value of defaultrouter / defaultrouter6: an
// address plus an optional point-to-point interface. The IPv6 variant
// additionally supports a '%nic' link-local scope suffix on the
// address itself.
type DefaultRoute struct {
	Family int // 4 or 6
	Addr   string
	NIC    string // "@nic" suffix, empty if none
}

// Parse reads "addr[@nic]". A bare "none"/empty clears the route.
func (r *DefaultRoute) Parse(raw string) error {
	raw = strings.TrimSpace(raw)
	r.Addr, r.NIC = "", ""

	if raw == "" || raw == "none" {
		return nil
	}

	addr, nic, hasNIC := strings.Cut(raw, "@")
	if addr == "" {
		return fmt.Errorf("defaultrouter%s value %q has an empty address", familySuffix(r.Family), raw)
	}

	r.Addr = addr
	if hasNIC {
		r.NIC = nic
	}

	return nil
}

func familySuffix(family int) string {
	if family == 6 {
		return "6"
	}
	return ""
}

// String renders back "addr[@nic]".
func (r *DefaultRoute) String() string {
	if r.Addr == "" {
		return ""
	}
	if r.NIC == "" {
		return r.Addr
	}
	return fmt.Sprintf("%s@%s", r.Addr, r.NIC)
}

// Apply emits `route add default <addr>`, preceded by a point-to-point
// route when NIC is set, matching the spec's ordering.
func (r *DefaultRoute) Apply(JailRef) ([]string, error) {
	if r.Addr == "" {
		return nil, nil
	}

	family := "-inet"
	if r.Family == 6 {
		family = "-inet6"
	}

	var cmds []string
	if r.NIC != "" {
		cmds = append(cmds, fmt.Sprintf("route add %s %s -iface %s", family, r.Addr, r.NIC))
	}
	cmds = append(cmds, fmt.Sprintf("route add %s default %s", family, r.Addr))

	return cmds, nil
}
