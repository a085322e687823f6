// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package specialprops

import "strings"

// Depends is the value of the "depends" config key: a set of filter
// terms naming other jails that must be running before this one can
// start. Carried over from libioc/iocage's
// Config/Jail/Properties/Depends.py, which the distilled spec names
// only in passing (§4.3) — this type supplies its exact set semantics.
type Depends struct {
	Terms []string
}

// Parse reads a comma-separated list of jail name filter terms.
func (d *Depends) Parse(raw string) error {
	d.Terms = nil

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		return nil
	}

	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term != "" {
			d.Terms = append(d.Terms, term)
		}
	}

	return nil
}

// String renders back the comma-separated term list.
func (d *Depends) String() string {
	if len(d.Terms) == 0 {
		return "none"
	}
	return strings.Join(d.Terms, ",")
}

// Apply emits no commands. The lifecycle engine's Start does not read
// depends either: no ordering or running check is made for these terms.
func (d *Depends) Apply(JailRef) ([]string, error) {
	return nil, nil
}
