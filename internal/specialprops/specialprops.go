// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package specialprops implements the typed configuration values that
// synthesize host and in-jail commands: IP address sets, the NIC-to-
// bridge map, default routes, the DNS resolver mode, resource limits,
// and jail dependencies. Each type knows how to parse its stored
// string form, restringify itself, and emit the shell commands needed
// to apply it to a running jail.
package specialprops

// JailRef is the minimal view of a jail a special property's Apply
// needs: its orchestrator-assigned name (used in rctl's jail:<name>:
// namespace) and jid once running.
type JailRef struct {
	Name string
	JID  int
}

// Property is implemented by every special configuration value.
type Property interface {
	// Parse sets the property's value from its stored string form.
	Parse(raw string) error
	// String renders the canonical stored form; Parse(String()) must
	// round-trip to an equal value.
	String() string
	// Apply returns the shell commands needed to realize this value
	// against jail j. Many properties (ip4_addr/ip6_addr, interfaces)
	// return nil here because they're wired by the network builder
	// (C11) instead, which needs the whole set together.
	Apply(j JailRef) ([]string, error)
}

// Registry maps a config key name to a constructor for its Property,
// so configmodel can look up "is this a special property" without a
// hand-written type switch growing unbounded.
type Registry map[string]func() Property

// Default is the registry of every special property this module
// knows about, including one entry per recognized rctl resource-limit
// name (all sharing the ResourceLimit type).
var Default = buildDefaultRegistry()

func buildDefaultRegistry() Registry {
	r := Registry{
		"ip4_addr":        func() Property { return &IPAddressSet{Family: 4} },
		"ip6_addr":        func() Property { return &IPAddressSet{Family: 6} },
		"interfaces":      func() Property { return &NICMap{} },
		"defaultrouter":   func() Property { return &DefaultRoute{Family: 4} },
		"defaultrouter6":  func() Property { return &DefaultRoute{Family: 6} },
		"resolver":        func() Property { return &Resolver{} },
		"depends":         func() Property { return &Depends{} },
	}

	for _, name := range ResourceLimitNames {
		name := name
		r[name] = func() Property { return &ResourceLimit{Key: name} }
	}

	return r
}

// IsSpecial reports whether key names a special property rather than
// a plain scalar config value.
func IsSpecial(key string) bool {
	_, ok := Default[key]
	return ok
}
