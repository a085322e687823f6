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
	"os"
	"path/filepath"
	"strings"
)

// ResolverMode names which of the three resolver behaviors a jail
// uses for /etc/resolv.conf.
type ResolverMode int

const (
	ResolverSkip ResolverMode = iota
	ResolverCopy
	ResolverManual
)

// Resolver is the value of the "resolver" config key.
type Resolver struct {
	Mode    ResolverMode
	Servers []string // manual mode only
}

// Parse accepts "/dev/null" or "-" (skip), "/etc/resolv.conf" (copy
// the host's file), or one-or-more server addresses separated by ';'
// or ',' (manual).
func (r *Resolver) Parse(raw string) error {
	raw = strings.TrimSpace(raw)

	switch raw {
	case "/dev/null", "-", "none", "":
		r.Mode, r.Servers = ResolverSkip, nil
		return nil
	case "/etc/resolv.conf":
		r.Mode, r.Servers = ResolverCopy, nil
		return nil
	}

	sep := ";"
	if strings.Contains(raw, ",") && !strings.Contains(raw, ";") {
		sep = ","
	}

	var servers []string
	for _, s := range strings.Split(raw, sep) {
		s = strings.TrimSpace(s)
		if s != "" {
			servers = append(servers, s)
		}
	}

	if len(servers) == 0 {
		return fmt.Errorf("resolver value %q did not match skip, copy, or manual form", raw)
	}

	r.Mode, r.Servers = ResolverManual, servers
	return nil
}

// String renders back the canonical stored form.
func (r *Resolver) String() string {
	switch r.Mode {
	case ResolverSkip:
		return "/dev/null"
	case ResolverCopy:
		return "/etc/resolv.conf"
	default:
		return strings.Join(r.Servers, ";")
	}
}

// Apply writes /etc/resolv.conf inside the jail's mounted root. jailRoot
// is not part of JailRef since Apply's signature is shared across all
// special properties; the resolver is instead applied directly by the
// lifecycle engine via WriteResolvConf, which has the jail root path.
func (r *Resolver) Apply(JailRef) ([]string, error) {
	return nil, nil
}

// WriteResolvConf materializes the resolver's effect onto disk at
// <jailRoot>/etc/resolv.conf. Called by the lifecycle engine during
// start, after the jail's root filesystem is mounted.
func (r *Resolver) WriteResolvConf(jailRoot string) error {
	dest := filepath.Join(jailRoot, "etc", "resolv.conf")

	switch r.Mode {
	case ResolverSkip:
		return nil
	case ResolverCopy:
		data, err := os.ReadFile("/etc/resolv.conf")
		if err != nil {
			return fmt.Errorf("read host resolv.conf: %w", err)
		}
		return os.WriteFile(dest, data, 0o644)
	case ResolverManual:
		var sb strings.Builder
		for _, s := range r.Servers {
			fmt.Fprintf(&sb, "nameserver %s\n", s)
		}
		return os.WriteFile(dest, []byte(sb.String()), 0o644)
	default:
		return fmt.Errorf("unknown resolver mode %d", r.Mode)
	}
}
