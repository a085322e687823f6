// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package hostadapter answers the handful of "what kernel am I running
// on" questions the rest of the orchestrator needs: the release name a
// freshly-created jail should track, whether the host is HardenedBSD
// (which renames its userland version string), and whether ipfw is
// loaded for secure-mode VNET bridging.
package hostadapter

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/alchemillahq/sylve/internal/logger"
	sysctl "github.com/alchemillahq/sylve/pkg/utils/sysctl"
)

// Flavor distinguishes the BSD family a host is running, since
// HardenedBSD suffixes its userland version differently than
// upstream FreeBSD (e.g. "14.1-HBSD" vs "14.1-RELEASE-p3").
type Flavor string

const (
	FlavorFreeBSD    Flavor = "FreeBSD"
	FlavorHardenedBSD Flavor = "HardenedBSD"
)

// userlandVersionRe matches the "USERLAND_VERSION" line freebsd-version
// -u prints, e.g. "14.1-RELEASE-p3" or "15.0-CURRENT".
var userlandVersionRe = regexp.MustCompile(`^(\d+\.\d+)-(.+)$`)

// Info is the host's release identity, resolved once at startup and
// reused by the release manager (C9) to pick a matching default
// release and by the lifecycle engine to gate version-dependent jail
// parameters.
type Info struct {
	Flavor  Flavor
	Major   string // e.g. "14.1"
	Branch  string // e.g. "RELEASE-p3", "CURRENT", "HBSD"
	Arch    string // e.g. "amd64"
	IPFW    bool   // ipfw(4) loaded, required for secure-mode NIC bridging
}

// Name is the full release-style name, e.g. "14.1-RELEASE-p3".
func (i Info) Name() string {
	return fmt.Sprintf("%s-%s", i.Major, i.Branch)
}

// Detect shells out to freebsd-version(1) and uname(1) to build an
// Info for the running host. It never fails hard on the ipfw probe —
// that's a soft capability check, not a precondition.
func Detect() (Info, error) {
	out, err := exec.Command("freebsd-version", "-u").Output()
	if err != nil {
		return Info{}, fmt.Errorf("run freebsd-version -u: %w", err)
	}

	version := strings.TrimSpace(string(out))
	m := userlandVersionRe.FindStringSubmatch(version)
	if m == nil {
		return Info{}, fmt.Errorf("unrecognized USERLAND_VERSION format: %q", version)
	}

	info := Info{Major: m[1], Branch: m[2], Flavor: FlavorFreeBSD}
	if strings.Contains(version, "HBSD") {
		info.Flavor = FlavorHardenedBSD
	}

	if arch, err := exec.Command("uname", "-m").Output(); err == nil {
		info.Arch = strings.TrimSpace(string(arch))
	}

	info.IPFW = ipfwLoaded()

	return info, nil
}

func ipfwLoaded() bool {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command("ipfw", "list")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.L.Debug().Msg("ipfw not available, secure-mode VNET bridging disabled")
		return false
	}

	return true
}

// RealName applies HardenedBSD's naming rule: a HardenedBSD host
// reports a release branch of "HBSD" regardless of the upstream
// FreeBSD version it tracks, so the release manager has to fall back
// to kern.osrelease to recover the real major/minor pair.
func (i Info) RealName() (string, error) {
	if i.Flavor != FlavorHardenedBSD {
		return i.Name(), nil
	}

	rel, err := sysctl.GetString("kern.osrelease")
	if err != nil {
		return "", fmt.Errorf("get kern.osrelease: %w", err)
	}

	rel = strings.TrimSpace(rel)
	parts := strings.SplitN(rel, "-", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("unexpected kern.osrelease format: %q", rel)
	}

	return fmt.Sprintf("%s-%s", parts[0], parts[1]), nil
}
