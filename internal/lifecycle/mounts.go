// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package lifecycle

import (
	"fmt"
	"path/filepath"
)

// fixedTeardownMounts are unmounted, in order, before the fstab-driven
// unmount pass — compat/linprocfs/devfs mounts that basejails and
// Linux-emulation jails accumulate outside the managed fstab.
var fixedTeardownMounts = []string{
	"usr/bin",
	"dev/fd",
	"dev",
	"proc",
	"root/compat/linux/proc",
	"root/etcupdate",
	"root/usr/ports",
	"root/usr/src",
	"tmp",
}

// MountTeardownCommands renders poststop's mount teardown sequence:
// the fixed list (force, ignore-error), then `umount -a -F <fstab>`,
// then a best-effort sweep for stray nullfs mounts left under
// jailRoot by a legacy (pre-canonicalized) config.
func MountTeardownCommands(jailRoot, fstabPath string) []string {
	var lines []string

	for _, rel := range fixedTeardownMounts {
		path := filepath.Join(jailRoot, rel)
		lines = append(lines, fmt.Sprintf("umount -f %s 2>/dev/null || true", path))
	}

	lines = append(lines, fmt.Sprintf("umount -a -F %s 2>/dev/null || true", fstabPath))

	lines = append(lines, fmt.Sprintf(
		`mount | grep ' %s/.*nullfs' | awk '{print $3}' | sort -r | while read -r mp; do umount -f "$mp" 2>/dev/null || true; done`,
		jailRoot,
	))

	return lines
}
