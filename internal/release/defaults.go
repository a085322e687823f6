// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package release

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultRCConf disables the network-facing daemons a freshly
// extracted world would otherwise try to start inside a jail:
// sendmail's outbound/inbound queues, the legacy netif script (the
// jail gets its interfaces from the host), and
// syslogd's remote listener.
var defaultRCConf = []string{
	`sendmail_enable="NONE"`,
	`sendmail_submit_enable="NO"`,
	`sendmail_outbound_enable="NO"`,
	`sendmail_msp_queue_enable="NO"`,
	`netif_enable="NO"`,
	`syslogd_flags="-ss"`,
}

// defaultSysctlConf keeps a jailed ipfw from fighting the host's
// firewall state; ruleset management for jails is handled entirely
// through the network builder's secure-mode ipfw rules, not a second
// in-jail firewall.
var defaultSysctlConf = []string{
	`net.inet.ip.fw.enable=0`,
}

// ApplyDefaultConfig writes rc.conf and sysctl.conf entries into a
// freshly extracted release root, appending to whatever the world
// archive already shipped rather than overwriting it.
func ApplyDefaultConfig(releaseRoot string) error {
	if err := appendConfigLines(filepath.Join(releaseRoot, "etc", "rc.conf"), "# iocage defaults", defaultRCConf); err != nil {
		return err
	}

	return appendConfigLines(filepath.Join(releaseRoot, "etc", "sysctl.conf"), "# iocage defaults", defaultSysctlConf)
}

func appendConfigLines(path, header string, lines []string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += header + "\n" + strings.Join(lines, "\n") + "\n"

	return os.WriteFile(path, []byte(content), 0o644)
}
