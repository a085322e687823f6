// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package configmodel

// HardcodedDefaults is the built-in fallback table every jail's config
// resolves against once the store has no value and no host
// defaults.json override exists for a key.
var HardcodedDefaults = map[string]string{
	"boot":               "no",
	"priority":           "0",
	"basejail":           "no",
	"basejail_type":      "nullfs",
	"vnet":               "no",
	"ip4":                "new",
	"ip6":                "new",
	"resolver":           "/etc/resolv.conf",
	"devfs_ruleset":      "4",
	"enforce_statfs":     "2",
	"children_max":       "0",
	"allow_set_hostname": "1",
	"allow_sysvipc":      "0",
	"allow_raw_sockets":  "0",
	"allow_chflags":      "0",
	"allow_mount":        "0",
	"allow_mount_devfs":  "0",
	"allow_mount_fdescfs": "0",
	"allow_mount_fusefs": "0",
	"allow_mount_nullfs": "0",
	"allow_mount_procfs": "0",
	"allow_mount_linprocfs": "0",
	"allow_mount_linsysfs": "0",
	"allow_mount_tmpfs":  "0",
	"allow_mount_zfs":    "0",
	"allow_quotas":       "0",
	"allow_socket_af":    "0",
	"exec_clean":         "1",
	"exec_fib":           "1",
	"exec_start":         "/bin/sh /etc/rc",
	"exec_stop":          "/bin/sh /etc/rc.shutdown",
	"exec_jail_user":     "root",
	"exec_timeout":       "600",
	"stop_timeout":       "30",
	"mount_devfs":        "1",
	"mount_fdescfs":      "0",
	"securelevel":        "2",
	"template":           "no",
	"jail_zfs":           "no",
	"mac_prefix":         "02ff60",
	"rlimits":            "none",
	"provisioning_method": "none",
	"provisioning_source": "none",
	"provisioning_rev":   "master",
}

// legacyKeyAliases maps older config key spellings to their current
// name, per DESIGN NOTES' "exec_started vs exec_start" observation:
// accept both on read, always emit the current name on write.
var legacyKeyAliases = map[string]string{
	"exec_started": "exec_start",
}

// CanonicalKey resolves a possibly-legacy key name to its current
// spelling. exec_created from some older defaults tables is
// deliberately not mapped here — Open Question in DESIGN NOTES
// resolved as: treat as unset on load, never emit on save.
func CanonicalKey(key string) string {
	if canon, ok := legacyKeyAliases[key]; ok {
		return canon
	}
	return key
}
