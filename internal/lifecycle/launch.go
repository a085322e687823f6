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
	"strconv"
	"strings"

	"github.com/alchemillahq/sylve/internal/hostadapter"
)

// allowProperties is the fixed set of jail(8) allow.* switches a
// config key of the same dotted shape maps onto, the same list the
// teacher validates jail option edits against.
var allowProperties = []string{
	"allow.set_hostname",
	"allow.sysvipc",
	"allow.raw_sockets",
	"allow.chflags",
	"allow.mount",
	"allow.mount.devfs",
	"allow.mount.fdescfs",
	"allow.mount.fusefs",
	"allow.mount.nullfs",
	"allow.mount.procfs",
	"allow.mount.linprocfs",
	"allow.mount.linsysfs",
	"allow.mount.tmpfs",
	"allow.mount.zfs",
	"allow.quotas",
	"allow.socket_af",
}

// launchParams is an ordered jail.conf block's param=value pairs for
// one jail, rendered by render() into the textual jail.conf fragment
// /usr/sbin/jail -f <fragment> -c reads.
type launchParams struct {
	name  string
	pairs []string
}

func newLaunchParams(name string) *launchParams {
	return &launchParams{name: name}
}

func (p *launchParams) set(key, value string) {
	p.pairs = append(p.pairs, fmt.Sprintf("%s=%q;", key, value))
}

func (p *launchParams) setRaw(key, value string) {
	p.pairs = append(p.pairs, fmt.Sprintf("%s=%s;", key, value))
}

func (p *launchParams) flag(key string) {
	p.pairs = append(p.pairs, key+";")
}

func (p *launchParams) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s {\n", p.name)
	for _, pair := range p.pairs {
		fmt.Fprintf(&b, "\t%s\n", pair)
	}
	b.WriteString("}\n")
	return b.String()
}

// BuildLaunchParams composes the jail.conf fragment for one jail from
// its resolved config, per spec §4.9's ~30 parameter list: vnet,
// addresses, identity, devfs/securelevel/statfs/children limits,
// allow.* switches, the mount fstab, and the hook exec.* paths.
func (j *Jail) BuildLaunchParams() (string, error) {
	p := newLaunchParams(j.Name)

	p.set("path", j.RootPath)
	p.set("host.hostname", j.mustGet("host_hostname", j.Name))
	p.set("host.hostuuid", j.Name)

	vnet, _ := j.Model.Get("vnet")
	if vnet == "true" || vnet == "on" || vnet == "yes" || vnet == "1" {
		p.flag("vnet")
	} else {
		p.setRaw("ip4", "inherit")
		p.setRaw("ip6", "inherit")
	}

	if j.devfsRuleset > 0 {
		p.setRaw("devfs_ruleset", strconv.Itoa(j.devfsRuleset))
	} else if ruleset := j.mustGet("devfs_ruleset", "4"); ruleset != "" {
		p.setRaw("devfs_ruleset", ruleset)
	}
	p.setRaw("securelevel", j.mustGet("securelevel", "2"))
	p.setRaw("enforce_statfs", j.mustGet("enforce_statfs", "2"))
	p.setRaw("children.max", j.mustGet("children_max", "0"))

	for _, key := range allowProperties {
		cfgKey := strings.ReplaceAll(strings.TrimPrefix(key, "allow."), ".", "_")
		v, err := j.Model.Get("allow_" + cfgKey)
		if err != nil {
			continue
		}
		if truthy(v) {
			p.flag(key)
		}
	}

	p.set("mount.fstab", j.Fstab.Path)

	p.set("exec.prestart", fmt.Sprintf("/bin/sh %s", j.hostScriptPath("prestart.sh")))
	p.set("exec.poststart", fmt.Sprintf("/bin/sh %s", j.hostScriptPath("poststart.sh")))
	p.set("exec.prestop", fmt.Sprintf("/bin/sh %s", j.hostScriptPath("prestop.sh")))
	p.set("exec.poststop", fmt.Sprintf("/bin/sh %s", j.hostScriptPath("poststop.sh")))
	p.set("exec.stop", fmt.Sprintf("/bin/sh %s", j.inJailScriptPath("stop.sh")))
	p.set("exec.jail_user", j.mustGet("exec_jail_user", "root"))
	p.setRaw("exec.timeout", j.mustGet("exec_timeout", "600"))
	p.setRaw("stop.timeout", j.mustGet("stop_timeout", "30"))

	if supportsVersion(j.HostInfo, 10.3) {
		p.setRaw("sysvmsg", "new")
		p.setRaw("sysvsem", "new")
		p.setRaw("sysvshm", "new")
	}
	if supportsVersion(j.HostInfo, 9.3) {
		p.flag("allow.mount.tmpfs")
	}

	// Single-command launches (nopersist + command=...) are an
	// `iocage exec`-style entry point this library doesn't expose —
	// no interactive CLI ships here — so every jail this engine starts
	// is the persistent, long-running kind.
	p.flag("persist")

	return p.render(), nil
}

// hostScriptPath is the host-visible path to a launch script, used by
// exec.prestart/poststart/prestop/poststop (which run on the host
// before jail -c creates a mount namespace / after jail -r tears one
// down).
func (j *Jail) hostScriptPath(name string) string {
	return j.LaunchDir + "/" + name
}

// inJailScriptPath is the in-jail path to a launch script, visible
// once the launch-scripts dataset is nullfs-mounted read-only at
// /.iocage (used by exec.stop, which jail.conf runs via jexec inside
// the jail's own namespace).
func (j *Jail) inJailScriptPath(name string) string {
	return "/.iocage/" + name
}

func (j *Jail) mustGet(key, fallback string) string {
	v, err := j.Model.Get(key)
	if err != nil {
		return fallback
	}
	return v
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// supportsVersion reports whether the running userland's major
// version is newer than minMajor (e.g. sysvmsg/sem/shm jail params
// need > 10.3, allow.mount.tmpfs needs > 9.3).
func supportsVersion(info hostadapter.Info, minMajor float64) bool {
	major, err := strconv.ParseFloat(info.Major, 64)
	if err != nil {
		return false
	}
	return major > minMajor
}
