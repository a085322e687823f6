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
	"os"
	"path/filepath"
	"strings"

	"github.com/alchemillahq/sylve/internal/specialprops"
)

// hookScript is one of the seven launch-protocol scripts, keyed by
// its spec §4.9 table role.
type hookScript struct {
	name string
	body []string
}

// writeHookScript renders one launch script: a ".env"-sourcing,
// set -eu preamble followed by body, chmod 0755. Scripts run as root
// by jail(8)/jexec(8), which is the chown root:wheel the spec
// describes — this process already runs privileged, so no explicit
// chown syscall is needed beyond the file's natural ownership.
func writeHookScript(dir, name string, body []string, ignoreErrors bool) error {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString(". ./.env\n")
	if !ignoreErrors {
		b.WriteString("set -eu\n")
	}
	b.WriteString("\n")
	for _, line := range body {
		b.WriteString(line)
		b.WriteString("\n")
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return fmt.Errorf("write hook script %s: %w", name, err)
	}

	return nil
}

// writeEnv persists IOCAGE_JID=<n> (and friends) into .env, so a
// crashed jail manager can still run poststop against a running jail
// whose jid it no longer holds in memory.
func writeEnv(dir string, jid int, jailPath string) error {
	content := fmt.Sprintf("IOCAGE_JID=%d\nIOCAGE_JAIL_PATH=%s\n", jid, jailPath)
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write .env: %w", err)
	}
	return nil
}

// PrestartBody composes prestart.sh: host-side epair creation and
// bridge wiring for every VNET NIC, run before jail -c so the
// interfaces exist by the time the kernel creates the jail.
func (j *Jail) PrestartBody() []string {
	var lines []string
	for _, e := range j.NICs {
		lines = append(lines, e.StartCommands()...)
	}
	return lines
}

// StartBody composes start.sh: the user's exec_start command, run
// inside the jail via jexec from poststart.sh.
func (j *Jail) StartBody() []string {
	execStart := j.mustGet("exec_start", "/bin/sh /etc/rc")
	return []string{execStart}
}

// StartedBody composes started.sh: captures $IOCAGE_JID into .env so
// later scripts (and a restarted jail manager process) know the
// running jail's id.
func (j *Jail) StartedBody() []string {
	return []string{
		`echo "IOCAGE_JID=$IOCAGE_JID" > ./.env`,
	}
}

// PoststartBody composes poststart.sh: runs started.sh, then start.sh
// inside the jail via jexec, then the user's exec_poststart command.
func (j *Jail) PoststartBody() []string {
	lines := []string{
		fmt.Sprintf("/bin/sh %s", j.hostScriptPath("started.sh")),
		fmt.Sprintf("jexec ${IOCAGE_JID} /.iocage/start.sh"),
	}

	if poststart := j.mustGet("exec_poststart", ""); poststart != "" {
		lines = append(lines, poststart)
	}

	for _, limit := range j.ResourceLimitCommands() {
		lines = append(lines, limit)
	}

	return lines
}

// PrestopBody composes prestop.sh, run on the host before jail -r.
func (j *Jail) PrestopBody() []string {
	if prestop := j.mustGet("exec_prestop", ""); prestop != "" {
		return []string{prestop}
	}
	return nil
}

// StopBody composes stop.sh, run inside the jail via jail.conf's
// exec.stop when `jail -r` tears the jail down.
func (j *Jail) StopBody() []string {
	execStop := j.mustGet("exec_stop", "/bin/sh /etc/rc.shutdown")
	return []string{execStop}
}

// PoststopBody composes poststop.sh: mount teardown, network epair
// teardown, and the user's exec_poststop command. It must be safe to
// re-run from a forced cleanup, so every teardown step ignores its own
// errors; the user's exec_poststop line runs as given.
func (j *Jail) PoststopBody() []string {
	var lines []string

	lines = append(lines, MountTeardownCommands(j.RootPath, j.Fstab.Path)...)

	for _, e := range j.NICs {
		for _, cmd := range e.StopCommands() {
			lines = append(lines, cmd+" 2>/dev/null || true")
		}
	}

	lines = append(lines, ReleaseResourceLimitCommand(j.Name)+" 2>/dev/null || true")

	if poststop := j.mustGet("exec_poststop", ""); poststop != "" {
		lines = append(lines, poststop)
	}

	return lines
}

// WriteHookScripts renders all seven launch scripts and .env into
// j.LaunchDir. jid is 0 before the jail exists (prestart doesn't need
// it); started.sh overwrites .env with the real jid once jail -c
// returns it.
func (j *Jail) WriteHookScripts(jid int) error {
	if err := os.MkdirAll(j.LaunchDir, 0o755); err != nil {
		return fmt.Errorf("create launch-scripts dir: %w", err)
	}

	if err := writeEnv(j.LaunchDir, jid, j.RootPath); err != nil {
		return err
	}

	scripts := []hookScript{
		{"prestart.sh", j.PrestartBody()},
		{"start.sh", j.StartBody()},
		{"started.sh", j.StartedBody()},
		{"poststart.sh", j.PoststartBody()},
		{"prestop.sh", j.PrestopBody()},
		{"stop.sh", j.StopBody()},
		{"poststop.sh", j.PoststopBody()},
	}

	ignoreErrors := truthy(j.mustGet("ignore_errors", "false"))

	for _, s := range scripts {
		if err := writeHookScript(j.LaunchDir, s.name, s.body, ignoreErrors); err != nil {
			return err
		}
	}

	return nil
}

// ResourceLimitCommands renders the `rctl -a` lines for every set
// resource-limit config key, or nothing at all if `rlimits` is off —
// "none"/"false" (and the default) disable every rctl limit on the
// jail regardless of what the individual keys are set to.
func (j *Jail) ResourceLimitCommands() []string {
	if !truthy(j.mustGet("rlimits", "none")) {
		return nil
	}

	var lines []string

	ref := j.jailRef()
	for _, key := range j.resourceLimitKeys() {
		prop, err := j.Model.SpecialProperty(key)
		if err != nil {
			continue
		}
		cmds, err := prop.Apply(ref)
		if err != nil {
			continue
		}
		lines = append(lines, cmds...)
	}

	return lines
}

// ReleaseResourceLimitCommand emits `rctl -r jail:<name>`, clearing
// every limit on stop regardless of how many were individually set.
func ReleaseResourceLimitCommand(name string) string {
	return fmt.Sprintf("rctl -r jail:%s", name)
}

func (j *Jail) resourceLimitKeys() []string {
	return specialprops.ResourceLimitNames
}
