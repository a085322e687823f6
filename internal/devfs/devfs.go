// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package devfs synthesizes per-jail devfs(8) rulesets: a clone of a
// base ruleset plus whatever extra "add path ... unhide" lines a
// jail's config requires (DHCP's bpf*, ZFS's zfs device), looked up or
// assigned a dense ruleset number and appended to /etc/devfs.rules.
package devfs

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/alchemillahq/sylve/internal/logger"
)

const (
	DefaultDefaultsPath = "/etc/defaults/devfs.rules"
	DefaultRulesPath    = "/etc/devfs.rules"

	// AutoNamePrefix is prepended to the jail-synthesized ruleset's
	// auto-generated name.
	AutoNamePrefix = "iocage_auto_"
)

var headerRe = regexp.MustCompile(`^\[(\S+)=(\d+)\]$`)

// Ruleset is one numbered, named devfs.rules block.
type Ruleset struct {
	Number int
	Name   string
	Lines  []string // normalized "add ..." lines, in file order
	System bool      // loaded from the read-only system defaults file
}

// Manager owns the parsed contents of both devfs.rules files.
type Manager struct {
	DefaultsPath string
	RulesPath    string
	Rulesets     []Ruleset
}

// Load parses defaultsPath (flagged System, never rewritten) and
// rulesPath (mutable). Either file may be absent.
func Load(defaultsPath, rulesPath string) (*Manager, error) {
	m := &Manager{DefaultsPath: defaultsPath, RulesPath: rulesPath}

	sys, err := parseFile(defaultsPath, true)
	if err != nil {
		return nil, err
	}

	mutable, err := parseFile(rulesPath, false)
	if err != nil {
		return nil, err
	}

	m.Rulesets = append(sys, mutable...)
	return m, nil
}

func parseFile(path string, system bool) ([]Ruleset, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rulesets []Ruleset
	var current *Ruleset

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				rulesets = append(rulesets, *current)
			}
			num, _ := strconv.Atoi(m[2])
			current = &Ruleset{Number: num, Name: m[1], System: system}
			continue
		}

		if current == nil {
			continue
		}

		current.Lines = append(current.Lines, line)
	}

	if current != nil {
		rulesets = append(rulesets, *current)
	}

	return rulesets, scanner.Err()
}

// Find looks up a ruleset by its number or its name.
func (m *Manager) Find(ref string) (*Ruleset, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		for i := range m.Rulesets {
			if m.Rulesets[i].Number == n {
				return &m.Rulesets[i], nil
			}
		}
		return nil, fmt.Errorf("devfs ruleset %d not found", n)
	}

	for i := range m.Rulesets {
		if m.Rulesets[i].Name == ref {
			return &m.Rulesets[i], nil
		}
	}

	return nil, fmt.Errorf("devfs ruleset %q not found", ref)
}

func (m *Manager) nextNumber() int {
	max := 0
	for _, r := range m.Rulesets {
		if r.Number > max {
			max = r.Number
		}
	}
	return max + 1
}

// Compose returns the ruleset number a jail should use: baseRef's
// lines plus extraLines. If an existing mutable ruleset already has
// exactly that composed line set, its number is reused instead of
// minting a new one — this is what makes re-synthesis idempotent
// (testable property 7).
func (m *Manager) Compose(baseRef string, extraLines []string) (int, error) {
	base, err := m.Find(baseRef)
	if err != nil {
		return 0, err
	}

	composed := dedupAppend(base.Lines, extraLines)

	for _, r := range m.Rulesets {
		if r.System {
			continue
		}
		if sameLines(r.Lines, composed) {
			return r.Number, nil
		}
	}

	number := m.nextNumber()
	name := fmt.Sprintf("%s%d", AutoNamePrefix, number)
	m.Rulesets = append(m.Rulesets, Ruleset{Number: number, Name: name, Lines: composed})

	if err := m.writeRulesFile(); err != nil {
		return 0, err
	}

	if err := restartDevfs(); err != nil {
		logger.L.Warn().Err(err).Msg("failed to restart devfs service after ruleset change")
	}

	return number, nil
}

func dedupAppend(base, extra []string) []string {
	out := append([]string{}, base...)
	for _, line := range extra {
		if !slices.Contains(out, line) {
			out = append(out, line)
		}
	}
	return out
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// writeRulesFile rewrites RulesPath with every mutable (non-system)
// ruleset, only if the resulting content differs from what's on disk.
func (m *Manager) writeRulesFile() error {
	var sb strings.Builder
	for _, r := range m.Rulesets {
		if r.System {
			continue
		}
		fmt.Fprintf(&sb, "[%s=%d]\n", r.Name, r.Number)
		for _, line := range r.Lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	newContent := sb.String()

	if existing, err := os.ReadFile(m.RulesPath); err == nil && string(existing) == newContent {
		return nil
	}

	tmp := m.RulesPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(newContent), 0o644); err != nil {
		return fmt.Errorf("write temp devfs.rules: %w", err)
	}

	return os.Rename(tmp, m.RulesPath)
}

func restartDevfs() error {
	return exec.Command("service", "devfs", "restart").Run()
}

// ExtraLines returns the additional "add path ... unhide" lines a
// jail's config requires: DHCP needs bpf* visible for dhclient, ZFS
// delegation needs the zfs device node.
func ExtraLines(hasDHCP, allowMountZFS, jailZFS bool) []string {
	var lines []string
	if hasDHCP {
		lines = append(lines, "add path 'bpf*' unhide")
	}
	if allowMountZFS || jailZFS {
		lines = append(lines, "add path zfs unhide")
	}
	return lines
}
