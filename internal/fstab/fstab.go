// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package fstab manages a jail's per-jail fstab file: the real,
// user-authored mount lines plus the synthesized basejail and
// launch-scripts mounts that are recomputed on every read rather than
// persisted.
package fstab

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alchemillahq/sylve/internal/logger"
)

// autoComment marks a line as orchestrator-synthesized; such lines are
// never written back by Save, and are skipped (not loaded into Lines)
// if somehow present in the on-disk file.
const autoComment = "iocage-auto"

// BaseDirs is the fixed list of release subdirectories a basejail
// shares from its release (or base) dataset, in the order the fstab
// entries are synthesized. usr/lib32 is appended separately, only for
// FreeBSD hosts with a lib32 release asset.
var BaseDirs = []string{
	"bin", "boot", "lib", "libexec", "rescue", "sbin",
	"usr/bin", "usr/lib", "usr/libexec", "usr/sbin",
}

// Line is one fstab 6-tuple, plus whether it's real (user-authored,
// persisted) or synthesized (Auto, recomputed every read).
type Line struct {
	Source      string
	Destination string
	FSType      string
	Options     string
	Dump        int
	Pass        int
	Auto        bool
}

func (l Line) String() string {
	return fmt.Sprintf("%s %s %s %s %d %d", l.Source, l.Destination, l.FSType, l.Options, l.Dump, l.Pass)
}

// Manager owns one jail's fstab file.
type Manager struct {
	Path  string
	Lines []Line // real lines only; auto lines are never stored here
}

// Load reads Path, keeping only real (non-auto, non-comment, non-blank)
// lines, and logs (without failing) any duplicate destination it
// finds among them.
func Load(path string) (*Manager, error) {
	m := &Manager{Path: path}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open fstab %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		if strings.Contains(raw, autoComment) {
			continue
		}

		line, err := parseLine(raw)
		if err != nil {
			logger.L.Warn().Err(err).Str("path", path).Msg("skipping malformed fstab line")
			continue
		}

		if seen[line.Destination] {
			logger.L.Error().Str("destination", line.Destination).Str("path", path).
				Msg("duplicate fstab mount destination")
		}
		seen[line.Destination] = true

		m.Lines = append(m.Lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan fstab %s: %w", path, err)
	}

	return m, nil
}

func parseLine(raw string) (Line, error) {
	fields := strings.Fields(raw)
	if len(fields) < 4 {
		return Line{}, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}

	line := Line{Source: fields[0], Destination: fields[1], FSType: fields[2], Options: fields[3]}

	if len(fields) > 4 {
		if d, err := strconv.Atoi(fields[4]); err == nil {
			line.Dump = d
		}
	}
	if len(fields) > 5 {
		if p, err := strconv.Atoi(fields[5]); err == nil {
			line.Pass = p
		}
	}

	return line, nil
}

// NewLine constructs a real (non-auto) Line.
func NewLine(source, dest, fsType, options string, dump, pass int) Line {
	return Line{Source: source, Destination: dest, FSType: fsType, Options: options, Dump: dump, Pass: pass}
}

// AddLine appends a real line, logging (not failing) if it collides on
// destination with an existing one.
func (m *Manager) AddLine(l Line) {
	for _, existing := range m.Lines {
		if existing.Destination == l.Destination {
			logger.L.Error().Str("destination", l.Destination).Msg("duplicate fstab mount destination")
			break
		}
	}
	m.Lines = append(m.Lines, l)
}

// ReplacePath rewrites every line's Source and Destination that begin
// with oldPrefix to begin with newPrefix instead, used by rename and
// clone to retarget a jail's fstab at its new dataset mountpoint.
func (m *Manager) ReplacePath(oldPrefix, newPrefix string) {
	for i, l := range m.Lines {
		if strings.HasPrefix(l.Source, oldPrefix) {
			m.Lines[i].Source = newPrefix + strings.TrimPrefix(l.Source, oldPrefix)
		}
		if strings.HasPrefix(l.Destination, oldPrefix) {
			m.Lines[i].Destination = newPrefix + strings.TrimPrefix(l.Destination, oldPrefix)
		}
	}
}

// AutoBasejailLines synthesizes the read-only nullfs mount lines for
// every BaseDirs entry (plus usr/lib32 if includeLib32), from
// releaseRoot (<source>/releases/<release>/root) into jailRoot
// (<source>/jails/<id>/root).
func AutoBasejailLines(releaseRoot, jailRoot string, includeLib32 bool) []Line {
	dirs := BaseDirs
	if includeLib32 {
		dirs = append(append([]string{}, BaseDirs...), "usr/lib32")
	}

	lines := make([]Line, 0, len(dirs))
	for _, dir := range dirs {
		lines = append(lines, Line{
			Source:      releaseRoot + "/" + dir,
			Destination: jailRoot + "/" + dir,
			FSType:      "nullfs",
			Options:     "ro",
			Auto:        true,
		})
	}

	return lines
}

// AutoLaunchScriptsLine synthesizes the read-only bind mount of
// launch-scripts/ at /.iocage inside the jail.
func AutoLaunchScriptsLine(launchScriptsDir, jailRoot string) Line {
	return Line{
		Source:      launchScriptsDir,
		Destination: jailRoot + "/.iocage",
		FSType:      "nullfs",
		Options:     "ro",
		Auto:        true,
	}
}

// All returns the real lines plus the given synthesized lines, in
// iteration order: real lines first, then synthesized.
func (m *Manager) All(auto ...Line) []Line {
	out := make([]Line, 0, len(m.Lines)+len(auto))
	out = append(out, m.Lines...)
	out = append(out, auto...)
	return out
}

// Save writes only the real (non-auto) lines back to Path, atomically.
func (m *Manager) Save() error {
	var sb strings.Builder
	for _, l := range m.Lines {
		if l.Auto {
			continue
		}
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}

	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write temp fstab: %w", err)
	}

	return os.Rename(tmp, m.Path)
}
