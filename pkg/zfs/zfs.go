// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package zfs is a thin binding over the zfs(8)/zpool(8) command line
// tools, parsing their -j (libxo JSON) output where available. It does
// not talk to libzfs directly; every operation shells out.
package zfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Runner executes an external command, wiring in/out/err the way
// exec.Cmd does. Production code uses execRunner; tests substitute a
// fake to assert on the command line without touching a real pool.
type Runner interface {
	Run(in io.Reader, out, errOut io.Writer, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(in io.Reader, out, errOut io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = in
	cmd.Stdout = out
	cmd.Stderr = errOut
	return cmd.Run()
}

// zfs is the unexported handle every Dataset/Pool method dispatches
// through. Callers obtain one via New.
type zfs struct {
	exec Runner
	sudo bool
}

// New returns a zfs handle that shells out directly as the current
// process's UID. Pass sudo=true to prefix every invocation with sudo,
// for callers running unprivileged but granted a NOPASSWD zfs/zpool
// sudoers rule.
func New(sudo bool) *zfs {
	return &zfs{exec: execRunner{}, sudo: sudo}
}

// NewWithRunner is for tests: it injects a fake Runner so dataset/pool
// logic can be exercised without invoking the real zfs(8) binary.
func NewWithRunner(r Runner, sudo bool) *zfs {
	return &zfs{exec: r, sudo: sudo}
}

func (z *zfs) do(args ...string) error {
	_, err := z.run(nil, nil, "zfs", args...)
	return err
}

func (z *zfs) doOutput(args ...string) ([][]string, error) {
	return z.run(nil, nil, "zfs", args...)
}

func (z *zfs) doOutputJSON(args ...string) ([]byte, error) {
	return z.runJSON("zfs", args...)
}

// GetDataset fetches a single dataset (filesystem, volume, or
// snapshot) by its full name ("pool/ds" or "pool/ds@snap").
func (z *zfs) GetDataset(name string) (*Dataset, error) {
	out, err := z.doOutputJSON("get", "-H", "-p", "all", name, "-j")
	if err != nil {
		return nil, err
	}

	var output JSONDatasets
	if err := json.Unmarshal(out, &output); err != nil {
		return nil, fmt.Errorf("parse zfs get output for %s: %w", name, err)
	}

	jds, ok := output.Datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %s not found", name)
	}

	d := &Dataset{z: z, Name: name, Type: DatasetType(jds.Type)}
	if err := d.parsePropsJSON(jds); err != nil {
		return nil, err
	}

	return d, nil
}

// Exists reports whether the named dataset exists without treating
// "not found" as an error.
func (z *zfs) Exists(name string) (bool, error) {
	_, err := z.GetDataset(name)
	if err == nil {
		return true, nil
	}

	var zerr *Error
	if errors.As(err, &zerr) && strings.Contains(zerr.Stderr, "dataset does not exist") {
		return false, nil
	}

	if strings.Contains(err.Error(), "not found") {
		return false, nil
	}

	return false, err
}

// Datasets lists filesystems and volumes under parent, recursing to
// depth (0 means unlimited, matching zfs-list(8) -r).
func (z *zfs) Datasets(parent string, depth uint64) ([]*Dataset, error) {
	return z.list(parent, depth, "filesystem,volume")
}

// Snapshots lists every snapshot of parent.
func (z *zfs) Snapshots(parent string) ([]*Dataset, error) {
	return z.list(parent, 1, "snapshot")
}

func (z *zfs) list(parent string, depth uint64, types string) ([]*Dataset, error) {
	args := []string{"list"}

	if depth > 0 {
		args = append(args, "-d", strconv.FormatUint(depth, 10))
	} else {
		args = append(args, "-r")
	}

	args = append(args, "-t", types, "-p", "-o", "all", parent, "-j")

	out, err := z.doOutputJSON(args...)
	if err != nil {
		return nil, err
	}

	var output JSONDatasets
	if err := json.Unmarshal(out, &output); err != nil {
		return nil, fmt.Errorf("parse zfs list output: %w", err)
	}

	datasets := make([]*Dataset, 0, len(output.Datasets))
	for name, jds := range output.Datasets {
		if name == parent && types != "snapshot" {
			continue
		}

		d := &Dataset{z: z, Name: name, Type: DatasetType(jds.Type)}
		if err := d.parsePropsJSON(jds); err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}

	return datasets, nil
}

// CreateFilesystem creates a ZFS filesystem, creating parents with -p
// when requested.
func (z *zfs) CreateFilesystem(name string, createParents bool, properties map[string]string) (*Dataset, error) {
	args := []string{"create"}
	if createParents {
		args = append(args, "-p")
	}
	args = append(args, propsSlice(properties)...)
	args = append(args, name)

	if err := z.do(args...); err != nil {
		return nil, err
	}

	return z.GetDataset(name)
}

// Receive runs `zfs receive <dest>`, streaming from in. Nothing in the
// module calls it.
func (z *zfs) Receive(dest string, in io.Reader, force bool) error {
	args := []string{"recv"}
	if force {
		args = append(args, "-F")
	}
	args = append(args, dest)

	_, err := z.run(in, nil, "zfs", args...)
	return err
}

func propsSlice(properties map[string]string) []string {
	if len(properties) == 0 {
		return nil
	}

	out := make([]string, 0, len(properties)*2)
	for k, v := range properties {
		out = append(out, "-o", fmt.Sprintf("%s=%s", k, v))
	}

	return out
}

func setString(dst *string, v string) {
	if v != "" && v != "-" {
		*dst = v
	}
}

func setBool(dst *bool, v string) {
	*dst = v == "yes" || v == "on" || v == "true"
}

func setUint(dst *uint64, v string) error {
	if v == "" || v == "-" {
		*dst = 0
		return nil
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}

	*dst = n
	return nil
}

var diffLineRe = regexp.MustCompile(`^([+\-MR])\s+\S\s+(\S+)(?:\s+(\S+))?$`)

// parseInodeChanges parses the -FH (machine-parseable, no timestamps)
// output of zfs-diff(8): change type, file type, path[, new path].
func parseInodeChanges(lines [][]string) ([]*InodeChange, error) {
	changes := make([]*InodeChange, 0, len(lines))

	for _, fields := range lines {
		if len(fields) == 0 {
			continue
		}

		joined := strings.Join(fields, " ")
		m := diffLineRe.FindStringSubmatch(joined)
		if m == nil {
			continue
		}

		ic := &InodeChange{Type: rune(m[1][0]), Path: m[2]}
		if m[3] != "" {
			ic.NewPath = m[3]
		}

		changes = append(changes, ic)
	}

	return changes, nil
}
