// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package lifecycle is the jail state machine: create/start/stop/
// restart/destroy/rename/clone, each composing commands gathered from
// every other component (special properties, fstab, devfs, storage,
// network) into hook scripts and a jail.conf launch fragment, with
// ordered rollback on partial failure via the event stream.
package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alchemillahq/sylve/internal/configmodel"
	"github.com/alchemillahq/sylve/internal/configstore"
	"github.com/alchemillahq/sylve/internal/devfs"
	"github.com/alchemillahq/sylve/internal/events"
	"github.com/alchemillahq/sylve/internal/fstab"
	"github.com/alchemillahq/sylve/internal/hostadapter"
	"github.com/alchemillahq/sylve/internal/jailstate"
	"github.com/alchemillahq/sylve/internal/network"
	"github.com/alchemillahq/sylve/internal/specialprops"
	"github.com/alchemillahq/sylve/internal/storage"
	"github.com/alchemillahq/sylve/pkg/zfs"
)

// ZFS is the subset of *pkg/zfs.zfs the engine needs for rename/clone/
// destroy against a jail's own dataset tree.
type ZFS interface {
	GetDataset(name string) (*zfs.Dataset, error)
}

// ErrPrecondition is returned when an operation's precondition isn't
// met (e.g. starting an already-running jail, destroying a running
// one without force).
type ErrPrecondition struct {
	Op     string
	Reason string
}

func (e *ErrPrecondition) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Jail is one jail's full runtime context: its identity, dataset
// paths, resolved config, and the sub-components (fstab, devfs,
// storage backend, network NICs) the engine composes a launch from.
type Jail struct {
	ID          string // bare jail id/uuid, config dataset key
	Name        string // launch name, "<source>-<id>"
	Dataset     string // <source>/jails/<id>
	RootDataset string // Dataset + "/root"
	RootPath    string // mounted path of RootDataset
	LaunchDir   string // Dataset's mounted "launch-scripts" path
	ConfPath    string // Dataset's mounted "jail.conf" path

	Model    *configmodel.Model
	Fstab    *fstab.Manager
	Devfs    *devfs.Manager
	Backend  storage.Backend
	NICs     []network.Epair
	HostInfo hostadapter.Info
	ZFS      ZFS
	Stream   *events.Stream

	Template bool
	VNet     bool
	Basejail bool

	devfsRuleset int
}

func (j *Jail) jailRef() specialprops.JailRef {
	jid := 0
	if st, err := jailstate.Query(j.Name); err == nil {
		jid = st.JID
	}
	return specialprops.JailRef{Name: j.Name, JID: jid}
}

// hasDHCPNIC reports whether any NIC's address entries request DHCP,
// which the devfs ruleset needs to know to unhide bpf*.
func (j *Jail) hasDHCPNIC() bool {
	prop, err := j.Model.SpecialProperty("ip4_addr")
	if err != nil {
		return false
	}
	v4, ok := prop.(*specialprops.IPAddressSet)
	return ok && v4.HasDHCP()
}

func (j *Jail) running() bool {
	st, err := jailstate.Query(j.Name)
	if err != nil {
		return false
	}
	return st.Running()
}

func runHost(node *events.Node, args ...string) error {
	cmd := exec.Command(args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	if node != nil {
		node.Step(strings.Join(args, " "), nil)
	}
	return nil
}

// Create provisions a new jail's dataset tree and root filesystem,
// without starting it: the storage backend's Create, the config
// store's initial Save, and an empty fstab/launch-scripts layout.
func (j *Jail) Create(stream *events.Stream) error {
	node := events.Begin(stream, "jail.create", j.ID)

	if err := j.Backend.Create(); err != nil {
		return node.Fail(fmt.Errorf("provision storage: %w", err))
	}
	node.AddRollback(func() error { return j.Backend.Teardown() })

	if err := os.MkdirAll(j.LaunchDir, 0o755); err != nil {
		return node.Fail(fmt.Errorf("create launch-scripts dir: %w", err))
	}

	fm := &fstab.Manager{Path: j.Fstab.Path}
	if err := j.Backend.Apply(fm); err != nil {
		return node.Fail(fmt.Errorf("wire storage fstab: %w", err))
	}

	if err := j.Model.Save(); err != nil {
		return node.Fail(fmt.Errorf("save initial config: %w", err))
	}

	node.End("")
	return nil
}

// Start implements spec §4.9's start operation: requires the jail
// exists, isn't already running, and isn't a template; writes every
// hook script and the jail.conf fragment, runs `jail -c`, confirms the
// kernel state, applies resource limits, and writes the resolver.
func (j *Jail) Start(stream *events.Stream) error {
	node := events.Begin(stream, "jail.start", j.ID)

	if _, err := j.ZFS.GetDataset(j.Dataset); err != nil {
		return node.Fail(&ErrPrecondition{Op: "start", Reason: "jail does not exist"})
	}
	if j.Template {
		return node.Fail(&ErrPrecondition{Op: "start", Reason: "jail is a template"})
	}
	if j.running() {
		return node.Fail(&ErrPrecondition{Op: "start", Reason: "jail is already running"})
	}

	devfsNode := node.Child("jail.devfs", j.ID)
	hasDHCP := j.hasDHCPNIC()
	allowMountZFS := truthy(j.mustGet("allow_mount_zfs", "0"))
	jailZFS := truthy(j.mustGet("jail_zfs", "no"))
	extraLines := devfs.ExtraLines(hasDHCP, allowMountZFS, jailZFS)
	baseRef := j.mustGet("devfs_ruleset", "4")
	number, err := j.Devfs.Compose(baseRef, extraLines)
	if err != nil {
		return devfsNode.Fail(fmt.Errorf("compose devfs ruleset: %w", err))
	}
	j.devfsRuleset = number
	devfsNode.End("")

	hooksNode := node.Child("jail.hooks", j.ID)
	if err := j.WriteHookScripts(0); err != nil {
		return hooksNode.Fail(err)
	}
	node.AddRollback(func() error {
		return os.RemoveAll(j.LaunchDir)
	})
	hooksNode.End("")

	confNode := node.Child("jail.conf", j.ID)
	conf, err := j.BuildLaunchParams()
	if err != nil {
		return confNode.Fail(err)
	}
	if err := os.WriteFile(j.ConfPath, []byte(conf), 0o644); err != nil {
		return confNode.Fail(fmt.Errorf("write jail.conf: %w", err))
	}
	confNode.End("")

	execNode := node.Child("jail.exec", j.ID)
	if err := runHost(execNode, "jail", "-f", j.ConfPath, "-c", j.Name); err != nil {
		// jail -c non-zero exit triggers a full forced stop to clean up
		// any half-applied mounts/network before surfacing the error.
		_ = j.Stop(stream, true)
		return execNode.Fail(err)
	}
	node.AddRollback(func() error { return j.Stop(stream, true) })
	execNode.End("")

	st, err := jailstate.Query(j.Name)
	if err != nil || !st.Running() {
		return node.Fail(fmt.Errorf("jail did not appear in jls after jail -c"))
	}

	if err := writeEnv(j.LaunchDir, st.JID, j.RootPath); err != nil {
		return node.Fail(err)
	}

	resolverNode := node.Child("jail.resolver", j.ID)
	if resolver, err := j.Model.SpecialProperty("resolver"); err == nil {
		if r, ok := resolver.(*specialprops.Resolver); ok {
			if err := r.WriteResolvConf(j.RootPath); err != nil {
				return resolverNode.Fail(fmt.Errorf("write resolv.conf: %w", err))
			}
		}
	}
	resolverNode.End("")

	node.End("")
	return nil
}

// Stop implements spec §4.9's stop operation: requires running or
// force; writes prestop/stop/poststop, runs `jail -r`, and on forced
// failure replays prestop.sh/poststop.sh by hand from the host.
func (j *Jail) Stop(stream *events.Stream, force bool) error {
	node := events.Begin(stream, "jail.stop", j.ID)

	if !j.running() && !force {
		return node.Fail(&ErrPrecondition{Op: "stop", Reason: "jail is not running"})
	}

	if err := j.WriteHookScripts(j.jailRef().JID); err != nil {
		return node.Fail(err)
	}

	err := runHost(node, "jail", "-r", "-f", j.ConfPath, j.Name)
	if err != nil {
		if !force {
			return node.Fail(err)
		}
		// Forced cleanup: the kernel teardown failed or the jail was
		// already half-gone, so replay the host-side scripts manually.
		_ = runShellScript(j.LaunchDir, "prestop.sh")
		_ = runShellScript(j.LaunchDir, "poststop.sh")
	}

	node.End("")
	return nil
}

func runShellScript(dir, name string) error {
	cmd := exec.Command("/bin/sh", filepath.Join(dir, name))
	cmd.Dir = dir
	return cmd.Run()
}

// Restart re-runs exec_start inside the existing jail (soft) or does
// a full stop-then-start (hard).
func (j *Jail) Restart(stream *events.Stream, hard bool) error {
	node := events.Begin(stream, "jail.restart", j.ID)

	if hard {
		if err := j.Stop(stream, false); err != nil {
			return node.Fail(err)
		}
		if err := j.Start(stream); err != nil {
			return node.Fail(err)
		}
		node.End("")
		return nil
	}

	if !j.running() {
		return node.Fail(&ErrPrecondition{Op: "restart", Reason: "jail is not running"})
	}

	ref := j.jailRef()
	if err := runHost(node, "jexec", fmt.Sprintf("%d", ref.JID), "/.iocage/start.sh"); err != nil {
		return node.Fail(err)
	}

	node.End("")
	return nil
}

// Destroy requires the jail isn't running unless force is set (which
// stops it first), then destroys its dataset tree recursively.
func (j *Jail) Destroy(stream *events.Stream, force bool) error {
	node := events.Begin(stream, "jail.destroy", j.ID)

	if j.running() {
		if !force {
			return node.Fail(&ErrPrecondition{Op: "destroy", Reason: "jail is running"})
		}
		if err := j.Stop(stream, true); err != nil {
			return node.Fail(err)
		}
	}

	ds, err := j.ZFS.GetDataset(j.Dataset)
	if err != nil {
		return node.Fail(fmt.Errorf("get jail dataset: %w", err))
	}

	if err := ds.Destroy(zfs.DestroyRecursive | zfs.DestroyForceUmount); err != nil {
		return node.Fail(fmt.Errorf("destroy jail dataset: %w", err))
	}

	node.End("")
	return nil
}

// Rename requires the jail isn't running; validates the new id,
// renames the dataset, and rewrites fstab path prefixes to the new
// mountpoint.
func (j *Jail) Rename(stream *events.Stream, newID string) error {
	node := events.Begin(stream, "jail.rename", j.ID)

	if j.running() {
		return node.Fail(&ErrPrecondition{Op: "rename", Reason: "jail is running"})
	}
	if !configmodel.ValidID(newID) {
		return node.Fail(fmt.Errorf("invalid new jail id: %s", newID))
	}

	ds, err := j.ZFS.GetDataset(j.Dataset)
	if err != nil {
		return node.Fail(fmt.Errorf("get jail dataset: %w", err))
	}

	newDataset := parentOf(j.Dataset) + "/" + newID
	if _, err := ds.Rename(newDataset, false, true, true); err != nil {
		return node.Fail(fmt.Errorf("rename dataset: %w", err))
	}

	oldPrefix := j.RootPath
	newPrefix := strings.Replace(j.RootPath, "/"+j.ID+"/", "/"+newID+"/", 1)
	j.Fstab.ReplacePath(oldPrefix, newPrefix)
	if err := j.Fstab.Save(); err != nil {
		return node.Fail(fmt.Errorf("rewrite fstab: %w", err))
	}

	node.End("")
	return nil
}

// Clone snapshots the source dataset and its root (@clone_<ISO8601>),
// clones both into targetID's dataset tree, copies the resolved
// config onto the clone, and rewrites the clone's fstab to point at
// its own mountpoint instead of the source's. It returns the new
// jail's root mountpoint; constructing a full *Jail around it is the
// caller's job once it has reopened the clone's config store.
func (j *Jail) Clone(stream *events.Stream, targetID string) (string, error) {
	node := events.Begin(stream, "jail.clone", j.ID)

	if !configmodel.ValidID(targetID) {
		return "", node.Fail(fmt.Errorf("invalid target jail id: %s", targetID))
	}

	ds, err := j.ZFS.GetDataset(j.Dataset)
	if err != nil {
		return "", node.Fail(fmt.Errorf("get jail dataset: %w", err))
	}
	rootDs, err := j.ZFS.GetDataset(j.RootDataset)
	if err != nil {
		return "", node.Fail(fmt.Errorf("get jail root dataset: %w", err))
	}

	snapName := fmt.Sprintf("clone_%s", time.Now().UTC().Format("20060102T150405Z"))
	snap, err := ds.Snapshot(snapName, false)
	if err != nil {
		return "", node.Fail(fmt.Errorf("snapshot source dataset: %w", err))
	}
	node.AddRollback(func() error { return snap.Destroy(zfs.DestroyDefault) })

	rootSnap, err := rootDs.Snapshot(snapName, false)
	if err != nil {
		return "", node.Fail(fmt.Errorf("snapshot source root dataset: %w", err))
	}
	node.AddRollback(func() error { return rootSnap.Destroy(zfs.DestroyDefault) })

	targetDataset := parentOf(j.Dataset) + "/" + targetID
	clone, err := snap.Clone(targetDataset, nil)
	if err != nil {
		return "", node.Fail(fmt.Errorf("clone dataset: %w", err))
	}
	node.AddRollback(func() error { return clone.Destroy(zfs.DestroyRecursive) })

	rootClone, err := rootSnap.Clone(targetDataset+"/root", nil)
	if err != nil {
		return "", node.Fail(fmt.Errorf("clone root dataset: %w", err))
	}
	node.AddRollback(func() error { return rootClone.Destroy(zfs.DestroyRecursive) })

	configNode := node.Child("jail.clone.config", targetID)
	store := configstore.New(clone.Mountpoint, nil)
	if err := store.Write(j.Model.All()); err != nil {
		return "", configNode.Fail(fmt.Errorf("copy config to clone: %w", err))
	}
	configNode.End("")

	fstabNode := node.Child("jail.clone.fstab", targetID)
	clonedFstab, err := fstab.Load(filepath.Join(clone.Mountpoint, "fstab"))
	if err != nil {
		return "", fstabNode.Fail(fmt.Errorf("load cloned fstab: %w", err))
	}
	clonedFstab.ReplacePath(j.RootPath, rootClone.Mountpoint)
	if err := clonedFstab.Save(); err != nil {
		return "", fstabNode.Fail(fmt.Errorf("rewrite cloned fstab: %w", err))
	}
	fstabNode.End("")

	node.End("")
	return rootClone.Mountpoint, nil
}

func parentOf(dataset string) string {
	idx := strings.LastIndex(dataset, "/")
	if idx < 0 {
		return dataset
	}
	return dataset[:idx]
}
