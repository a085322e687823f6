// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package storage implements the three ways a jail's root filesystem
// can be provisioned from a fetched release: a standalone clone, a
// nullfs basejail sharing the release's mounted root read-only, and a
// zfs-basejail cloning per-basedir datasets directly onto the jail's
// own dataset tree.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alchemillahq/sylve/internal/fstab"
	"github.com/alchemillahq/sylve/internal/release"
	"github.com/alchemillahq/sylve/pkg/zfs"
)

// Kind names one of the three storage strategies, stored as a jail's
// basejail/basejail_type property pair resolve to.
type Kind string

const (
	KindStandalone     Kind = "standalone"
	KindNullFSBasejail Kind = "nullfs"
	KindZFSBasejail    Kind = "zfs"
)

// snapshotName is the fixed snapshot iocage takes of a release (and of
// each per-basedir base dataset) the first time it's cloned from;
// later clones reuse the same snapshot instead of creating a new one
// per jail.
const snapshotName = "iocage"

// ZFS is the subset of *pkg/zfs.zfs a backend needs, narrowed to keep
// this package testable against a fake.
type ZFS interface {
	GetDataset(name string) (*zfs.Dataset, error)
	CreateFilesystem(name string, createParents bool, properties map[string]string) (*zfs.Dataset, error)
	Exists(name string) (bool, error)
}

// Backend provisions, wires, and tears down one jail's root filesystem.
type Backend interface {
	// Create provisions the jail's root dataset(s) from the release.
	Create() error
	// Apply wires any fstab lines the strategy needs (nullfs basejails:
	// the basedir lines plus the launch-scripts line; zfs-basejails: the
	// launch-scripts line; standalone: none) and saves fm.
	Apply(fm *fstab.Manager) error
	// Teardown is a no-op in all three backends: it destroys none of
	// the datasets Create made. It does not
	// unmount filesystems — that's the lifecycle engine's mount
	// teardown list, run before Teardown against live mounts.
	Teardown() error
}

func snapshotOrExisting(z ZFS, ds *zfs.Dataset, name string) (*zfs.Dataset, error) {
	snap, err := ds.Snapshot(name, false)
	if err == nil {
		return snap, nil
	}

	existing, getErr := z.GetDataset(ds.Name + "@" + name)
	if getErr != nil {
		return nil, fmt.Errorf("snapshot %s@%s: %w", ds.Name, name, err)
	}
	return existing, nil
}

// Standalone clones the release's root dataset directly into the
// jail's own root dataset; the jail owns a private, writable copy of
// the entire world.
type Standalone struct {
	ZFS      ZFS
	Release  *release.Release
	RootDest string // e.g. <source>/jails/<name>/root
}

func (b *Standalone) Create() error {
	releaseDS, err := b.ZFS.GetDataset(b.Release.RootDataset())
	if err != nil {
		return fmt.Errorf("get release dataset: %w", err)
	}

	snap, err := snapshotOrExisting(b.ZFS, releaseDS, snapshotName)
	if err != nil {
		return err
	}

	if _, err := snap.Clone(b.RootDest, nil); err != nil {
		return fmt.Errorf("clone %s -> %s: %w", snap.Name, b.RootDest, err)
	}

	return nil
}

func (b *Standalone) Apply(fm *fstab.Manager) error {
	return fm.Save()
}

func (b *Standalone) Teardown() error {
	return nil
}

// NullFSBasejail mounts the basedirs from an already-extracted,
// read-only release root into an otherwise-empty jail root via nullfs
// fstab entries; only /etc, /var, and similar per-jail state live in
// the jail's own dataset.
type NullFSBasejail struct {
	ZFS             ZFS
	Release         *release.Release
	RootDest        string // <source>/jails/<name>/root dataset name
	RootPath        string // that dataset's mounted path
	ReleaseRootPath string // the release's mounted root path
	IncludeLib32    bool
}

func (b *NullFSBasejail) Create() error {
	if _, err := b.ZFS.CreateFilesystem(b.RootDest, true, nil); err != nil {
		return fmt.Errorf("create jail root dataset: %w", err)
	}
	return os.MkdirAll(b.RootPath, 0o755)
}

func (b *NullFSBasejail) Apply(fm *fstab.Manager) error {
	lines := fstab.AutoBasejailLines(b.ReleaseRootPath, b.RootPath, b.IncludeLib32)
	lines = append(lines, fstab.AutoLaunchScriptsLine(filepath.Join(b.RootPath, ".iocage", "launch-scripts"), b.RootPath))

	for _, l := range lines {
		fm.AddLine(l)
	}

	return fm.Save()
}

func (b *NullFSBasejail) Teardown() error {
	return nil
}

// ZFSBasejail clones the release root wholesale for a jail's own
// state, then overlays each basedir with a clone of that basedir's
// dedicated base/<release>/<basedir> dataset, mountpoint-set directly
// onto the jail root's basedir path so ZFS mounts it in place instead
// of relying on nullfs.
type ZFSBasejail struct {
	ZFS          ZFS
	Release      *release.Release
	RootDest     string // <source>/jails/<name>/root
	RootPath     string // mounted path of RootDest
	IncludeLib32 bool
}

func (b *ZFSBasejail) Create() error {
	releaseDS, err := b.ZFS.GetDataset(b.Release.RootDataset())
	if err != nil {
		return fmt.Errorf("get release dataset: %w", err)
	}

	snap, err := snapshotOrExisting(b.ZFS, releaseDS, snapshotName)
	if err != nil {
		return err
	}

	if _, err := snap.Clone(b.RootDest, nil); err != nil {
		return fmt.Errorf("clone %s -> %s: %w", snap.Name, b.RootDest, err)
	}

	dirs := fstab.BaseDirs
	if b.IncludeLib32 {
		dirs = append(dirs, "usr/lib32")
	}

	for _, dir := range dirs {
		baseDS, err := b.ZFS.GetDataset(fmt.Sprintf("%s/%s", b.Release.BaseDataset(), dir))
		if err != nil {
			return fmt.Errorf("get base dataset for %s: %w", dir, err)
		}

		baseSnap, err := snapshotOrExisting(b.ZFS, baseDS, snapshotName)
		if err != nil {
			return err
		}

		dest := fmt.Sprintf("%s/%s", b.RootDest, flattenDir(dir))
		mountpoint := filepath.Join(b.RootPath, dir)

		if _, err := baseSnap.Clone(dest, map[string]string{"mountpoint": mountpoint}); err != nil {
			return fmt.Errorf("clone basedir %s: %w", dir, err)
		}
	}

	return nil
}

func (b *ZFSBasejail) Apply(fm *fstab.Manager) error {
	fm.AddLine(fstab.AutoLaunchScriptsLine(filepath.Join(b.RootPath, ".iocage", "launch-scripts"), b.RootPath))
	return fm.Save()
}

func (b *ZFSBasejail) Teardown() error {
	return nil
}

// flattenDir turns a "usr/bin"-style basedir path into a single
// dataset name component ("usr-bin") — ZFS datasets can't nest a
// child under a path that isn't itself a dataset, and the basedirs
// all live as plain directories inside the base release clone, not
// as intermediate datasets.
func flattenDir(dir string) string {
	return strings.ReplaceAll(dir, "/", "-")
}
