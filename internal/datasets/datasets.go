// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package datasets manages "sources" — ZFS pools activated for jail
// storage — and the fixed dataset layout iocage/libioc expects under
// each one: <pool>/iocage/{jails,releases,base,download,templates,log}.
package datasets

import (
	"fmt"
	"strings"

	"github.com/alchemillahq/sylve/internal/logger"
	"github.com/alchemillahq/sylve/pkg/zfs"
)

// ActiveProperty is the zpool user property that marks a pool as an
// activated jail storage source, mirroring iocage's
// org.freebsd.ioc:active convention.
const ActiveProperty = "org.freebsd.ioc:active"

// Root is the dataset basename every source is rooted at.
const Root = "iocage"

var childDatasets = []string{"jails", "releases", "base", "download", "templates", "log"}

// ZFS is the subset of *pkg/zfs handle methods a Source needs. Kept as
// an interface so configstore/release/storage tests can substitute a
// fake without touching real pools.
type ZFS interface {
	Exists(name string) (bool, error)
	CreateFilesystem(name string, createParents bool, properties map[string]string) (*zfs.Dataset, error)
	GetDataset(name string) (*zfs.Dataset, error)
	Pools() ([]*zfs.Pool, error)
	GetPoolProperty(pool, key string) (string, error)
	SetPoolProperty(pool, key, value string) error
}

// Source is one activated pool's iocage dataset tree.
type Source struct {
	z    ZFS
	Pool string
}

// RootDataset returns "<pool>/iocage".
func (s *Source) RootDataset() string {
	return fmt.Sprintf("%s/%s", s.Pool, Root)
}

func (s *Source) child(name string) string {
	return fmt.Sprintf("%s/%s", s.RootDataset(), name)
}

func (s *Source) Jails() string     { return s.child("jails") }
func (s *Source) Releases() string  { return s.child("releases") }
func (s *Source) Base() string      { return s.child("base") }
func (s *Source) Download() string  { return s.child("download") }
func (s *Source) Templates() string { return s.child("templates") }
func (s *Source) Log() string       { return s.child("log") }

// Activate sets org.freebsd.ioc:active=yes on pool and lays down the
// standard dataset tree under <pool>/iocage, creating only what's
// missing — calling Activate twice is a no-op the second time.
func Activate(z ZFS, pool string) (*Source, error) {
	if !zfs.IsValidPoolName(pool) {
		return nil, fmt.Errorf("invalid pool name: %s", pool)
	}

	if err := z.SetPoolProperty(pool, ActiveProperty, "yes"); err != nil {
		return nil, fmt.Errorf("activate pool %s: %w", pool, err)
	}

	s := &Source{z: z, Pool: pool}

	root := s.RootDataset()
	if ok, err := z.Exists(root); err != nil {
		return nil, err
	} else if !ok {
		if _, err := z.CreateFilesystem(root, true, map[string]string{"mountpoint": "/" + Root}); err != nil {
			return nil, fmt.Errorf("create root dataset %s: %w", root, err)
		}
	}

	for _, child := range childDatasets {
		name := s.child(child)
		ok, err := z.Exists(name)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}

		if _, err := z.CreateFilesystem(name, true, nil); err != nil {
			return nil, fmt.Errorf("create dataset %s: %w", name, err)
		}
		logger.L.Debug().Str("dataset", name).Msg("created source dataset")
	}

	return s, nil
}

// Deactivate clears the activation property without touching data;
// the pool's jails simply stop being discovered until re-activated.
func Deactivate(z ZFS, pool string) error {
	return z.SetPoolProperty(pool, ActiveProperty, "no")
}

// List returns a Source for every imported pool carrying
// org.freebsd.ioc:active=yes.
func List(z ZFS) ([]*Source, error) {
	pools, err := z.Pools()
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}

	sources := make([]*Source, 0, len(pools))
	for _, p := range pools {
		v, err := z.GetPoolProperty(p.Name, ActiveProperty)
		if err != nil || strings.TrimSpace(v) != "yes" {
			continue
		}

		sources = append(sources, &Source{z: z, Pool: p.Name})
	}

	return sources, nil
}

// Default returns the first activated source, matching iocage's
// behavior when a command is given no explicit --source flag. It
// errors only if no source is active; when several are active it
// returns the first pool List reports.
func Default(z ZFS) (*Source, error) {
	sources, err := List(z)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no activated jail source found, run datasets.Activate first")
	}

	return sources[0], nil
}
