// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package release provides the steps for turning a named OS release
// (e.g. "13.2-RELEASE") into an extracted world under
// <source>/releases/<name>/root: dataset naming, mirror download with
// SHA-256 verification (Fetch), secure archive extraction
// (ExtractSecure), post-extract defaults and EOL lookups. No function
// in the package chains these steps, and nothing creates the
// per-basedir "base" tree that zfs-basejails clone from.
package release

import (
	"fmt"
	"strings"

	"github.com/alchemillahq/sylve/internal/datasets"
	"github.com/alchemillahq/sylve/internal/hostadapter"
)

// FreeBSDAssets is the asset list of a FreeBSD/amd64 release.
// lib32.txz is FreeBSD/amd64 only; HardenedBSD releases omit it.
// Nothing in the module references this list.
var FreeBSDAssets = []string{"base.txz", "lib32.txz"}

// Release identifies one fetched (or fetchable) OS world.
type Release struct {
	Name       string // e.g. "13.2-RELEASE"
	Patchlevel string // optional, e.g. "p3"
	Source     *datasets.Source
}

// FullName is Name with Patchlevel appended when set.
func (r Release) FullName() string {
	if r.Patchlevel == "" {
		return r.Name
	}
	return fmt.Sprintf("%s-%s", r.Name, r.Patchlevel)
}

// Dataset is <source>/releases/<name>.
func (r Release) Dataset() string {
	return fmt.Sprintf("%s/%s", r.Source.Releases(), r.Name)
}

// RootDataset is the extracted world, <dataset>/root.
func (r Release) RootDataset() string {
	return r.Dataset() + "/root"
}

// UpdatesDataset is the updater's scratch workdir, <dataset>/updates.
func (r Release) UpdatesDataset() string {
	return r.Dataset() + "/updates"
}

// BaseDataset is the per-basedir zfs-basejail source root,
// <source>/base/<name>.
func (r Release) BaseDataset() string {
	return fmt.Sprintf("%s/%s", r.Source.Base(), r.Name)
}

// RealName computes the mirror-path name used to fetch the hash file:
// equal to Name on FreeBSD, "HardenedBSD-<name>-<arch>-LATEST" on
// HardenedBSD (spec §4.6 / original_source's _get_real_name rule).
func RealName(name string, flavor hostadapter.Flavor, arch string) string {
	if flavor == hostadapter.FlavorHardenedBSD {
		base := strings.TrimSuffix(name, "-RELEASE")
		return fmt.Sprintf("HardenedBSD-%s-%s-LATEST", base, arch)
	}
	return name
}

// HashFileName is the manifest file a mirror publishes for a release:
// FreeBSD since 12 uses MANIFEST; older releases and HardenedBSD use
// CHECKSUMS.SHA256.
func HashFileName(flavor hostadapter.Flavor, major int) string {
	if flavor == hostadapter.FlavorHardenedBSD || major < 12 {
		return "CHECKSUMS.SHA256"
	}
	return "MANIFEST"
}
