// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package update runs the distribution OS updater (freebsd-update or
// hbsd-update) against a fetched release, inside a temporary
// non-VNET jail that nullfs-mounts the release's updates workdir, with
// a pre-update snapshot rolled back automatically on any failure whose
// output carries none of the tolerated "no updates" or EOL messages.
package update

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alchemillahq/sylve/internal/events"
	"github.com/alchemillahq/sylve/internal/hostadapter"
	"github.com/alchemillahq/sylve/internal/release"
	"github.com/alchemillahq/sylve/pkg/zfs"
)

// toleratedMessages are updater output substrings spec §4.10 treats as
// success despite a conceptually "nothing happened" outcome.
var toleratedMessages = []string{
	"No updates are available to install.",
	"no updates needed",
	"EOL",
}

// ZFS is the subset of *pkg/zfs the updater needs for its own
// snapshot/rollback bookkeeping, independent of the lifecycle engine's
// narrower interface.
type ZFS interface {
	GetDataset(name string) (*zfs.Dataset, error)
	CreateFilesystem(name string, createParents bool, properties map[string]string) (*zfs.Dataset, error)
}

// Updater runs OS updates against one release's extracted world.
type Updater struct {
	ZFS      ZFS
	HostInfo hostadapter.Info
	Client   *http.Client
}

// updaterURLs resolve where the updater script + config come from,
// per distribution — FreeBSD's base svn release branch, HardenedBSD's
// GitHub raw tree.
func updaterURLs(flavor hostadapter.Flavor, release string) (scriptURL, confURL string) {
	if flavor == hostadapter.FlavorHardenedBSD {
		const base = "https://raw.githubusercontent.com/HardenedBSD/hbsd-update/master"
		return base + "/hbsd-update", base + "/hbsd-update.conf"
	}

	branch := strings.TrimSuffix(release, "-RELEASE")
	base := fmt.Sprintf("https://svn.freebsd.org/base/release/%s", branch)
	return base + "/usr.sbin/freebsd-update/freebsd-update.sh",
		base + "/usr.sbin/freebsd-update/freebsd-update.conf"
}

// Run executes spec §4.10's five steps: ensure the updates dataset,
// fetch the updater + conf, rewrite Components for FreeBSD, snapshot
// and run the updater in a temporary jail, rolling back on any failure
// that isn't a tolerated "nothing to do" message.
func (u *Updater) Run(ctx context.Context, rel *release.Release, stream *events.Stream) error {
	node := events.Begin(stream, "release.update", rel.FullName())

	updatesDS, err := u.ensureUpdatesDataset(rel)
	if err != nil {
		return node.Fail(fmt.Errorf("ensure updates dataset: %w", err))
	}

	fetchNode := node.Child("release.update.fetch", rel.FullName())
	scriptURL, confURL := updaterURLs(u.HostInfo.Flavor, rel.Name)
	scriptPath := filepath.Join(updatesDS.Mountpoint, updaterBinary(u.HostInfo.Flavor))
	confPath := filepath.Join(updatesDS.Mountpoint, updaterConfName(u.HostInfo.Flavor))

	if err := u.download(ctx, scriptURL, scriptPath, 0o744); err != nil {
		return fetchNode.Fail(fmt.Errorf("download updater script: %w", err))
	}
	if err := u.download(ctx, confURL, confPath, 0o644); err != nil {
		return fetchNode.Fail(fmt.Errorf("download updater conf: %w", err))
	}
	fetchNode.End("")

	if u.HostInfo.Flavor != hostadapter.FlavorHardenedBSD {
		rewriteNode := node.Child("release.update.rewrite_components", rel.FullName())
		if err := rewriteComponents(confPath); err != nil {
			return rewriteNode.Fail(err)
		}
		rewriteNode.End("")
	}

	ds, err := u.ZFS.GetDataset(rel.RootDataset())
	if err != nil {
		return node.Fail(fmt.Errorf("get release root dataset: %w", err))
	}

	snapNode := node.Child("release.update.snapshot", rel.FullName())
	snapName := fmt.Sprintf("update_%s", time.Now().UTC().Format("20060102T150405Z"))
	snap, err := ds.Snapshot(snapName, false)
	if err != nil {
		return snapNode.Fail(fmt.Errorf("snapshot release before update: %w", err))
	}
	snapNode.End("")

	runNode := node.Child("release.update.run", rel.FullName())
	out, runErr := u.runUpdater(rel, updatesDS.Mountpoint)
	if runErr != nil && !toleratedOutput(out) {
		rollbackErr := snap.Rollback(true)
		_ = snap.Destroy(zfs.DestroyDefault)
		if rollbackErr != nil {
			return runNode.Fail(fmt.Errorf("updater failed (%w) and rollback failed: %v", runErr, rollbackErr))
		}
		return runNode.Fail(fmt.Errorf("updater failed, rolled back release snapshot: %w", runErr))
	}

	if err := snap.Destroy(zfs.DestroyDefault); err != nil {
		runNode.Step("keep post-update snapshot, destroy failed: "+err.Error(), nil)
	}
	runNode.End("")

	node.End("")
	return nil
}

func (u *Updater) ensureUpdatesDataset(rel *release.Release) (*zfs.Dataset, error) {
	if ds, err := u.ZFS.GetDataset(rel.UpdatesDataset()); err == nil {
		return ds, nil
	}
	return u.ZFS.CreateFilesystem(rel.UpdatesDataset(), true, nil)
}

func updaterBinary(flavor hostadapter.Flavor) string {
	if flavor == hostadapter.FlavorHardenedBSD {
		return "hbsd-update"
	}
	return "freebsd-update"
}

func updaterConfName(flavor hostadapter.Flavor) string {
	if flavor == hostadapter.FlavorHardenedBSD {
		return "hbsd-update.conf"
	}
	return "freebsd-update.conf"
}

func (u *Updater) download(ctx context.Context, url, dest string, mode os.FileMode) error {
	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}

	return f.Chmod(mode)
}

// rewriteComponents forces "Components world" regardless of what the
// stock conf ships, since only the base world is in scope for a jail
// release's filesystem — ports/ kernel sources are never fetched.
func rewriteComponents(confPath string) error {
	data, err := os.ReadFile(confPath)
	if err != nil {
		return fmt.Errorf("read updater conf: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	rewritten := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "Components") {
			lines[i] = "Components world"
			rewritten = true
		}
	}
	if !rewritten {
		lines = append(lines, "Components world")
	}

	return os.WriteFile(confPath, []byte(strings.Join(lines, "\n")), 0o644)
}

// runUpdater forks a temporary, non-VNET jail rooted at the release's
// world with the updates dataset nullfs-mounted in, runs the updater
// inside it via jexec, and tears the jail down unconditionally.
func (u *Updater) runUpdater(rel *release.Release, updatesMountpoint string) (string, error) {
	jailName := fmt.Sprintf("update-%s-%d", sanitizeName(rel.FullName()), os.Getpid())
	rootDS, err := u.ZFS.GetDataset(rel.RootDataset())
	if err != nil {
		return "", fmt.Errorf("get release root dataset: %w", err)
	}

	mountDest := filepath.Join(rootDS.Mountpoint, "update")
	if err := os.MkdirAll(mountDest, 0o755); err != nil {
		return "", fmt.Errorf("create update mountpoint: %w", err)
	}

	if err := runCmd("mount", "-t", "nullfs", updatesMountpoint, mountDest); err != nil {
		return "", fmt.Errorf("mount updates dir into release root: %w", err)
	}
	defer func() { _ = runCmd("umount", "-f", mountDest) }()

	createArgs := []string{
		"-c",
		"path=" + rootDS.Mountpoint,
		"name=" + jailName,
		"host.hostname=" + jailName,
		"ip4=inherit",
		"ip6=inherit",
		"persist",
	}
	if err := runCmd("jail", createArgs...); err != nil {
		return "", fmt.Errorf("start temporary update jail: %w", err)
	}
	defer func() { _ = runCmd("jail", "-r", jailName) }()

	binary := updaterBinary(u.HostInfo.Flavor)
	updaterArgs := updaterInvocationArgs(u.HostInfo.Flavor)

	var out bytes.Buffer
	cmd := exec.Command("jexec", append([]string{jailName, "/update/" + binary}, updaterArgs...)...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	return out.String(), runErr
}

func updaterInvocationArgs(flavor hostadapter.Flavor) []string {
	if flavor == hostadapter.FlavorHardenedBSD {
		return nil
	}
	return []string{"-f", "/update/freebsd-update.conf", "fetch", "install"}
}

func toleratedOutput(out string) bool {
	for _, msg := range toleratedMessages {
		if strings.Contains(out, msg) {
			return true
		}
	}
	return false
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
