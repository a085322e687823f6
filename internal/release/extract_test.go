// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package release

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"
)

func writeTarFixture(t *testing.T, path string, entries []tar.Header) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create tar fixture: %v", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	for i := range entries {
		hdr := entries[i]
		if err := tw.WriteHeader(&hdr); err != nil {
			t.Fatalf("write tar header %s: %v", hdr.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg && hdr.Size > 0 {
			if _, err := tw.Write(make([]byte, hdr.Size)); err != nil {
				t.Fatalf("write tar body %s: %v", hdr.Name, err)
			}
		}
	}
}

func TestExtractSecureRejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.tar")
	writeTarFixture(t, src, []tar.Header{
		{Name: "/etc/passwd", Typeflag: tar.TypeReg, Mode: 0o644, Size: 0},
	})

	dest := filepath.Join(dir, "dest")
	err := ExtractSecure(src, dest, ExtractOptions{})
	if err == nil {
		t.Fatalf("expected an error extracting an absolute-path entry")
	}
	var illegal *ErrIllegalArchiveContent
	if !asIllegal(err, &illegal) {
		t.Fatalf("expected ErrIllegalArchiveContent, got %v (%T)", err, err)
	}
}

func TestExtractSecureRejectsParentTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.tar")
	writeTarFixture(t, src, []tar.Header{
		{Name: "../../etc/passwd", Typeflag: tar.TypeReg, Mode: 0o644, Size: 0},
	})

	dest := filepath.Join(dir, "dest")
	if err := ExtractSecure(src, dest, ExtractOptions{}); err == nil {
		t.Fatalf("expected an error extracting a parent-traversal entry")
	}
}

func TestExtractSecureRejectsEscapingSymlink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.tar")
	writeTarFixture(t, src, []tar.Header{
		{Name: "evil", Typeflag: tar.TypeSymlink, Linkname: "../../../etc", Mode: 0o777},
	})

	dest := filepath.Join(dir, "dest")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("mkdir dest: %v", err)
	}
	if err := ExtractSecure(src, dest, ExtractOptions{}); err == nil {
		t.Fatalf("expected an error extracting a symlink that escapes dest")
	}
}

func TestExtractSecureRejectsDeviceNodesByDefault(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.tar")
	writeTarFixture(t, src, []tar.Header{
		{Name: "dev/null", Typeflag: tar.TypeChar, Mode: 0o666, Devmajor: 2, Devminor: 2},
	})

	dest := filepath.Join(dir, "dest")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("mkdir dest: %v", err)
	}
	if err := ExtractSecure(src, dest, ExtractOptions{AllowDevices: false}); err == nil {
		t.Fatalf("expected device nodes to be rejected when AllowDevices is false")
	}
}

func TestExtractSecureAllowsDeviceNodesWhenOptedIn(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.tar")
	writeTarFixture(t, src, []tar.Header{
		{Name: "dev/null", Typeflag: tar.TypeChar, Mode: 0o666, Devmajor: 2, Devminor: 2},
	})

	dest := filepath.Join(dir, "dest")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("mkdir dest: %v", err)
	}
	if err := ExtractSecure(src, dest, ExtractOptions{AllowDevices: true}); err != nil {
		t.Fatalf("expected device nodes to be skipped without error, got: %v", err)
	}
}

func TestExtractSecureExtractsRegularFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.tar")
	writeTarFixture(t, src, []tar.Header{
		{Name: "etc", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: "etc/rc.conf", Typeflag: tar.TypeReg, Mode: 0o644, Size: 4},
	})

	dest := filepath.Join(dir, "dest")
	if err := ExtractSecure(src, dest, ExtractOptions{}); err != nil {
		t.Fatalf("ExtractSecure: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "etc", "rc.conf")); err != nil {
		t.Fatalf("expected rc.conf to be extracted: %v", err)
	}
}

func asIllegal(err error, target **ErrIllegalArchiveContent) bool {
	if e, ok := err.(*ErrIllegalArchiveContent); ok {
		*target = e
		return true
	}
	return false
}
