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
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// ErrIllegalArchiveContent is returned when a tar entry would escape
// the destination directory or carries a content type the secure
// extractor refuses by default.
type ErrIllegalArchiveContent struct {
	Name   string
	Reason string
}

func (e *ErrIllegalArchiveContent) Error() string {
	return fmt.Sprintf("illegal archive content %q: %s", e.Name, e.Reason)
}

// ExtractOptions tunes the secure extractor's tolerance. With
// AllowDevices false, device-node entries are rejected; with it true
// they are skipped. Nothing in the module calls ExtractSecure.
type ExtractOptions struct {
	AllowDevices bool
}

// ExtractSecure extracts the txz/tar.bz2/tar archive at srcPath into
// destDir, rejecting absolute paths, ".." parent references, symlinks
// that resolve outside destDir, and (unless AllowDevices) device
// nodes. This is the only archive entry point in the module; nothing
// else shells out to tar(1) against untrusted input.
func ExtractSecure(srcPath, destDir string, opts ExtractOptions) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", srcPath, err)
	}
	defer f.Close()

	reader, err := decompressionReader(srcPath, f)
	if err != nil {
		return err
	}

	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		if err := checkEntry(hdr, destAbs, opts); err != nil {
			return err
		}

		target := filepath.Join(destAbs, hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := extractFile(tr, target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkSymlinkTarget(hdr, destAbs); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeLink:
			linkTarget := filepath.Join(destAbs, hdr.Linkname)
			_ = os.Remove(target)
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("hardlink %s -> %s: %w", target, linkTarget, err)
			}
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			if !opts.AllowDevices {
				return &ErrIllegalArchiveContent{Name: hdr.Name, Reason: "device node not permitted in this extraction context"}
			}
			// Device nodes require mknod(2), a CGo-only syscall on
			// FreeBSD, so these entries are skipped here: nothing is
			// created for them under destDir.
		}
	}
}

func checkEntry(hdr *tar.Header, destAbs string, opts ExtractOptions) error {
	if filepath.IsAbs(hdr.Name) {
		return &ErrIllegalArchiveContent{Name: hdr.Name, Reason: "absolute path"}
	}

	cleaned := filepath.Clean(hdr.Name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return &ErrIllegalArchiveContent{Name: hdr.Name, Reason: "parent directory reference"}
	}

	target := filepath.Join(destAbs, cleaned)
	if !strings.HasPrefix(target, destAbs+string(filepath.Separator)) && target != destAbs {
		return &ErrIllegalArchiveContent{Name: hdr.Name, Reason: "escapes destination directory"}
	}

	return nil
}

func checkSymlinkTarget(hdr *tar.Header, destAbs string) error {
	if filepath.IsAbs(hdr.Linkname) {
		return &ErrIllegalArchiveContent{Name: hdr.Name, Reason: "symlink targets an absolute path"}
	}

	resolved := filepath.Join(destAbs, filepath.Dir(hdr.Name), hdr.Linkname)
	resolved = filepath.Clean(resolved)

	if !strings.HasPrefix(resolved, destAbs+string(filepath.Separator)) && resolved != destAbs {
		return &ErrIllegalArchiveContent{Name: hdr.Name, Reason: "symlink escapes destination directory"}
	}

	return nil
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir parent of %s: %w", target, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	return nil
}

func decompressionReader(path string, f *os.File) (io.Reader, error) {
	switch {
	case strings.HasSuffix(path, ".txz") || strings.HasSuffix(path, ".tar.xz"):
		return xz.NewReader(f)
	case strings.HasSuffix(path, ".tbz") || strings.HasSuffix(path, ".tar.bz2"):
		return bzip2.NewReader(f), nil
	default:
		return f, nil
	}
}
