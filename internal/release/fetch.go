// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package release

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cavaliergopher/grab/v3"
	"github.com/h2non/filetype"

	"github.com/alchemillahq/sylve/internal/events"
	"github.com/alchemillahq/sylve/internal/logger"
)

// ErrInvalidSignature is returned by Fetch when a downloaded asset's
// SHA-256 digest doesn't match the mirror's manifest entry.
type ErrInvalidSignature struct {
	Asset string
}

func (e *ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid signature for release asset %s", e.Asset)
}

// Mirror is where a release's assets and hash file are fetched from,
// e.g. "https://download.freebsd.org/ftp/releases/amd64/13.2-RELEASE".
type Mirror struct {
	BaseURL string
}

func (m Mirror) assetURL(asset string) string {
	return strings.TrimRight(m.BaseURL, "/") + "/" + asset
}

// Fetch downloads every asset in assets plus the hash file into dir,
// verifying each asset's SHA-256 against the hash file before
// returning success; an asset with no entry in the hash file is kept
// unverified and a warning is logged. node, if non-nil, reports per-asset download
// progress as Step events.
func Fetch(ctx context.Context, mirror Mirror, dir string, assets []string, hashFile string, node *events.Node) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create release download dir: %w", err)
	}

	hashes, err := fetchHashes(ctx, mirror, hashFile, dir)
	if err != nil {
		return fmt.Errorf("fetch hash file: %w", err)
	}

	for _, asset := range assets {
		if node != nil {
			node.Step(fmt.Sprintf("fetching %s", asset), nil)
		}

		dest := filepath.Join(dir, asset)
		req, err := grab.NewRequest(dest, mirror.assetURL(asset))
		if err != nil {
			return fmt.Errorf("build download request for %s: %w", asset, err)
		}
		req = req.WithContext(ctx)

		resp := grab.DefaultClient.Do(req)
		if err := resp.Err(); err != nil {
			return fmt.Errorf("download %s: %w", asset, err)
		}

		digest, err := sha256File(dest)
		if err != nil {
			return fmt.Errorf("hash %s: %w", asset, err)
		}

		expected, ok := hashes[asset]
		if !ok {
			logger.L.Warn().Str("asset", asset).Msg("no manifest entry for asset, skipping signature check")
			continue
		}

		if digest != expected {
			_ = os.Remove(dest)
			return &ErrInvalidSignature{Asset: asset}
		}

		kind, err := filetype.MatchFile(dest)
		if err == nil && kind != filetype.Unknown {
			logger.L.Debug().Str("asset", asset).Str("mime", kind.MIME.Value).Msg("verified release asset")
		}
	}

	return nil
}

func fetchHashes(ctx context.Context, mirror Mirror, hashFile, dir string) (map[string]string, error) {
	dest := filepath.Join(dir, hashFile)

	req, err := grab.NewRequest(dest, mirror.assetURL(hashFile))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp := grab.DefaultClient.Do(req)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	return parseHashFile(dest)
}

// parseHashFile handles both MANIFEST (tab-separated "file\thash\tsize")
// and CHECKSUMS.SHA256 ("SHA256 (file) = hash") formats.
func parseHashFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "SHA256") {
			// SHA256 (base.txz) = <hex>
			open := strings.Index(line, "(")
			close := strings.Index(line, ")")
			eq := strings.LastIndex(line, "=")
			if open < 0 || close < 0 || eq < 0 {
				continue
			}
			name := strings.TrimSpace(line[open+1 : close])
			hash := strings.TrimSpace(line[eq+1:])
			out[name] = hash
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 2 {
			out[fields[0]] = fields[1]
		}
	}

	return out, scanner.Err()
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
