// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package configstore

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseUCL and writeUCL handle the narrow slice of the UCL grammar
// iocage's legacy "config" file actually uses: one flat assignment per
// line, `key = value;`, values optionally double-quoted, '#' or '//'
// comments, blank lines ignored. There is no maintained pure-Go UCL
// library in the wider ecosystem (libucl itself is a C library with no
// cgo-free binding), so this hand-rolled reader/writer is a deliberate
// standard-library-only exception — see DESIGN.md.
func parseUCL(raw []byte) (map[string]string, error) {
	out := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		line = strings.TrimSuffix(line, ";")

		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])

		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("unquote UCL value for %s: %w", key, err)
			}
			val = unquoted
		}

		if key == "" {
			continue
		}

		out[key] = val
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan UCL config: %w", err)
	}

	return out, nil
}

// writeUCL renders values back as `key = "value";` lines sorted by
// key, for callers that want to write a legacy-format config rather
// than upgrading to JSON (iocage itself never does this for new
// jails, but a "save in place" migration tool might).
func writeUCL(values map[string]string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s = %q;\n", k, values[k])
	}

	return buf.Bytes()
}
