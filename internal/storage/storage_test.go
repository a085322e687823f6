// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package storage

import "testing"

func TestFlattenDir(t *testing.T) {
	cases := map[string]string{
		"usr/bin":   "usr-bin",
		"usr/lib32": "usr-lib32",
		"bin":       "bin",
		"a/b/c":     "a-b-c",
	}

	for in, want := range cases {
		if got := flattenDir(in); got != want {
			t.Errorf("flattenDir(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindConstants(t *testing.T) {
	if KindStandalone == KindNullFSBasejail || KindNullFSBasejail == KindZFSBasejail {
		t.Fatalf("storage kinds must be distinct: %q %q %q", KindStandalone, KindNullFSBasejail, KindZFSBasejail)
	}
}
