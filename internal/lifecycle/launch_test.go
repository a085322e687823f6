// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package lifecycle

import (
	"strings"
	"testing"

	"github.com/alchemillahq/sylve/internal/hostadapter"
)

func TestTruthy(t *testing.T) {
	truthyValues := []string{"1", "true", "TRUE", "yes", "on", " yes "}
	for _, v := range truthyValues {
		if !truthy(v) {
			t.Errorf("truthy(%q) = false, want true", v)
		}
	}

	falsyValues := []string{"0", "false", "no", "off", "", "garbage"}
	for _, v := range falsyValues {
		if truthy(v) {
			t.Errorf("truthy(%q) = true, want false", v)
		}
	}
}

func TestSupportsVersion(t *testing.T) {
	cases := []struct {
		major    string
		min      float64
		expected bool
	}{
		{"13.2", 10.3, true},
		{"10.3", 10.3, false},
		{"9.0", 9.3, false},
		{"not-a-number", 9.3, false},
	}

	for _, c := range cases {
		info := hostadapter.Info{Major: c.major}
		if got := supportsVersion(info, c.min); got != c.expected {
			t.Errorf("supportsVersion(%q, %v) = %v, want %v", c.major, c.min, got, c.expected)
		}
	}
}

func TestLaunchParamsRender(t *testing.T) {
	p := newLaunchParams("myjail")
	p.set("path", "/jails/myjail/root")
	p.setRaw("ip4", "inherit")
	p.flag("persist")

	out := p.render()

	if !strings.HasPrefix(out, "myjail {\n") {
		t.Fatalf("render did not open with the jail name block: %q", out)
	}
	if !strings.Contains(out, `path="/jails/myjail/root";`) {
		t.Errorf("render dropped the quoted path param: %q", out)
	}
	if !strings.Contains(out, "ip4=inherit;") {
		t.Errorf("render dropped the raw ip4 param: %q", out)
	}
	if !strings.Contains(out, "persist;") {
		t.Errorf("render dropped the persist flag: %q", out)
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Fatalf("render did not close the jail name block: %q", out)
	}
}
