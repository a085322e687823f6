// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package jailstate queries the running kernel's jail table via
// jls(8)'s libxo JSON output, the same way the lifecycle engine
// confirms a jail actually came up after `jail -c` returns.
package jailstate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
)

// State is the live kernel state of one jail, or the zero value when
// the jail isn't running.
type State struct {
	JID      int    `json:"jid"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Hostname string `json:"host.hostname"`
	IP4      string `json:"ip4.addr"`
	IP6      string `json:"ip6.addr"`
	Dying    bool   `json:"dying"`
}

// Running reports whether this State was actually resolved from a
// live jail (jid > 0).
func (s State) Running() bool {
	return s.JID > 0
}

type jlsJailList struct {
	JailInformation struct {
		Jail []State `json:"jail"`
	} `json:"jail-information"`
}

// Query runs `jls -j <name> -v -h --libxo=json` for a single jail.
// A jail that doesn't exist or isn't running returns the zero State,
// not an error — jls exits non-zero for "no such jail", which this
// treats as "not running" rather than a command failure.
func Query(name string) (State, error) {
	states, err := queryAll(name)
	if err != nil {
		return State{}, err
	}

	if len(states) == 0 {
		return State{}, nil
	}

	return states[0], nil
}

// QueryAll lists every running jail's state in one jls invocation.
func QueryAll() ([]State, error) {
	return queryAll("")
}

func queryAll(name string) ([]State, error) {
	args := []string{"-v", "-h", "--libxo=json"}
	if name != "" {
		args = append([]string{"-j", name}, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command("jls", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stdout.Len() == 0 {
			// "jls: No such jail" and similar: not running, not an error.
			return nil, nil
		}
		return nil, fmt.Errorf("jls %v: %w: %s", args, err, stderr.String())
	}

	var list jlsJailList
	if err := json.Unmarshal(stdout.Bytes(), &list); err != nil {
		return nil, fmt.Errorf("parse jls output: %w", err)
	}

	return list.JailInformation.Jail, nil
}

// Cache amortizes jls(8) invocations across one collection iteration
// (e.g. a `start --rc` loop over every boot=on jail): it queries every
// running jail once, lazily, on first Get.
type Cache struct {
	byName map[string]State
	loaded bool
}

// NewCache returns an empty, unloaded Cache.
func NewCache() *Cache {
	return &Cache{byName: make(map[string]State)}
}

// Get returns name's state, loading the whole table on first call and
// reusing it for the rest of this Cache's lifetime.
func (c *Cache) Get(name string) (State, error) {
	if !c.loaded {
		states, err := QueryAll()
		if err != nil {
			return State{}, err
		}

		for _, s := range states {
			c.byName[s.Name] = s
		}
		c.loaded = true
	}

	return c.byName[name], nil
}

// Invalidate forces the next Get to re-query the kernel, for callers
// that started or stopped a jail mid-iteration.
func (c *Cache) Invalidate() {
	c.loaded = false
	c.byName = make(map[string]State)
}
