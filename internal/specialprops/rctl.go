// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

package specialprops

import (
	"fmt"
	"strings"
)

// ResourceLimitNames is the full set of rctl(8) resource names iocage
// recognizes as jail config keys.
var ResourceLimitNames = []string{
	"cputime", "datasize", "stacksize", "coredumpsize", "memoryuse",
	"memorylocked", "maxproc", "openfiles", "vmemoryuse", "pseudoterminals",
	"swapuse", "nthr", "msgqqueued", "msgqsize", "nmsgq", "nsem", "nsemop",
	"nshm", "shmsize", "wallclock", "pcpu", "readbps", "writebps",
	"readiops", "writeiops",
}

// Action is a valid rctl(8) action.
type Action string

const (
	ActionDeny     Action = "deny"
	ActionLog      Action = "log"
	ActionDevctl   Action = "devctl"
	ActionThrottle Action = "throttle"
)

// isSignalAction reports whether action is one of the "sig*" forms
// (sigterm, sigkill, ...) rctl accepts, which aren't enumerable ahead
// of time since rctl recognizes the full kernel signal name set.
func isSignalAction(action string) bool {
	return strings.HasPrefix(action, "sig")
}

// Per is the scope an rctl limit applies at.
type Per string

const (
	PerProcess Per = "process"
	PerJail    Per = "jail"
	PerUser    Per = "user"
)

// ResourceLimit is the value of one rctl-backed config key (e.g.
// "memoryuse"). Three input syntaxes are accepted: legacy
// "amount:action" (implies per=jail), rctl's own "action=amount/per",
// and a bare "amount" (see Parse); all normalize to the rctl form on
// String().
type ResourceLimit struct {
	Key    string
	Set    bool
	Amount string
	Action string
	Per    Per
}

// Parse accepts "amount:action", "action=amount/per", or a bare
// "amount" (which defaults to action=deny, per=jail). An empty or
// "none" raw value clears the limit (Set=false).
func (r *ResourceLimit) Parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		r.Set = false
		r.Amount, r.Action, r.Per = "", "", ""
		return nil
	}

	if action, rest, ok := strings.Cut(raw, "="); ok {
		amount, per, ok := strings.Cut(rest, "/")
		if !ok {
			return fmt.Errorf("resource limit %q missing /<per>", raw)
		}

		if err := validateAction(action); err != nil {
			return err
		}

		r.Action, r.Amount, r.Per, r.Set = action, amount, Per(per), true
		return nil
	}

	if amount, action, ok := strings.Cut(raw, ":"); ok {
		if err := validateAction(action); err != nil {
			return err
		}

		r.Amount, r.Action, r.Per, r.Set = amount, action, PerJail, true
		return nil
	}

	// Bare "amount" (no ":" and no "=") defaults to action=deny,
	// per=jail, matching libioc's ResourceLimit.Parse.
	r.Amount, r.Action, r.Per, r.Set = raw, string(ActionDeny), PerJail, true
	return nil
}

func validateAction(action string) error {
	switch Action(action) {
	case ActionDeny, ActionLog, ActionDevctl, ActionThrottle:
		return nil
	}
	if isSignalAction(action) {
		return nil
	}
	return fmt.Errorf("unrecognized rctl action %q", action)
}

// String always renders the rctl form "action=amount/per", per
// testable property 5.
func (r *ResourceLimit) String() string {
	if !r.Set {
		return "none"
	}
	return fmt.Sprintf("%s=%s/%s", r.Action, r.Amount, r.Per)
}

// Apply emits `rctl -a jail:<name>:<key>:<action>=<amount>/<per>`.
func (r *ResourceLimit) Apply(j JailRef) ([]string, error) {
	if !r.Set {
		return nil, nil
	}

	return []string{
		fmt.Sprintf("rctl -a jail:%s:%s:%s=%s/%s", j.Name, r.Key, r.Action, r.Amount, r.Per),
	}, nil
}

// ReleaseCommand emits `rctl -r jail:<name>`, clearing every limit on
// stop regardless of how many were individually set.
func ReleaseCommand(j JailRef) string {
	return fmt.Sprintf("rctl -r jail:%s", j.Name)
}
