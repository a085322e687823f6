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
	"net/netip"
	"strings"

	"github.com/asaskevich/govalidator"
)

// IPAddressSet is the value of ip4_addr / ip6_addr: a per-NIC set of
// addresses (interface+prefix form) or the sentinel "dhcp"/
// "accept_rtadv" members.
type IPAddressSet struct {
	Family  int // 4 or 6
	Entries []IPEntry
}

// IPEntry is one "nic|addr" member.
type IPEntry struct {
	NIC   string
	Value string // "dhcp", "accept_rtadv", or an address[/prefix]
}

const (
	sentinelDHCP        = "dhcp"
	sentinelAcceptRTADV = "accept_rtadv"
)

// Parse reads "nic|addr[,nic|addr]...". An empty or "none" raw value
// clears the set.
func (s *IPAddressSet) Parse(raw string) error {
	s.Entries = nil

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "none" {
		return nil
	}

	for _, member := range strings.Split(raw, ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}

		nic, value, ok := strings.Cut(member, "|")
		if !ok {
			return fmt.Errorf("ip%d_addr member %q missing nic| prefix", s.Family, member)
		}

		if err := s.validate(value); err != nil {
			return fmt.Errorf("ip%d_addr member %q: %w", s.Family, member, err)
		}

		s.Entries = append(s.Entries, IPEntry{NIC: nic, Value: value})
	}

	return nil
}

func (s *IPAddressSet) validate(value string) error {
	if s.Family == 4 && value == sentinelDHCP {
		return nil
	}
	if s.Family == 6 && value == sentinelAcceptRTADV {
		return nil
	}

	if _, err := netip.ParsePrefix(value); err == nil {
		return nil
	}

	if s.Family == 4 && govalidator.IsIPv4(value) {
		return nil
	}
	if s.Family == 6 && govalidator.IsIPv6(value) {
		return nil
	}

	return fmt.Errorf("not a valid IPv%d address or prefix: %s", s.Family, value)
}

// String renders back to "nic|addr[,nic|addr]...", preserving parse
// order — the testable property only requires equality up to NIC
// order, and preserving input order trivially satisfies that.
func (s *IPAddressSet) String() string {
	parts := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		parts = append(parts, fmt.Sprintf("%s|%s", e.NIC, e.Value))
	}
	return strings.Join(parts, ",")
}

// Apply emits nothing directly: wiring an IP onto a NIC is the network
// builder's (C11) job, since it has to happen in the same script as
// epair creation and bridge membership.
func (s *IPAddressSet) Apply(JailRef) ([]string, error) {
	return nil, nil
}

// ForNIC returns every address entry assigned to nic, in parse order.
func (s *IPAddressSet) ForNIC(nic string) []IPEntry {
	var out []IPEntry
	for _, e := range s.Entries {
		if e.NIC == nic {
			out = append(out, e)
		}
	}
	return out
}

// HasDHCP reports whether any entry requests DHCP — the devfs ruleset
// manager (C8) needs this to decide whether to unhide bpf*.
func (s *IPAddressSet) HasDHCP() bool {
	for _, e := range s.Entries {
		if e.Value == sentinelDHCP {
			return true
		}
	}
	return false
}

// HasAcceptRTADV reports whether any entry requests router
// advertisement acceptance. Nothing in the module calls it, and the
// lifecycle engine does not write rtsold_enable into the jail's rc.conf.
func (s *IPAddressSet) HasAcceptRTADV() bool {
	for _, e := range s.Entries {
		if e.Value == sentinelAcceptRTADV {
			return true
		}
	}
	return false
}
