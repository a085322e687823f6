// SPDX-License-Identifier: BSD-2-Clause
//
// Copyright (c) 2025 The FreeBSD Foundation.
//
// This software was developed by Hayzam Sherif <hayzam@alchemilla.io>
// of Alchemilla Ventures Pvt. Ltd. <hello@alchemilla.io>,
// under sponsorship from the FreeBSD Foundation.

// Package network builds the shell command sequence that wires a
// VNET jail's epair(4) pair to a host bridge: deterministic MAC
// assignment, host-side rename/bridge-join, jail-side hand-off, and
// secure-mode anti-spoofing via an interposed bridge plus ipfw
// layer-2 rules.
package network

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/alchemillahq/sylve/internal/specialprops"
)

// DefaultMACPrefix is the mac_prefix default (spec §6); the first
// octet must have the locally-administered bit (0x02) set and the
// multicast bit (0x01) clear, which 02 satisfies.
const DefaultMACPrefix = "02ff60"

// MACPair is the deterministic MAC address pair assigned to one
// epair's two ends (a gets Low, b gets Low+1).
type MACPair struct {
	A string
	B string
}

// DeriveMAC computes the spec's deterministic MAC:
// sha224(jail||nic)[:12-len(prefix)] prefixed by prefix, so the same
// jail/nic pair always gets the same address across create/destroy
// cycles (useful for static DHCP reservations). Colons in prefix
// ("aa:bb:cc") are dropped before it is used.
func DeriveMAC(jail, nic, prefix string) MACPair {
	if prefix == "" {
		prefix = DefaultMACPrefix
	}
	prefix = strings.ReplaceAll(prefix, ":", "")

	sum := sha256.Sum224([]byte(jail + nic))
	hexSum := fmt.Sprintf("%x", sum)

	want := 12 - len(prefix)
	if want < 2 {
		want = 2
	}
	if want > len(hexSum) {
		want = len(hexSum)
	}

	suffix := hexSum[:want]
	if len(suffix)%2 != 0 {
		suffix = suffix[:len(suffix)-1]
	}

	lowMAC := prefix + suffix
	aMAC := formatMAC(lowMAC)
	bMAC := formatMAC(incrementLastOctet(lowMAC))

	return MACPair{A: aMAC, B: bMAC}
}

func formatMAC(hexDigits string) string {
	var parts []string
	for i := 0; i+2 <= len(hexDigits); i += 2 {
		parts = append(parts, hexDigits[i:i+2])
	}
	return strings.Join(parts, ":")
}

func incrementLastOctet(hexDigits string) string {
	if len(hexDigits) < 2 {
		return hexDigits
	}

	var octet int
	fmt.Sscanf(hexDigits[len(hexDigits)-2:], "%x", &octet)
	octet = (octet + 1) & 0xff

	return fmt.Sprintf("%s%02x", hexDigits[:len(hexDigits)-2], octet)
}

// Epair is one NIC's builder state: the jail name/id/nic key and the
// host-side bridge it attaches to.
type Epair struct {
	JailName string
	JID      string // $IOCAGE_JID shell-variable reference at script-render time, or a literal jid once known
	NIC      string
	Bridge   string
	Secure   bool
	MACs     MACPair
}

// NewEpair builds an Epair from one parsed specialprops.NICEntry,
// deriving its MAC pair from jailName/nic/macPrefix.
func NewEpair(jailName, jid string, entry specialprops.NICEntry, macPrefix string) Epair {
	return Epair{
		JailName: jailName,
		JID:      jid,
		NIC:      entry.JailIface,
		Bridge:   entry.BridgeIface,
		Secure:   entry.Secure,
		MACs:     DeriveMAC(jailName, entry.JailIface, macPrefix),
	}
}

// hostVar is the shell variable an epair create command's a-side name
// gets captured into, so later commands in the same script can
// reference the runtime-assigned name instead of a name this process
// pre-decided (spec §4.9's "shell variable indirection").
func (e Epair) hostVar() string {
	return fmt.Sprintf("IOCAGE_NIC_%s", sanitizeVarName(e.NIC))
}

func sanitizeVarName(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}

// StartCommands returns the shell command sequence that provisions
// this NIC when the jail starts, to be embedded in start.sh (exec.created,
// i.e. run once the jail is created but before its init runs). Each
// line is a complete /bin/sh statement; the caller joins them with
// newlines into the hook script body.
func (e Epair) StartCommands() []string {
	var cmds []string

	secureSuffix := ""
	bridge := e.Bridge
	if e.Secure {
		secureSuffix = ":secure"
	}

	cmds = append(cmds, fmt.Sprintf("%s=$(ifconfig epair create)", e.hostVar()))
	cmds = append(cmds, fmt.Sprintf(`%[1]s=$(echo "$%[1]s" | sed -E 's/a$//')`, e.hostVar()))

	hostSide := fmt.Sprintf("${%s}a", e.hostVar())
	jailSide := fmt.Sprintf("${%s}b", e.hostVar())

	hostName := fmt.Sprintf("%s:%s", e.NIC, e.JID)

	cmds = append(cmds,
		fmt.Sprintf("ifconfig %s name %s", hostSide, hostName),
		fmt.Sprintf("ifconfig %s mtu 1500", hostName),
		fmt.Sprintf("ifconfig %s link %s", hostName, e.MACs.A),
		fmt.Sprintf("ifconfig %s link %s", jailSide, e.MACs.B),
		fmt.Sprintf("ifconfig %s description 'iocage:%s%s'", hostName, e.JailName, secureSuffix),
	)

	if e.Secure {
		cmds = append(cmds, e.secureBridgeCommands(hostName)...)
	} else {
		cmds = append(cmds, fmt.Sprintf("ifconfig %s addm %s up", bridge, hostName))
	}

	cmds = append(cmds, fmt.Sprintf("ifconfig %s up", hostName))
	cmds = append(cmds, fmt.Sprintf("ifconfig %s vnet %s", jailSide, e.JID))
	cmds = append(cmds, fmt.Sprintf("jexec %s ifconfig %s name %s", e.JID, jailSide, e.NIC))

	return cmds
}

// secureBridgeCommands interpose a private bridge between the epair's
// host side and the target bridge, with ipfw layer-2 rules pinning the
// jail's traffic to its assigned MAC/IP so it can't spoof another
// jail's address on the shared segment.
func (e Epair) secureBridgeCommands(hostName string) []string {
	secureBridge := fmt.Sprintf("bridge_%s_secure", sanitizeVarName(e.NIC))

	return []string{
		fmt.Sprintf("ifconfig bridge create name %s", secureBridge),
		fmt.Sprintf("ifconfig %s addm %s addm %s up", secureBridge, hostName, e.Bridge),
		fmt.Sprintf("ipfw add deny mac-type arp not mac-addr %s in via %s", e.MACs.A, hostName),
		fmt.Sprintf("ipfw add deny not mac-addr-src %s in via %s", e.MACs.A, hostName),
	}
}

// AddressRCConfLines renders the rc.conf entries that configure nic's
// in-jail addresses once the jail's own /etc/rc runs, the same
// ifconfig_<nic>[_ipv6]="..." shape the teacher writes from its
// per-network DB rows, generalized here to the set of addresses
// parsed from ip4_addr/ip6_addr.
func AddressRCConfLines(nic string, v4, v6 *specialprops.IPAddressSet) []string {
	var lines []string

	if v4 != nil {
		for _, e := range v4.ForNIC(nic) {
			switch e.Value {
			case sentinelDHCPMirror:
				lines = append(lines, fmt.Sprintf(`ifconfig_%s="SYNCDHCP"`, nic))
			default:
				addr, mask := splitPrefix(e.Value)
				if mask == "" {
					lines = append(lines, fmt.Sprintf(`ifconfig_%s="inet %s"`, nic, addr))
				} else {
					lines = append(lines, fmt.Sprintf(`ifconfig_%s="inet %s netmask %s"`, nic, addr, mask))
				}
			}
		}
	}

	if v6 != nil {
		for _, e := range v6.ForNIC(nic) {
			switch e.Value {
			case sentinelAcceptRTADVMirror:
				lines = append(lines, fmt.Sprintf(`ifconfig_%s_ipv6="inet6 accept_rtadv"`, nic))
				lines = append(lines, "rtsold_enable=\"YES\"")
			default:
				lines = append(lines, fmt.Sprintf(`ifconfig_%s_ipv6="inet6 %s"`, nic, e.Value))
			}
		}
	}

	return lines
}

// sentinelDHCPMirror/sentinelAcceptRTADVMirror mirror the unexported
// sentinels in specialprops — IPEntry.Value carries the raw sentinel
// string, and this package doesn't import specialprops' unexported
// identifiers, just the same literal values.
const (
	sentinelDHCPMirror        = "dhcp"
	sentinelAcceptRTADVMirror = "accept_rtadv"
)

func splitPrefix(value string) (addr, mask string) {
	prefix, err := netip.ParsePrefix(value)
	if err != nil {
		return value, ""
	}

	bits := prefix.Bits()
	if prefix.Addr().Is4() {
		return prefix.Addr().String(), cidrToIPv4Mask(bits)
	}

	return prefix.Addr().String(), fmt.Sprintf("/%d", bits)
}

func cidrToIPv4Mask(bits int) string {
	mask := net.CIDRMask(bits, 32)
	return net.IP(mask).String()
}

// StopCommands returns the shell commands that tear this NIC's host
// epair end down on exec.poststop, per spec §4.8 step 6.
func (e Epair) StopCommands() []string {
	hostName := fmt.Sprintf("%s:%s", e.NIC, e.JID)
	cmds := []string{fmt.Sprintf("ifconfig %s destroy", hostName)}

	if e.Secure {
		secureBridge := fmt.Sprintf("bridge_%s_secure", sanitizeVarName(e.NIC))
		cmds = append(cmds, fmt.Sprintf("ifconfig %s destroy", secureBridge))
	}

	return cmds
}
