// Package netenc implements the project's fixed MAC/IP encoding scheme:
// a DCell host id doubles as both the low bytes of its MAC address and
// the offset into the configured IPv4 subnet.
package netenc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MACString renders a DCell host id as a colon-separated, zero-padded
// 12-hex-digit MAC address, e.g. host 5 -> "00:00:00:00:00:05".
func MACString(hostID int) string {
	hexStr := fmt.Sprintf("%012x", hostID)
	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = hexStr[i*2 : i*2+2]
	}
	return strings.Join(parts, ":")
}

// MAC renders a DCell host id as a net.HardwareAddr, for callers
// building OpenFlow match fields rather than log strings.
func MAC(hostID int) net.HardwareAddr {
	mac, _ := net.ParseMAC(MACString(hostID))
	return mac
}

// MACToInt parses a colon-separated MAC address string back into the
// host id it encodes.
func MACToInt(mac string) (int, error) {
	hexStr := strings.ReplaceAll(mac, ":", "")
	v, err := strconv.ParseInt(hexStr, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("netenc: invalid mac %q: %w", mac, err)
	}
	return int(v), nil
}

// IPString renders a DCell host id as a dotted-decimal IPv4 address with
// the configured netmask suffix: ipBase + hostID, as "a.b.c.d/mask".
func IPString(hostID, ipBase, ipMask int) string {
	ip := ipBase + hostID
	return fmt.Sprintf("%d.%d.%d.%d/%d",
		(ip>>24)&0xFF, (ip>>16)&0xFF, (ip>>8)&0xFF, ip&0xFF, ipMask)
}

// IPToMAC parses a dotted-decimal IPv4 address (an optional "/mask"
// suffix is ignored), subtracts ipBase to recover the host id, and
// renders that host id as a MAC address string. This is the conversion
// SwitchSession performs to answer an ARP request for a host's IP with
// that host's MAC.
func IPToMAC(ip string, ipBase int) (string, error) {
	ip4, ok := parseIPv4(ip)
	if !ok {
		return "", fmt.Errorf("netenc: invalid ip %q", ip)
	}
	ipInt := int(ip4[0])<<24 | int(ip4[1])<<16 | int(ip4[2])<<8 | int(ip4[3])
	return MACString(ipInt - ipBase), nil
}

func parseIPv4(s string) (net.IP, bool) {
	addr := s
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		addr = addr[:idx]
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, false
	}
	return ip4, true
}
