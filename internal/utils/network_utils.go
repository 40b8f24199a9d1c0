package utils

import (
	"net"
	"strings"
)

// vpnInterfaceHints are substrings of interface names created by tunnels.
var vpnInterfaceHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// cgnatBlock is the shared address space used by carrier-grade NAT, Tailscale
// and Cloudflare WARP.
var _, cgnatBlock, _ = net.ParseCIDR("100.64.0.0/10")

// ShouldForceRelay reports whether the host looks like it sits behind a VPN or
// CGNAT, where direct mesh links rarely come up without a TURN relay.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && cgnatBlock.Contains(ipnet.IP) {
				return true
			}
		}
	}

	return false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, hint := range vpnInterfaceHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
