// Package report assembles what the user is told after provisioning.
package report

import (
	"errors"
	"net"
	"net/netip"
)

// routeTarget is only used to pick the outbound route; nothing is sent.
var routeTarget = netip.MustParseAddr("1.1.1.1")

// PrimaryIP returns the address other machines on the LAN should use: the
// source address of the default route, or the first global unicast IPv4
// interface address when the route cannot be resolved.
func PrimaryIP() (netip.Addr, error) {
	if addr, err := routeSource(routeTarget); err == nil && addr.IsValid() {
		return addr, nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	return firstUsable(addrs)
}

func firstUsable(addrs []net.Addr) (netip.Addr, error) {
	for _, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		ip := prefix.Addr().Unmap()
		if ip.Is4() && ip.IsGlobalUnicast() {
			return ip, nil
		}
	}
	return netip.Addr{}, errors.New("no usable IPv4 address")
}
