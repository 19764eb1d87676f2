package report

import (
	"errors"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

func routeSource(dst netip.Addr) (netip.Addr, error) {
	routes, err := netlink.RouteGet(net.IP(dst.AsSlice()))
	if err != nil {
		return netip.Addr{}, err
	}
	for _, r := range routes {
		if addr, ok := netip.AddrFromSlice(r.Src); ok {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, errors.New("route has no source address")
}
