//go:build !linux

package report

import (
	"errors"
	"net/netip"
)

func routeSource(netip.Addr) (netip.Addr, error) {
	return netip.Addr{}, errors.New("route lookup not supported")
}
