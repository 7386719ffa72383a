package network

import (
	"errors"
	"net"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoInterface is returned when no usable interface is found.
var ErrNoInterface = errors.New("network: no usable interface")

// HostIdentity is the hardware and network identity captured at boot.
type HostIdentity struct {
	Interface string
	MAC       string
	IP        string
}

// CompactMAC returns the MAC without separators, lower-cased.
func (h HostIdentity) CompactMAC() string {
	return strings.ToLower(strings.NewReplacer(":", "", "-", "").Replace(h.MAC))
}

// DiscoverIdentity finds the MAC and first IPv4 address of iface, or of the
// first non-loopback interface with a hardware address when iface is empty.
func DiscoverIdentity(iface string) (HostIdentity, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return HostIdentity{}, err
	}
	return pickIdentity(ifaces, iface)
}

func pickIdentity(ifaces psnet.InterfaceStatList, want string) (HostIdentity, error) {
	for _, ifc := range ifaces {
		if want != "" && ifc.Name != want {
			continue
		}
		if want == "" && (ifc.HardwareAddr == "" || slices.Contains(ifc.Flags, "loopback")) {
			continue
		}
		return HostIdentity{
			Interface: ifc.Name,
			MAC:       ifc.HardwareAddr,
			IP:        firstIPv4(ifc.Addrs),
		}, nil
	}
	return HostIdentity{}, ErrNoInterface
}

func firstIPv4(addrs psnet.InterfaceAddrList) string {
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.Addr)
		if err != nil {
			ip = net.ParseIP(a.Addr)
		}
		if ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return ""
}
