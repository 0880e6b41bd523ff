package reactor

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// SockAddr is a resolved address list: one or more sockaddr entries
// sharing an address family, plus a printable form for logging.
// Grounded on spec.md §3's SockAddr and the sockaddr-conversion
// groundwork in the teacher's internal/netutil/addr.go
// (ipToSockaddr/getAndCompareFamily), adapted here to hold a *list* of
// entries since a hostname can resolve to several addresses.
type SockAddr struct {
	entries   []unix.Sockaddr
	printable string
}

// Entries returns the resolved sockaddr list in resolver order.
func (s *SockAddr) Entries() []unix.Sockaddr { return s.entries }

// String implements fmt.Stringer.
func (s *SockAddr) String() string { return s.printable }

// ResolveTCPAddr resolves host:port through the system resolver,
// returning every address the hostname maps to. Use this when address
// is (or may be) a hostname. Per SPEC_FULL.md §9's Open Question
// resolution, this is deliberately split from ParseTCPAddr so callers
// can choose whether to invoke the resolver.
func ResolveTCPAddr(address string) (*SockAddr, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("reactor: split host:port %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("reactor: invalid port %q: %w", portStr, err)
	}
	ips, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
	if err != nil {
		return nil, fmt.Errorf("reactor: resolve %q: %w", host, err)
	}
	sa := &SockAddr{printable: address}
	for _, ip := range ips {
		entry, err := ipToSockaddr(ip.IP, port, ip.Zone)
		if err != nil {
			continue
		}
		sa.entries = append(sa.entries, entry)
	}
	if len(sa.entries) == 0 {
		return nil, fmt.Errorf("reactor: %q resolved to no usable address", address)
	}
	return sa, nil
}

// ParseTCPAddr parses a numeric host:port with no resolver call — the
// AI_NUMERICHOST equivalent spec.md's Open Question calls for.
func ParseTCPAddr(address string) (*SockAddr, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("reactor: split host:port %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("reactor: invalid port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("reactor: %q is not a numeric address", host)
	}
	entry, err := ipToSockaddr(ip, port, "")
	if err != nil {
		return nil, err
	}
	return &SockAddr{entries: []unix.Sockaddr{entry}, printable: address}, nil
}

// ipToSockaddr builds a unix.Sockaddr for ip:port, choosing
// SockaddrInet4 or SockaddrInet6 by whether ip has a 4-byte form.
// Adapted from internal/netutil/addr.go's function of the same name.
func ipToSockaddr(ip net.IP, port int, zone string) (unix.Sockaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ip4)
		sa.Port = port
		return &sa, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		var sa unix.SockaddrInet6
		copy(sa.Addr[:], ip16)
		sa.Port = port
		if zone != "" {
			if iface, err := net.InterfaceByName(zone); err == nil {
				sa.ZoneId = uint32(iface.Index)
			}
		}
		return &sa, nil
	}
	return nil, fmt.Errorf("reactor: unrecognized IP address %v", ip)
}

// sockaddrString renders sa as a printable host:port, for logging and
// for the addresses TcpConnection exposes to callers.
func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(v.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		ip := net.IP(v.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(v.Port))
	default:
		return "unknown"
	}
}

// sockaddrFamily returns unix.AF_INET or unix.AF_INET6 for sa.
func sockaddrFamily(sa unix.Sockaddr) int {
	switch sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET
	case *unix.SockaddrInet6:
		return unix.AF_INET6
	default:
		return unix.AF_UNSPEC
	}
}
