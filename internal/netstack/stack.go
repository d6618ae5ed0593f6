package netstack

import (
	"context"
	"net/netip"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// Address is the IPv4 configuration assigned to the station interface.
type Address struct {
	// IP is the interface address.
	IP netip.Addr

	// Prefix is the subnet the address belongs to.
	Prefix netip.Prefix

	// Gateway is the default router. Invalid when none is known.
	Gateway netip.Addr
}

// IsValid reports whether an address has been assigned.
func (a Address) IsValid() bool {
	return a.IP.IsValid()
}

// String returns the address in CIDR form.
func (a Address) String() string {
	if !a.IsValid() {
		return "none"
	}
	if a.Prefix.IsValid() {
		return netip.PrefixFrom(a.IP, a.Prefix.Bits()).String()
	}
	return a.IP.String()
}

// Stack is the IP stack bound to the WiFi interface.
type Stack interface {
	// IsLinkUp reports whether the underlying link carries traffic.
	IsLinkUp() bool

	// Address returns the current address configuration, if any.
	Address() (Address, bool)

	// Resolve looks up an IPv4 address for host. The future fails when the
	// name has no A record or the query fails.
	Resolve(ctx context.Context, host string) *scheduler.Future[netip.Addr]

	// Poll refreshes link and address state. It must not block for long; it
	// is called from the scheduler goroutine.
	Poll(ctx context.Context) error
}

// snapshot is the part of stack state whose changes wake the Monitor.
type snapshot struct {
	linkUp bool
	addr   Address
}

func take(s Stack) snapshot {
	addr, _ := s.Address()
	return snapshot{linkUp: s.IsLinkUp(), addr: addr}
}
