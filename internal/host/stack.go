package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/nerrad567/gray-logic-sensor/internal/netstack"
	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// Stack defaults.
const (
	DefaultResolvConf = "/etc/resolv.conf"
	DefaultRouteFile  = "/proc/net/route"
	DefaultDNSTimeout = 5 * time.Second
)

// StackConfig configures a Stack.
type StackConfig struct {
	// Interface is the station interface whose state is tracked.
	Interface string

	// DNSServers are "host:port" resolvers. Empty reads ResolvConf.
	DNSServers []string

	// ResolvConf is the resolver configuration file.
	ResolvConf string

	// DNSTimeout bounds one exchange with one server.
	DNSTimeout time.Duration

	// RouteFile is the kernel IPv4 routing table.
	RouteFile string
}

// ifaceState is what Poll reads from the kernel for one interface.
type ifaceState struct {
	flags net.Flags
	addrs []net.Addr
}

// Stack is the host IP stack bound to one interface. It implements
// netstack.Stack.
type Stack struct {
	cfg    StackConfig
	logger Logger
	client *dns.Client

	// lookup reads interface state; replaced in tests.
	lookup func(name string) (ifaceState, error)

	mu     sync.RWMutex
	linkUp bool
	addr   netstack.Address
}

var _ netstack.Stack = (*Stack)(nil)

// NewStack creates a Stack. Zero fields take the package defaults.
func NewStack(cfg StackConfig) (*Stack, error) {
	if cfg.Interface == "" {
		return nil, ErrInterfaceRequired
	}
	if cfg.ResolvConf == "" {
		cfg.ResolvConf = DefaultResolvConf
	}
	if cfg.DNSTimeout <= 0 {
		cfg.DNSTimeout = DefaultDNSTimeout
	}
	if cfg.RouteFile == "" {
		cfg.RouteFile = DefaultRouteFile
	}

	return &Stack{
		cfg:    cfg,
		logger: noopLogger{},
		client: &dns.Client{Net: "udp", Timeout: cfg.DNSTimeout},
		lookup: lookupInterface,
	}, nil
}

// SetLogger sets the logger for the stack.
func (s *Stack) SetLogger(logger Logger) {
	s.logger = logger
}

// IsLinkUp reports whether the interface is up and running.
func (s *Stack) IsLinkUp() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkUp
}

// Address returns the interface's IPv4 configuration, if any.
func (s *Stack) Address() (netstack.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr, s.addr.IsValid()
}

// Poll refreshes link and address state from the kernel. On error the link
// is reported down.
func (s *Stack) Poll(_ context.Context) error {
	st, err := s.lookup(s.cfg.Interface)
	if err != nil {
		s.set(false, netstack.Address{})
		return fmt.Errorf("reading interface %s: %w", s.cfg.Interface, err)
	}

	up := st.flags&net.FlagUp != 0 && st.flags&net.FlagRunning != 0
	var addr netstack.Address
	if up {
		addr = firstIPv4(st.addrs)
		if addr.IsValid() {
			gw, err := defaultGateway(s.cfg.RouteFile, s.cfg.Interface)
			if err != nil {
				s.logger.Debug("default gateway unavailable", "interface", s.cfg.Interface, "error", err)
			}
			addr.Gateway = gw
		}
	}

	s.set(up, addr)
	return nil
}

func (s *Stack) set(up bool, addr netstack.Address) {
	s.mu.Lock()
	s.linkUp = up
	s.addr = addr
	s.mu.Unlock()
}

// Resolve looks up an IPv4 address for host. IPv4 literals complete
// immediately.
func (s *Stack) Resolve(ctx context.Context, host string) *scheduler.Future[netip.Addr] {
	if ip, err := netip.ParseAddr(host); err == nil && ip.Is4() {
		return scheduler.Resolved(ip, nil)
	}
	return scheduler.Go(ctx, "dns", func(ctx context.Context) (netip.Addr, error) {
		return s.resolveA(ctx, host)
	})
}

func (s *Stack) resolveA(ctx context.Context, host string) (netip.Addr, error) {
	servers, err := s.servers()
	if err != nil {
		return netip.Addr{}, err
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range servers {
		r, _, err := s.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s via %s: %w", ErrResolve, host, server, err)
			continue
		}
		if r.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%w: %s via %s: %s", ErrResolve, host, server, dns.RcodeToString[r.Rcode])
			continue
		}
		for _, rr := range r.Answer {
			a, ok := rr.(*dns.A)
			if !ok {
				continue
			}
			if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
				return ip, nil
			}
		}
		lastErr = fmt.Errorf("%w: %s", ErrNoRecords, host)
	}
	return netip.Addr{}, lastErr
}

// servers returns the configured resolvers, or those in ResolvConf.
func (s *Stack) servers() ([]string, error) {
	if len(s.cfg.DNSServers) > 0 {
		return s.cfg.DNSServers, nil
	}

	cc, err := dns.ClientConfigFromFile(s.cfg.ResolvConf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResolvers, err)
	}
	if len(cc.Servers) == 0 {
		return nil, fmt.Errorf("%w: none in %s", ErrNoResolvers, s.cfg.ResolvConf)
	}

	servers := make([]string, 0, len(cc.Servers))
	for _, srv := range cc.Servers {
		servers = append(servers, net.JoinHostPort(srv, cc.Port))
	}
	return servers, nil
}

func lookupInterface(name string) (ifaceState, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return ifaceState{}, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ifaceState{}, err
	}
	return ifaceState{flags: ifi.Flags, addrs: addrs}, nil
}

// firstIPv4 returns the first IPv4 interface address.
func firstIPv4(addrs []net.Addr) netstack.Address {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		ip, _ := netip.AddrFromSlice(ip4)
		ones, bits := ipnet.Mask.Size()
		if bits != 32 {
			return netstack.Address{IP: ip}
		}
		return netstack.Address{IP: ip, Prefix: netip.PrefixFrom(ip, ones).Masked()}
	}
	return netstack.Address{}
}

var errNoDefaultRoute = errors.New("no default route")

// defaultGateway parses a /proc/net/route style table for the default route
// of iface. Addresses in the table are little-endian hex.
func defaultGateway(path, iface string) (netip.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return netip.Addr{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != iface || fields[1] != "00000000" {
			continue
		}
		v, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("parsing gateway %q: %w", fields[2], err)
		}
		return netip.AddrFrom4([4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}), nil
	}
	if err := scanner.Err(); err != nil {
		return netip.Addr{}, err
	}
	return netip.Addr{}, errNoDefaultRoute
}
