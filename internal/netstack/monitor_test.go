package netstack

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeStack is a Stack whose state the test sets directly.
type fakeStack struct {
	linkUp  bool
	addr    Address
	hasAddr bool
	pollErr error
	polls   int
}

func (s *fakeStack) IsLinkUp() bool { return s.linkUp }

func (s *fakeStack) Address() (Address, bool) { return s.addr, s.hasAddr }

func (s *fakeStack) Resolve(context.Context, string) *scheduler.Future[netip.Addr] {
	return scheduler.Resolved(netip.Addr{}, errors.New("not implemented"))
}

func (s *fakeStack) Poll(context.Context) error {
	s.polls++
	return s.pollErr
}

func (s *fakeStack) up() {
	s.linkUp = true
	s.addr = Address{
		IP:      netip.MustParseAddr("192.168.4.23"),
		Prefix:  netip.MustParsePrefix("192.168.4.0/24"),
		Gateway: netip.MustParseAddr("192.168.4.1"),
	}
	s.hasAddr = true
}

func (s *fakeStack) down() {
	s.linkUp = false
	s.addr = Address{}
	s.hasAddr = false
}

func tick(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
}

// =============================================================================
// Address Tests
// =============================================================================

func TestAddress_String(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want string
	}{
		{"none", Address{}, "none"},
		{"bare", Address{IP: netip.MustParseAddr("10.0.0.5")}, "10.0.0.5"},
		{"cidr", Address{
			IP:     netip.MustParseAddr("10.0.0.5"),
			Prefix: netip.MustParsePrefix("10.0.0.0/8"),
		}, "10.0.0.5/8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.addr.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Runner Tests
// =============================================================================

func TestNewRunner_RequiresStack(t *testing.T) {
	if _, err := NewRunner(nil, 0); !errors.Is(err, ErrStackRequired) {
		t.Errorf("NewRunner(nil) error = %v, want ErrStackRequired", err)
	}
}

func TestRunner_FiresOnlyOnChange(t *testing.T) {
	stack := &fakeStack{}
	r, err := NewRunner(stack, 0)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	wake, _ := r.Step(context.Background(), epoch)
	if !r.Changed().Fired() {
		t.Error("first poll did not fire changed")
	}
	if !wake.At.Equal(epoch.Add(DefaultPollInterval)) {
		t.Errorf("wake.At = %v, want +%s", wake.At, DefaultPollInterval)
	}

	r.Changed().Reset()
	r.Step(context.Background(), epoch.Add(100*time.Millisecond))
	if r.Changed().Fired() {
		t.Error("unchanged poll fired changed")
	}

	stack.up()
	r.Step(context.Background(), epoch.Add(200*time.Millisecond))
	if !r.Changed().Fired() {
		t.Error("link-up poll did not fire changed")
	}
}

func TestRunner_PollErrorKeepsRunning(t *testing.T) {
	stack := &fakeStack{pollErr: errors.New("netlink busy")}
	r, _ := NewRunner(stack, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		wake, err := r.Step(context.Background(), epoch)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if wake.Point != "poll" {
			t.Errorf("wake.Point = %q, want poll", wake.Point)
		}
	}
	if r.failures != 3 || stack.polls != 3 {
		t.Errorf("failures = %d polls = %d, want 3, 3", r.failures, stack.polls)
	}
}

// =============================================================================
// Monitor Tests
// =============================================================================

func TestMonitor_WaitsForLinkThenAddress(t *testing.T) {
	stack := &fakeStack{}
	m, err := NewMonitor(stack, nil, MonitorConfig{})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	clock := scheduler.NewManualClock(epoch)
	s := scheduler.New(clock)
	if err := s.Spawn(m); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	tick(t, s)
	wake, _ := s.Suspension(MonitorTaskName)
	if wake.Point != "link-up" || !wake.At.Equal(epoch.Add(500*time.Millisecond)) {
		t.Errorf("suspension = %q at %v, want link-up at +500ms", wake.Point, wake.At)
	}

	// Link up without an address keeps the gate closed.
	stack.linkUp = true
	clock.Advance(500 * time.Millisecond)
	tick(t, s)
	if m.Phase() != PhaseWaitAddress {
		t.Fatalf("Phase() = %s, want %s", m.Phase(), PhaseWaitAddress)
	}
	if m.Ready().Fired() {
		t.Fatal("Ready fired before an address was assigned")
	}

	stack.up()
	clock.Advance(500 * time.Millisecond)
	tick(t, s)
	if !m.Ready().Fired() {
		t.Fatal("Ready not fired after bring-up")
	}
	if m.Phase() != PhaseTracking {
		t.Errorf("Phase() = %s, want %s", m.Phase(), PhaseTracking)
	}
	if addr, ok := m.Address(); !ok || addr.IP != stack.addr.IP {
		t.Errorf("Address() = %v, %v, want %v", addr, ok, stack.addr)
	}
}

func TestMonitor_LinkLossClearsAddress(t *testing.T) {
	stack := &fakeStack{}
	stack.up()
	m, _ := NewMonitor(stack, nil, MonitorConfig{})
	clock := scheduler.NewManualClock(epoch)
	s := scheduler.New(clock)
	s.Spawn(m)

	tick(t, s)
	if !m.Ready().Fired() {
		t.Fatal("Ready not fired")
	}

	stack.down()
	clock.Advance(500 * time.Millisecond)
	tick(t, s)

	if _, ok := m.Address(); ok {
		t.Error("Address() still set after link loss")
	}
	if m.Phase() != PhaseWaitLink {
		t.Errorf("Phase() = %s, want %s", m.Phase(), PhaseWaitLink)
	}
	if !m.Ready().Fired() {
		t.Error("Ready reset by link loss, want it to stay fired")
	}

	stack.up()
	clock.Advance(500 * time.Millisecond)
	tick(t, s)
	if _, ok := m.Address(); !ok {
		t.Error("Address() not restored after link recovery")
	}
}

func TestMonitor_WakesOnRunnerChange(t *testing.T) {
	stack := &fakeStack{}
	r, _ := NewRunner(stack, 0)
	m, _ := NewMonitor(stack, r.Changed(), MonitorConfig{})

	clock := scheduler.NewManualClock(epoch)
	s := scheduler.New(clock)
	s.Spawn(r)
	s.Spawn(m)

	tick(t, s)

	stack.up()
	clock.Advance(DefaultPollInterval)
	tick(t, s)

	// The runner's poll woke the monitor well before its 500 ms check.
	if !m.Ready().Fired() {
		t.Error("Ready not fired on runner change")
	}
}

func TestMonitor_BringUpTimeout(t *testing.T) {
	stack := &fakeStack{}
	m, _ := NewMonitor(stack, nil, MonitorConfig{BringUpTimeout: 2 * time.Second})
	clock := scheduler.NewManualClock(epoch)
	s := scheduler.New(clock)
	s.Spawn(m)

	tick(t, s)
	for i := 0; i < 3; i++ {
		clock.Advance(500 * time.Millisecond)
		tick(t, s)
	}

	clock.Advance(500 * time.Millisecond)
	_, err := s.Tick(context.Background())
	if !errors.Is(err, ErrBringUpTimeout) {
		t.Errorf("Tick() error = %v, want ErrBringUpTimeout", err)
	}
}

func TestMonitor_NoTimeoutWaitsForever(t *testing.T) {
	stack := &fakeStack{}
	m, _ := NewMonitor(stack, nil, MonitorConfig{})
	clock := scheduler.NewManualClock(epoch)
	s := scheduler.New(clock)
	s.Spawn(m)

	for i := 0; i < 100; i++ {
		tick(t, s)
		clock.Advance(time.Minute)
	}
	if m.Ready().Fired() {
		t.Error("Ready fired with the link down")
	}
}

func TestMonitor_TimeoutIgnoredAfterReady(t *testing.T) {
	stack := &fakeStack{}
	stack.up()
	m, _ := NewMonitor(stack, nil, MonitorConfig{BringUpTimeout: time.Second})
	clock := scheduler.NewManualClock(epoch)
	s := scheduler.New(clock)
	s.Spawn(m)

	tick(t, s)
	stack.down()
	for i := 0; i < 10; i++ {
		clock.Advance(500 * time.Millisecond)
		tick(t, s)
	}
	if m.Phase() != PhaseWaitLink {
		t.Errorf("Phase() = %s, want %s", m.Phase(), PhaseWaitLink)
	}
}
