package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Link is the network underneath the HTTP client: bringing the interface up
// and checking that packets actually leave the device.
type Link interface {
	// Connect returns the local address once the network is usable.
	Connect(ctx context.Context) (string, error)

	// Ping checks reachability of the configured liveness target.
	Ping(ctx context.Context) error
}

// NetLink uses the host network stack. The interface itself is managed by the OS.
type NetLink struct {
	// Target is a host:port on the route to the server, used to pick the local address.
	Target string

	// PingAddr is dialled over TCP as the liveness probe. Empty disables the probe.
	PingAddr string

	// Timeout bounds each dial. Zero means 5s.
	Timeout time.Duration
}

func (l *NetLink) dialer() *net.Dialer {
	t := l.Timeout
	if t <= 0 {
		t = 5 * time.Second
	}
	return &net.Dialer{Timeout: t}
}

// Connect finds the local address the kernel would use to reach Target.
// A UDP dial sends no packets but fails without a route.
func (l *NetLink) Connect(ctx context.Context) (string, error) {
	conn, err := l.dialer().DialContext(ctx, "udp", l.Target)
	if err != nil {
		return "", fmt.Errorf("no route to %s: %w", l.Target, err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "", errors.New("no local address")
	}
	return addr.IP.String(), nil
}

// Ping opens and closes a TCP connection to PingAddr.
func (l *NetLink) Ping(ctx context.Context) error {
	if l.PingAddr == "" {
		return nil
	}
	conn, err := l.dialer().DialContext(ctx, "tcp", l.PingAddr)
	if err != nil {
		return fmt.Errorf("ping %s: %w", l.PingAddr, err)
	}
	return conn.Close()
}

// FakeLink is a scriptable Link for tests.
type FakeLink struct {
	mu sync.Mutex

	Addr       string
	ConnectErr error
	PingErr    error

	connects int
	pings    int
}

// NewFakeLink returns a link that is up with the given address.
func NewFakeLink(addr string) *FakeLink {
	return &FakeLink{Addr: addr}
}

func (f *FakeLink) Connect(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.ConnectErr != nil {
		return "", f.ConnectErr
	}
	return f.Addr, nil
}

func (f *FakeLink) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.PingErr
}

// SetDown makes Connect and Ping fail with err, or recover when err is nil.
func (f *FakeLink) SetDown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectErr = err
	f.PingErr = err
}

// Connects returns the number of Connect calls.
func (f *FakeLink) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Pings returns the number of Ping calls.
func (f *FakeLink) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}
