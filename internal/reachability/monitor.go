// Package reachability tracks network connectivity to the MDM API and lets callers wait,
// bounded and cancellably, until the network is back.
package reachability

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Prober reports whether the network is currently usable. Implementations must honor ctx.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// DialProber probes by opening a TCP connection to Addr (host:port).
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

// Probe dials Addr and closes the connection immediately.
func (p DialProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ProbeAddr returns the host:port to dial for a base URL; the port defaults from the scheme.
func ProbeAddr(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("reachability: invalid base URL %q", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Monitor holds the last observed connectivity state. Waiters share one attempt counter,
// which is reset only when the last waiter leaves.
type Monitor struct {
	prober    Prober
	connected atomic.Bool

	mu      sync.Mutex
	waiters int
	attempt int
}

// NewMonitor returns a Monitor that refreshes its state through prober.
// The initial state is disconnected until the first probe or SetConnected.
func NewMonitor(prober Prober) *Monitor {
	return &Monitor{prober: prober}
}

// IsConnected returns the last observed state without probing.
func (m *Monitor) IsConnected() bool {
	return m.connected.Load()
}

// SetConnected records a connectivity observation from an external source (e.g. a platform path monitor).
func (m *Monitor) SetConnected(connected bool) {
	if old := m.connected.Swap(connected); old != connected {
		log.Printf("reachability: connected=%v", connected)
	}
}

// Attempt returns the current shared retry attempt (0 when nobody is waiting). For display only.
func (m *Monitor) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Waiting reports whether any caller is inside WaitForConnectivity.
func (m *Monitor) Waiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters > 0
}

// Run probes every interval until ctx is done, keeping IsConnected current.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m.prober == nil || interval <= 0 {
		return
	}
	m.refresh(ctx, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx, interval)
		}
	}
}

// WaitForConnectivity returns true as soon as the network is observed, or false once
// ceil(timeout/retryInterval) attempts are exhausted or ctx is done. An already connected
// monitor returns true without using an attempt. It never returns an error.
func (m *Monitor) WaitForConnectivity(ctx context.Context, timeout, retryInterval time.Duration) bool {
	if m.IsConnected() {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	maxAttempts := int(math.Ceil(float64(timeout) / float64(retryInterval)))
	if maxAttempts <= 0 {
		return false
	}

	m.enter()
	defer m.exit()

	timer := time.NewTimer(retryInterval)
	defer timer.Stop()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
		m.markAttempt(attempt)
		if m.refresh(ctx, retryInterval) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		timer.Reset(retryInterval)
	}
	return false
}

// refresh probes once (bounded by limit) and records the result. Without a prober it
// only reads the recorded state.
func (m *Monitor) refresh(ctx context.Context, limit time.Duration) bool {
	if m.prober == nil {
		return m.IsConnected()
	}
	probeCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	ok := m.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		// A probe cut short by the caller says nothing about the network.
		return false
	}
	m.SetConnected(ok)
	return ok
}

func (m *Monitor) enter() {
	m.mu.Lock()
	m.waiters++
	m.mu.Unlock()
}

func (m *Monitor) exit() {
	m.mu.Lock()
	m.waiters--
	if m.waiters == 0 {
		m.attempt = 0
	}
	m.mu.Unlock()
}

func (m *Monitor) markAttempt(n int) {
	m.mu.Lock()
	if n > m.attempt {
		m.attempt = n
	}
	m.mu.Unlock()
}
