package reachability

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// scriptedProber returns results in order, then repeats the last one.
type scriptedProber struct {
	mu      sync.Mutex
	results []bool
	calls   int
}

func (p *scriptedProber) Probe(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.results) == 0 {
		return false
	}
	i := p.calls - 1
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i]
}

func (p *scriptedProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

const (
	testRetryInterval = 20 * time.Millisecond
	testTimeout       = 2 * testRetryInterval
)

func TestWaitForConnectivity_AlreadyConnected(t *testing.T) {
	prober := &scriptedProber{results: []bool{false}}
	m := NewMonitor(prober)
	m.SetConnected(true)

	start := time.Now()
	if !m.WaitForConnectivity(context.Background(), testTimeout, testRetryInterval) {
		t.Fatal("WaitForConnectivity = false, want true when already connected")
	}
	if elapsed := time.Since(start); elapsed >= testRetryInterval {
		t.Errorf("elapsed = %v, want immediate return", elapsed)
	}
	if prober.callCount() != 0 {
		t.Errorf("probe calls = %d, want 0", prober.callCount())
	}
	if m.Attempt() != 0 {
		t.Errorf("Attempt = %d, want 0", m.Attempt())
	}
}

func TestWaitForConnectivity_ConnectsOnSecondCheck(t *testing.T) {
	prober := &scriptedProber{results: []bool{false, true}}
	m := NewMonitor(prober)

	if !m.WaitForConnectivity(context.Background(), testTimeout, testRetryInterval) {
		t.Fatal("WaitForConnectivity = false, want true")
	}
	if got := prober.callCount(); got != 2 {
		t.Errorf("probe calls = %d, want 2", got)
	}
	if !m.IsConnected() {
		t.Error("IsConnected = false after successful wait")
	}
}

func TestWaitForConnectivity_NeverConnected(t *testing.T) {
	prober := &scriptedProber{results: []bool{false}}
	m := NewMonitor(prober)

	if m.WaitForConnectivity(context.Background(), testTimeout, testRetryInterval) {
		t.Fatal("WaitForConnectivity = true, want false")
	}
	if got := prober.callCount(); got != 2 {
		t.Errorf("probe calls = %d, want exactly ceil(timeout/interval) = 2", got)
	}
	if m.Attempt() != 0 {
		t.Errorf("Attempt = %d, want 0 after last waiter left", m.Attempt())
	}
}

func TestWaitForConnectivity_AttemptsRoundUp(t *testing.T) {
	prober := &scriptedProber{results: []bool{false}}
	m := NewMonitor(prober)

	m.WaitForConnectivity(context.Background(), 5*time.Millisecond+2*testRetryInterval, testRetryInterval)
	if got := prober.callCount(); got != 3 {
		t.Errorf("probe calls = %d, want 3", got)
	}
}

func TestWaitForConnectivity_Cancellation(t *testing.T) {
	prober := &scriptedProber{results: []bool{false}}
	m := NewMonitor(prober)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	start := time.Now()
	go func() {
		done <- m.WaitForConnectivity(ctx, 10*time.Second, 50*time.Millisecond)
	}()
	time.Sleep(75 * time.Millisecond)
	cancel()

	select {
	case got := <-done:
		if got {
			t.Error("WaitForConnectivity = true after cancel, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForConnectivity did not return promptly after cancel")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("elapsed = %v, want well under the 10s timeout", elapsed)
	}
	if m.Waiting() {
		t.Error("Waiting = true after the only waiter returned")
	}
}

func TestWaitForConnectivity_CanceledBeforeStart(t *testing.T) {
	prober := &scriptedProber{results: []bool{true}}
	m := NewMonitor(prober)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if m.WaitForConnectivity(ctx, testTimeout, testRetryInterval) {
		t.Error("WaitForConnectivity = true on canceled context, want false")
	}
	if prober.callCount() != 0 {
		t.Errorf("probe calls = %d, want 0", prober.callCount())
	}
}

func TestWaitForConnectivity_SharedCounterNotResetWhileWaiting(t *testing.T) {
	prober := &scriptedProber{results: []bool{false}}
	m := NewMonitor(prober)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.WaitForConnectivity(context.Background(), testRetryInterval, testRetryInterval)
	}()
	go func() {
		defer wg.Done()
		m.WaitForConnectivity(context.Background(), 6*testRetryInterval, testRetryInterval)
	}()

	// The short waiter finishes after one attempt; the long one is still waiting.
	time.Sleep(3 * testRetryInterval)
	if !m.Waiting() {
		t.Fatal("Waiting = false while the long waiter is active")
	}
	if m.Attempt() == 0 {
		t.Error("Attempt reset to 0 while a caller is still waiting")
	}
	wg.Wait()
	if m.Attempt() != 0 {
		t.Errorf("Attempt = %d after all waiters left, want 0", m.Attempt())
	}
}

func TestWaitForConnectivity_ExternalSignalWithoutProber(t *testing.T) {
	m := NewMonitor(nil)
	go func() {
		time.Sleep(testRetryInterval / 2)
		m.SetConnected(true)
	}()
	if !m.WaitForConnectivity(context.Background(), 4*testRetryInterval, testRetryInterval) {
		t.Error("WaitForConnectivity = false, want true after SetConnected")
	}
}

func TestRun_UpdatesState(t *testing.T) {
	prober := &scriptedProber{results: []bool{false, true}}
	m := NewMonitor(prober)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Run(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for !m.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("Run never observed connectivity")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDialProber(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()

	p := DialProber{Addr: addr, Timeout: 200 * time.Millisecond}
	if !p.Probe(context.Background()) {
		t.Error("Probe = false against an open listener")
	}
	lis.Close()
	if p.Probe(context.Background()) {
		t.Error("Probe = true against a closed port")
	}
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://school.example.com/api", "school.example.com:443"},
		{"http://school.example.com/api", "school.example.com:80"},
		{"http://127.0.0.1:9090", "127.0.0.1:9090"},
		{"https://[::1]/api", "[::1]:443"},
	}
	for _, tt := range tests {
		got, err := ProbeAddr(tt.in)
		if err != nil {
			t.Errorf("ProbeAddr(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ProbeAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ProbeAddr("not a url"); err == nil {
		t.Error("ProbeAddr should reject a URL without host")
	}
}
