// Package netmon provides network-reachability detection for the sync engine.
package netmon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/reena96/messageai/internal/bus"
	"go.uber.org/zap"
)

// Monitor reports point-in-time reachability and emits transitions.
type Monitor interface {
	IsReachable() bool
	// OnChange registers a callback invoked on every reachability
	// transition. Returns an unsubscribe function.
	OnChange(func(reachable bool)) func()
}

// Prober checks reachability once. Split out so tests can script transitions.
type Prober interface {
	Probe(ctx context.Context) bool
}

// DialProber probes by opening a TCP connection to a fixed address.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

func (p *DialProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ProbeMonitor polls a Prober on an interval and fans out transitions to
// callbacks and the bus (network.up / network.down).
type ProbeMonitor struct {
	prober   Prober
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc

	mu        sync.Mutex
	reachable bool
	cbs       map[int]func(bool)
	nextCB    int
}

// NewProbeMonitor creates a monitor. The initial state is reachable so a
// daemon that starts online does not spuriously drain the retry queue.
func NewProbeMonitor(prober Prober, interval time.Duration, b *bus.Bus, logger *zap.Logger) *ProbeMonitor {
	return &ProbeMonitor{
		prober:    prober,
		interval:  interval,
		bus:       b,
		logger:    logger,
		reachable: true,
		cbs:       make(map[int]func(bool)),
	}
}

// Start begins probing until Stop or context cancellation.
func (m *ProbeMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.loop(ctx)
}

// Stop halts probing.
func (m *ProbeMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *ProbeMonitor) IsReachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

func (m *ProbeMonitor) OnChange(cb func(bool)) func() {
	m.mu.Lock()
	id := m.nextCB
	m.nextCB++
	m.cbs[id] = cb
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.cbs, id)
		m.mu.Unlock()
	}
}

func (m *ProbeMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.observe(m.prober.Probe(ctx))
		case <-ctx.Done():
			return
		}
	}
}

// observe records a probe result and fires callbacks on transitions only.
func (m *ProbeMonitor) observe(reachable bool) {
	m.mu.Lock()
	if reachable == m.reachable {
		m.mu.Unlock()
		return
	}
	m.reachable = reachable
	cbs := make([]func(bool), 0, len(m.cbs))
	for _, cb := range m.cbs {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	kind := "network.down"
	if reachable {
		kind = "network.up"
	}
	if m.logger != nil {
		m.logger.Info("reachability changed", zap.Bool("reachable", reachable))
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: reachable})
	}
	for _, cb := range cbs {
		cb(reachable)
	}
}
