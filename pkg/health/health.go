// Package health exposes liveness and readiness probes over HTTP.
//
// Probes run on a background ticker and keep the latest result; the HTTP
// handlers only read cached state. Consecutive-failure and consecutive-success
// thresholds keep a single slow database round trip from flipping readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Check reports nil when the probed component is healthy.
type Check func(ctx context.Context) error

// Kind separates liveness probes (is the process functional) from readiness
// probes (should the process receive traffic).
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

const (
	defaultFailAfter = 3
	defaultPassAfter = 1
)

// probe wraps a Check with its schedule state. The fail/pass counters are
// touched only by the single loop goroutine; ok and err are shared with the
// HTTP handlers and use atomics.
type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	check   Check

	failAfter int
	passAfter int
	fails     int
	passes    int

	ok  atomic.Bool
	err atomic.Pointer[error]
}

func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.err.Store(&err)

	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= p.failAfter {
			p.ok.Store(false)
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= p.passAfter {
		p.ok.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.ok.Load() {
		return "", false
	}
	if e := p.err.Load(); e != nil && *e != nil {
		return (*e).Error(), true
	}
	return "probe is failing", true
}

// Monitor runs registered probes and serves their aggregate state.
// A new Monitor reports not ready until SetReady(true) is called.
type Monitor struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Register adds a probe. Registration must happen before Start.
func (m *Monitor) Register(name string, kind Kind, timeout time.Duration, check Check) {
	p := &probe{
		name:      name,
		kind:      kind,
		timeout:   timeout,
		check:     check,
		failAfter: defaultFailAfter,
		passAfter: defaultPassAfter,
	}
	p.ok.Store(true)

	m.mu.Lock()
	m.probes = append(m.probes, p)
	m.mu.Unlock()
}

// Start launches one goroutine per probe, each observing at the given
// interval until the context is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	probes := make([]*probe, len(m.probes))
	copy(probes, m.probes)
	m.mu.Unlock()

	for _, p := range probes {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.observe(ctx)
		}
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set it to true once startup
// finishes and to false at the beginning of graceful shutdown.
func (m *Monitor) SetReady(ready bool) {
	m.ready.Store(ready)
}

// Ready reports whether the gate is open and every readiness probe passes.
func (m *Monitor) Ready() bool {
	if !m.ready.Load() {
		return false
	}
	for _, p := range m.snapshot(Readiness) {
		if !p.ok.Load() {
			return false
		}
	}
	return true
}

func (m *Monitor) snapshot(kind Kind) []*probe {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*probe, 0, len(m.probes))
	for _, p := range m.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type report struct {
	Status string            `json:"status"`
	Probes map[string]string `json:"probes,omitempty"`
}

// LiveHandler serves the liveness endpoint.
func (m *Monitor) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	serve(w, failures(m.snapshot(Liveness)))
}

// ReadyHandler serves the readiness endpoint.
func (m *Monitor) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	bad := failures(m.snapshot(Readiness))
	if !m.ready.Load() {
		bad["shutdown"] = "not accepting traffic"
	}
	serve(w, bad)
}

func failures(probes []*probe) map[string]string {
	bad := make(map[string]string)
	for _, p := range probes {
		if msg, failing := p.failure(); failing {
			bad[p.name] = msg
		}
	}
	return bad
}

func serve(w http.ResponseWriter, bad map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := report{Status: "ok"}
	code := http.StatusOK
	if len(bad) > 0 {
		resp = report{Status: "failing", Probes: bad}
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
