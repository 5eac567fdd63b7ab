// Package simhost is the reference port used by tests and cmd/kernelsim:
// it backs the four port hooks with goroutines and a plain mutex instead
// of MCU registers, mirroring the ARCH_SIMULATION branch of the firmware
// this kernel replaces (port_interface.h's inline x86/x64 stubs).
package simhost

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Port implements rtos/port.Hooks on top of goroutines.
type Port struct {
	mu     sync.Mutex
	masked bool

	tickMu sync.Mutex
	onTick func()
}

// New returns a ready-to-use simulated port.
func New() *Port {
	return &Port{}
}

// TickEnable records the scheduler's tick callback. rateHz and
// cpuFreqHz are accepted for interface parity with a real port but are
// otherwise unused here: RunTicker, not TickEnable, decides the actual
// cadence, and tests drive ticks directly via Tick.
func (p *Port) TickEnable(rateHz, cpuFreqHz uint32, onTick func()) {
	_ = rateHz
	_ = cpuFreqHz
	p.tickMu.Lock()
	p.onTick = onTick
	p.tickMu.Unlock()
}

// Tick fires one tick synchronously. Deterministic tests call this
// directly instead of waiting on wall-clock time.
func (p *Port) Tick() {
	p.tickMu.Lock()
	cb := p.onTick
	p.tickMu.Unlock()
	if cb != nil {
		cb()
	}
}

// RunTicker drives Tick at rateHz until ctx is cancelled, using an
// errgroup to supervise the tick goroutine and return the error that
// stopped it. cmd/kernelsim does not use it; it calls Tick in its own
// loop.
func (p *Port) RunTicker(ctx context.Context, rateHz uint32) error {
	if rateHz == 0 {
		rateHz = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		interval := time.Second / time.Duration(rateHz)
		if interval <= 0 {
			interval = time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				p.Tick()
			}
		}
	})
	return g.Wait()
}

// YieldRequest is a no-op here: rtos/sched switches tasks only when the
// running task calls Yield, Delay or a blocking primitive, so there is
// no deferred-interrupt step to simulate.
func (p *Port) YieldRequest() {}

// InterruptsDisable masks interrupts by acquiring the port's mutex,
// modeling the single hardware interrupt line this kernel assumes.
// rtos/sched guards its own critical sections with an in-process mutex
// (critMu) rather than routing through this hook, so on this hosted
// port InterruptsDisable/InterruptsRestore are exercised only directly
// by tests, never by the scheduler itself; a bare-metal port backed by
// real interrupt masking would wire them into on_tick and the kernel
// API entry points instead.
func (p *Port) InterruptsDisable() uint32 {
	p.mu.Lock()
	if p.masked {
		return 1
	}
	p.masked = true
	return 0
}

// InterruptsRestore unmasks interrupts when state indicates this was
// the outermost disable.
func (p *Port) InterruptsRestore(state uint32) {
	if state == 0 {
		p.masked = false
	}
	p.mu.Unlock()
}

// WaitForInterrupt yields the host scheduler's timeslice; used only by
// the builtin IDLE task.
func (p *Port) WaitForInterrupt() {
	runtime.Gosched()
}
