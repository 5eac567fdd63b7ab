// Package timer implements software timers driven by the scheduler's
// tick, grounded on original_source/src/rtos/kernel/timer.cpp. It has no
// dependency on rtos/sched; rtos/sched owns a *Manager and calls OnTick
// from its own tick handler (spec §9 dependency order: timers have no
// dependents among the other primitives, so they come first).
package timer

import (
	"rtkernel/rtos/config"
	"rtkernel/rtos/diag"
	"rtkernel/rtos/errs"
	"rtkernel/rtos/task"
)

// Kind selects one-shot vs. auto-reloading behavior.
type Kind uint8

const (
	OneShot Kind = iota
	Periodic
)

// State is a timer's lifecycle state.
type State uint8

const (
	Stopped State = iota
	Running
	Expired
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Callback is invoked on expiry, on the scheduler's tick path. It must
// not block.
type Callback func(id ID, param any)

// ID identifies a timer within a Manager's table.
type ID uint16

// Timer is one entry in the timer table.
type Timer struct {
	ID       ID
	Name     string
	kind     Kind
	state    State
	period   task.Tick
	deadline task.Tick
	cb       Callback
	param    any

	ExpiryCount uint64
	MissedTicks uint64
}

func (t *Timer) Kind() Kind   { return t.kind }
func (t *Timer) State() State { return t.state }
func (t *Timer) Period() task.Tick { return t.period }

// Manager owns a fixed-capacity table of timers (config.MaxTimers) and
// fires them from OnTick.
type Manager struct {
	timers [config.MaxTimers]*Timer
	count  int
	nextID ID
	now    task.Tick
	sink   diag.Sink
}

// NewManager constructs an empty timer manager.
func NewManager(sink diag.Sink) *Manager {
	return &Manager{sink: diag.Safe(sink)}
}

// Create allocates a stopped timer. The timer does not run until Start
// is called.
func (m *Manager) Create(name string, kind Kind, period task.Tick, cb Callback, param any) (*Timer, errs.Result) {
	if period == 0 || cb == nil {
		return nil, errs.ErrInvalidParam
	}
	if m.count >= config.MaxTimers {
		return nil, errs.ErrNoMem
	}
	slot := -1
	for i := 0; i < config.MaxTimers; i++ {
		if m.timers[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, errs.ErrNoMem
	}
	id := m.nextID
	m.nextID++
	t := &Timer{ID: id, Name: name, kind: kind, state: Stopped, period: period, cb: cb, param: param}
	m.timers[slot] = t
	m.count++
	return t, errs.OK
}

// Delete removes a timer from the table regardless of its state.
func (m *Manager) Delete(t *Timer) errs.Result {
	for i := 0; i < config.MaxTimers; i++ {
		if m.timers[i] == t {
			m.timers[i] = nil
			m.count--
			return errs.OK
		}
	}
	return errs.ErrNotFound
}

// Start (re)arms a timer for the next period ticks from now. Starting
// an already-running timer restarts its deadline rather than erroring,
// matching the original firmware's timer_start semantics.
func (m *Manager) Start(t *Timer) errs.Result {
	if t == nil {
		return errs.ErrInvalidParam
	}
	t.deadline = m.now + t.period
	t.state = Running
	return errs.OK
}

// Stop halts a running timer without firing it.
func (m *Manager) Stop(t *Timer) errs.Result {
	if t == nil {
		return errs.ErrInvalidParam
	}
	if t.state != Running {
		return errs.ErrNotReady
	}
	t.state = Stopped
	return errs.OK
}

// Reset re-arms a timer from the current tick, whatever its state.
func (m *Manager) Reset(t *Timer) errs.Result {
	if t == nil {
		return errs.ErrInvalidParam
	}
	t.deadline = m.now + t.period
	t.state = Running
	return errs.OK
}

// ChangePeriod updates a timer's period. A running timer is re-armed
// immediately against the new period; a stopped timer picks it up on
// its next Start/Reset.
func (m *Manager) ChangePeriod(t *Timer, period task.Tick) errs.Result {
	if t == nil || period == 0 {
		return errs.ErrInvalidParam
	}
	t.period = period
	if t.state == Running {
		t.deadline = m.now + period
	}
	return errs.OK
}

// OnTick advances the manager's notion of the current tick and fires
// every timer whose deadline has passed. Called once per scheduler
// tick, with the kernel critical section already held by the caller.
func (m *Manager) OnTick() {
	m.now++
	for i := 0; i < config.MaxTimers; i++ {
		t := m.timers[i]
		if t == nil || t.state != Running {
			continue
		}
		if t.deadline > m.now {
			continue
		}
		t.ExpiryCount++
		if t.cb != nil {
			t.cb(t.ID, t.param)
		}
		if t.kind == Periodic {
			missedPeriods := (m.now - t.deadline) / t.period
			t.MissedTicks += uint64(missedPeriods)
			t.deadline = m.now + t.period
			t.state = Running
		} else {
			t.state = Stopped
		}
	}
}

// Now returns the manager's current tick count.
func (m *Manager) Now() task.Tick { return m.now }
