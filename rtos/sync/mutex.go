// Package sync implements the kernel's mutex and semaphore primitives on
// top of rtos/sched's blocking primitives, grounded on
// original_source/src/rtos/kernel/mutex.cpp and semaphore.cpp.
//
// The original firmware's mutex_lock spins: "while (locked) { task_yield();
// }". Spec §9 flags this as a latent starvation bug (no ordering among
// waiters, and every waiter burns a full scheduling pass on every
// attempt) and asks for list-driven FIFO wakeup instead. Mutex and
// Semaphore here block on rtos/sched's wait queues and hand off directly
// to the longest-waiting task on release, instead of re-polling a flag.
package sync

import (
	"rtkernel/rtos/errs"
	"rtkernel/rtos/sched"
	"rtkernel/rtos/task"
)

// Mutex is a mutual-exclusion lock with FIFO wakeup ordering. Use
// NewMutex for a non-recursive lock, NewRecursiveMutex for one that a
// holder may re-acquire.
type Mutex struct {
	name      string
	sched     *sched.Scheduler
	recursive bool

	owner     *task.TCB
	lockDepth int
	waiters   []*task.TCB
}

// NewMutex constructs a non-recursive mutex. Locking it twice from the
// same task without an intervening Unlock returns errs.ErrBusy.
func NewMutex(s *sched.Scheduler, name string) *Mutex {
	return &Mutex{name: name, sched: s}
}

// NewRecursiveMutex constructs a mutex that the current holder may
// re-acquire; it must be unlocked the same number of times it was
// locked before another task can take it.
func NewRecursiveMutex(s *sched.Scheduler, name string) *Mutex {
	return &Mutex{name: name, sched: s, recursive: true}
}

// WaitKind implements task.WaitObject.
func (m *Mutex) WaitKind() string { return "mutex" }

// Name returns the mutex's diagnostic name.
func (m *Mutex) Name() string { return m.name }

// Holder returns the task currently holding the mutex, or nil.
func (m *Mutex) Holder() *task.TCB {
	m.sched.Enter()
	defer m.sched.Exit()
	return m.owner
}

// Lock acquires the mutex, blocking the calling task up to timeout
// ticks (task.Forever to wait indefinitely). Returns errs.ErrBusy if
// the mutex is non-recursive and already held by the caller,
// errs.ErrTimeout if the deadline passes first.
func (m *Mutex) Lock(timeout task.Tick) errs.Result {
	cur := m.sched.Current()
	m.sched.Enter()

	if m.owner == nil {
		m.owner = cur
		m.lockDepth = 1
		m.sched.Exit()
		return errs.OK
	}
	if m.owner == cur {
		if !m.recursive {
			m.sched.Exit()
			return errs.ErrBusy
		}
		m.lockDepth++
		m.sched.Exit()
		return errs.OK
	}

	m.waiters = append(m.waiters, cur)
	m.sched.Exit()

	if woken := m.sched.BlockCurrent(m, timeout); !woken {
		m.sched.Enter()
		m.removeWaiterLocked(cur)
		m.sched.Exit()
		return errs.ErrTimeout
	}
	return errs.OK
}

// TryLock acquires the mutex only if it is immediately available,
// never blocking.
func (m *Mutex) TryLock() errs.Result {
	cur := m.sched.Current()
	m.sched.Enter()
	defer m.sched.Exit()
	if m.owner == nil {
		m.owner = cur
		m.lockDepth = 1
		return errs.OK
	}
	if m.owner == cur && m.recursive {
		m.lockDepth++
		return errs.OK
	}
	return errs.ErrBusy
}

// Unlock releases one level of ownership. If the calling task is not
// the holder, it returns errs.ErrNotReady without changing state
// (spec §4.6: unlocking a mutex you don't hold is a caller error, not a
// silent no-op). Releasing the outermost level hands the mutex directly
// to the longest-waiting task, if any.
func (m *Mutex) Unlock() errs.Result {
	cur := m.sched.Current()
	m.sched.Enter()
	if m.owner != cur {
		m.sched.Exit()
		return errs.ErrNotReady
	}

	m.lockDepth--
	if m.lockDepth > 0 {
		m.sched.Exit()
		return errs.OK
	}

	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.owner = next
		m.lockDepth = 1
		m.sched.Exit()
		m.sched.WakeTask(next)
		return errs.OK
	}

	m.owner = nil
	m.lockDepth = 0
	m.sched.Exit()
	return errs.OK
}

// WaiterCount returns the number of tasks currently queued for the
// mutex. Intended for diagnostics and tests.
func (m *Mutex) WaiterCount() int {
	m.sched.Enter()
	defer m.sched.Exit()
	return len(m.waiters)
}

// removeWaiterLocked drops t from the wait queue. Callers must hold the
// scheduler's critical section.
func (m *Mutex) removeWaiterLocked(t *task.TCB) {
	for i, w := range m.waiters {
		if w == t {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}
