package sync

import (
	"rtkernel/rtos/errs"
	"rtkernel/rtos/sched"
	"rtkernel/rtos/task"
)

// Semaphore is a counting semaphore with FIFO wakeup ordering, grounded
// on original_source/src/rtos/kernel/semaphore.cpp. A binary semaphore
// is a Semaphore constructed with max=1.
type Semaphore struct {
	name    string
	sched   *sched.Scheduler
	count   int
	max     int
	waiters []*task.TCB
}

// NewSemaphore constructs a counting semaphore with the given initial
// count and maximum count. initial must not exceed max.
func NewSemaphore(s *sched.Scheduler, name string, initial, max int) (*Semaphore, errs.Result) {
	if max <= 0 || initial < 0 || initial > max {
		return nil, errs.ErrInvalidParam
	}
	return &Semaphore{name: name, sched: s, count: initial, max: max}, errs.OK
}

// NewBinarySemaphore constructs a semaphore with max count 1.
func NewBinarySemaphore(s *sched.Scheduler, name string, initial int) (*Semaphore, errs.Result) {
	return NewSemaphore(s, name, initial, 1)
}

// WaitKind implements task.WaitObject.
func (s *Semaphore) WaitKind() string { return "semaphore" }

// Name returns the semaphore's diagnostic name.
func (s *Semaphore) Name() string { return s.name }

// Take decrements the semaphore, blocking up to timeout ticks
// (task.Forever to wait indefinitely) if the count is zero.
func (s *Semaphore) Take(timeout task.Tick) errs.Result {
	cur := s.sched.Current()
	s.sched.Enter()
	if s.count > 0 {
		s.count--
		s.sched.Exit()
		return errs.OK
	}
	s.waiters = append(s.waiters, cur)
	s.sched.Exit()

	if woken := s.sched.BlockCurrent(s, timeout); !woken {
		s.sched.Enter()
		s.removeWaiterLocked(cur)
		s.sched.Exit()
		return errs.ErrTimeout
	}
	return errs.OK
}

// TryTake decrements the semaphore only if it is immediately available.
func (s *Semaphore) TryTake() errs.Result {
	s.sched.Enter()
	defer s.sched.Exit()
	if s.count > 0 {
		s.count--
		return errs.OK
	}
	return errs.ErrBusy
}

// Give increments the semaphore, or hands off directly to the
// longest-waiting task if one is queued. Returns errs.ErrFull if the
// count is already at its maximum and no task is waiting.
func (s *Semaphore) Give() errs.Result {
	s.sched.Enter()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.sched.Exit()
		s.sched.WakeTask(next)
		return errs.OK
	}
	if s.count >= s.max {
		s.sched.Exit()
		return errs.ErrFull
	}
	s.count++
	s.sched.Exit()
	return errs.OK
}

// Count returns the current available count.
func (s *Semaphore) Count() int {
	s.sched.Enter()
	defer s.sched.Exit()
	return s.count
}

// WaiterCount returns the number of tasks currently queued.
func (s *Semaphore) WaiterCount() int {
	s.sched.Enter()
	defer s.sched.Exit()
	return len(s.waiters)
}

func (s *Semaphore) removeWaiterLocked(t *task.TCB) {
	for i, w := range s.waiters {
		if w == t {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
