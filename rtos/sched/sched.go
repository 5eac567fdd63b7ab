// Package sched implements the task scheduler: the ready set, the three
// scheduling policies, the tick handler, and the blocking primitives
// (Yield, Delay, BlockCurrent/WakeTask) that rtos/sync and rtos/queue
// build on. It also owns the rtos/timer manager and fires it from OnTick.
//
// The kernel's "global singleton scheduler" (spec §9 design notes) is
// realized here as an explicit *Scheduler threaded into every
// synchronization primitive's constructor, rather than a package-level
// global: every primitive already needs a scheduler reference to block
// and wake tasks, so passing one in is no more ceremony than a global
// lookup would be, and it keeps rtos/sync and rtos/queue free of
// init-order dependencies on a package they don't own.
package sched

import (
	"sync"

	"rtkernel/rtos/config"
	"rtkernel/rtos/diag"
	"rtkernel/rtos/port"
	"rtkernel/rtos/task"
	"rtkernel/rtos/timer"
)

// Policy selects how the scheduler picks the next task to run.
type Policy uint8

const (
	RoundRobin Policy = iota
	Priority
	Cooperative
)

func (p Policy) String() string {
	switch p {
	case RoundRobin:
		return "round-robin"
	case Priority:
		return "priority"
	case Cooperative:
		return "cooperative"
	default:
		return "unknown"
	}
}

// Stats mirrors the original firmware's SchedulerStats.
type Stats struct {
	TotalTasks     int
	ReadyTasks     int
	BlockedTasks   int
	SuspendedTasks int
	UptimeTicks    task.Tick
}

// Scheduler is the kernel's task scheduler. The zero value is not
// usable; construct with New.
type Scheduler struct {
	// critMu is the kernel's single critical-section lock: every public
	// operation that touches the task table or a primitive's wait queue
	// holds it for the duration of its bookkeeping, and OnTick holds it
	// while firing timers, mirroring spec §5's global interrupt mask.
	// timer.Manager's own methods (Create, Start, Stop, ...) do not take
	// it. It is released before
	// any call that parks a task's goroutine, since parking blocks the
	// caller and must never be done with the lock held.
	critMu sync.Mutex
	hooks  port.Hooks

	policy    Policy
	running   bool
	initDone  bool
	tickCount task.Tick

	tasks    [config.MaxTasks]*task.TCB
	numTasks int
	nextID   task.ID

	current *task.TCB
	idle    *task.TCB

	timeSlice uint32
	control   chan task.ID

	timers *timer.Manager
	sink   diag.Sink
}

// New constructs a scheduler bound to the given port. Call Init before
// any other method.
func New(hooks port.Hooks, sink diag.Sink) *Scheduler {
	return &Scheduler{
		hooks:     hooks,
		timeSlice: config.TimeSliceTicks,
		control:   make(chan task.ID),
		timers:    timer.NewManager(diag.Safe(sink)),
		sink:      diag.Safe(sink),
	}
}

// Timers returns the timer manager fired by OnTick.
func (s *Scheduler) Timers() *timer.Manager { return s.timers }

// Init must be called once before any other kernel operation. It
// installs the builtin IDLE task.
func (s *Scheduler) Init(policy Policy) bool {
	s.critMu.Lock()
	defer s.critMu.Unlock()
	if s.initDone {
		return false
	}
	s.policy = policy
	s.tickCount = 0
	idle, ok := task.New(0, "IDLE", task.PriorityIdle, config.StackMin, s.idleEntry, nil)
	if !ok {
		return false
	}
	idle.SliceRemaining = s.timeSlice
	idle.Launch()
	s.idle = idle
	s.tasks[0] = idle
	s.numTasks = 1
	s.nextID = 1
	s.initDone = true
	s.sink.WriteLine("[sched] init policy=" + policy.String())
	return true
}

func (s *Scheduler) idleEntry(any) {
	for {
		s.hooks.WaitForInterrupt()
		s.Yield()
	}
}

// AddTask registers a task with the scheduler, assigning it the next
// available slot and ID. entry and param become the task's goroutine
// body and argument.
func (s *Scheduler) AddTask(name string, priority task.Priority, stackSize int, entry task.Entry, param any) (*task.TCB, bool) {
	s.critMu.Lock()
	if s.numTasks >= config.MaxTasks {
		s.critMu.Unlock()
		return nil, false
	}
	id := s.nextID
	s.nextID++

	var t *task.TCB
	wrapped := func(p any) {
		entry(p)
		s.finishTask(t)
	}
	var ok bool
	t, ok = task.New(id, name, priority, stackSize, wrapped, param)
	if !ok {
		s.critMu.Unlock()
		return nil, false
	}
	t.SliceRemaining = s.timeSlice
	slot := -1
	for i := 0; i < config.MaxTasks; i++ {
		if s.tasks[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		s.critMu.Unlock()
		return nil, false
	}
	s.tasks[slot] = t
	s.numTasks++
	s.critMu.Unlock()

	t.Launch()
	s.sink.WriteLine("[sched] task '" + name + "' added")
	return t, true
}

// RemoveTask deletes a task. Removing the RUNNING task triggers a
// reschedule; the caller is expected to be some other task or the tick
// path, never the task being removed from within itself mid-run without
// also yielding (spec §3 lifecycle).
func (s *Scheduler) RemoveTask(t *task.TCB) bool {
	s.critMu.Lock()
	found := false
	for i := 0; i < config.MaxTasks; i++ {
		if s.tasks[i] == t {
			s.tasks[i] = nil
			s.numTasks--
			found = true
			break
		}
	}
	if !found {
		s.critMu.Unlock()
		return false
	}
	wasRunning := t == s.current
	t.State = task.Deleted
	if wasRunning {
		s.current = nil
	}
	s.critMu.Unlock()
	if wasRunning {
		s.Yield()
	}
	return true
}

// Current returns the RUNNING TCB, or nil during bring-up before Start.
func (s *Scheduler) Current() *task.TCB {
	s.critMu.Lock()
	defer s.critMu.Unlock()
	return s.current
}

// TickCount returns the number of ticks observed since Start.
func (s *Scheduler) TickCount() task.Tick {
	s.critMu.Lock()
	defer s.critMu.Unlock()
	return s.tickCount
}

// Stats returns a snapshot of scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.critMu.Lock()
	defer s.critMu.Unlock()
	st := Stats{UptimeTicks: s.tickCount}
	for i := 0; i < config.MaxTasks; i++ {
		t := s.tasks[i]
		if t == nil {
			continue
		}
		st.TotalTasks++
		switch t.State {
		case task.Ready:
			st.ReadyTasks++
		case task.Blocked:
			st.BlockedTasks++
		case task.Suspended:
			st.SuspendedTasks++
		}
	}
	return st
}

// Start hands control to the port's tick source and to the first
// selected task. It never returns.
func (s *Scheduler) Start() {
	s.critMu.Lock()
	if !s.initDone || s.running {
		s.critMu.Unlock()
		return
	}
	s.running = true
	next := s.selectNextLocked(nil)
	s.current = next
	next.State = task.Running
	next.RunCount++
	s.critMu.Unlock()

	s.hooks.TickEnable(1000, 0, s.OnTick)

	next.Resume()
	s.dispatchLoop()
}

// dispatchLoop blocks until the currently running task hands control
// back (via Yield/Delay/a blocking primitive), then selects and resumes
// the next task. It runs for the lifetime of the scheduler.
func (s *Scheduler) dispatchLoop() {
	for {
		<-s.control
		s.critMu.Lock()
		next := s.selectNextLocked(s.current)
		s.current = next
		next.State = task.Running
		next.RunCount++
		s.critMu.Unlock()
		next.Resume()
	}
}

// handoff is called from the currently running task's own goroutine to
// give control back to the dispatcher and block until resumed. Callers
// must not hold critMu when calling this.
func (s *Scheduler) handoff(t *task.TCB) {
	s.control <- t.ID
	t.Park()
}

// finishTask is invoked once a task's entry function returns. It marks
// the task DELETED and hands control back to the dispatcher without
// parking, since this goroutine is about to exit for good rather than
// waiting for another Resume.
func (s *Scheduler) finishTask(t *task.TCB) {
	s.critMu.Lock()
	t.State = task.Deleted
	s.critMu.Unlock()
	s.control <- t.ID
}

// Yield voluntarily reschedules the calling task. It returns
// immediately if no other READY task exists.
func (s *Scheduler) Yield() {
	s.critMu.Lock()
	t := s.current
	if t == nil {
		s.critMu.Unlock()
		return
	}
	if t.State == task.Running {
		t.State = task.Ready
	}
	s.critMu.Unlock()
	s.handoff(t)
}

// Delay blocks the calling task until tick_count + ticks. delay(0) is
// equivalent to Yield.
func (s *Scheduler) Delay(ticks task.Tick) {
	if ticks == 0 {
		s.Yield()
		return
	}
	s.critMu.Lock()
	t := s.current
	if t == nil {
		s.critMu.Unlock()
		return
	}
	t.State = task.Blocked
	t.BlockedOn = nil
	t.HasDeadline = true
	t.WakeTick = s.tickCount + ticks
	s.critMu.Unlock()
	s.handoff(t)
}

// BlockCurrent blocks the calling task on obj with an optional
// deadline (task.Forever meaning no deadline). It returns true if the
// task was woken by an explicit WakeTask call, false if it was woken by
// deadline expiry (caller should then treat this as ERR_TIMEOUT and
// remove itself from obj's wait queue).
func (s *Scheduler) BlockCurrent(obj task.WaitObject, timeout task.Tick) bool {
	s.critMu.Lock()
	t := s.current
	if t == nil {
		s.critMu.Unlock()
		return false
	}
	t.State = task.Blocked
	t.BlockedOn = obj
	t.WokeByTimeout = false
	if timeout == task.Forever {
		t.HasDeadline = false
	} else {
		t.HasDeadline = true
		t.WakeTick = s.tickCount + timeout
	}
	s.critMu.Unlock()

	s.handoff(t)

	s.critMu.Lock()
	woken := !t.WokeByTimeout
	t.BlockedOn = nil
	s.critMu.Unlock()
	return woken
}

// WakeTask moves a BLOCKED task to READY. Synchronization primitives
// call this on release/give/send to hand off to the head of their wait
// queue (spec §4.6-§4.8 FIFO wakeups).
func (s *Scheduler) WakeTask(t *task.TCB) {
	s.critMu.Lock()
	if t.State == task.Blocked {
		t.State = task.Ready
		t.HasDeadline = false
	}
	s.critMu.Unlock()
}

// Enter acquires the kernel's critical section. Pair with Exit. Held
// only across bookkeeping that must not interleave with the tick path
// or another task's kernel call; never held across a call that parks a
// task (spec §5).
func (s *Scheduler) Enter() { s.critMu.Lock() }

// Exit releases the kernel's critical section.
func (s *Scheduler) Exit() { s.critMu.Unlock() }

// OnTick must be called from the port's tick source. It runs the full
// §4.5 sequence: advance the tick counter, wake delay/timeout-expired
// tasks, fire expired timers, and evaluate preemption.
func (s *Scheduler) OnTick() {
	s.critMu.Lock()
	s.tickCount++
	now := s.tickCount

	for i := 0; i < config.MaxTasks; i++ {
		t := s.tasks[i]
		if t == nil || t.State != task.Blocked || !t.HasDeadline {
			continue
		}
		if t.WakeTick <= now {
			t.State = task.Ready
			t.HasDeadline = false
			t.WokeByTimeout = true
		}
	}

	s.timers.OnTick()

	preempt := false
	if s.policy != Cooperative && s.current != nil {
		cur := s.current
		if cur.SliceRemaining > 0 {
			cur.SliceRemaining--
		}
		if cur.SliceRemaining == 0 {
			preempt = true
			cur.SliceRemaining = s.timeSlice
		} else if s.policy == Priority && s.higherPriorityReadyLocked(cur) {
			preempt = true
		}
	}
	s.critMu.Unlock()

	// preempt is bookkeeping only: OnTick runs on the port's tick
	// source, never on the running task's own goroutine, so it cannot
	// safely park that goroutine itself (only a task can Park itself).
	// YieldRequest is the port's hook for nudging a real interrupt-driven
	// CPU into a context switch at the next safe point; on this hosted
	// port the actual switch happens only when the running task next
	// calls Yield/Delay/a blocking primitive; selectNextLocked does not
	// consult SliceRemaining, which is simply reloaded here.
	if preempt {
		s.hooks.YieldRequest()
	}
}

func (s *Scheduler) higherPriorityReadyLocked(cur *task.TCB) bool {
	for i := 0; i < config.MaxTasks; i++ {
		t := s.tasks[i]
		if t == nil || t == cur || t.State != task.Ready {
			continue
		}
		if t.Priority > cur.Priority {
			return true
		}
	}
	return false
}

// selectNextLocked picks the next task to run under the configured
// policy. Must be called with critMu held. cur may be nil (startup).
func (s *Scheduler) selectNextLocked(cur *task.TCB) *task.TCB {
	switch s.policy {
	case Priority:
		return s.selectPriorityLocked()
	case RoundRobin, Cooperative:
		return s.selectRoundRobinLocked(cur)
	default:
		return s.idle
	}
}

func (s *Scheduler) selectRoundRobinLocked(cur *task.TCB) *task.TCB {
	n := len(s.tasks)
	start := 0
	if cur != nil {
		for i := 0; i < n; i++ {
			if s.tasks[i] == cur {
				start = i + 1
				break
			}
		}
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		t := s.tasks[idx]
		if t != nil && t != s.idle && t.State == task.Ready {
			return t
		}
	}
	return s.idle
}

func (s *Scheduler) selectPriorityLocked() *task.TCB {
	var best *task.TCB
	n := len(s.tasks)
	start := 0
	if s.current != nil {
		for i := 0; i < n; i++ {
			if s.tasks[i] == s.current {
				start = i + 1
				break
			}
		}
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		t := s.tasks[idx]
		if t == nil || t == s.idle || t.State != task.Ready {
			continue
		}
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}
	if best == nil {
		return s.idle
	}
	return best
}
