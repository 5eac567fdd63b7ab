// Package task defines the task control block (TCB) and the state
// machine that governs task lifecycle. It has no knowledge of scheduling
// policy or synchronization primitives; those live in rtos/sched and
// rtos/sync and operate on the fields exported here.
package task

import "rtkernel/rtos/config"

// ID identifies a task within the scheduler's fixed-size task table.
// Index 0 is always the builtin IDLE task.
type ID uint8

// Priority is the 5-level scheduling priority, low to high.
type Priority uint8

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityRealtime
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// State is a task's position in the lifecycle state machine (spec §4.4).
type State uint8

const (
	Ready State = iota
	Running
	Blocked
	Suspended
	Deleted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Suspended:
		return "suspended"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Tick counts ticks since scheduler start.
type Tick uint64

// Forever is the timeout sentinel meaning "wait indefinitely".
const Forever Tick = ^Tick(0)

// WaitObject is implemented by the synchronization primitives (mutex,
// semaphore, queue) so a blocked TCB can carry a typed back-reference to
// whatever it is waiting on (spec §3 TCB attributes).
type WaitObject interface {
	// WaitKind names the primitive kind for diagnostics, e.g. "mutex".
	WaitKind() string
}

// Entry is a task's body. It is invoked once, on the task's own
// goroutine, with its opaque parameter.
type Entry func(param any)

// TCB is the task control block. Fields are mutated only by rtos/sched
// under its critical section; callers use the accessor methods.
type TCB struct {
	ID       ID
	Name     string
	Priority Priority
	State    State

	stack        []byte
	stackBase    int
	stackSize    int
	stackPointer int // simulated: an offset into stack, not a real SP

	SliceRemaining uint32
	WakeTick       Tick
	HasDeadline    bool
	WokeByTimeout  bool

	RunCount     uint64
	TotalRuntime uint64

	BlockedOn WaitObject

	entry Entry
	param any

	resume  chan struct{}
	exited  chan struct{}
	started bool
}

// New fabricates a TCB with a sentinel-filled stack region, mirroring
// the original firmware's Task::create: the stack is allocated, filled
// with the 0xA5 sentinel pattern. No initial register frame is
// fabricated: the task first runs when its goroutine receives Resume
// (see Launch), and port.InitStack is not called.
//
// stackSize must be within [config.StackMin, config.StackMax].
func New(id ID, name string, priority Priority, stackSize int, entry Entry, param any) (*TCB, bool) {
	if stackSize < config.StackMin || stackSize > config.StackMax {
		return nil, false
	}
	stack := make([]byte, stackSize)
	for i := range stack {
		stack[i] = config.StackSentinel
	}
	return &TCB{
		ID:       id,
		Name:     name,
		Priority: priority,
		State:    Ready,
		stack:    stack,
		stackBase: 0,
		stackSize: stackSize,
		entry:    entry,
		param:    param,
		resume:   make(chan struct{}),
		exited:   make(chan struct{}),
	}, true
}

// StackSize returns the task's stack region size in bytes.
func (t *TCB) StackSize() int { return t.stackSize }

// StackIntact reports whether the low sentinel region of the stack is
// untouched, i.e. no overflow has been detected (spec §3 invariant).
// The low end is defined as the first 16 bytes of the stack region,
// since the stack is modeled as growing from index 0 upward in this
// host simulation (a real port's stack grows down from stackBase +
// stackSize; the sentinel-check invariant is direction-agnostic).
func (t *TCB) StackIntact() bool {
	n := 16
	if n > len(t.stack) {
		n = len(t.stack)
	}
	for i := 0; i < n; i++ {
		if t.stack[i] != config.StackSentinel {
			return false
		}
	}
	return true
}

// TouchStack marks n bytes from the low end of the stack as used. Test
// harnesses use this to simulate stack growth without a real port.
func (t *TCB) TouchStack(n int) {
	if n > len(t.stack) {
		n = len(t.stack)
	}
	for i := 0; i < n; i++ {
		t.stack[i] = 0
	}
}

// Launch starts the task's backing goroutine. The goroutine blocks
// immediately on the first resume signal; the scheduler decides when to
// send it by calling Resume.
func (t *TCB) Launch() {
	if t.started {
		return
	}
	t.started = true
	go func() {
		<-t.resume
		t.entry(t.param)
		close(t.exited)
	}()
}

// Resume wakes the task's goroutine for one run of the dispatch loop.
// Exported for rtos/sched; not meant for task code.
func (t *TCB) Resume() { t.resume <- struct{}{} }

// Park blocks the calling goroutine (which must be this TCB's own) until
// the scheduler calls Resume again. Exported for rtos/sched.
func (t *TCB) Park() { <-t.resume }

// Exited reports the channel closed when entry returns.
func (t *TCB) Exited() <-chan struct{} { return t.exited }
