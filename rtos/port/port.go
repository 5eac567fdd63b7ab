// Package port declares the hardware boundary the kernel core depends
// on and never implements: programming a periodic tick source,
// requesting a deferred context switch, masking/restoring interrupts,
// and idling the CPU. Real firmware backs this with register writes;
// rtos/port/simhost backs it with goroutines for hosted testing and the
// cmd/kernelsim demo.
package port

// Hooks is the four-call port interface spec §6 requires of the layer
// below the kernel, plus WaitForInterrupt for the IDLE task.
type Hooks interface {
	// TickEnable programs a periodic tick source at rateHz (with the
	// platform's cpuFreqHz as context for the divider) and arranges for
	// onTick to be invoked on every tick. It is called once, from
	// Scheduler.Start.
	TickEnable(rateHz, cpuFreqHz uint32, onTick func())

	// YieldRequest asks for a deferred context switch at the next safe
	// point. On real hardware this pends an interrupt; implementations
	// must not switch context synchronously from inside YieldRequest.
	YieldRequest()

	// InterruptsDisable masks interrupts and returns the previous mask
	// state, to be passed back to InterruptsRestore.
	InterruptsDisable() uint32

	// InterruptsRestore restores the interrupt mask state returned by a
	// matching InterruptsDisable.
	InterruptsRestore(state uint32)

	// WaitForInterrupt parks the CPU until the next interrupt. Used
	// only by the builtin IDLE task.
	WaitForInterrupt()
}

// StackFrame is the saved stack pointer InitStack returns. On a real
// port, InitStack fabricates the initial register frame for a task so
// that, on first dispatch, execution begins at entry(param) using the
// task's own stack; the kernel would treat the returned value as opaque,
// and only the port knows the register layout (spec §9).
//
// InitStack is a free function rather than a Hooks method because, in
// this hosted kernel, "resuming a task" is realized as waking a
// goroutine (rtos/task.TCB.Resume), not restoring a stack pointer: the
// simulated stack in rtos/task is bookkeeping for overflow detection
// only, never an executable frame. A bare-metal port replaces this
// file's counterpart with one that writes an ARM exception frame and
// returns a real saved SP; nothing outside the port package needs to
// change.
type StackFrame struct {
	SP uintptr
}

// InitStack is the simulation-neutral entry point kept for symmetry
// with the port interface named in spec §6. It returns topOfStack
// unchanged, and nothing in this hosted kernel calls it, since task
// resumption is goroutine-based here.
func InitStack(topOfStack uintptr) StackFrame {
	return StackFrame{SP: topOfStack}
}
