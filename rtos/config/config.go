// Package config holds the kernel's compile-time tunables. Unlike a
// server, firmware has no environment or flag parsing to do this: every
// value here is a constant an integrator overrides by editing the
// constant and rebuilding, the same way the teacher sizes its kernel
// tables (maxTasks, maxEndpoints, mailboxSlots in sparkos/kernel).
package config

// MaxTasks is the upper bound of concurrent tasks, including the builtin
// IDLE task.
const MaxTasks = 16

// MaxTimers is the software timer table capacity.
const MaxTimers = 32

// TimeSliceTicks is the default ROUND_ROBIN quantum.
const TimeSliceTicks = 10

// Task stack bounds, in bytes.
const (
	StackMin     = 256
	StackDefault = 512
	StackMax     = 2048
)

// HeapAlignment is the payload alignment enforced by the heap allocator.
const HeapAlignment = 8

// HeapMinBlock is the minimum remainder size worth splitting off a block.
const HeapMinBlock = 16

// HeapMagic is the integrity-check constant stored in every live block
// header.
const HeapMagic uint32 = 0x5A5AC0DE

// StackSentinel is the fill byte written across a fresh task stack so
// overflow and high-water-mark inspection can detect untouched regions.
const StackSentinel byte = 0xA5
