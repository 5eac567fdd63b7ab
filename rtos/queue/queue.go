// Package queue implements the bounded inter-task message queue,
// grounded on original_source/src/rtos/kernel/queue.cpp's ring-buffer
// storage and wait lists, generalized with Go generics in place of the
// C++ source's template parameter.
package queue

import (
	"rtkernel/rtos/errs"
	"rtkernel/rtos/ring"
	"rtkernel/rtos/sched"
	"rtkernel/rtos/task"
)

// Queue is a fixed-capacity FIFO message queue. Senders block while
// full, receivers block while empty, both in FIFO order and both
// woken directly (never by polling) once the other side makes progress.
type Queue[T any] struct {
	name  string
	sched *sched.Scheduler
	ring  *ring.Ring[T]

	sendWaiters []*task.TCB
	recvWaiters []*task.TCB
}

// New constructs a queue with the given fixed message capacity.
func New[T any](s *sched.Scheduler, name string, capacity int) (*Queue[T], errs.Result) {
	if capacity <= 0 {
		return nil, errs.ErrInvalidParam
	}
	return &Queue[T]{name: name, sched: s, ring: ring.New[T](capacity)}, errs.OK
}

// WaitKind implements task.WaitObject.
func (q *Queue[T]) WaitKind() string { return "queue" }

// Name returns the queue's diagnostic name.
func (q *Queue[T]) Name() string { return q.name }

// Capacity returns the queue's fixed message capacity.
func (q *Queue[T]) Capacity() int { return q.ring.Capacity() }

// Len returns the number of messages currently queued.
func (q *Queue[T]) Len() int {
	q.sched.Enter()
	defer q.sched.Exit()
	return q.ring.Len()
}

// Send enqueues item, blocking up to timeout ticks (task.Forever to
// wait indefinitely) while the queue is full.
func (q *Queue[T]) Send(item T, timeout task.Tick) errs.Result {
	cur := q.sched.Current()
	q.sched.Enter()
	if q.ring.PushBack(item) {
		woke := q.popRecvWaiterLocked()
		q.sched.Exit()
		if woke != nil {
			q.sched.WakeTask(woke)
		}
		return errs.OK
	}
	q.sendWaiters = append(q.sendWaiters, cur)
	q.sched.Exit()

	if woken := q.sched.BlockCurrent(q, timeout); !woken {
		q.sched.Enter()
		q.removeSendWaiterLocked(cur)
		q.sched.Exit()
		return errs.ErrTimeout
	}

	q.sched.Enter()
	ok := q.ring.PushBack(item)
	woke := (*task.TCB)(nil)
	if ok {
		woke = q.popRecvWaiterLocked()
	}
	q.sched.Exit()
	if !ok {
		return errs.ErrGeneric
	}
	if woke != nil {
		q.sched.WakeTask(woke)
	}
	return errs.OK
}

// TrySend enqueues item only if the queue is not full, never blocking.
func (q *Queue[T]) TrySend(item T) errs.Result {
	q.sched.Enter()
	if !q.ring.PushBack(item) {
		q.sched.Exit()
		return errs.ErrFull
	}
	woke := q.popRecvWaiterLocked()
	q.sched.Exit()
	if woke != nil {
		q.sched.WakeTask(woke)
	}
	return errs.OK
}

// Receive dequeues the oldest message, blocking up to timeout ticks
// (task.Forever to wait indefinitely) while the queue is empty.
func (q *Queue[T]) Receive(timeout task.Tick) (T, errs.Result) {
	cur := q.sched.Current()
	q.sched.Enter()
	if v, ok := q.ring.PopFront(); ok {
		woke := q.popSendWaiterLocked()
		q.sched.Exit()
		if woke != nil {
			q.sched.WakeTask(woke)
		}
		return v, errs.OK
	}
	q.recvWaiters = append(q.recvWaiters, cur)
	q.sched.Exit()

	var zero T
	if woken := q.sched.BlockCurrent(q, timeout); !woken {
		q.sched.Enter()
		q.removeRecvWaiterLocked(cur)
		q.sched.Exit()
		return zero, errs.ErrTimeout
	}

	q.sched.Enter()
	v, ok := q.ring.PopFront()
	woke := (*task.TCB)(nil)
	if ok {
		woke = q.popSendWaiterLocked()
	}
	q.sched.Exit()
	if !ok {
		return zero, errs.ErrGeneric
	}
	if woke != nil {
		q.sched.WakeTask(woke)
	}
	return v, errs.OK
}

// TryReceive dequeues the oldest message only if the queue is not
// empty, never blocking.
func (q *Queue[T]) TryReceive() (T, errs.Result) {
	q.sched.Enter()
	v, ok := q.ring.PopFront()
	if !ok {
		q.sched.Exit()
		var zero T
		return zero, errs.ErrEmpty
	}
	woke := q.popSendWaiterLocked()
	q.sched.Exit()
	if woke != nil {
		q.sched.WakeTask(woke)
	}
	return v, errs.OK
}

// Clear discards every queued message without waking any sender: the
// queue is empty afterwards, but a sender already blocked in Send stays
// blocked until its timeout expires or a later successful receive hands
// it a turn, matching the original firmware's queue_clear which never
// touches the wait lists.
func (q *Queue[T]) Clear() {
	q.sched.Enter()
	q.ring.Clear()
	q.sched.Exit()
}

func (q *Queue[T]) popSendWaiterLocked() *task.TCB {
	if len(q.sendWaiters) == 0 {
		return nil
	}
	t := q.sendWaiters[0]
	q.sendWaiters = q.sendWaiters[1:]
	return t
}

func (q *Queue[T]) popRecvWaiterLocked() *task.TCB {
	if len(q.recvWaiters) == 0 {
		return nil
	}
	t := q.recvWaiters[0]
	q.recvWaiters = q.recvWaiters[1:]
	return t
}

func (q *Queue[T]) removeSendWaiterLocked(t *task.TCB) {
	for i, w := range q.sendWaiters {
		if w == t {
			q.sendWaiters = append(q.sendWaiters[:i], q.sendWaiters[i+1:]...)
			return
		}
	}
}

func (q *Queue[T]) removeRecvWaiterLocked(t *task.TCB) {
	for i, w := range q.recvWaiters {
		if w == t {
			q.recvWaiters = append(q.recvWaiters[:i], q.recvWaiters[i+1:]...)
			return
		}
	}
}
