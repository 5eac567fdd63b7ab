package queue

import (
	"testing"
	"time"

	"rtkernel/rtos/config"
	"rtkernel/rtos/errs"
	"rtkernel/rtos/port/simhost"
	"rtkernel/rtos/sched"
	"rtkernel/rtos/task"
)

func driveTicks(t *testing.T, port *simhost.Port, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatalf("timed out waiting for scheduler to finish")
		default:
			port.Tick()
			time.Sleep(time.Millisecond)
		}
	}
}

func TestQueueTrySendTryReceiveRoundTrip(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	q, res := New[int](s, "q", 2)
	if res != errs.OK {
		t.Fatalf("new queue: %v", res)
	}

	if res := q.TrySend(1); res != errs.OK {
		t.Fatalf("send 1: %v", res)
	}
	if res := q.TrySend(2); res != errs.OK {
		t.Fatalf("send 2: %v", res)
	}
	if res := q.TrySend(3); res != errs.ErrFull {
		t.Fatalf("send into full queue = %v; want ErrFull", res)
	}

	v, res := q.TryReceive()
	if res != errs.OK || v != 1 {
		t.Fatalf("receive = %d, %v; want 1, OK", v, res)
	}
	v, res = q.TryReceive()
	if res != errs.OK || v != 2 {
		t.Fatalf("receive = %d, %v; want 2, OK", v, res)
	}
	if _, res := q.TryReceive(); res != errs.ErrEmpty {
		t.Fatalf("receive from empty queue = %v; want ErrEmpty", res)
	}
}

func TestQueuePreservesFIFOOrderAcrossBlockingSendReceive(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	q, _ := New[int](s, "q", 1)

	var received []int
	done := make(chan struct{})

	s.AddTask("producer", task.PriorityNormal, config.StackDefault, func(any) {
		for i := 1; i <= 3; i++ {
			if res := q.Send(i, task.Forever); res != errs.OK {
				t.Errorf("send %d: %v", i, res)
			}
		}
	}, nil)
	s.AddTask("consumer", task.PriorityNormal, config.StackDefault, func(any) {
		for i := 0; i < 3; i++ {
			v, res := q.Receive(task.Forever)
			if res != errs.OK {
				t.Errorf("receive %d: %v", i, res)
			}
			received = append(received, v)
			s.Delay(1)
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)

	if len(received) != 3 {
		t.Fatalf("received = %v; want 3 values", received)
	}
	for i, v := range received {
		if v != i+1 {
			t.Fatalf("received[%d] = %d; want %d", i, v, i+1)
		}
	}
}

func TestQueueReceiveTimesOutWhenEmpty(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	q, _ := New[int](s, "q", 2)

	done := make(chan struct{})
	s.AddTask("receiver", task.PriorityNormal, config.StackDefault, func(any) {
		if _, res := q.Receive(5); res != errs.ErrTimeout {
			t.Errorf("receive on empty queue = %v; want ErrTimeout", res)
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}

func TestQueueSendTimesOutWhenFull(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	q, _ := New[int](s, "q", 1)
	q.TrySend(1)

	done := make(chan struct{})
	s.AddTask("sender", task.PriorityNormal, config.StackDefault, func(any) {
		if res := q.Send(2, 5); res != errs.ErrTimeout {
			t.Errorf("send into permanently full queue = %v; want ErrTimeout", res)
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}

func TestQueueClearDropsMessagesAndAcceptsNewSends(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	q, _ := New[int](s, "q", 1)
	q.TrySend(1)

	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("Len() after Clear = %d; want 0", q.Len())
	}
	if res := q.TrySend(2); res != errs.OK {
		t.Fatalf("send after clear: %v", res)
	}
}
