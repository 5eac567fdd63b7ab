package sync

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

func TestMutexGrantsFIFOOrderToWaiters(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	mu := NewMutex(s, "m")

	var order []string
	done := make(chan struct{})
	completed := 0

	// holder takes the mutex first and keeps it long enough for all
	// three waiters below to queue up behind it before releasing, so
	// the eventual grant order is a real test of the wait queue rather
	// than an artifact of staggered timeouts.
	s.AddTask("holder", task.PriorityNormal, config.StackDefault, func(any) {
		mu.Lock(task.Forever)
		s.Delay(10)
		mu.Unlock()
	}, nil)

	register := func(name string, after task.Tick) {
		s.AddTask(name, task.PriorityNormal, config.StackDefault, func(any) {
			s.Delay(after)
			if res := mu.Lock(task.Forever); res != errs.OK {
				t.Errorf("%s: lock failed: %v", name, res)
			}
			order = append(order, name)
			mu.Unlock()
			completed++
			if completed == 3 {
				close(done)
			}
		}, nil)
	}

	register("first", 1)
	register("second", 2)
	register("third", 3)

	go s.Start()
	driveTicks(t, port, done)

	if len(order) != 3 {
		t.Fatalf("order = %v; want 3 entries", order)
	}
	if order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("order = %v; want [first second third]", order)
	}
}

func TestMutexDoubleLockByNonRecursiveOwnerReturnsBusy(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	mu := NewMutex(s, "m")

	done := make(chan struct{})
	s.AddTask("task", task.PriorityNormal, config.StackDefault, func(any) {
		if res := mu.Lock(task.Forever); res != errs.OK {
			t.Errorf("first lock: %v", res)
		}
		if res := mu.Lock(100); res != errs.ErrBusy {
			t.Errorf("nested lock = %v; want ErrBusy", res)
		}
		mu.Unlock()
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}

func TestRecursiveMutexAllowsNestedLock(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	mu := NewRecursiveMutex(s, "m")

	done := make(chan struct{})
	s.AddTask("task", task.PriorityNormal, config.StackDefault, func(any) {
		if res := mu.Lock(task.Forever); res != errs.OK {
			t.Errorf("outer lock: %v", res)
		}
		if res := mu.Lock(task.Forever); res != errs.OK {
			t.Errorf("nested lock: %v", res)
		}
		mu.Unlock()
		if mu.Holder() == nil {
			t.Errorf("mutex should still be held after one of two unlocks")
		}
		mu.Unlock()
		if mu.Holder() != nil {
			t.Errorf("mutex should be free after matching unlocks")
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}

func TestMutexUnlockByNonOwnerRejected(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	mu := NewMutex(s, "m")

	done := make(chan struct{})
	s.AddTask("owner", task.PriorityNormal, config.StackDefault, func(any) {
		mu.Lock(task.Forever)
		s.Delay(3)
		mu.Unlock()
	}, nil)
	s.AddTask("intruder", task.PriorityNormal, config.StackDefault, func(any) {
		s.Delay(1)
		if res := mu.Unlock(); res != errs.ErrNotReady {
			t.Errorf("unlock by non-owner = %v; want ErrNotReady", res)
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}

func TestMutexLockTimesOutWhenHeldByAnother(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	mu := NewMutex(s, "m")

	done := make(chan struct{})
	s.AddTask("holder", task.PriorityNormal, config.StackDefault, func(any) {
		mu.Lock(task.Forever)
		s.Delay(50)
		mu.Unlock()
	}, nil)
	s.AddTask("impatient", task.PriorityNormal, config.StackDefault, func(any) {
		s.Delay(1)
		if res := mu.Lock(5); res != errs.ErrTimeout {
			t.Errorf("lock with short timeout = %v; want ErrTimeout", res)
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}
