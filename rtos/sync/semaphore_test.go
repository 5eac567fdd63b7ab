package sync

import (
	"testing"

	"rtkernel/rtos/config"
	"rtkernel/rtos/errs"
	"rtkernel/rtos/port/simhost"
	"rtkernel/rtos/sched"
	"rtkernel/rtos/task"
)

func TestSemaphoreTakeBlocksUntilGive(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	sem, res := NewBinarySemaphore(s, "sem", 0)
	if res != errs.OK {
		t.Fatalf("new semaphore: %v", res)
	}

	done := make(chan struct{})
	var takeResult errs.Result

	s.AddTask("taker", task.PriorityNormal, config.StackDefault, func(any) {
		takeResult = sem.Take(task.Forever)
		close(done)
	}, nil)
	s.AddTask("giver", task.PriorityNormal, config.StackDefault, func(any) {
		s.Delay(5)
		sem.Give()
	}, nil)

	go s.Start()
	driveTicks(t, port, done)

	if takeResult != errs.OK {
		t.Fatalf("take result = %v; want OK", takeResult)
	}
}

func TestSemaphoreCountingBoundsEnforced(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	sem, _ := NewSemaphore(s, "sem", 2, 2)

	done := make(chan struct{})
	s.AddTask("task", task.PriorityNormal, config.StackDefault, func(any) {
		if res := sem.TryTake(); res != errs.OK {
			t.Errorf("take 1: %v", res)
		}
		if res := sem.TryTake(); res != errs.OK {
			t.Errorf("take 2: %v", res)
		}
		if res := sem.TryTake(); res != errs.ErrBusy {
			t.Errorf("take 3 = %v; want ErrBusy", res)
		}
		if res := sem.Give(); res != errs.OK {
			t.Errorf("give 1: %v", res)
		}
		if res := sem.Give(); res != errs.OK {
			t.Errorf("give 2: %v", res)
		}
		if res := sem.Give(); res != errs.ErrFull {
			t.Errorf("give past max = %v; want ErrFull", res)
		}
		close(done)
	}, nil)

	go s.Start()
	driveTicks(t, port, done)
}

func TestSemaphoreInvalidConstructionRejected(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)

	if _, res := NewSemaphore(s, "bad", 3, 2); res != errs.ErrInvalidParam {
		t.Fatalf("initial > max = %v; want ErrInvalidParam", res)
	}
	if _, res := NewSemaphore(s, "bad", -1, 2); res != errs.ErrInvalidParam {
		t.Fatalf("negative initial = %v; want ErrInvalidParam", res)
	}
	if _, res := NewSemaphore(s, "bad", 0, 0); res != errs.ErrInvalidParam {
		t.Fatalf("zero max = %v; want ErrInvalidParam", res)
	}
}

func TestSemaphoreGiveWakesOldestWaiterFirst(t *testing.T) {
	port := simhost.New()
	s := sched.New(port, nil)
	s.Init(sched.RoundRobin)
	sem, _ := NewSemaphore(s, "sem", 0, 1)

	var order []string
	done := make(chan struct{})
	completed := 0

	register := func(name string, after task.Tick) {
		s.AddTask(name, task.PriorityNormal, config.StackDefault, func(any) {
			s.Delay(after)
			sem.Take(task.Forever)
			order = append(order, name)
			completed++
			if completed == 2 {
				close(done)
			}
		}, nil)
	}
	register("early", 1)
	register("late", 2)

	s.AddTask("giver", task.PriorityNormal, config.StackDefault, func(any) {
		s.Delay(10)
		sem.Give()
		s.Delay(5)
		sem.Give()
	}, nil)

	go s.Start()
	driveTicks(t, port, done)

	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("order = %v; want [early late]", order)
	}
}
