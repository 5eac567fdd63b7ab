// Command kernelsim runs the kernel on the hosted simhost port: a
// producer/consumer pair over a bounded queue, a periodic timer task,
// and two tasks contending a mutex, for a fixed number of ticks. It
// exists to exercise rtos end to end the way the original firmware's
// board bring-up main() did, without any hardware underneath it.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"rtkernel/internal/buildinfo"
	"rtkernel/rtos/config"
	"rtkernel/rtos/diag"
	"rtkernel/rtos/errs"
	"rtkernel/rtos/heap"
	"rtkernel/rtos/pool"
	"rtkernel/rtos/port/simhost"
	"rtkernel/rtos/queue"
	"rtkernel/rtos/sched"
	"rtkernel/rtos/sync"
	"rtkernel/rtos/task"
	"rtkernel/rtos/timer"
)

type reading struct {
	runID uuid.UUID
	seq   int
	value int
}

func main() {
	ticks := flag.Int("ticks", 200, "number of simulated ticks to run")
	policyFlag := flag.String("policy", "round-robin", "scheduler policy: round-robin, priority, cooperative")
	flag.Parse()

	fmt.Printf("kernelsim %s\n", buildinfo.Short())

	var policy sched.Policy
	switch *policyFlag {
	case "priority":
		policy = sched.Priority
	case "cooperative":
		policy = sched.Cooperative
	default:
		policy = sched.RoundRobin
	}

	sink := &diag.Buffer{}
	port := simhost.New()
	s := sched.New(port, sink)
	if !s.Init(policy) {
		fmt.Fprintln(os.Stderr, "scheduler init failed")
		os.Exit(1)
	}

	kheap := heap.New(16 * 1024)
	readingPool := pool.New[reading](32)
	readingQueue, res := queue.New[*pool.Handle[reading]](s, "readings", 8)
	if res != errs.OK {
		fmt.Fprintln(os.Stderr, "queue create failed:", res)
		os.Exit(1)
	}
	mu := sync.NewMutex(s, "shared-counter")
	runID := uuid.New()
	counter := 0

	s.AddTask("producer", task.PriorityNormal, config.StackDefault, func(any) {
		seq := 0
		for {
			h, r := readingPool.Alloc()
			if r != errs.OK {
				s.Delay(2)
				continue
			}
			*h.Value() = reading{runID: runID, seq: seq, value: seq * 7 % 101}
			if res := readingQueue.Send(h, 20); res != errs.OK {
				_ = readingPool.Free(h)
			}
			seq++
			s.Delay(1)
		}
	}, nil)

	s.AddTask("consumer", task.PriorityNormal, config.StackDefault, func(any) {
		for {
			h, res := readingQueue.Receive(task.Forever)
			if res != errs.OK {
				continue
			}
			_ = *h.Value()
			_ = readingPool.Free(h)

			if mu.Lock(task.Forever) == errs.OK {
				counter++
				mu.Unlock()
			}
			s.Delay(1)
		}
	}, nil)

	s.AddTask("contender", task.PriorityHigh, config.StackDefault, func(any) {
		for {
			if mu.Lock(50) == errs.OK {
				counter++
				mu.Unlock()
			}
			s.Delay(3)
		}
	}, nil)

	report, res := kheap.Calloc(1, 64)
	if res == errs.OK {
		defer kheap.Free(report)
	}

	tmr, res := s.Timers().Create("heartbeat", timer.Periodic, 25, func(id timer.ID, param any) {
		sink.WriteLine(fmt.Sprintf("[heartbeat] tick=%d counter=%d", s.Timers().Now(), counter))
	}, nil)
	if res == errs.OK {
		s.Timers().Start(tmr)
	}

	go s.Start()

	for i := 0; i < *ticks; i++ {
		port.Tick()
		time.Sleep(time.Millisecond)
	}

	st := s.Stats()
	fmt.Printf("ran %d ticks, %d tasks (%d ready, %d blocked), counter=%d\n",
		st.UptimeTicks, st.TotalTasks, st.ReadyTasks, st.BlockedTasks, counter)
	fmt.Printf("heap: %+v\n", kheap.Stats())
	for _, line := range sink.Lines {
		fmt.Println(line)
	}
}
