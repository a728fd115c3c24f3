package deploy

import "sync"

// stage is a single-concurrency execution slot: submitted jobs run one at a
// time, strictly in submission order, on the stage's own goroutine. Submit
// never blocks the caller, which is what turns queue length into a reliable
// queue position.
type stage struct {
	mu     sync.Mutex
	jobs   []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func newStage() *stage {
	s := &stage{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// submit appends a job to the stage. Jobs submitted after close are
// silently dropped.
func (s *stage) submit(job func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// close stops the stage after the jobs already queued have run.
func (s *stage) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *stage) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.jobs) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		job := s.jobs[0]
		s.jobs = s.jobs[1:]
		s.mu.Unlock()
		job()
	}
}
