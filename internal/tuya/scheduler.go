package tuya

import (
	"sync"
	"time"
)

// Task is a scheduled one-shot callback that can be stopped before it fires.
type Task interface {
	// Stop cancels the task. Returns false when the task already fired
	// or was already stopped.
	Stop() bool
}

// Scheduler arms delayed one-shot callbacks. The production implementation
// wraps time.AfterFunc; tests substitute a fake that fires tasks manually.
type Scheduler interface {
	// After runs fn once after d elapses.
	After(d time.Duration, fn func()) Task
}

// timerScheduler is the time.AfterFunc backed Scheduler.
type timerScheduler struct{}

// NewScheduler returns the real-time Scheduler.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) After(d time.Duration, fn func()) Task {
	return timerTask{t: time.AfterFunc(d, fn)}
}

type timerTask struct {
	t *time.Timer
}

func (t timerTask) Stop() bool {
	return t.t.Stop()
}

// taskSlot holds at most one pending task, replacing or cancelling the
// previous one on rearm. Used for the session refresh timer and the
// realtime reconnect timer, where only the latest schedule matters.
type taskSlot struct {
	mu   sync.Mutex
	task Task
}

// Arm cancels any pending task and schedules fn after d.
func (s *taskSlot) Arm(sched Scheduler, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		s.task.Stop()
	}
	s.task = sched.After(d, fn)
}

// Cancel stops the pending task, if any.
func (s *taskSlot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
}
