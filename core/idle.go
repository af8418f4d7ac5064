package core

import (
	"fmt"
	"time"
)

// IdleStrategy implements the consumer side of a WaitPolicy for every queue
// feeding one consumer group (a worker, or the workers of a pool).
type IdleStrategy struct {
	policy WaitPolicy
	sleep  time.Duration
	signal chan struct{}
}

// NewIdleStrategy creates the idle strategy for consumers count goroutines.
// WaitSleep requires a positive sleep duration.
func NewIdleStrategy(policy WaitPolicy, sleep time.Duration, consumers int) (*IdleStrategy, error) {
	if consumers < 1 {
		consumers = 1
	}
	s := &IdleStrategy{policy: policy, sleep: sleep}
	switch policy {
	case WaitBlock:
		s.signal = make(chan struct{}, consumers*2)
	case WaitSleep:
		if sleep <= 0 {
			return nil, fmt.Errorf("%w: wait-sleep policy requires a positive duration, got %v", ErrInvalidConfig, sleep)
		}
	case WaitNonBlocking:
	default:
		return nil, fmt.Errorf("%w: unknown wait policy %d", ErrInvalidConfig, int(policy))
	}
	return s, nil
}

// Policy returns the wait policy of the strategy.
func (s *IdleStrategy) Policy() WaitPolicy { return s.policy }

// SleepDuration returns the polling period of WaitSleep strategies.
func (s *IdleStrategy) SleepDuration() time.Duration { return s.sleep }

// Notify wakes one parked consumer. It never blocks.
func (s *IdleStrategy) Notify() {
	if s.signal == nil {
		return
	}
	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, consumers are already due to wake up
	}
}

// NewWaiter returns the per-consumer waiting state. Waiters are not shared
// between goroutines.
func (s *IdleStrategy) NewWaiter() *Waiter {
	w := &Waiter{strategy: s}
	if s.policy == WaitSleep {
		w.timer = time.NewTimer(s.sleep)
		w.timer.Stop()
	}
	return w
}

// Waiter parks one consumer goroutine according to its IdleStrategy.
type Waiter struct {
	strategy *IdleStrategy
	timer    *time.Timer
}

// Wait parks the caller until work may be available or stopCh is closed.
// Returns false if stopCh was closed.
func (w *Waiter) Wait(stopCh <-chan struct{}) bool {
	switch w.strategy.policy {
	case WaitBlock:
		select {
		case <-w.strategy.signal:
			return true
		case <-stopCh:
			return false
		}
	case WaitSleep:
		w.timer.Reset(w.strategy.sleep)
		select {
		case <-w.timer.C:
			return true
		case <-stopCh:
			w.timer.Stop()
			return false
		}
	default:
		select {
		case <-stopCh:
			return false
		default:
			return true
		}
	}
}
