package core

import (
	"errors"
	"testing"
	"time"
)

// TestIdleStrategy_BlockWakesOnNotify verifies a parked Block waiter wakes on Notify
func TestIdleStrategy_BlockWakesOnNotify(t *testing.T) {
	s, err := NewIdleStrategy(WaitBlock, 0, 1)
	if err != nil {
		t.Fatalf("NewIdleStrategy() error = %v", err)
	}
	w := s.NewWaiter()
	stopCh := make(chan struct{})

	done := make(chan bool, 1)
	go func() { done <- w.Wait(stopCh) }()

	s.Notify()

	select {
	case ok := <-done:
		if !ok {
			t.Error("Wait() = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake up after Notify")
	}
}

// TestIdleStrategy_StopReleasesWaiters verifies stopCh releases every policy
func TestIdleStrategy_StopReleasesWaiters(t *testing.T) {
	for _, policy := range []WaitPolicy{WaitBlock, WaitSleep, WaitNonBlocking} {
		t.Run(policy.String(), func(t *testing.T) {
			s, err := NewIdleStrategy(policy, time.Hour, 1)
			if err != nil {
				t.Fatalf("NewIdleStrategy() error = %v", err)
			}
			w := s.NewWaiter()
			stopCh := make(chan struct{})
			close(stopCh)

			if w.Wait(stopCh) {
				t.Error("Wait() after stop = true, want false")
			}
		})
	}
}

// TestIdleStrategy_SleepReturnsAfterPeriod verifies Sleep re-polls after the duration
func TestIdleStrategy_SleepReturnsAfterPeriod(t *testing.T) {
	s, err := NewIdleStrategy(WaitSleep, 5*time.Millisecond, 1)
	if err != nil {
		t.Fatalf("NewIdleStrategy() error = %v", err)
	}
	w := s.NewWaiter()
	stopCh := make(chan struct{})

	for range 3 {
		start := time.Now()
		if !w.Wait(stopCh) {
			t.Fatal("Wait() = false, want true")
		}
		if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
			t.Errorf("Wait() returned after %v, want >= 5ms", elapsed)
		}
	}
}

// TestIdleStrategy_SleepRequiresDuration verifies configuration validation
func TestIdleStrategy_SleepRequiresDuration(t *testing.T) {
	if _, err := NewIdleStrategy(WaitSleep, 0, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewIdleStrategy(WaitSleep, 0) error = %v, want ErrInvalidConfig", err)
	}
}
