package core

import (
	"fmt"
	"strings"
)

// QueuePolicy is the concurrency discipline of a TaskQueue.
type QueuePolicy int

const (
	// QueuePolicySPSCLockFree is a wait-free ring for one producer and one consumer.
	QueuePolicySPSCLockFree QueuePolicy = iota

	// QueuePolicyMPMCLockFree is a sequence-numbered ring for any number of producers and consumers.
	QueuePolicyMPMCLockFree

	// QueuePolicyMPSCLocking is a mutex protected queue with a single consumer.
	QueuePolicyMPSCLocking

	// QueuePolicyMPMCLocking is a mutex protected queue with any number of consumers.
	QueuePolicyMPMCLocking
)

var queuePolicyNames = map[QueuePolicy]string{
	QueuePolicySPSCLockFree: "spsc_lockfree",
	QueuePolicyMPMCLockFree: "mpmc_lockfree",
	QueuePolicyMPSCLocking:  "mpsc_locking",
	QueuePolicyMPMCLocking:  "mpmc_locking",
}

func (p QueuePolicy) String() string {
	if name, ok := queuePolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("QueuePolicy(%d)", int(p))
}

// IsLockFree reports whether the policy is implemented without locks.
func (p QueuePolicy) IsLockFree() bool {
	return p == QueuePolicySPSCLockFree || p == QueuePolicyMPMCLockFree
}

// MultiConsumer reports whether several goroutines may pop concurrently.
func (p QueuePolicy) MultiConsumer() bool {
	return p == QueuePolicyMPMCLockFree || p == QueuePolicyMPMCLocking
}

// ParseQueuePolicy parses the string form returned by QueuePolicy.String.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for p, name := range queuePolicyNames {
		if name == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown queue policy %q", ErrInvalidConfig, s)
}

// WaitPolicy is what an idle consumer does when its queues are empty.
type WaitPolicy int

const (
	// WaitBlock parks the consumer until a push wakes it.
	WaitBlock WaitPolicy = iota

	// WaitSleep makes the consumer sleep a fixed duration and poll again.
	WaitSleep

	// WaitNonBlocking never parks; the queue is polled cooperatively.
	WaitNonBlocking
)

func (w WaitPolicy) String() string {
	switch w {
	case WaitBlock:
		return "block"
	case WaitSleep:
		return "sleep"
	case WaitNonBlocking:
		return "non_blocking"
	default:
		return fmt.Sprintf("WaitPolicy(%d)", int(w))
	}
}

// QueueConfig declares one bounded TaskQueue.
type QueueConfig struct {
	Name     string
	Policy   QueuePolicy
	Capacity int
}

// Validate checks the capacity constraints of the policy.
func (c QueueConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("%w: queue %q: capacity must be at least 1, got %d", ErrInvalidConfig, c.Name, c.Capacity)
	}
	if _, ok := queuePolicyNames[c.Policy]; !ok {
		return fmt.Errorf("%w: queue %q: unknown policy %d", ErrInvalidConfig, c.Name, int(c.Policy))
	}
	if c.Policy.IsLockFree() {
		if c.Capacity < 2 || c.Capacity&(c.Capacity-1) != 0 {
			return fmt.Errorf("%w: queue %q: %s capacity must be a power of two >= 2, got %d",
				ErrInvalidConfig, c.Name, c.Policy, c.Capacity)
		}
	}
	return nil
}

// checkWaitPolicy rejects combinations a queue cannot honour.
func checkWaitPolicy(c QueueConfig, wait WaitPolicy) error {
	switch wait {
	case WaitBlock:
		if c.Policy.IsLockFree() {
			return fmt.Errorf("%w: queue %q: %s queues need a wait-sleep duration, blocking wait is not supported",
				ErrInvalidConfig, c.Name, c.Policy)
		}
	case WaitSleep, WaitNonBlocking:
	default:
		return fmt.Errorf("%w: queue %q: unknown wait policy %d", ErrInvalidConfig, c.Name, int(wait))
	}
	return nil
}
