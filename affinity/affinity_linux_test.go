//go:build linux

package affinity

import (
	"runtime"
	"testing"
)

// TestApplyToCurrentThread_NameAndMask verifies the kernel sees the applied attributes
// Given: A goroutine locked to its OS thread
// When: A name and a single-CPU mask from the current affinity are applied
// Then: The kernel reports the same thread name and CPU set
func TestApplyToCurrentThread_NameAndMask(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		// Thread is discarded with its attributes when the goroutine exits locked

		current, err := CurrentAffinity()
		if err != nil || current.Empty() {
			t.Errorf("CurrentAffinity() = %v, %v", current, err)
			return
		}
		target := CPUMask{current[0]}

		err = ApplyToCurrentThread(ThreadAttributes{Name: "test-worker", Mask: target})
		if err != nil {
			t.Errorf("ApplyToCurrentThread() error = %v", err)
			return
		}

		name, err := CurrentThreadName()
		if err != nil {
			t.Errorf("CurrentThreadName() error = %v", err)
		}
		if name != "test-worker" {
			t.Errorf("CurrentThreadName() = %q, want %q", name, "test-worker")
		}
		got, err := CurrentAffinity()
		if err != nil {
			t.Errorf("CurrentAffinity() error = %v", err)
		}
		if got.String() != target.String() {
			t.Errorf("CurrentAffinity() = %s, want %s", got, target)
		}
	}()
	<-done
}
