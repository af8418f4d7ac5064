//go:build linux

package affinity

import (
	"fmt"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func applyToCurrentThread(attrs ThreadAttributes) error {
	var err error
	if attrs.Name != "" {
		err = multierr.Append(err, setThreadName(attrs.Name))
	}
	if !attrs.Mask.Empty() {
		err = multierr.Append(err, setAffinity(attrs.Mask))
	}
	if attrs.Priority.IsRealTime() {
		err = multierr.Append(err, setRealTimePriority(attrs.Priority))
	}
	return err
}

func setThreadName(name string) error {
	p, err := unix.BytePtrFromString(ThreadName(name))
	if err != nil {
		return fmt.Errorf("set thread name %q: %w", name, err)
	}
	if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0); err != nil {
		return fmt.Errorf("set thread name %q: %w", name, err)
	}
	return nil
}

func setAffinity(mask CPUMask) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range mask {
		set.Set(cpu)
	}
	// pid 0 is the calling thread
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("set cpu affinity %s: %w", mask, err)
	}
	return nil
}

func setRealTimePriority(p OSPriority) error {
	attr := &unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(p),
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		return fmt.Errorf("set SCHED_FIFO priority %d: %w", int(p), err)
	}
	return nil
}

// CurrentAffinity returns the CPU set of the calling thread.
func CurrentAffinity() (CPUMask, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("get cpu affinity: %w", err)
	}
	var cpus []int
	for cpu := 0; cpu < MaxCPUs && len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return NewCPUMask(cpus...)
}

// CurrentThreadName returns the kernel name of the calling thread.
func CurrentThreadName() (string, error) {
	buf := make([]byte, MaxThreadNameLen+1)
	if err := unix.Prctl(unix.PR_GET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0); err != nil {
		return "", fmt.Errorf("get thread name: %w", err)
	}
	return unix.ByteSliceToString(buf), nil
}
