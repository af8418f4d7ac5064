// Package affinity describes and applies the OS-level attributes of a worker
// thread: its name, the CPUs it may run on and its real-time priority.
//
// All Apply functions act on the calling OS thread, so callers must have
// locked their goroutine with runtime.LockOSThread first.
package affinity

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrAffinityNotSupported indicates CPU pinning is unavailable on this platform
	ErrAffinityNotSupported = errors.New("cpu affinity not supported on this platform")

	// ErrPriorityNotSupported indicates real-time priorities are unavailable on this platform
	ErrPriorityNotSupported = errors.New("real-time thread priority not supported on this platform")
)

// MaxCPUs bounds the CPU indices a mask may contain.
const MaxCPUs = 1024

// MaxThreadNameLen is the number of bytes of a thread name the kernel keeps.
const MaxThreadNameLen = 15

// =============================================================================
// CPUMask
// =============================================================================

// CPUMask is a sorted set of CPU indices. An empty mask leaves the affinity
// inherited from the process untouched.
type CPUMask []int

// NewCPUMask builds a mask from cpus, dropping duplicates.
func NewCPUMask(cpus ...int) (CPUMask, error) {
	seen := make(map[int]struct{}, len(cpus))
	m := make(CPUMask, 0, len(cpus))
	for _, c := range cpus {
		if c < 0 || c >= MaxCPUs {
			return nil, fmt.Errorf("cpu %d out of range [0, %d)", c, MaxCPUs)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		m = append(m, c)
	}
	sort.Ints(m)
	return m, nil
}

// ParseCPUMask parses a list such as "0-3,6,8-9". The empty string yields an
// empty mask.
func ParseCPUMask(s string) (CPUMask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CPUMask{}, nil
	}

	var cpus []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid cpu mask %q: %w", s, err)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid cpu mask %q: %w", s, err)
			}
			if last < first {
				return nil, fmt.Errorf("invalid cpu mask %q: descending range %d-%d", s, first, last)
			}
		}
		for c := first; c <= last; c++ {
			cpus = append(cpus, c)
		}
	}

	m, err := NewCPUMask(cpus...)
	if err != nil {
		return nil, fmt.Errorf("invalid cpu mask %q: %w", s, err)
	}
	return m, nil
}

// Empty reports whether the mask leaves affinity untouched.
func (m CPUMask) Empty() bool {
	return len(m) == 0
}

// Contains reports whether cpu is part of the mask.
func (m CPUMask) Contains(cpu int) bool {
	i := sort.SearchInts(m, cpu)
	return i < len(m) && m[i] == cpu
}

// String renders the mask in the form accepted by ParseCPUMask.
func (m CPUMask) String() string {
	var b strings.Builder
	for i := 0; i < len(m); {
		j := i
		for j+1 < len(m) && m[j+1] == m[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if j > i {
			fmt.Fprintf(&b, "%d-%d", m[i], m[j])
		} else {
			b.WriteString(strconv.Itoa(m[i]))
		}
		i = j + 1
	}
	return b.String()
}

// =============================================================================
// OSPriority
// =============================================================================

// OSPriority is a real-time (SCHED_FIFO) priority. PriorityDefault keeps the
// normal time-sharing scheduler.
type OSPriority int

const (
	PriorityDefault OSPriority = 0
	PriorityMin     OSPriority = 1
	PriorityMax     OSPriority = 99
)

// ParseOSPriority accepts "default", "max", "max-N", "min", "min+N" or a
// number in [1, 99].
func ParseOSPriority(s string) (OSPriority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var p OSPriority
	switch {
	case s == "" || s == "default":
		return PriorityDefault, nil
	case s == "max":
		p = PriorityMax
	case s == "min":
		p = PriorityMin
	case strings.HasPrefix(s, "max-"):
		n, err := strconv.Atoi(s[len("max-"):])
		if err != nil {
			return 0, fmt.Errorf("invalid os priority %q: %w", s, err)
		}
		p = PriorityMax - OSPriority(n)
	case strings.HasPrefix(s, "min+"):
		n, err := strconv.Atoi(s[len("min+"):])
		if err != nil {
			return 0, fmt.Errorf("invalid os priority %q: %w", s, err)
		}
		p = PriorityMin + OSPriority(n)
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid os priority %q: %w", s, err)
		}
		if n == 0 {
			return PriorityDefault, nil
		}
		p = OSPriority(n)
	}
	if p < PriorityMin || p > PriorityMax {
		return 0, fmt.Errorf("invalid os priority %q: %d out of range [%d, %d]", s, int(p), PriorityMin, PriorityMax)
	}
	return p, nil
}

// Validate checks the priority is the default or within [PriorityMin, PriorityMax].
func (p OSPriority) Validate() error {
	if p == PriorityDefault || (p >= PriorityMin && p <= PriorityMax) {
		return nil
	}
	return fmt.Errorf("priority %d out of range [%d, %d]", int(p), PriorityMin, PriorityMax)
}

// IsRealTime reports whether the priority requests the real-time scheduler.
func (p OSPriority) IsRealTime() bool {
	return p != PriorityDefault
}

func (p OSPriority) String() string {
	switch p {
	case PriorityDefault:
		return "default"
	case PriorityMax:
		return "max"
	case PriorityMin:
		return "min"
	}
	return strconv.Itoa(int(p))
}

// =============================================================================
// ThreadAttributes
// =============================================================================

// ThreadAttributes are applied by a worker to its own OS thread on start.
type ThreadAttributes struct {
	Name     string
	Mask     CPUMask
	Priority OSPriority
}

// ThreadName truncates name to what the kernel stores.
func ThreadName(name string) string {
	if len(name) > MaxThreadNameLen {
		return name[:MaxThreadNameLen]
	}
	return name
}

// ApplyToCurrentThread applies attrs to the calling OS thread. Every
// attribute is attempted; failures are combined into the returned error.
func ApplyToCurrentThread(attrs ThreadAttributes) error {
	return applyToCurrentThread(attrs)
}
