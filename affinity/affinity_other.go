//go:build !linux

package affinity

import "go.uber.org/multierr"

func applyToCurrentThread(attrs ThreadAttributes) error {
	var err error
	if !attrs.Mask.Empty() {
		err = multierr.Append(err, ErrAffinityNotSupported)
	}
	if attrs.Priority.IsRealTime() {
		err = multierr.Append(err, ErrPriorityNotSupported)
	}
	return err
}

// CurrentAffinity is not available on this platform.
func CurrentAffinity() (CPUMask, error) {
	return nil, ErrAffinityNotSupported
}

// CurrentThreadName is not available on this platform.
func CurrentThreadName() (string, error) {
	return "", ErrAffinityNotSupported
}
