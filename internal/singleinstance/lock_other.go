//go:build !unix && !windows

package singleinstance

// Lock is a no-op where no process lock is available.
type Lock struct{}

// TryLock always succeeds.
func TryLock(_ string) (*Lock, error) { return &Lock{}, nil }

// Release is a no-op.
func (l *Lock) Release() error { return nil }
