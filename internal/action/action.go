// Package action synthesizes the scripted input sequences performed while a
// trigger is held.
package action

import (
	"sync/atomic"
	"time"

	"animcancel/internal/input"
)

// Timing holds the fixed delays of the scripted sequences.
type Timing struct {
	// ClickHold is how long the left button stays down.
	ClickHold time.Duration
	// KeyHold is how long each cancel key stays down.
	KeyHold time.Duration
	// KeyGap is the pause after each cancel key release.
	KeyGap time.Duration
}

// DefaultTiming returns the delays used in production.
func DefaultTiming() Timing {
	return Timing{
		ClickHold: 20 * time.Millisecond,
		KeyHold:   10 * time.Millisecond,
		KeyGap:    20 * time.Millisecond,
	}
}

// DefaultCancelKeys are the keys tapped after each click, in order.
var DefaultCancelKeys = [2]string{"x", "z"}

// Stats counts synthesized sequences.
type Stats struct {
	Clicks    uint64 `json:"clicks"`
	Sequences uint64 `json:"sequences"`
	Failures  uint64 `json:"failures"`
}

// Synthesizer posts clicks and cancel sequences through an Injector.
// Injection failures are counted and otherwise ignored.
type Synthesizer struct {
	inj    input.Injector
	timing Timing
	keys   atomic.Pointer[[2]string]
	sleep  func(time.Duration)

	clicks    atomic.Uint64
	sequences atomic.Uint64
	failures  atomic.Uint64
}

// NewSynthesizer creates a synthesizer with the default cancel keys.
func NewSynthesizer(inj input.Injector, timing Timing) *Synthesizer {
	s := &Synthesizer{
		inj:    inj,
		timing: timing,
		sleep:  time.Sleep,
	}
	keys := DefaultCancelKeys
	s.keys.Store(&keys)
	return s
}

// SetCancelKeys replaces the keys tapped by CancelSequence.
func (s *Synthesizer) SetCancelKeys(first, second string) {
	keys := [2]string{first, second}
	s.keys.Store(&keys)
}

// CancelKeys returns the keys tapped by CancelSequence.
func (s *Synthesizer) CancelKeys() [2]string {
	return *s.keys.Load()
}

// Click presses and releases the left button at the current pointer location.
func (s *Synthesizer) Click() {
	s.check(s.inj.MouseButton(input.ButtonLeft, true))
	s.sleep(s.timing.ClickHold)
	s.check(s.inj.MouseButton(input.ButtonLeft, false))
	s.clicks.Add(1)
}

// CancelSequence taps both cancel keys, pausing after each release.
func (s *Synthesizer) CancelSequence() {
	for _, key := range s.CancelKeys() {
		s.check(s.inj.Key(key, true))
		s.sleep(s.timing.KeyHold)
		s.check(s.inj.Key(key, false))
		s.sleep(s.timing.KeyGap)
	}
	s.sequences.Add(1)
}

// Stats returns the counters.
func (s *Synthesizer) Stats() Stats {
	return Stats{
		Clicks:    s.clicks.Load(),
		Sequences: s.sequences.Load(),
		Failures:  s.failures.Load(),
	}
}

func (s *Synthesizer) check(err error) {
	if err != nil {
		s.failures.Add(1)
	}
}
