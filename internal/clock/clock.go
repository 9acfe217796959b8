// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock is the time source of the logger loop.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the monotonic time source. Sleep is the only place the loop
// yields time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System returns the wall clock.
func System() Clock {
	return clockwork.NewRealClock()
}

// Stepper is a fake clock for single-goroutine code: Sleep advances time
// instead of blocking. Each call to Now additionally advances by Cost,
// which models processing time between two reads of the clock.
type Stepper struct {
	*clockwork.FakeClock

	mu    sync.Mutex
	cost  time.Duration
	slept time.Duration
}

// NewStepper returns a Stepper starting at start.
func NewStepper(start time.Time) *Stepper {
	return &Stepper{FakeClock: clockwork.NewFakeClockAt(start)}
}

// SetCost sets how much time passes on every call to Now.
func (s *Stepper) SetCost(d time.Duration) {
	s.mu.Lock()
	s.cost = d
	s.mu.Unlock()
}

// Now returns the current fake time and then advances it by the cost.
func (s *Stepper) Now() time.Time {
	s.mu.Lock()
	cost := s.cost
	s.mu.Unlock()
	now := s.FakeClock.Now()
	if cost > 0 {
		s.FakeClock.Advance(cost)
	}
	return now
}

// Sleep advances the clock by d.
func (s *Stepper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.slept += d
	s.mu.Unlock()
	s.FakeClock.Advance(d)
}

// Slept is the total time passed to Sleep.
func (s *Stepper) Slept() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slept
}
