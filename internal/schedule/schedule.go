// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package schedule decides which periodic tasks are due on each loop
// iteration and paces the high-rate sampling tick.
package schedule

import (
	"time"

	"github.com/relabs-tech/stratus_logger/internal/clock"
)

// Task is a periodic auxiliary job of the main loop.
type Task int

const (
	Battery Task = iota
	Environment
	Magnetometer
	Status
	numTasks
)

func (t Task) String() string {
	switch t {
	case Battery:
		return "battery"
	case Environment:
		return "environment"
	case Magnetometer:
		return "magnetometer"
	case Status:
		return "status"
	}
	return "unknown"
}

// Intervals holds the period of each task. Zero disables a task.
type Intervals [numTasks]time.Duration

// Due is the set of tasks that fired in one iteration.
type Due uint8

// Has reports whether t is in the set.
func (d Due) Has(t Task) bool { return d&(1<<uint(t)) != 0 }

// Empty reports whether nothing fired.
func (d Due) Empty() bool { return d == 0 }

// Scheduler owns the task timers. It is not safe for concurrent use.
type Scheduler struct {
	clk       clock.Clock
	period    time.Duration
	intervals Intervals
	last      [numTasks]time.Time
	overruns  uint64
}

// New returns a Scheduler whose sampling period is 1/rateHz.
func New(clk clock.Clock, rateHz float64, intervals Intervals) *Scheduler {
	var period time.Duration
	if rateHz > 0 {
		period = time.Duration(float64(time.Second) / rateHz)
	}
	return &Scheduler{clk: clk, period: period, intervals: intervals}
}

// Period is the target sampling period.
func (s *Scheduler) Period() time.Duration { return s.period }

// Interval returns the configured interval of t.
func (s *Scheduler) Interval(t Task) time.Duration { return s.intervals[t] }

// Start sets every timer to now.
func (s *Scheduler) Start(now time.Time) {
	for i := range s.last {
		s.last[i] = now
	}
}

// Due returns the tasks for which now - last >= interval and resets
// their timers to now.
func (s *Scheduler) Due(now time.Time) Due {
	var d Due
	for i, iv := range s.intervals {
		if iv <= 0 {
			continue
		}
		if now.Sub(s.last[i]) >= iv {
			s.last[i] = now
			d |= 1 << uint(i)
		}
	}
	return d
}

// Pace sleeps for the rest of the sampling period that began at start.
// When processing took longer than the period it does not sleep and counts
// an overrun. It returns the time slept.
func (s *Scheduler) Pace(start time.Time) time.Duration {
	elapsed := s.clk.Now().Sub(start)
	remaining := s.period - elapsed
	if remaining <= 0 {
		if elapsed > s.period {
			s.overruns++
		}
		return 0
	}
	s.clk.Sleep(remaining)
	return remaining
}

// Overruns is the number of sampling ticks that exceeded the period.
func (s *Scheduler) Overruns() uint64 { return s.overruns }
