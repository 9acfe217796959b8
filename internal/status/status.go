// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status carries discrete status events from the logger loop to
// whatever presents them: the log, the OLED, MQTT or a websocket feed.
package status

import (
	"time"

	"github.com/pkg/errors"
)

// Kind identifies an event.
type Kind int

const (
	KindProgress Kind = iota
	KindBattery
	KindEnvironment
	KindStatus
	KindSessionStarted
	KindSessionStopped
	KindError
)

var kindNames = map[Kind]string{
	KindProgress:       "progress",
	KindBattery:        "battery",
	KindEnvironment:    "environment",
	KindStatus:         "status",
	KindSessionStarted: "session_started",
	KindSessionStopped: "session_stopped",
	KindError:          "error",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return errors.Errorf("unknown event kind %q", b)
}

// Event is one status update. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	// KindProgress
	Stage   string `json:"stage,omitempty"` // "gyro" or "mag"
	Done    int    `json:"done,omitempty"`
	Total   int    `json:"total,omitempty"`
	Percent int    `json:"percent,omitempty"`

	// KindBattery
	Voltage float64 `json:"voltage,omitempty"`

	// KindEnvironment
	Temperature float64 `json:"temp_c,omitempty"`
	Humidity    float64 `json:"humidity_pct,omitempty"`

	// KindStatus, KindSessionStarted, KindSessionStopped
	Heading float64 `json:"heading,omitempty"`
	MaxG    float64 `json:"max_g,omitempty"`
	Logging bool    `json:"logging"`
	File    string  `json:"file,omitempty"`
	Records int     `json:"records,omitempty"`

	// KindError
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Reporter consumes status events. Implementations must not block the
// caller for long: Report is called from the sampling loop.
type Reporter interface {
	Report(ev Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ev Event)

// Report calls f(ev).
func (f ReporterFunc) Report(ev Event) { f(ev) }

// Multi fans an event out to several reporters in order.
type Multi []Reporter

// Report forwards ev to every reporter.
func (m Multi) Report(ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}

// Discard drops every event.
var Discard Reporter = ReporterFunc(func(Event) {})

// Progress builds a calibration progress event.
func Progress(stage string, done, total, percent int) Event {
	return Event{Kind: KindProgress, Stage: stage, Done: done, Total: total, Percent: percent}
}

// Error builds an error notification shown for d.
func Error(msg string, d time.Duration) Event {
	return Event{Kind: KindError, Message: msg, Duration: d}
}
