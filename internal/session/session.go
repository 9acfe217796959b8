// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session turns switch edges into log file sessions.
//
// The manager is always either Idle or Active. Every failure reports an
// error event and leaves it Idle so the operator can flip the switch again.
package session

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/stratus_logger/internal/env"
	"github.com/relabs-tech/stratus_logger/internal/logfile"
	"github.com/relabs-tech/stratus_logger/internal/status"
	"github.com/relabs-tech/stratus_logger/internal/storage"
)

// Error messages shown to the operator.
const (
	MsgOpenFail       = "File Open Fail"
	MsgEndVoltFail    = "End-Volt Write Fail"
	MsgCloseFail      = "File Close Fail"
	MsgWriteFail      = "Log Write Fail"
	MsgSensorReadFail = "Sensor Read Fail"
)

// maxIndex bounds the file name search.
const maxIndex = 9999

// ErrNotActive is returned by Append while Idle.
var ErrNotActive = errors.New("no active session")

// State of the manager.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Transition is what Observe did.
type Transition int

const (
	None Transition = iota
	Started
	Stopped
)

// Metrics is the per-session peak tracking, implemented by the orientation
// estimator.
type Metrics interface {
	BeginSession()
	EndSession()
	MaxG() float64
}

// Session describes one log file.
type Session struct {
	Index        int
	Name         string
	Start        time.Time
	StartVoltage *float64
	EndVoltage   *float64
	Records      int
}

// FileName returns the log file name for index.
func FileName(index int) string {
	return fmt.Sprintf("LOG%03d.CSV", index)
}

// NextIndex returns the smallest positive index whose file does not exist.
func NextIndex(st storage.Storage) (int, error) {
	for i := 1; i <= maxIndex; i++ {
		if !st.Exists(FileName(i)) {
			return i, nil
		}
	}
	return 0, errors.Errorf("no free log file name up to %s", FileName(maxIndex))
}

// Config holds the collaborators of a Manager.
type Config struct {
	Storage storage.Storage
	// Power is optional; nil disables the voltage annotations.
	Power    env.PowerMonitor
	Reporter status.Reporter
	Metrics  Metrics

	// Rate is the target sample rate in Hz, used by the flush policy.
	Rate       float64
	FlushEvery int
	// ErrorDisplay is how long error messages stay on screen.
	ErrorDisplay time.Duration
}

// Manager owns the open log file while a session is Active. It is not safe
// for concurrent use.
type Manager struct {
	cfg Config

	prev  bool
	state State
	cur   *Session
	w     *logfile.Writer
	last  *Session
}

// NewManager returns an Idle manager.
func NewManager(cfg Config) *Manager {
	if cfg.Reporter == nil {
		cfg.Reporter = status.Discard
	}
	return &Manager{cfg: cfg}
}

// State returns Idle or Active.
func (m *Manager) State() State { return m.state }

// Current returns the active session, or nil.
func (m *Manager) Current() *Session { return m.cur }

// Last returns the most recently ended session, or nil.
func (m *Manager) Last() *Session { return m.last }

// Observe feeds one switch level sample. A rising edge starts a session, a
// falling edge stops it. Consecutive samples are compared directly without
// any debounce.
func (m *Manager) Observe(level bool, now time.Time) Transition {
	prev := m.prev
	m.prev = level
	switch {
	case level && !prev:
		if m.state == Active {
			return None
		}
		if err := m.Start(now); err != nil {
			return None
		}
		return Started
	case !level && prev:
		if m.state != Active {
			return None
		}
		m.Stop()
		return Stopped
	}
	return None
}

// Start opens the next log file, writes the header and the start voltage
// and makes the manager Active. On failure the manager stays Idle and a
// File Open Fail error is reported.
func (m *Manager) Start(now time.Time) error {
	if m.state == Active {
		return errors.New("session already active")
	}
	s, w, err := m.open(now)
	if err != nil {
		log.WithError(err).Error("session: start failed")
		m.reportError(MsgOpenFail)
		return err
	}

	m.cur = s
	m.w = w
	m.state = Active
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.BeginSession()
	}
	log.Infof("session: started %s", s.Name)
	m.cfg.Reporter.Report(status.Event{Kind: status.KindSessionStarted, Logging: true, File: s.Name})
	return nil
}

func (m *Manager) open(now time.Time) (*Session, *logfile.Writer, error) {
	idx, err := NextIndex(m.cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	s := &Session{Index: idx, Name: FileName(idx), Start: now}

	h, err := m.cfg.Storage.OpenAppend(s.Name)
	if err != nil {
		return nil, nil, err
	}
	w := logfile.NewWriter(h, m.cfg.Rate, m.cfg.FlushEvery)

	fail := func(err error) (*Session, *logfile.Writer, error) {
		if cerr := h.Close(); cerr != nil {
			log.WithError(cerr).Warnf("session: closing %s after failed start", s.Name)
		}
		return nil, nil, errors.Wrapf(err, "start %s", s.Name)
	}
	if err := w.WriteHeader(); err != nil {
		return fail(err)
	}
	if m.cfg.Power != nil {
		v, err := m.cfg.Power.ReadVoltage()
		if err != nil {
			log.WithError(err).Warn("session: start voltage unavailable")
		} else {
			if err := w.Annotate("Battery Start Voltage: %.2f V", v); err != nil {
				return fail(err)
			}
			s.StartVoltage = &v
		}
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return s, w, nil
}

// Stop ends the active session: end voltage annotation, then flush and
// close. Failures are reported but the manager becomes Idle regardless.
// Stop on an Idle manager does nothing.
func (m *Manager) Stop() {
	if m.state != Active {
		return
	}
	if m.cfg.Power != nil {
		if err := m.annotateEnd(); err != nil {
			log.WithError(err).Error("session: end voltage")
			m.reportError(MsgEndVoltFail)
		}
	}
	if err := m.w.Close(); err != nil {
		log.WithError(err).Errorf("session: close %s", m.cur.Name)
		m.reportError(MsgCloseFail)
	}
	m.finish()
}

func (m *Manager) annotateEnd() error {
	v, err := m.cfg.Power.ReadVoltage()
	if err != nil {
		return errors.Wrap(err, "read end voltage")
	}
	if err := m.w.Annotate("Battery End Voltage: %.2f V", v); err != nil {
		return err
	}
	m.cur.EndVoltage = &v
	return m.w.Flush()
}

// Append writes one record. A write failure aborts the session with
// Log Write Fail and is returned.
func (m *Manager) Append(r logfile.Record, elapsed float64) error {
	if m.state != Active {
		return ErrNotActive
	}
	if err := m.w.Append(r, elapsed); err != nil {
		log.WithError(err).Errorf("session: write %s", m.cur.Name)
		m.Abort(MsgWriteFail)
		return err
	}
	m.cur.Records = m.w.Records()
	return nil
}

// Abort reports msg, closes the file if possible and returns to Idle
// without writing the end voltage.
func (m *Manager) Abort(msg string) {
	if m.state != Active {
		return
	}
	m.reportError(msg)
	if err := m.w.Close(); err != nil {
		log.WithError(err).Warnf("session: close %s after abort", m.cur.Name)
	}
	m.finish()
}

func (m *Manager) finish() {
	s := m.cur
	s.Records = m.w.Records()
	var maxG float64
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.EndSession()
		maxG = m.cfg.Metrics.MaxG()
	}
	m.last = s
	m.cur = nil
	m.w = nil
	m.state = Idle

	log.WithFields(log.Fields{"records": s.Records, "max_g": maxG}).Infof("session: stopped %s", s.Name)
	m.cfg.Reporter.Report(status.Event{
		Kind:    status.KindSessionStopped,
		File:    s.Name,
		Records: s.Records,
		MaxG:    maxG,
	})
}

func (m *Manager) reportError(msg string) {
	m.cfg.Reporter.Report(status.Error(msg, m.cfg.ErrorDisplay))
}
