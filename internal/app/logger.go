// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/stratus_logger/internal/calibration"
	"github.com/relabs-tech/stratus_logger/internal/clock"
	"github.com/relabs-tech/stratus_logger/internal/config"
	"github.com/relabs-tech/stratus_logger/internal/env"
	"github.com/relabs-tech/stratus_logger/internal/imu"
	"github.com/relabs-tech/stratus_logger/internal/logfile"
	"github.com/relabs-tech/stratus_logger/internal/orientation"
	"github.com/relabs-tech/stratus_logger/internal/schedule"
	"github.com/relabs-tech/stratus_logger/internal/sensors"
	"github.com/relabs-tech/stratus_logger/internal/session"
	"github.com/relabs-tech/stratus_logger/internal/status"
	"github.com/relabs-tech/stratus_logger/internal/storage"
)

// Devices is the sensor pack the loop reads.
type Devices struct {
	IMU    imu.IMU
	Mag    imu.Magnetometer
	Env    env.Sensor
	Power  env.PowerMonitor // nil when absent
	Switch sensors.Switch
}

// Options are the loop settings.
type Options struct {
	Rate         float64
	Intervals    schedule.Intervals
	IdlePoll     time.Duration
	GRef         float64
	FlushEvery   int
	ErrorDisplay time.Duration
	// FailureLimit is the number of consecutive IMU read failures that
	// aborts a session. 0 never aborts.
	FailureLimit int
}

// OptionsFromConfig maps the configuration onto loop options.
func OptionsFromConfig(cfg *config.Config) Options {
	var iv schedule.Intervals
	iv[schedule.Battery] = config.Millis(cfg.BatteryCheckIntervalMS)
	iv[schedule.Environment] = config.Millis(cfg.TempHumIntervalMS)
	iv[schedule.Magnetometer] = config.Millis(cfg.MagIntervalMS)
	iv[schedule.Status] = config.Millis(cfg.StatusIntervalMS)
	return Options{
		Rate:         cfg.TargetRateHz,
		Intervals:    iv,
		IdlePoll:     config.Millis(cfg.IdlePollMS),
		GRef:         cfg.GRef,
		FlushEvery:   cfg.FlushEvery,
		ErrorDisplay: config.Millis(cfg.ErrorDisplayMS),
		FailureLimit: cfg.SensorFailureLimit,
	}
}

// Logger is the main loop. It owns every piece of mutable loop state and
// is driven from a single goroutine.
type Logger struct {
	dev  Devices
	opts Options
	clk  clock.Clock
	rep  status.Reporter

	est   *orientation.Estimator
	sess  *session.Manager
	sched *schedule.Scheduler

	origin     time.Time // timestamps count from here
	lastSample time.Time // yaw integration reference
	env        env.Sample
	magRaw     imu.Vector3 // last raw reading
	mag        imu.Vector3 // last calibrated reading
	failures   int
	ticks      uint64
}

// NewLogger builds the loop around a finished calibration.
func NewLogger(dev Devices, st storage.Storage, cal calibration.Result, c clock.Clock, rep status.Reporter, opts Options) *Logger {
	if rep == nil {
		rep = status.Discard
	}
	est := orientation.New(cal, opts.GRef)
	l := &Logger{
		dev:   dev,
		opts:  opts,
		clk:   c,
		rep:   rep,
		est:   est,
		sched: schedule.New(c, opts.Rate, opts.Intervals),
	}
	l.sess = session.NewManager(session.Config{
		Storage:      st,
		Power:        dev.Power,
		Reporter:     rep,
		Metrics:      est,
		Rate:         opts.Rate,
		FlushEvery:   opts.FlushEvery,
		ErrorDisplay: opts.ErrorDisplay,
	})
	return l
}

// Session exposes the session manager.
func (l *Logger) Session() *session.Manager { return l.sess }

// Estimator exposes the orientation state.
func (l *Logger) Estimator() *orientation.Estimator { return l.est }

// Scheduler exposes the rate scheduler.
func (l *Logger) Scheduler() *schedule.Scheduler { return l.sched }

// Ticks is the number of loop iterations run so far.
func (l *Logger) Ticks() uint64 { return l.ticks }

// Begin takes the first environment reading and starts the task timers.
// Run calls it; tests driving Step call it themselves.
func (l *Logger) Begin() {
	now := l.clk.Now()
	l.origin = now
	l.sched.Start(now)
	l.readEnv()
	if l.dev.Power != nil {
		l.readBattery()
	}
	log.WithField("rate_hz", l.opts.Rate).Infof("logger: ready, period %v", l.sched.Period())
}

// Run loops until ctx is done, then stops an active session so the log
// file is closed.
func (l *Logger) Run(ctx context.Context) error {
	l.Begin()
	for {
		select {
		case <-ctx.Done():
			if l.sess.State() == session.Active {
				log.Info("logger: shutting down, closing session")
				l.sess.Stop()
			}
			log.WithFields(log.Fields{"ticks": l.ticks, "overruns": l.sched.Overruns()}).Info("logger: stopped")
			return nil
		default:
		}
		l.Step()
	}
}

// Step runs one loop iteration.
func (l *Logger) Step() {
	l.ticks++
	now := l.clk.Now()

	if l.sess.Observe(l.dev.Switch.Level(), now) == session.Started {
		l.lastSample = now
		l.failures = 0
	}

	due := l.sched.Due(now)
	if due.Has(schedule.Battery) && l.dev.Power != nil {
		l.readBattery()
	}
	if due.Has(schedule.Environment) {
		l.readEnv()
	}
	if due.Has(schedule.Magnetometer) {
		l.readMag()
	}

	if l.sess.State() == session.Active {
		start := l.clk.Now()
		l.sample(start)
		l.sched.Pace(start)
	} else if l.opts.IdlePoll > 0 {
		l.clk.Sleep(l.opts.IdlePoll)
	}

	if due.Has(schedule.Status) {
		l.reportStatus()
	}
}

func (l *Logger) sample(now time.Time) {
	s, err := l.read(now)
	if err != nil {
		l.failures++
		log.WithError(err).Debugf("logger: sample skipped (%d consecutive)", l.failures)
		if l.opts.FailureLimit > 0 && l.failures >= l.opts.FailureLimit {
			log.WithError(err).Errorf("logger: %d consecutive read failures", l.failures)
			l.sess.Abort(session.MsgSensorReadFail)
			l.failures = 0
		}
		return
	}
	l.failures = 0

	dt := now.Sub(l.lastSample).Seconds()
	l.lastSample = now
	out := l.est.Update(s, dt)

	ts := now.Sub(l.origin).Seconds()
	elapsed := now.Sub(l.sess.Current().Start).Seconds()
	// Append aborts the session itself on failure.
	_ = l.sess.Append(logfile.NewRecord(ts, s, out, l.mag), elapsed)
}

func (l *Logger) read(now time.Time) (imu.Sample, error) {
	a, err := l.dev.IMU.ReadAcceleration()
	if err != nil {
		return imu.Sample{}, err
	}
	g, err := l.dev.IMU.ReadGyro()
	if err != nil {
		return imu.Sample{}, err
	}
	return imu.Sample{
		Time:        now,
		Accel:       a,
		Gyro:        g,
		Mag:         l.magRaw,
		Temperature: l.env.Temperature,
		Humidity:    l.env.Humidity,
	}, nil
}

func (l *Logger) readEnv() {
	s, err := env.Read(l.dev.Env)
	if err != nil {
		log.WithError(err).Warn("logger: environment read failed, keeping last value")
		return
	}
	l.env = s
	l.rep.Report(status.Event{Kind: status.KindEnvironment, Temperature: s.Temperature, Humidity: s.Humidity})
}

func (l *Logger) readBattery() {
	v, err := l.dev.Power.ReadVoltage()
	if err != nil {
		log.WithError(err).Warn("logger: battery read failed")
		return
	}
	l.rep.Report(status.Event{Kind: status.KindBattery, Voltage: v})
}

func (l *Logger) readMag() {
	raw, err := l.dev.Mag.ReadField()
	if err != nil {
		log.WithError(err).Warn("logger: magnetometer read failed, keeping last value")
		return
	}
	l.magRaw = raw
	l.mag, _ = l.est.UpdateHeading(raw)
}

func (l *Logger) reportStatus() {
	st := l.est.State()
	ev := status.Event{
		Kind:    status.KindStatus,
		Heading: st.Heading,
		MaxG:    st.MaxG,
		Logging: l.sess.State() == session.Active,
	}
	if cur := l.sess.Current(); cur != nil {
		ev.File = cur.Name
		ev.Records = cur.Records
	}
	l.rep.Report(ev)
}
