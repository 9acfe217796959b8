// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration computes the one-shot startup calibration:
//  1. Gyro: static bias, the mean of N reads while the device is still.
//  2. Mag: hard-iron offset and per-axis soft-iron scale (min/max method)
//     while the operator rotates the device for a fixed window.
//
// Calibration is recomputed on every start and never stored.
package calibration

import (
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/stratus_logger/internal/clock"
	"github.com/relabs-tech/stratus_logger/internal/imu"
	"github.com/relabs-tech/stratus_logger/internal/status"
)

// ErrDegenerateCalibration means at least one magnetometer axis never
// changed during the window, so its scale would be zero.
var ErrDegenerateCalibration = errors.New("degenerate magnetometer calibration")

// Stage names used in progress events.
const (
	StageGyro = "gyro"
	StageMag  = "mag"
)

// Result is the calibration used for the whole run.
//
//	CorrectedGyro = raw - GyroBias
//	CorrectedMag  = (raw - MagOffset) / MagScale
type Result struct {
	GyroBias  imu.Vector3 `json:"gyro_bias" yaml:"gyro_bias"`
	MagOffset imu.Vector3 `json:"mag_offset" yaml:"mag_offset"`
	MagScale  imu.Vector3 `json:"mag_scale" yaml:"mag_scale"`
}

// Validate checks that the magnetometer scale can be divided by.
func (r Result) Validate() error {
	s := r.MagScale
	if s.X == 0 || s.Y == 0 || s.Z == 0 {
		return errors.Wrapf(ErrDegenerateCalibration, "mag scale (%.3f, %.3f, %.3f)", s.X, s.Y, s.Z)
	}
	return nil
}

// Stats describes one capture phase. It is informational only.
type Stats struct {
	Samples  int           `json:"samples"`
	Duration time.Duration `json:"duration"`
	Mean     imu.Vector3   `json:"mean"`
	StdDev   imu.Vector3   `json:"stddev"`
	Min      imu.Vector3   `json:"min"`
	Max      imu.Vector3   `json:"max"`
}

// ReadFunc returns one three-axis reading.
type ReadFunc func() (imu.Vector3, error)

// Engine runs the calibration routines. They block and do nothing else
// while they run.
type Engine struct {
	Clock    clock.Clock
	Reporter status.Reporter

	// GyroDelay is the pause between two gyro reads.
	GyroDelay time.Duration
	// MagDelay is the pause between two magnetometer reads.
	MagDelay time.Duration
}

// NewEngine returns an Engine with the firmware's default pacing.
func NewEngine(c clock.Clock, r status.Reporter) *Engine {
	if r == nil {
		r = status.Discard
	}
	return &Engine{
		Clock:     c,
		Reporter:  r,
		GyroDelay: 10 * time.Millisecond,
		MagDelay:  50 * time.Millisecond,
	}
}

// CalibrateGyro reads the gyro samples times and returns the per-axis mean
// as bias. The caller must make sure the device is still; nothing here
// checks it.
func (e *Engine) CalibrateGyro(read ReadFunc, samples int) (imu.Vector3, Stats, error) {
	if samples <= 0 {
		return imu.Vector3{}, Stats{}, errors.Errorf("gyro calibration needs a positive sample count, got %d", samples)
	}

	start := e.Clock.Now()
	values := make([]imu.Vector3, 0, samples)
	for i := 0; i < samples; i++ {
		e.Reporter.Report(status.Progress(StageGyro, i, samples, i*100/samples))
		v, err := read()
		if err != nil {
			return imu.Vector3{}, Stats{}, errors.Wrapf(err, "gyro calibration sample %d", i)
		}
		values = append(values, v)
		e.Clock.Sleep(e.GyroDelay)
	}
	e.Reporter.Report(status.Progress(StageGyro, samples, samples, 100))

	st := computeStats(values, e.Clock.Now().Sub(start))
	log.WithFields(log.Fields{"samples": st.Samples}).
		Infof("calibration: gyro bias X=%.4f Y=%.4f Z=%.4f (std %.4f %.4f %.4f)",
			st.Mean.X, st.Mean.Y, st.Mean.Z, st.StdDev.X, st.StdDev.Y, st.StdDev.Z)
	return st.Mean, st, nil
}

// CalibrateMag samples the magnetometer for duration, tracking the per-axis
// minimum and maximum, and returns offset = (max+min)/2 and
// scale = (max-min)/2. It fails with ErrDegenerateCalibration when an axis
// range is zero.
func (e *Engine) CalibrateMag(read ReadFunc, duration time.Duration) (offset, scale imu.Vector3, st Stats, err error) {
	start := e.Clock.Now()
	var values []imu.Vector3

	for {
		elapsed := e.Clock.Now().Sub(start)
		if elapsed >= duration {
			break
		}
		pct := int(float64(elapsed) / float64(duration) * 100)
		e.Reporter.Report(status.Progress(StageMag, len(values), 0, pct))

		v, err := read()
		if err != nil {
			return imu.Vector3{}, imu.Vector3{}, Stats{}, errors.Wrapf(err, "mag calibration sample %d", len(values))
		}
		values = append(values, v)
		e.Clock.Sleep(e.MagDelay)
	}
	e.Reporter.Report(status.Progress(StageMag, len(values), len(values), 100))

	st = computeStats(values, e.Clock.Now().Sub(start))
	if st.Samples == 0 {
		return imu.Vector3{}, imu.Vector3{}, st, errors.Wrap(ErrDegenerateCalibration, "no magnetometer samples")
	}

	offset = imu.Vector3{
		X: (st.Max.X + st.Min.X) / 2,
		Y: (st.Max.Y + st.Min.Y) / 2,
		Z: (st.Max.Z + st.Min.Z) / 2,
	}
	scale = imu.Vector3{
		X: (st.Max.X - st.Min.X) / 2,
		Y: (st.Max.Y - st.Min.Y) / 2,
		Z: (st.Max.Z - st.Min.Z) / 2,
	}
	if scale.X == 0 || scale.Y == 0 || scale.Z == 0 {
		return offset, scale, st, errors.Wrapf(ErrDegenerateCalibration,
			"axis range zero: X=%.3f Y=%.3f Z=%.3f (rotate through every axis)", scale.X, scale.Y, scale.Z)
	}

	log.WithFields(log.Fields{"samples": st.Samples}).
		Infof("calibration: mag offset X=%.2f Y=%.2f Z=%.2f scale X=%.2f Y=%.2f Z=%.2f",
			offset.X, offset.Y, offset.Z, scale.X, scale.Y, scale.Z)
	return offset, scale, st, nil
}

// Run calibrates the gyro once and the magnetometer up to attempts times,
// retrying only on ErrDegenerateCalibration. Every failed attempt is
// reported as an error event.
func (e *Engine) Run(gyro, mag ReadFunc, gyroSamples int, magDuration time.Duration, attempts int, errDisplay time.Duration) (Result, error) {
	bias, _, err := e.CalibrateGyro(gyro, gyroSamples)
	if err != nil {
		e.Reporter.Report(status.Error("Gyro Cal Fail", errDisplay))
		return Result{}, err
	}

	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		offset, scale, _, err := e.CalibrateMag(mag, magDuration)
		if err == nil {
			res := Result{GyroBias: bias, MagOffset: offset, MagScale: scale}
			return res, res.Validate()
		}
		if !errors.Is(err, ErrDegenerateCalibration) {
			e.Reporter.Report(status.Error("Mag Cal Fail", errDisplay))
			return Result{}, err
		}
		log.Warnf("calibration: attempt %d/%d: %v", attempt, attempts, err)
		e.Reporter.Report(status.Error("Mag Cal: Rotate More", errDisplay))
		if attempt >= attempts {
			return Result{}, errors.Wrapf(err, "after %d attempts", attempts)
		}
	}
}

func computeStats(values []imu.Vector3, dur time.Duration) Stats {
	n := len(values)
	if n == 0 {
		return Stats{Duration: dur}
	}
	minV := imu.Vector3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxV := imu.Vector3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	var sx, sy, sz float64
	for _, v := range values {
		sx += v.X
		sy += v.Y
		sz += v.Z
		minV.X = math.Min(minV.X, v.X)
		minV.Y = math.Min(minV.Y, v.Y)
		minV.Z = math.Min(minV.Z, v.Z)
		maxV.X = math.Max(maxV.X, v.X)
		maxV.Y = math.Max(maxV.Y, v.Y)
		maxV.Z = math.Max(maxV.Z, v.Z)
	}
	mean := imu.Vector3{X: sx / float64(n), Y: sy / float64(n), Z: sz / float64(n)}

	var vx, vy, vz float64
	for _, v := range values {
		dx := v.X - mean.X
		dy := v.Y - mean.Y
		dz := v.Z - mean.Z
		vx += dx * dx
		vy += dy * dy
		vz += dz * dz
	}
	return Stats{
		Samples:  n,
		Duration: dur,
		Mean:     mean,
		StdDev: imu.Vector3{
			X: math.Sqrt(vx / float64(n)),
			Y: math.Sqrt(vy / float64(n)),
			Z: math.Sqrt(vz / float64(n)),
		},
		Min: minV,
		Max: maxV,
	}
}
