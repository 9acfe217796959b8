// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/relabs-tech/stratus_logger/internal/calibration"
	"github.com/relabs-tech/stratus_logger/internal/imu"
)

// DefaultGRef is the acceleration of one g in m/s².
const DefaultGRef = 9.8

// Pose is a tilt estimate in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// State is the orientation owned by the Estimator.
//
// Yaw is the open-loop integral of the bias-corrected Z rate. It drifts
// and is never wrapped or reset. Heading comes from the magnetometer and
// is always in [0, 360).
type State struct {
	Pose
	Heading float64 `json:"heading"`
	MaxG    float64 `json:"max_g"`
}

// Output is the result of one Update.
type Output struct {
	State
	Gyro   imu.Vector3 // bias corrected, °/s
	Impact float64     // |accel| / g_ref
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is left at 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
//
// These are not fused with the gyro, so linear acceleration and vibration
// show up directly in the result.
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// Heading returns atan2(y, x) in degrees normalized into [0, 360).
func Heading(x, y float64) float64 {
	h := math.Atan2(y, x) * 180.0 / math.Pi
	if h < 0 {
		h += 360
	}
	// -tiny + 360 rounds to 360.
	if h >= 360 {
		h = 0
	}
	return h
}

// Estimator turns raw samples into orientation and impact metrics.
type Estimator struct {
	cal    calibration.Result
	gRef   float64
	state  State
	active bool
}

// New returns an Estimator using cal for the whole run. A non-positive
// gRef selects DefaultGRef.
func New(cal calibration.Result, gRef float64) *Estimator {
	if gRef <= 0 {
		gRef = DefaultGRef
	}
	return &Estimator{cal: cal, gRef: gRef}
}

// Calibration returns the calibration in use.
func (e *Estimator) Calibration() calibration.Result { return e.cal }

// State returns a copy of the current state.
func (e *Estimator) State() State { return e.state }

// MaxG is the peak impact of the current or last session.
func (e *Estimator) MaxG() float64 { return e.state.MaxG }

// Active reports whether a session is running.
func (e *Estimator) Active() bool { return e.active }

// BeginSession resets MaxG to zero and starts tracking it.
func (e *Estimator) BeginSession() {
	e.state.MaxG = 0
	e.active = true
}

// EndSession freezes MaxG at its current value.
func (e *Estimator) EndSession() {
	e.active = false
}

// Update processes one sample taken dt seconds after the previous one.
func (e *Estimator) Update(s imu.Sample, dt float64) Output {
	pose := ComputePoseFromAccel(s.Accel.X, s.Accel.Y, s.Accel.Z)
	e.state.Roll = pose.Roll
	e.state.Pitch = pose.Pitch

	gyro := s.Gyro.Sub(e.cal.GyroBias)
	e.state.Yaw += gyro.Z * dt

	impact := s.Accel.Norm() / e.gRef
	if e.active && impact > e.state.MaxG {
		e.state.MaxG = impact
	}

	return Output{State: e.state, Gyro: gyro, Impact: impact}
}

// CalibrateMag applies hard- and soft-iron correction to a raw reading.
func (e *Estimator) CalibrateMag(raw imu.Vector3) imu.Vector3 {
	return raw.Sub(e.cal.MagOffset).Div(e.cal.MagScale)
}

// UpdateHeading recomputes Heading from a raw magnetometer reading and
// returns the calibrated field together with the new heading.
func (e *Estimator) UpdateHeading(raw imu.Vector3) (imu.Vector3, float64) {
	m := e.CalibrateMag(raw)
	e.state.Heading = Heading(m.X, m.Y)
	return m, e.state.Heading
}
