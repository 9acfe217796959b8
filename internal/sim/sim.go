// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim provides synthetic sensors for bench runs without hardware.
// Values change smoothly with the clock so calibration and heading behave
// like on a device being handled.
package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/relabs-tech/stratus_logger/internal/clock"
	"github.com/relabs-tech/stratus_logger/internal/imu"
)

// G is one g in m/s².
const G = 9.80665

// Pack is a complete simulated sensor pack sharing one clock.
type Pack struct {
	IMU    *IMU
	Mag    *Magnetometer
	Env    *Environment
	Power  *Battery
	Switch *Switch
}

// NewPack returns a simulated pack. seed makes the noise reproducible.
func NewPack(c clock.Clock, seed int64) *Pack {
	start := c.Now()
	rng := rand.New(rand.NewSource(seed))
	return &Pack{
		IMU: &IMU{
			clk:      c,
			start:    start,
			rng:      rng,
			GyroBias: imu.Vector3{X: 0.8, Y: -0.5, Z: 0.3},
			Noise:    0.02,
		},
		Mag: &Magnetometer{
			clk:    c,
			start:  start,
			Field:  45,
			Offset: imu.Vector3{X: 12, Y: -7, Z: 3},
			Scale:  imu.Vector3{X: 1.1, Y: 0.9, Z: 1},
			Period: 4 * time.Second,
		},
		Env:    &Environment{clk: c, start: start},
		Power:  &Battery{clk: c, start: start, Full: 4.2, Drain: 0.0005},
		Switch: &Switch{clk: c, start: start},
	}
}

// IMU is a gently swaying device with a constant gyro bias.
type IMU struct {
	clk   clock.Clock
	start time.Time

	mu  sync.Mutex
	rng *rand.Rand

	GyroBias imu.Vector3
	// Noise is the gyro noise amplitude in °/s.
	Noise float64
	// Still makes the device stationary, as during gyro calibration.
	Still bool
	// Err is returned by every read when set.
	Err error
}

func (s *IMU) elapsed() float64 { return s.clk.Now().Sub(s.start).Seconds() }

// ReadAcceleration returns gravity rotated by the current roll and pitch.
func (s *IMU) ReadAcceleration() (imu.Vector3, error) {
	if s.Err != nil {
		return imu.Vector3{}, s.Err
	}
	if s.Still {
		return imu.Vector3{Z: G}, nil
	}
	e := s.elapsed()
	roll := 20 * math.Sin(e) * math.Pi / 180
	pitch := 15 * math.Cos(e*0.7) * math.Pi / 180
	return imu.Vector3{
		X: -G * math.Sin(pitch),
		Y: G * math.Cos(pitch) * math.Sin(roll),
		Z: G * math.Cos(pitch) * math.Cos(roll),
	}, nil
}

// ReadGyro returns the bias plus noise, with a slow yaw rate unless Still.
func (s *IMU) ReadGyro() (imu.Vector3, error) {
	if s.Err != nil {
		return imu.Vector3{}, s.Err
	}
	s.mu.Lock()
	n := imu.Vector3{
		X: (s.rng.Float64()*2 - 1) * s.Noise,
		Y: (s.rng.Float64()*2 - 1) * s.Noise,
		Z: (s.rng.Float64()*2 - 1) * s.Noise,
	}
	s.mu.Unlock()
	g := imu.Vector3{X: s.GyroBias.X + n.X, Y: s.GyroBias.Y + n.Y, Z: s.GyroBias.Z + n.Z}
	if !s.Still {
		g.Z += 30 * math.Cos(s.elapsed()*0.2)
	}
	return g, nil
}

// Magnetometer is a horizontal field rotating once per Period, distorted
// by a hard-iron Offset and soft-iron Scale.
type Magnetometer struct {
	clk   clock.Clock
	start time.Time

	Field  float64 // µT
	Offset imu.Vector3
	Scale  imu.Vector3
	Period time.Duration
	Err    error
}

// ReadField implements imu.Magnetometer.
func (m *Magnetometer) ReadField() (imu.Vector3, error) {
	if m.Err != nil {
		return imu.Vector3{}, m.Err
	}
	e := m.clk.Now().Sub(m.start).Seconds()
	a := 2 * math.Pi * e / m.Period.Seconds()
	// Tilt the rotation plane so Z also sweeps through its range.
	return imu.Vector3{
		X: m.Field*math.Cos(a)*m.Scale.X + m.Offset.X,
		Y: m.Field*math.Sin(a)*m.Scale.Y + m.Offset.Y,
		Z: m.Field*0.5*math.Sin(a*0.5)*m.Scale.Z + m.Offset.Z,
	}, nil
}

// Environment drifts slowly around room conditions.
type Environment struct {
	clk   clock.Clock
	start time.Time
	Err   error
}

// ReadTemperature returns °C.
func (s *Environment) ReadTemperature() (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	e := s.clk.Now().Sub(s.start).Seconds()
	return 22 + 1.5*math.Sin(e/60), nil
}

// ReadHumidity returns %rH.
func (s *Environment) ReadHumidity() (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	e := s.clk.Now().Sub(s.start).Seconds()
	return 45 + 5*math.Cos(e/90), nil
}

// Battery discharges linearly from Full by Drain volts per second.
type Battery struct {
	clk   clock.Clock
	start time.Time
	Full  float64
	Drain float64
	Err   error
}

// ReadVoltage implements env.PowerMonitor.
func (b *Battery) ReadVoltage() (float64, error) {
	if b.Err != nil {
		return 0, b.Err
	}
	v := b.Full - b.Drain*b.clk.Now().Sub(b.start).Seconds()
	return math.Max(v, 3.0), nil
}

// Switch is a scripted operator switch.
type Switch struct {
	clk   clock.Clock
	start time.Time

	mu sync.Mutex
	// With On and Off set the switch cycles: Off, then On, repeatedly.
	On, Off time.Duration
	forced  *bool
}

// Set forces the level until Release is called.
func (s *Switch) Set(level bool) {
	s.mu.Lock()
	s.forced = &level
	s.mu.Unlock()
}

// Release returns to the scripted cycle.
func (s *Switch) Release() {
	s.mu.Lock()
	s.forced = nil
	s.mu.Unlock()
}

// Cycle makes the switch stay off for off, then on for on, repeatedly.
func (s *Switch) Cycle(on, off time.Duration) {
	s.mu.Lock()
	s.On, s.Off = on, off
	s.mu.Unlock()
}

// Level implements sensors.Switch.
func (s *Switch) Level() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced != nil {
		return *s.forced
	}
	total := s.On + s.Off
	if s.On <= 0 || total <= 0 {
		return false
	}
	pos := s.clk.Now().Sub(s.start) % total
	return pos >= s.Off
}
