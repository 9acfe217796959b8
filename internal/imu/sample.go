// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"
)

// Vector3 is a three-axis reading in physical units.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Sub returns v - o per axis.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Div returns v / o per axis. The caller guarantees no component of o is zero.
func (v Vector3) Div(o Vector3) Vector3 {
	return Vector3{X: v.X / o.X, Y: v.Y / o.Y, Z: v.Z / o.Z}
}

// Norm is the euclidean length.
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sample is one fused read of the sensor pack.
//
// Accel is in m/s², Gyro in °/s and Mag in the magnetometer's native unit.
// Temperature and Humidity are the last cached environment values.
type Sample struct {
	Time        time.Time
	Accel       Vector3
	Gyro        Vector3
	Mag         Vector3
	Temperature float64
	Humidity    float64
}

// IMU is the inertial measurement unit.
type IMU interface {
	ReadAcceleration() (Vector3, error)
	ReadGyro() (Vector3, error)
}

// Magnetometer reads the raw magnetic field.
type Magnetometer interface {
	ReadField() (Vector3, error)
}
