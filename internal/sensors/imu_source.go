// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"

	"github.com/relabs-tech/stratus_logger/internal/imu"
)

// StandardGravity converts g to m/s².
const StandardGravity = 9.80665

// LSB per g for accel full scale ranges ±2, ±4, ±8, ±16 g.
var accelLSBPerG = [4]float64{16384, 8192, 4096, 2048}

// LSB per °/s for gyro full scale ranges ±250, ±500, ±1000, ±2000 °/s.
var gyroLSBPerDPS = [4]float64{131, 65.5, 32.8, 16.4}

// IMUOpts selects the MPU9250 wiring and ranges.
type IMUOpts struct {
	SPIDevice  string // e.g. /dev/spidev0.0
	CSPin      string // GPIO name of chip select
	AccelRange byte   // 0..3
	GyroRange  byte   // 0..3
}

// mpuDevice is the subset of the MPU9250 driver used here.
type mpuDevice interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
	GetRotationX() (int16, error)
	GetRotationY() (int16, error)
	GetRotationZ() (int16, error)
}

// MPU9250 reads acceleration in m/s² and rotation in °/s.
type MPU9250 struct {
	dev        mpuDevice
	accelScale float64
	gyroScale  float64
}

// NewMPU9250 initializes the IMU over SPI.
func NewMPU9250(opts IMUOpts) (*MPU9250, error) {
	if opts.AccelRange > 3 || opts.GyroRange > 3 {
		return nil, errors.Errorf("IMU: invalid ranges accel=%d gyro=%d", opts.AccelRange, opts.GyroRange)
	}
	if err := Init(); err != nil {
		return nil, err
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, errors.Errorf("IMU: CS pin %q not found", opts.CSPin)
	}
	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, errors.Wrapf(err, "IMU: SPI transport (%s)", opts.SPIDevice)
	}
	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, errors.Wrap(err, "IMU: device creation")
	}
	if err := dev.Init(); err != nil {
		return nil, errors.Wrap(err, "IMU: initialization")
	}

	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, errors.Wrap(err, "IMU: set accel range")
	}
	log.Infof("IMU: accelerometer range set to %d (±%dg)", opts.AccelRange, []int{2, 4, 8, 16}[opts.AccelRange])

	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, errors.Wrap(err, "IMU: set gyro range")
	}
	log.Infof("IMU: gyroscope range set to %d (±%d°/s)", opts.GyroRange, []int{250, 500, 1000, 2000}[opts.GyroRange])

	return newMPU9250(dev, opts.AccelRange, opts.GyroRange), nil
}

func newMPU9250(dev mpuDevice, accelRange, gyroRange byte) *MPU9250 {
	return &MPU9250{
		dev:        dev,
		accelScale: StandardGravity / accelLSBPerG[accelRange&3],
		gyroScale:  1 / gyroLSBPerDPS[gyroRange&3],
	}
}

// ReadAcceleration returns the acceleration in m/s².
func (s *MPU9250) ReadAcceleration() (imu.Vector3, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.Vector3{}, errors.Wrap(err, "IMU accel X")
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.Vector3{}, errors.Wrap(err, "IMU accel Y")
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.Vector3{}, errors.Wrap(err, "IMU accel Z")
	}
	return imu.Vector3{
		X: float64(ax) * s.accelScale,
		Y: float64(ay) * s.accelScale,
		Z: float64(az) * s.accelScale,
	}, nil
}

// ReadGyro returns the angular rate in °/s.
func (s *MPU9250) ReadGyro() (imu.Vector3, error) {
	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.Vector3{}, errors.Wrap(err, "IMU gyro X")
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.Vector3{}, errors.Wrap(err, "IMU gyro Y")
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.Vector3{}, errors.Wrap(err, "IMU gyro Z")
	}
	return imu.Vector3{
		X: float64(gx) * s.gyroScale,
		Y: float64(gy) * s.gyroScale,
		Z: float64(gz) * s.gyroScale,
	}, nil
}
