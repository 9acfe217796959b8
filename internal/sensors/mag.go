// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/stratus_logger/internal/imu"
)

// HMC5883L/HMC5983 register map.
const (
	hmcRegCRA  = 0x00
	hmcRegCRB  = 0x01
	hmcRegMode = 0x02
	hmcRegData = 0x03 // X MSB, X LSB, Z MSB, Z LSB, Y MSB, Y LSB
	hmcRegIDA  = 0x0A
)

// DefaultHMCAddr is the fixed I²C address of the HMC5883L.
const DefaultHMCAddr = 0x1E

// hmcOverflow is the value the chip reports on ADC overflow.
const hmcOverflow = -4096

// LSB per gauss by gain code, datasheet typical values.
var (
	hmcGainXY = [8]float64{1370, 1090, 820, 660, 440, 390, 330, 230}
	hmcGainZ  = [8]float64{1330, 980, 660, 600, 400, 355, 295, 205}
)

// ErrMagOverflow means one axis saturated; raise the gain code.
var ErrMagOverflow = errors.New("magnetometer overflow")

// MagOpts configures the HMC5883L.
type MagOpts struct {
	Addr     uint16
	GainCode int // 0..7, 1 is ±1.3 Ga
	// Samples averaged per output, 1, 2, 4 or 8.
	Average int
}

// HMC5883L reads the magnetic field in µT.
type HMC5883L struct {
	dev    i2c.Dev
	scaleX float64
	scaleZ float64
}

// NewHMC5883L configures continuous 75 Hz measurement.
func NewHMC5883L(bus i2c.Bus, opts MagOpts) (*HMC5883L, error) {
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultHMCAddr
	}
	gc := opts.GainCode
	if gc < 0 || gc > 7 {
		gc = 1
	}
	d := &HMC5883L{
		dev: i2c.Dev{Bus: bus, Addr: addr},
		// gauss -> µT is ×100
		scaleX: 100 / hmcGainXY[gc],
		scaleZ: 100 / hmcGainZ[gc],
	}

	cra := byte(0b110 << 2) // 75 Hz, normal bias
	switch opts.Average {
	case 8:
		cra |= 0b11 << 5
	case 4:
		cra |= 0b10 << 5
	case 2:
		cra |= 0b01 << 5
	}
	if err := d.writeReg(hmcRegCRA, cra); err != nil {
		return nil, errors.Wrap(err, "HMC5883L: write CRA")
	}
	if err := d.writeReg(hmcRegCRB, byte(gc)<<5); err != nil {
		return nil, errors.Wrap(err, "HMC5883L: write CRB")
	}
	if err := d.writeReg(hmcRegMode, 0x00); err != nil {
		return nil, errors.Wrap(err, "HMC5883L: write mode")
	}
	time.Sleep(10 * time.Millisecond)
	return d, nil
}

// ID returns the identification bytes, "H43" on a genuine part.
func (d *HMC5883L) ID() (string, error) {
	id := make([]byte, 3)
	if err := d.dev.Tx([]byte{hmcRegIDA}, id); err != nil {
		return "", errors.Wrap(err, "HMC5883L: read ID")
	}
	return string(id), nil
}

// ReadField returns the field in µT.
func (d *HMC5883L) ReadField() (imu.Vector3, error) {
	var b [6]byte
	if err := d.dev.Tx([]byte{hmcRegData}, b[:]); err != nil {
		return imu.Vector3{}, errors.Wrap(err, "HMC5883L: read data")
	}
	x := int16(b[0])<<8 | int16(b[1])
	z := int16(b[2])<<8 | int16(b[3])
	y := int16(b[4])<<8 | int16(b[5])
	if x == hmcOverflow || y == hmcOverflow || z == hmcOverflow {
		return imu.Vector3{}, ErrMagOverflow
	}
	return imu.Vector3{
		X: float64(x) * d.scaleX,
		Y: float64(y) * d.scaleX,
		Z: float64(z) * d.scaleZ,
	}, nil
}

func (d *HMC5883L) writeReg(reg, val byte) error {
	return d.dev.Tx([]byte{reg, val}, nil)
}
