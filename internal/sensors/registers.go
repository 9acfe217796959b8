// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"github.com/pkg/errors"
)

// RegisterInfo describes one device register.
type RegisterInfo struct {
	Address     byte   `json:"addr"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Access      string `json:"access"` // "R" or "RW"
	Default     byte   `json:"default"`
}

// RegisterValue is a register together with the value read from it.
type RegisterValue struct {
	RegisterInfo
	Value byte `json:"value"`
}

// hmcRegisters is the HMC5883L register map.
var hmcRegisters = []RegisterInfo{
	{Address: hmcRegCRA, Name: "CRA", Description: "Configuration A: averaging, output rate, bias", Access: "RW", Default: 0x10},
	{Address: hmcRegCRB, Name: "CRB", Description: "Configuration B: gain code in bits 7:5", Access: "RW", Default: 0x20},
	{Address: hmcRegMode, Name: "MODE", Description: "Mode: 0=continuous, 1=single, 2/3=idle", Access: "RW", Default: 0x01},
	{Address: 0x03, Name: "DXRA", Description: "Data X MSB", Access: "R"},
	{Address: 0x04, Name: "DXRB", Description: "Data X LSB", Access: "R"},
	{Address: 0x05, Name: "DZRA", Description: "Data Z MSB", Access: "R"},
	{Address: 0x06, Name: "DZRB", Description: "Data Z LSB", Access: "R"},
	{Address: 0x07, Name: "DYRA", Description: "Data Y MSB", Access: "R"},
	{Address: 0x08, Name: "DYRB", Description: "Data Y LSB", Access: "R"},
	{Address: 0x09, Name: "SR", Description: "Status: bit 1 LOCK, bit 0 RDY", Access: "R"},
	{Address: hmcRegIDA, Name: "IRA", Description: "Identification A ('H')", Access: "R", Default: 'H'},
	{Address: 0x0B, Name: "IRB", Description: "Identification B ('4')", Access: "R", Default: '4'},
	{Address: 0x0C, Name: "IRC", Description: "Identification C ('3')", Access: "R", Default: '3'},
}

// HMC5883LRegisters returns the register map of the magnetometer.
func HMC5883LRegisters() []RegisterInfo {
	out := make([]RegisterInfo, len(hmcRegisters))
	copy(out, hmcRegisters)
	return out
}

// DumpRegisters reads every register of the map in a single burst. The
// chip auto-increments its address pointer, so one transaction covers
// 0x00 to 0x0C.
func (d *HMC5883L) DumpRegisters() ([]RegisterValue, error) {
	last := hmcRegisters[len(hmcRegisters)-1].Address
	buf := make([]byte, int(last)+1)
	if err := d.dev.Tx([]byte{0x00}, buf); err != nil {
		return nil, errors.Wrap(err, "HMC5883L: dump registers")
	}
	out := make([]RegisterValue, len(hmcRegisters))
	for i, r := range hmcRegisters {
		out[i] = RegisterValue{RegisterInfo: r, Value: buf[r.Address]}
	}
	return out, nil
}
