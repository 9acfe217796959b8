package sensors

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
)

type powerSensor interface {
	Sense() (ina219.PowerMonitor, error)
}

// INA219 reads the bus (battery) voltage.
type INA219 struct {
	dev powerSensor
}

// NewINA219 initializes the monitor at its default address.
func NewINA219(bus i2c.Bus) (*INA219, error) {
	dev, err := ina219.New(bus, &ina219.DefaultOpts)
	if err != nil {
		return nil, errors.Wrap(err, "INA219 init")
	}
	return &INA219{dev: dev}, nil
}

// ReadVoltage returns the bus voltage in volts.
func (p *INA219) ReadVoltage() (float64, error) {
	pm, err := p.dev.Sense()
	if err != nil {
		return 0, errors.Wrap(err, "INA219 sense")
	}
	return float64(pm.Voltage) / float64(physic.Volt), nil
}
