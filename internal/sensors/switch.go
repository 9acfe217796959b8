package sensors

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Switch is the operator's logging switch.
type Switch interface {
	// Level reports whether the switch is on.
	Level() bool
}

// GPIOSwitch reads a slide switch on a GPIO input with the internal
// pull-up enabled.
type GPIOSwitch struct {
	pin       gpio.PinIn
	activeLow bool
}

// NewGPIOSwitch configures pin as input. With activeLow the switch is on
// when it pulls the pin to ground.
func NewGPIOSwitch(pin gpio.PinIn, activeLow bool) (*GPIOSwitch, error) {
	if pin == nil {
		return nil, errors.New("switch: nil pin")
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "switch: configure %s", pin)
	}
	return &GPIOSwitch{pin: pin, activeLow: activeLow}, nil
}

// OpenGPIOSwitch looks the pin up by name.
func OpenGPIOSwitch(name string, activeLow bool) (*GPIOSwitch, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("switch: pin %q not found", name)
	}
	return NewGPIOSwitch(p, activeLow)
}

// Level implements Switch.
func (s *GPIOSwitch) Level() bool {
	high := s.pin.Read() == gpio.High
	return high != s.activeLow
}
