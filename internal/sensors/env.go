package sensors

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// DefaultBME280Addr is the BME280 address with SDO pulled low.
const DefaultBME280Addr = 0x76

type envSensor interface {
	Sense(e *physic.Env) error
}

// BME280 reads temperature and humidity. One Sense call serves a
// ReadTemperature followed by ReadHumidity.
type BME280 struct {
	dev envSensor

	mu    sync.Mutex
	last  physic.Env
	fresh bool
}

// NewBME280 initializes the sensor on bus.
func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	if addr == 0 {
		addr = DefaultBME280Addr
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "BME280 init (addr 0x%02X)", addr)
	}
	return &BME280{dev: dev}, nil
}

// ReadTemperature takes a new measurement and returns the temperature in °C.
func (s *BME280) ReadTemperature() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.Sense(&s.last); err != nil {
		s.fresh = false
		return 0, errors.Wrap(err, "BME280 sense")
	}
	s.fresh = true
	return s.last.Temperature.Celsius(), nil
}

// ReadHumidity returns the relative humidity in %, reusing the measurement
// of the preceding ReadTemperature when there is one.
func (s *BME280) ReadHumidity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		if err := s.dev.Sense(&s.last); err != nil {
			return 0, errors.Wrap(err, "BME280 sense")
		}
	}
	s.fresh = false
	return float64(s.last.Humidity) / float64(physic.PercentRH), nil
}
