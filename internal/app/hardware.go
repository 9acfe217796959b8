package app

import (
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/stratus_logger/internal/calibration"
	"github.com/relabs-tech/stratus_logger/internal/clock"
	"github.com/relabs-tech/stratus_logger/internal/config"
	"github.com/relabs-tech/stratus_logger/internal/sensors"
	"github.com/relabs-tech/stratus_logger/internal/sim"
	"github.com/relabs-tech/stratus_logger/internal/status"
	"github.com/relabs-tech/stratus_logger/internal/storage"
)

// Simulated switch timing: off for simOff, then on for simOn.
const (
	simOn  = 20 * time.Second
	simOff = 5 * time.Second
)

// Hardware is everything opened from the configuration.
type Hardware struct {
	Devices Devices
	Storage storage.Storage
	// Screen is nil when the display is disabled or missing.
	Screen status.Screen
	// Sim is set in simulation mode.
	Sim *sim.Pack

	closers []io.Closer
}

// Close releases the buses.
func (h *Hardware) Close() error {
	var first error
	for _, c := range h.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenHardware opens the sensor pack described by cfg, or a simulated one
// when SIMULATE is set.
func OpenHardware(cfg *config.Config, c clock.Clock) (*Hardware, error) {
	if cfg.Simulate {
		return openSimulated(cfg, c), nil
	}

	h := &Hardware{Storage: storage.Dir{Root: cfg.LogDir}}
	fail := func(err error) (*Hardware, error) {
		_ = h.Close()
		return nil, err
	}

	imuDev, err := sensors.NewMPU9250(sensors.IMUOpts{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	})
	if err != nil {
		return fail(err)
	}
	h.Devices.IMU = imuDev

	bus, err := sensors.OpenI2C(cfg.I2CBus)
	if err != nil {
		return fail(err)
	}
	h.closers = append(h.closers, bus)

	if h.Devices.Env, err = sensors.NewBME280(bus, cfg.EnvI2CAddr); err != nil {
		return fail(err)
	}
	if h.Devices.Mag, err = sensors.NewHMC5883L(bus, sensors.MagOpts{Addr: cfg.MagI2CAddr, GainCode: cfg.MagGainCode}); err != nil {
		return fail(err)
	}
	if h.Devices.Switch, err = sensors.OpenGPIOSwitch(cfg.SwitchPin, cfg.SwitchActiveLow); err != nil {
		return fail(err)
	}

	if cfg.PowerEnabled {
		openPower(h, bus)
	}
	if cfg.DisplayEnabled {
		if dev, err := status.OpenSSD1306(bus); err != nil {
			log.WithError(err).Warn("hardware: display unavailable, continuing without it")
		} else {
			h.Screen = dev
		}
	}
	return h, nil
}

// openPower attaches the power monitor. A missing monitor only disables
// the voltage features.
func openPower(h *Hardware, bus i2c.Bus) {
	p, err := sensors.NewINA219(bus)
	if err != nil {
		log.WithError(err).Warn("hardware: power monitor unavailable, voltage logging disabled")
		return
	}
	h.Devices.Power = p
}

func openSimulated(cfg *config.Config, c clock.Clock) *Hardware {
	pack := sim.NewPack(c, time.Now().UnixNano())
	pack.Switch.Cycle(simOn, simOff)

	h := &Hardware{
		Devices: Devices{
			IMU:    pack.IMU,
			Mag:    pack.Mag,
			Env:    pack.Env,
			Switch: pack.Switch,
		},
		Sim: pack,
	}
	if cfg.PowerEnabled {
		h.Devices.Power = pack.Power
	}
	if cfg.LogDir != "" {
		h.Storage = storage.Dir{Root: cfg.LogDir}
	} else {
		h.Storage = storage.NewMemory()
	}
	log.WithField("log_dir", cfg.LogDir).Info("hardware: using simulated sensor pack")
	return h
}

// Calibrate runs the startup calibration on h.
func Calibrate(cfg *config.Config, h *Hardware, c clock.Clock, rep status.Reporter) (calibration.Result, error) {
	eng := calibration.NewEngine(c, rep)
	eng.GyroDelay = config.Millis(cfg.GyroCalDelayMS)
	eng.MagDelay = config.Millis(cfg.MagCalDelayMS)

	if h.Sim != nil {
		// The simulated operator keeps the pack still for the gyro.
		h.Sim.IMU.Still = true
		defer func() { h.Sim.IMU.Still = false }()
	}
	res, err := eng.Run(
		h.Devices.IMU.ReadGyro,
		h.Devices.Mag.ReadField,
		cfg.GyroCalSamples,
		config.Millis(cfg.MagCalDurationMS),
		cfg.MagCalAttempts,
		config.Millis(cfg.ErrorDisplayMS),
	)
	if err != nil {
		return calibration.Result{}, errors.Wrap(err, "calibration")
	}
	return res, nil
}
