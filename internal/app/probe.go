package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/relabs-tech/stratus_logger/internal/config"
	"github.com/relabs-tech/stratus_logger/internal/env"
	"github.com/relabs-tech/stratus_logger/internal/sensors"
)

// RunProbe checks every peripheral once and prints what answered,
// followed by the magnetometer register dump.
func RunProbe(cfg *config.Config, out io.Writer) error {
	bus, err := sensors.OpenI2C(cfg.I2CBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	report := func(name string, err error, format string, args ...interface{}) {
		if err != nil {
			fmt.Fprintf(tw, "%s\tFAIL\t%v\n", name, err)
			return
		}
		fmt.Fprintf(tw, "%s\tOK\t%s\n", name, fmt.Sprintf(format, args...))
	}

	if imuDev, err := sensors.NewMPU9250(sensors.IMUOpts{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	}); err != nil {
		report("MPU9250", err, "")
	} else {
		a, err := imuDev.ReadAcceleration()
		report("MPU9250", err, "accel %.2f %.2f %.2f m/s²", a.X, a.Y, a.Z)
	}

	if envDev, err := sensors.NewBME280(bus, cfg.EnvI2CAddr); err != nil {
		report("BME280", err, "")
	} else {
		s, err := env.Read(envDev)
		report("BME280", err, "%.1f °C %.1f %%rH", s.Temperature, s.Humidity)
	}

	if cfg.PowerEnabled {
		if p, err := sensors.NewINA219(bus); err != nil {
			report("INA219", err, "")
		} else {
			v, err := p.ReadVoltage()
			report("INA219", err, "%.2f V", v)
		}
	}

	sw, err := sensors.OpenGPIOSwitch(cfg.SwitchPin, cfg.SwitchActiveLow)
	if err != nil {
		report("switch", err, "")
	} else {
		report("switch", nil, "%s on=%v", cfg.SwitchPin, sw.Level())
	}

	mag, err := sensors.NewHMC5883L(bus, sensors.MagOpts{Addr: cfg.MagI2CAddr, GainCode: cfg.MagGainCode})
	if err != nil {
		report("HMC5883L", err, "")
		return tw.Flush()
	}
	id, err := mag.ID()
	report("HMC5883L", err, "id %q", id)
	if err := tw.Flush(); err != nil {
		return err
	}

	regs, err := mag.DumpRegisters()
	if err != nil {
		return errors.Wrap(err, "probe")
	}
	return WriteRegisters(out, regs)
}

// WriteRegisters prints a register dump as a table.
func WriteRegisters(out io.Writer, regs []sensors.RegisterValue) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nADDR\tNAME\tVALUE\tDEFAULT\tACCESS\tDESCRIPTION")
	for _, r := range regs {
		fmt.Fprintf(tw, "0x%02X\t%s\t0x%02X\t0x%02X\t%s\t%s\n", r.Address, r.Name, r.Value, r.Default, r.Access, r.Description)
	}
	return tw.Flush()
}
