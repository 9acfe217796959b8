// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relabs-tech/stratus_logger/internal/app"
	"github.com/relabs-tech/stratus_logger/internal/config"
)

var RootCmd = &cobra.Command{
	Use:   "stratus",
	Short: "STRATUS sensor data logger",
	Long: `STRATUS samples an IMU at a fixed high rate and logs orientation, impact,
temperature, humidity and magnetic field to numbered CSV files while the
logging switch is on.`,
	SilenceUsage: true,
}

// bindings maps flag names to configuration keys.
var bindings = map[string]string{
	"log-dir":   "LOG_DIR",
	"rate":      "TARGET_RATE_HZ",
	"simulate":  "SIMULATE",
	"broker":    "MQTT_BROKER",
	"web-port":  "WEB_SERVER_PORT",
	"log-level": "LOG_LEVEL",
}

func RootCmdFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", config.DefaultPath, "path to the KEY=VALUE configuration file")
	cmd.PersistentFlags().Bool("debug", false, "toggle debug logging")
	cmd.PersistentFlags().String("log-dir", "", "directory log files are written to")
	cmd.PersistentFlags().Float64("rate", 0, "target sample rate in Hz")
	cmd.PersistentFlags().Bool("simulate", false, "use the simulated sensor pack")
	cmd.PersistentFlags().String("broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	cmd.PersistentFlags().Int("web-port", 0, "status web server port, 0 disables it")
	cmd.PersistentFlags().String("log-level", "", "logrus level: debug, info, warn, error")
}

// loadConfig reads the configuration with command-line overrides and sets
// the log level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for name, key := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
	path, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(path); err != nil && !cmd.Flags().Changed("config") {
		log.Debugf("config: %s not found, using defaults", path)
		path = ""
	}
	cfg, err := config.LoadViper(v, path)
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var RunCmd = &cobra.Command{
	Use:        "run",
	SuggestFor: []string{"ru", "start"},
	Short:      "calibrate the sensors and log while the switch is on",
	Long: `run calibrates the gyroscope (keep the device still) and the magnetometer
(rotate it through every axis), then logs a new LOGnnn.CSV file every time the
switch is turned on. Ctrl+C closes the open file before exiting.`,
	Example: `  stratus run --config=/boot/stratus_config.txt
  stratus run --simulate --log-dir=/tmp/logs --web-port=8080`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		return app.RunLogger(ctx, cfg)
	},
}

var CalibrateCmd = &cobra.Command{
	Use:        "calibrate",
	SuggestFor: []string{"cal", "calib"},
	Short:      "run the startup calibration once and print the result",
	Long: `calibrate runs the same gyroscope and magnetometer calibration as run and
prints the gyro bias and magnetometer offset and scale. Nothing is stored: run
always calibrates again at startup.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return app.RunCalibration(cfg, cmd.OutOrStdout())
	},
}

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration",
	Long: `config prints the configuration after the file, STRATUS_* environment
variables and command-line flags have been applied.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var ConsoleCmd = &cobra.Command{
	Use:     "console",
	Short:   "print the logger's status events received over MQTT",
	Example: `  stratus console --broker=tcp://stratus.local:1883`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		return app.RunConsole(ctx, cfg, cmd.OutOrStdout())
	},
}

var ProbeCmd = &cobra.Command{
	Use:        "probe",
	SuggestFor: []string{"pro", "pr", "prob"},
	Short:      "check every sensor once and dump the magnetometer registers",
	Long: `probe opens the IMU, the I2C peripherals and the switch pin, takes one
reading from each and prints the result, followed by the HMC5883L register
map with the values read from the chip.`,
	Example: `  stratus probe`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return app.RunProbe(cfg, cmd.OutOrStdout())
	},
}

func getRootCmd() *cobra.Command {
	RootCmdFlags(RootCmd)
	RootCmd.AddCommand(RunCmd, CalibrateCmd, ConfigCmd, ConsoleCmd, ProbeCmd)
	return RootCmd
}

func Execute() {
	if err := getRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
