// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up by the CLI.
const DefaultPath = "./stratus_config.txt"

// EnvPrefix prefixes environment overrides, e.g. STRATUS_TARGET_RATE_HZ.
const EnvPrefix = "STRATUS"

// Config holds all application configuration values.
type Config struct {
	// Sampling
	TargetRateHz float64 `yaml:"target_rate_hz"`
	GRef         float64 `yaml:"g_ref"`
	FlushEvery   int     `yaml:"flush_every"`

	// Timing (milliseconds)
	BatteryCheckIntervalMS int `yaml:"battery_check_interval_ms"`
	TempHumIntervalMS      int `yaml:"temp_hum_interval_ms"`
	MagIntervalMS          int `yaml:"mag_interval_ms"`
	StatusIntervalMS       int `yaml:"status_interval_ms"`
	ErrorDisplayMS         int `yaml:"error_display_ms"`
	IdlePollMS             int `yaml:"idle_poll_ms"`

	// Calibration
	GyroCalSamples   int `yaml:"gyro_cal_samples"`
	GyroCalDelayMS   int `yaml:"gyro_cal_delay_ms"`
	MagCalDurationMS int `yaml:"mag_cal_duration_ms"`
	MagCalDelayMS    int `yaml:"mag_cal_delay_ms"`
	MagCalAttempts   int `yaml:"mag_cal_attempts"`

	// Failure policy
	SensorFailureLimit int `yaml:"sensor_failure_limit"`

	// Storage and logging
	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`
	Simulate bool   `yaml:"simulate"`

	// IMU Hardware
	IMUSPIDevice string `yaml:"imu_spi_device"`
	IMUCSPin     string `yaml:"imu_cs_pin"`
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte `yaml:"imu_accel_range"`
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte `yaml:"imu_gyro_range"`

	// I2C peripherals
	I2CBus         string `yaml:"i2c_bus"`
	EnvI2CAddr     uint16 `yaml:"env_i2c_addr"`
	MagI2CAddr     uint16 `yaml:"mag_i2c_addr"`
	MagGainCode    int    `yaml:"mag_gain_code"`
	PowerEnabled   bool   `yaml:"power_enabled"`
	DisplayEnabled bool   `yaml:"display_enabled"`

	// Switch
	SwitchPin       string `yaml:"switch_pin"`
	SwitchActiveLow bool   `yaml:"switch_active_low"`

	// MQTT (empty broker disables it)
	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTClientID    string `yaml:"mqtt_client_id"`
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`

	// Web Server (0 disables it)
	WebServerPort int `yaml:"web_server_port"`
}

// defaults lists every recognized key with its default value.
var defaults = map[string]string{
	"TARGET_RATE_HZ":            "6700",
	"G_REF":                     "9.8",
	"FLUSH_EVERY":               "1000",
	"BATTERY_CHECK_INTERVAL_MS": "5000",
	"TEMP_HUM_INTERVAL_MS":      "3000",
	"MAG_INTERVAL_MS":           "1000",
	"STATUS_INTERVAL_MS":        "1000",
	"ERROR_DISPLAY_MS":          "2000",
	"IDLE_POLL_MS":              "0",
	"GYRO_CAL_SAMPLES":          "200",
	"GYRO_CAL_DELAY_MS":         "10",
	"MAG_CAL_DURATION_MS":       "10000",
	"MAG_CAL_DELAY_MS":          "50",
	"MAG_CAL_ATTEMPTS":          "3",
	"SENSOR_FAILURE_LIMIT":      "100",
	"LOG_DIR":                   "/sd",
	"LOG_LEVEL":                 "info",
	"SIMULATE":                  "false",
	"IMU_SPI_DEVICE":            "/dev/spidev0.0",
	"IMU_CS_PIN":                "8",
	"IMU_ACCEL_RANGE":           "1",
	"IMU_GYRO_RANGE":            "1",
	"I2C_BUS":                   "",
	"ENV_I2C_ADDR":              "0x76",
	"MAG_I2C_ADDR":              "0x1E",
	"MAG_GAIN_CODE":             "1",
	"POWER_ENABLED":             "true",
	"DISPLAY_ENABLED":           "true",
	"SWITCH_PIN":                "GPIO24",
	"SWITCH_ACTIVE_LOW":         "false",
	"MQTT_BROKER":               "",
	"MQTT_CLIENT_ID":            "stratus-logger",
	"MQTT_TOPIC_PREFIX":         "stratus",
	"WEB_SERVER_PORT":           "0",
}

// Keys returns the recognized configuration keys in order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads the KEY=VALUE file at configPath, applies STRATUS_* environment
// overrides and defaults and validates the result. An empty path loads
// defaults and environment only.
func Load(configPath string) (*Config, error) {
	return LoadViper(viper.New(), configPath)
}

// LoadViper is Load on a caller-provided viper instance, so command-line
// flags bound to it take precedence over the file.
func LoadViper(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, errors.Wrap(err, "failed to open config file")
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", configPath)
		}
		log.Debugf("config: using %s", v.ConfigFileUsed())
	}

	// Everything viper knows at this point came from the file or flags.
	for _, k := range v.AllKeys() {
		if _, ok := defaults[strings.ToUpper(k)]; !ok {
			return nil, errors.Errorf("unknown config key: %q", strings.ToUpper(k))
		}
	}

	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := &Config{}
	for _, k := range Keys() {
		if err := cfg.setValue(k, strings.TrimSpace(v.GetString(k))); err != nil {
			return nil, errors.Wrap(err, "config")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Sampling
	case "TARGET_RATE_HZ":
		c.TargetRateHz, err = parseFloat(key, value)
	case "G_REF":
		c.GRef, err = parseFloat(key, value)
	case "FLUSH_EVERY":
		c.FlushEvery, err = parseInt(key, value)

	// Timing
	case "BATTERY_CHECK_INTERVAL_MS":
		c.BatteryCheckIntervalMS, err = parseInt(key, value)
	case "TEMP_HUM_INTERVAL_MS":
		c.TempHumIntervalMS, err = parseInt(key, value)
	case "MAG_INTERVAL_MS":
		c.MagIntervalMS, err = parseInt(key, value)
	case "STATUS_INTERVAL_MS":
		c.StatusIntervalMS, err = parseInt(key, value)
	case "ERROR_DISPLAY_MS":
		c.ErrorDisplayMS, err = parseInt(key, value)
	case "IDLE_POLL_MS":
		c.IdlePollMS, err = parseInt(key, value)

	// Calibration
	case "GYRO_CAL_SAMPLES":
		c.GyroCalSamples, err = parseInt(key, value)
	case "GYRO_CAL_DELAY_MS":
		c.GyroCalDelayMS, err = parseInt(key, value)
	case "MAG_CAL_DURATION_MS":
		c.MagCalDurationMS, err = parseInt(key, value)
	case "MAG_CAL_DELAY_MS":
		c.MagCalDelayMS, err = parseInt(key, value)
	case "MAG_CAL_ATTEMPTS":
		c.MagCalAttempts, err = parseInt(key, value)
	case "SENSOR_FAILURE_LIMIT":
		c.SensorFailureLimit, err = parseInt(key, value)

	// Storage and logging
	case "LOG_DIR":
		c.LogDir = value
	case "LOG_LEVEL":
		if _, perr := log.ParseLevel(value); perr != nil {
			return errors.Errorf("invalid LOG_LEVEL %q", value)
		}
		c.LogLevel = value
	case "SIMULATE":
		c.Simulate, err = parseBool(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, perr := strconv.Atoi(value)
		if perr != nil {
			return errors.Wrapf(perr, "invalid IMU_ACCEL_RANGE %q", value)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return errors.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, perr := strconv.Atoi(value)
		if perr != nil {
			return errors.Wrapf(perr, "invalid IMU_GYRO_RANGE %q", value)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return errors.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// I2C peripherals
	case "I2C_BUS":
		c.I2CBus = value
	case "ENV_I2C_ADDR":
		c.EnvI2CAddr, err = parseAddr(key, value)
	case "MAG_I2C_ADDR":
		c.MagI2CAddr, err = parseAddr(key, value)
	case "MAG_GAIN_CODE":
		c.MagGainCode, err = parseInt(key, value)
	case "POWER_ENABLED":
		c.PowerEnabled, err = parseBool(key, value)
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)

	// Switch
	case "SWITCH_PIN":
		c.SwitchPin = value
	case "SWITCH_ACTIVE_LOW":
		c.SwitchActiveLow, err = parseBool(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	default:
		return errors.Errorf("unknown config key: %q", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return n, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return f, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return b, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return uint16(addr), nil
}

// validate checks ranges that individual keys cannot check on their own.
func (c *Config) validate() error {
	if c.TargetRateHz <= 0 {
		return errors.Errorf("TARGET_RATE_HZ must be positive, got %g", c.TargetRateHz)
	}
	if c.GRef <= 0 {
		return errors.Errorf("G_REF must be positive, got %g", c.GRef)
	}
	if c.GyroCalSamples <= 0 {
		return errors.New("GYRO_CAL_SAMPLES must be positive")
	}
	if c.MagCalDurationMS <= 0 {
		return errors.New("MAG_CAL_DURATION_MS must be positive")
	}
	if c.MagCalAttempts <= 0 {
		return errors.New("MAG_CAL_ATTEMPTS must be positive")
	}
	for key, v := range map[string]int{
		"FLUSH_EVERY":               c.FlushEvery,
		"BATTERY_CHECK_INTERVAL_MS": c.BatteryCheckIntervalMS,
		"TEMP_HUM_INTERVAL_MS":      c.TempHumIntervalMS,
		"MAG_INTERVAL_MS":           c.MagIntervalMS,
		"STATUS_INTERVAL_MS":        c.StatusIntervalMS,
		"ERROR_DISPLAY_MS":          c.ErrorDisplayMS,
		"IDLE_POLL_MS":              c.IdlePollMS,
		"GYRO_CAL_DELAY_MS":         c.GyroCalDelayMS,
		"MAG_CAL_DELAY_MS":          c.MagCalDelayMS,
		"SENSOR_FAILURE_LIMIT":      c.SensorFailureLimit,
		"WEB_SERVER_PORT":           c.WebServerPort,
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative, got %d", key, v)
		}
	}
	if c.LogDir == "" && !c.Simulate {
		return errors.New("LOG_DIR is required")
	}
	if c.MQTTBroker != "" && c.MQTTClientID == "" {
		return errors.New("MQTT_CLIENT_ID is required with MQTT_BROKER")
	}
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// YAML renders the configuration for display.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
