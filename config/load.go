package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arloliu/go-rclink/logger"
	"github.com/arloliu/go-rclink/telegram"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from the defaults, the YAML file at path and the
// environment, then validates it.
//
// An empty path falls back to $RCLINK_CONFIG. When neither names a file the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvInterface); v != "" {
		c.Interface = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Receiver.Model = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
}

// Validate checks the whole configuration and wraps every failure in ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.NetworkRetry <= 0 {
		return fmt.Errorf("%w: network_retry must be positive", ErrInvalidConfig)
	}
	if c.Ports.Transmitter == 0 || c.Ports.Receiver == 0 || c.Ports.Screen == 0 {
		return fmt.Errorf("%w: ports must be non-zero", ErrInvalidConfig)
	}

	if err := c.Receiver.validate(); err != nil {
		return err
	}

	return c.Transmitter.validate()
}

func positive(name string, values map[string]int64) error {
	for field, v := range values {
		if v <= 0 {
			return fmt.Errorf("%w: %s.%s must be positive", ErrInvalidConfig, name, field)
		}
	}

	return nil
}

func (r *ReceiverConfig) validate() error {
	err := positive("receiver", map[string]int64{
		"timeout":           int64(r.Timeout),
		"watchdog_interval": int64(r.WatchdogInterval),
		"read_timeout":      int64(r.ReadTimeout),
		"beacon_interval":   int64(r.BeaconInterval),
		"burst_interval":    int64(r.BurstInterval),
		"sensor_interval":   int64(r.SensorInterval),
	})
	if err != nil {
		return err
	}
	if r.BeaconBurst < 0 {
		return fmt.Errorf("%w: receiver.beacon_burst must not be negative", ErrInvalidConfig)
	}
	if r.ShutdownDelay < 0 {
		return fmt.Errorf("%w: receiver.shutdown_delay must not be negative", ErrInvalidConfig)
	}
	if err := r.PWM.Validate(); err != nil {
		return fmt.Errorf("%w: receiver.pwm: %w", ErrInvalidConfig, err)
	}
	if !r.Hardware.Simulate && r.Hardware.I2CBus == "" {
		return fmt.Errorf("%w: receiver.hardware.i2c_bus is required", ErrInvalidConfig)
	}
	if r.Hardware.ADC && r.Hardware.ADCDivider <= 0 {
		return fmt.Errorf("%w: receiver.hardware.adc_divider must be positive", ErrInvalidConfig)
	}

	for name, chans := range r.Models {
		if err := validateModel(name, chans); err != nil {
			return err
		}
	}

	chans, err := r.ModelChannels()
	if err != nil {
		return err
	}

	return validateModel(r.Model, chans)
}

func checkChannel(field string, ch uint8) error {
	if ch > telegram.MaxChannel {
		return fmt.Errorf("%w: transmitter.%s: channel %d out of range", ErrInvalidConfig, field, ch)
	}

	return nil
}

func (t *TransmitterConfig) validate() error {
	err := positive("transmitter", map[string]int64{
		"timeout":          int64(t.Timeout),
		"control_interval": int64(t.ControlInterval),
		"trim_interval":    int64(t.TrimInterval),
		"beacon_interval":  int64(t.BeaconInterval),
		"burst_interval":   int64(t.BurstInterval),
		"screen_interval":  int64(t.ScreenInterval),
		"read_timeout":     int64(t.ReadTimeout),
	})
	if err != nil {
		return err
	}
	if t.BeaconBurst < 0 || t.ShutdownRepeat < 0 || t.ShutdownSpacing < 0 {
		return fmt.Errorf("%w: transmitter counts and spacings must not be negative", ErrInvalidConfig)
	}
	if !t.Simulate && t.Device == "" {
		return fmt.Errorf("%w: transmitter.device is required", ErrInvalidConfig)
	}
	if t.DualRatePercent > 100 {
		return fmt.Errorf("%w: transmitter.dual_rate_percent %d above 100", ErrInvalidConfig, t.DualRatePercent)
	}

	codes := make(map[uint16]string)
	claim := func(code uint16, by string) error {
		if prev, ok := codes[code]; ok {
			return fmt.Errorf("%w: transmitter: input code %d bound to %s and %s", ErrInvalidConfig, code, prev, by)
		}
		codes[code] = by

		return nil
	}

	for _, a := range t.Analog {
		if err := checkChannel("analog", a.Channel); err != nil {
			return err
		}
		if a.Max <= a.Min {
			return fmt.Errorf("%w: transmitter.analog: code %d has empty range [%d, %d]", ErrInvalidConfig, a.Code, a.Min, a.Max)
		}
		if err := claim(a.Code, "analog"); err != nil {
			return err
		}
	}
	for _, b := range t.Trim {
		if err := checkChannel("trim", b.Channel); err != nil {
			return err
		}
		if b.Step == 0 {
			return fmt.Errorf("%w: transmitter.trim: code %d has zero step", ErrInvalidConfig, b.Code)
		}
		if err := claim(b.Code, "trim"); err != nil {
			return err
		}
	}
	for _, b := range t.DualRate {
		if err := checkChannel("dual_rate", b.Channel); err != nil {
			return err
		}
		if err := claim(b.Code, "dual_rate"); err != nil {
			return err
		}
	}
	if err := claim(t.ShutdownCode, "shutdown"); err != nil {
		return err
	}
	for _, ch := range t.ScreenChannels {
		if err := checkChannel("screen_channels", ch); err != nil {
			return err
		}
	}

	return nil
}
