// Package config loads the startup configuration of the rclink nodes.
//
// The configuration is resolved in three layers: built-in defaults (including the model
// profiles TESTBED, MyCar and CASPARCAR), an optional YAML file, and environment overrides.
// It is loaded once at startup and validated before any node starts.
package config

import (
	"errors"
	"time"

	"github.com/arloliu/go-rclink/channel"
	"github.com/arloliu/go-rclink/driver/ads1115"
	"github.com/arloliu/go-rclink/driver/pca9685"
)

// ErrInvalidConfig indicates a configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables read by Load.
const (
	EnvConfig      = "RCLINK_CONFIG"
	EnvInterface   = "RCLINK_INTERFACE"
	EnvModel       = "RCLINK_MODEL"
	EnvLogLevel    = "RCLINK_LOG_LEVEL"
	EnvMetricsAddr = "RCLINK_METRICS_ADDR"
)

// Config is the complete configuration of one installation. A transmitter process uses the
// common part and Transmitter, a receiver process the common part and Receiver.
type Config struct {
	// Interface is the network interface the node waits for and binds to; empty selects the
	// first interface that is up.
	Interface string `yaml:"interface"`
	// BindToDevice binds the socket to Interface.
	BindToDevice bool `yaml:"bind_to_device"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// MetricsAddr serves prometheus metrics on this address when set, e.g. ":9100".
	MetricsAddr string `yaml:"metrics_addr"`
	// NetworkRetry is the interval between checks for an IPv4 address at startup.
	NetworkRetry time.Duration `yaml:"network_retry"`

	Ports       Ports             `yaml:"ports"`
	Receiver    ReceiverConfig    `yaml:"receiver"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
}

// Ports are the UDP ports of the three roles.
type Ports struct {
	Transmitter uint16 `yaml:"transmitter"`
	Receiver    uint16 `yaml:"receiver"`
	Screen      uint16 `yaml:"screen"`
}

// ChannelConfig is the configuration of one receiver channel in a model.
type ChannelConfig struct {
	Channel        int `yaml:"channel"`
	channel.Config `yaml:",inline"`
}

// HardwareConfig selects the receiver hardware.
type HardwareConfig struct {
	// Simulate replaces the PWM chip and the ADC with simulated drivers.
	Simulate bool `yaml:"simulate"`
	// I2CBus is the i2c-dev device both chips are attached to.
	I2CBus string `yaml:"i2c_bus"`
	// PWMAddr is the bus address of the PCA9685.
	PWMAddr uint16 `yaml:"pwm_addr"`
	// ADC enables the ADS1115 supply voltage sensor.
	ADC bool `yaml:"adc"`
	// ADCAddr is the bus address of the ADS1115.
	ADCAddr uint16 `yaml:"adc_addr"`
	// ADCDivider is the ratio of the voltage divider in front of the ADC input.
	ADCDivider float64 `yaml:"adc_divider"`
}

// ReceiverConfig configures the receiver node.
type ReceiverConfig struct {
	// Model selects the channel configuration from Models or the built-in models.
	Model string `yaml:"model"`
	// Models adds or replaces channel configurations by name.
	Models map[string][]ChannelConfig `yaml:"models"`
	// PWM holds the engine-wide transform parameters.
	PWM channel.Params `yaml:"pwm"`
	// Hardware selects real or simulated drivers.
	Hardware HardwareConfig `yaml:"hardware"`

	// Timeout is the watchdog timeout on control telegrams.
	Timeout time.Duration `yaml:"timeout"`
	// WatchdogInterval is the period of the watchdog goroutine.
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	// ReadTimeout bounds one blocking receive of the IO loop.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// BeaconInterval is the period of identify and heartbeat telegrams.
	BeaconInterval time.Duration `yaml:"beacon_interval"`
	// BeaconBurst is the number of identify telegrams sent at startup.
	BeaconBurst int `yaml:"beacon_burst"`
	// BurstInterval is the spacing of the startup burst.
	BurstInterval time.Duration `yaml:"burst_interval"`
	// SensorInterval is the period of sensor polls.
	SensorInterval time.Duration `yaml:"sensor_interval"`
	// DefaultVolts is reported until the first successful sensor read.
	DefaultVolts float64 `yaml:"default_volts"`
	// ShutdownDelay is the pause between the shutdown failsafe and the shutdown hook.
	ShutdownDelay time.Duration `yaml:"shutdown_delay"`
	// ShutdownCommand is run by the example binary on a shutdown telegram.
	ShutdownCommand []string `yaml:"shutdown_command"`
}

// AnalogBinding maps an input axis to a channel.
type AnalogBinding struct {
	Code    uint16 `yaml:"code"`
	Channel uint8  `yaml:"channel"`
	Invert  bool   `yaml:"invert"`
	Min     int32  `yaml:"min"`
	Max     int32  `yaml:"max"`
}

// TrimBinding maps a button to a trim step on a channel.
type TrimBinding struct {
	Code    uint16 `yaml:"code"`
	Channel uint8  `yaml:"channel"`
	Step    int    `yaml:"step"`
}

// DualRateBinding maps a button to the dual-rate toggle of a channel.
type DualRateBinding struct {
	Code    uint16 `yaml:"code"`
	Channel uint8  `yaml:"channel"`
}

// TransmitterConfig configures the transmitter node.
type TransmitterConfig struct {
	// Device is the evdev input device of the controller.
	Device string `yaml:"device"`
	// Simulate replaces the input device with a simulated one.
	Simulate bool `yaml:"simulate"`

	Analog       []AnalogBinding   `yaml:"analog"`
	Trim         []TrimBinding     `yaml:"trim"`
	DualRate     []DualRateBinding `yaml:"dual_rate"`
	ShutdownCode uint16            `yaml:"shutdown_code"`
	// DualRatePercent is the deflection kept while dual-rate is engaged.
	DualRatePercent uint8 `yaml:"dual_rate_percent"`

	// Timeout is the watchdog timeout on receiver beacons.
	Timeout time.Duration `yaml:"timeout"`
	// ControlInterval is the period of control telegrams.
	ControlInterval time.Duration `yaml:"control_interval"`
	// TrimInterval is the period at which trims are re-sent.
	TrimInterval time.Duration `yaml:"trim_interval"`
	// BeaconInterval is the period of identify telegrams.
	BeaconInterval time.Duration `yaml:"beacon_interval"`
	// BeaconBurst is the number of identify telegrams sent at startup.
	BeaconBurst int `yaml:"beacon_burst"`
	// BurstInterval is the spacing of the startup burst.
	BurstInterval time.Duration `yaml:"burst_interval"`
	// ScreenInterval is the period of screen status telegrams.
	ScreenInterval time.Duration `yaml:"screen_interval"`
	// ScreenChannels are the channels reported to the status screen.
	ScreenChannels []uint8 `yaml:"screen_channels"`
	// ReadTimeout bounds one blocking receive of the observer.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// ShutdownRepeat is how often the shutdown telegram is sent.
	ShutdownRepeat int `yaml:"shutdown_repeat"`
	// ShutdownSpacing is the pause between shutdown telegrams.
	ShutdownSpacing time.Duration `yaml:"shutdown_spacing"`
	// ShutdownCommand is run by the example binary after the shutdown telegrams.
	ShutdownCommand []string `yaml:"shutdown_command"`
}

// Default returns the built-in configuration: the TESTBED model on a Raspberry Pi receiver
// and a gamepad transmitter.
func Default() *Config {
	return &Config{
		Interface:    "wlan0",
		LogLevel:     "info",
		NetworkRetry: time.Second,
		Ports: Ports{
			Transmitter: 6000,
			Receiver:    6100,
			Screen:      5000,
		},
		Receiver: ReceiverConfig{
			Model: "TESTBED",
			PWM:   channel.DefaultParams(),
			Hardware: HardwareConfig{
				I2CBus:     "/dev/i2c-1",
				PWMAddr:    pca9685.DefaultAddr,
				ADC:        true,
				ADCAddr:    ads1115.DefaultAddr,
				ADCDivider: ads1115.DefaultConfig().Divider,
			},
			Timeout:          1500 * time.Millisecond,
			WatchdogInterval: 200 * time.Millisecond,
			ReadTimeout:      100 * time.Millisecond,
			BeaconInterval:   time.Second,
			BeaconBurst:      10,
			BurstInterval:    100 * time.Millisecond,
			SensorInterval:   2 * time.Second,
			ShutdownDelay:    time.Second,
		},
		Transmitter: TransmitterConfig{
			Device: "/dev/input/event0",
			Analog: []AnalogBinding{
				{Code: 1, Channel: 0, Invert: true, Min: -128, Max: 127},
				{Code: 5, Channel: 3, Invert: false, Min: -128, Max: 127},
			},
			Trim: []TrimBinding{
				{Code: 304, Channel: 0, Step: -1},
				{Code: 305, Channel: 3, Step: -1},
				{Code: 306, Channel: 3, Step: 1},
				{Code: 307, Channel: 0, Step: 1},
			},
			DualRate: []DualRateBinding{
				{Code: 308, Channel: 0},
				{Code: 310, Channel: 3},
			},
			ShutdownCode:    312,
			DualRatePercent: 50,
			Timeout:         3 * time.Second,
			ControlInterval: 30 * time.Millisecond,
			TrimInterval:    time.Second,
			BeaconInterval:  2 * time.Second,
			BeaconBurst:     5,
			BurstInterval:   100 * time.Millisecond,
			ScreenInterval:  200 * time.Millisecond,
			ScreenChannels:  []uint8{0, 3},
			ReadTimeout:     500 * time.Millisecond,
			ShutdownRepeat:  3,
			ShutdownSpacing: 500 * time.Millisecond,
		},
	}
}
