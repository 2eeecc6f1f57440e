package channel

import (
	"fmt"

	"github.com/arloliu/go-rclink/telegram"
)

// Config is the static configuration of one receiver channel.
type Config struct {
	// Mode selects servo, digital or H-bridge output.
	Mode Mode `yaml:"mode"`
	// Center is the servo neutral pulse width in milliseconds.
	Center float64 `yaml:"center"`
	// Rate is the maximum deviation from Center in milliseconds, 0 < Rate <= Center.
	Rate float64 `yaml:"rate"`
	// Reverse mirrors the value around 127 (servo, H-bridge) or inverts the output (digital).
	Reverse bool `yaml:"reverse"`
	// AccelFilter limits how fast the value may move away from neutral.
	AccelFilter bool `yaml:"accel_filter"`
	// Failsafe is the value driven when the link is lost.
	Failsafe uint8 `yaml:"failsafe"`
	// StepWidth is the largest change per control telegram allowed by the filter.
	StepWidth uint8 `yaml:"step_width"`
}

// DefaultConfig returns the configuration of an unconfigured channel: a servo centred at
// 1.5 ms with a rate of 0.5 ms and failsafe at neutral.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeServo,
		Center:    1.5,
		Rate:      0.5,
		Failsafe:  telegram.CenterValue,
		StepWidth: telegram.MaxValue / 2,
	}
}

// Validate checks cfg for use on channel ch.
//
// It returns an error wrapping ErrInvalidConfig, or ErrInvalidChannel if ch is out of range.
func (cfg Config) Validate(ch int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}

	switch {
	case cfg.Mode > ModeHBridge:
		return fmt.Errorf("%w: channel %d: unknown mode %d", ErrInvalidConfig, ch, cfg.Mode)
	case cfg.Center <= 0:
		return fmt.Errorf("%w: channel %d: center %v must be positive", ErrInvalidConfig, ch, cfg.Center)
	case cfg.Rate <= 0 || cfg.Rate > cfg.Center:
		return fmt.Errorf("%w: channel %d: rate %v must be in (0, center]", ErrInvalidConfig, ch, cfg.Rate)
	case cfg.Failsafe > telegram.MaxValue:
		return fmt.Errorf("%w: channel %d: failsafe %d out of range", ErrInvalidConfig, ch, cfg.Failsafe)
	case cfg.StepWidth > telegram.MaxValue:
		return fmt.Errorf("%w: channel %d: step width %d out of range", ErrInvalidConfig, ch, cfg.StepWidth)
	case cfg.Mode == ModeHBridge && ch > telegram.MaxChannel-2:
		return fmt.Errorf("%w: channel %d: H-bridge needs channels %d and %d for direction",
			ErrInvalidConfig, ch, ch+1, ch+2)
	}

	return nil
}

func checkChannel(ch int) error {
	if ch < 0 || ch > telegram.MaxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	return nil
}

func checkValue(v int) error {
	if v < 0 || v > telegram.MaxValue {
		return fmt.Errorf("%w: control value %d", ErrInvalidValue, v)
	}

	return nil
}
