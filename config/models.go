package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/arloliu/go-rclink/channel"
)

func servo(ch int, center, rate float64, reverse, accel bool, failsafe, step uint8) ChannelConfig {
	return ChannelConfig{Channel: ch, Config: channel.Config{
		Mode: channel.ModeServo, Center: center, Rate: rate, Reverse: reverse,
		AccelFilter: accel, Failsafe: failsafe, StepWidth: step,
	}}
}

func withMode(cc ChannelConfig, mode channel.Mode) ChannelConfig {
	cc.Mode = mode
	return cc
}

// builtinModels are the model profiles shipped with the receiver.
var builtinModels = map[string][]ChannelConfig{
	"TESTBED": {
		servo(0, 1.4, 0.4, false, true, 127, 10),
		servo(4, 1.5, 0.3, false, false, 127, 127),
		withMode(servo(5, 1.5, 0.5, false, false, 0, 127), channel.ModeDigital),
	},
	"MyCar": {
		servo(0, 1.5, 0.5, true, true, 127, 10),
		servo(4, 1.5, 0.2, false, false, 127, 127),
	},
	"CASPARCAR": {
		withMode(servo(0, 1.5, 0.5, false, false, 127, 127), channel.ModeHBridge),
		servo(4, 1.5, 0.25, true, false, 127, 127),
		withMode(servo(3, 1.5, 0.5, true, false, 0, 127), channel.ModeDigital),
		withMode(servo(6, 1.5, 0.5, true, false, 254, 127), channel.ModeDigital),
	},
}

// BuiltinModels returns the names of the built-in models.
func BuiltinModels() []string {
	return slices.Sorted(maps.Keys(builtinModels))
}

// ModelChannels returns the channel configuration of the selected model. Models defined in
// the file take precedence over built-in ones.
func (r *ReceiverConfig) ModelChannels() ([]ChannelConfig, error) {
	if chans, ok := r.Models[r.Model]; ok {
		return slices.Clone(chans), nil
	}
	if chans, ok := builtinModels[r.Model]; ok {
		return slices.Clone(chans), nil
	}

	return nil, fmt.Errorf("%w: unknown model %q", ErrInvalidConfig, r.Model)
}

// validateModel checks the channels of one model. Channels must be unique and must not use
// the direction lines of an H-bridge channel.
func validateModel(name string, chans []ChannelConfig) error {
	used := make(map[int]string, len(chans))
	claim := func(ch int, by string) error {
		if prev, ok := used[ch]; ok {
			return fmt.Errorf("%w: model %s: channel %d used by %s and %s", ErrInvalidConfig, name, ch, prev, by)
		}
		used[ch] = by

		return nil
	}

	for _, cc := range chans {
		if err := cc.Validate(cc.Channel); err != nil {
			return fmt.Errorf("%w: model %s: %w", ErrInvalidConfig, name, err)
		}

		owner := fmt.Sprintf("channel %d", cc.Channel)
		if err := claim(cc.Channel, owner); err != nil {
			return err
		}
		if cc.Mode == channel.ModeHBridge {
			for _, line := range []int{cc.Channel + 1, cc.Channel + 2} {
				if err := claim(line, owner+" direction"); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
