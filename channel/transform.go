package channel

import (
	"math"

	"github.com/arloliu/go-rclink/telegram"
)

// pulseTable maps every control value to servo PWM ticks.
type pulseTable [telegram.MaxValue + 1]uint16

// buildTable computes the full table for cfg with the given trimmed center.
func buildTable(cfg Config, trimmedCenter float64, freq float64) pulseTable {
	var tab pulseTable
	for raw := range tab {
		tab[raw] = servoTicks(cfg, trimmedCenter, freq, uint8(raw))
	}

	return tab
}

// servoTicks computes round(((2*rate*eff/254 + trimmedCenter - rate) * freq/1000) * 4095).
func servoTicks(cfg Config, trimmedCenter float64, freq float64, raw uint8) uint16 {
	eff := float64(effective(cfg, raw))
	ms := float64(2*cfg.Rate*eff/telegram.MaxValue) + trimmedCenter - cfg.Rate
	ticks := math.Round(float64(ms*freq/1000) * MaxTicks)

	return clampTicks(ticks)
}

func clampTicks(v float64) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= MaxTicks:
		return MaxTicks
	default:
		return uint16(v)
	}
}

// effective mirrors raw around neutral for reversed channels.
func effective(cfg Config, raw uint8) uint8 {
	if cfg.Reverse {
		return telegram.MaxValue - raw
	}

	return raw
}

// trimmedCenter computes center + center*(t-25)/254 with t mirrored for reversed channels,
// rounded to a microsecond and kept inside [center-rate, center+rate].
func trimmedCenter(cfg Config, trim uint8) float64 {
	t := float64(trim)
	if cfg.Reverse {
		t = telegram.MaxTrim - t
	}

	tc := cfg.Center + float64(cfg.Center*(t-telegram.CenterTrim)/telegram.MaxValue)
	tc = math.Round(tc*1000) / 1000

	return math.Min(math.Max(tc, cfg.Center-cfg.Rate), cfg.Center+cfg.Rate)
}

// accelFilter limits departures from neutral to step per call. Moves toward neutral pass
// unchanged.
func accelFilter(last uint8, in uint8, step uint8) uint8 {
	l, v, s := int(last), int(in), int(step)

	out := v
	switch {
	case v > telegram.CenterValue && v > l+s:
		out = l + s
	case v < telegram.CenterValue && v < l-s:
		out = l - s
	}

	return uint8(min(max(out, 0), telegram.MaxValue))
}

// DualRate compresses v toward neutral to percent of its deflection:
// 127 + round((v-127)*percent/100). percent is clamped to [0, 100].
func DualRate(v uint8, percent uint8) uint8 {
	p := min(int(percent), 100)
	d := float64((int(v)-telegram.CenterValue)*p) / 100
	out := telegram.CenterValue + int(math.Round(d))

	return uint8(min(max(out, 0), telegram.MaxValue))
}

// command computes the actuator output for the (already shaped) value v.
func command(ch int, cfg Config, tab *pulseTable, hbridgeScale float64, v uint8) Command {
	cmd := Command{Channel: ch, Mode: cfg.Mode, Value: v}

	switch cfg.Mode {
	case ModeServo:
		cmd.Ticks = tab[v]

	case ModeDigital:
		cmd.On = v != 0
		if cfg.Reverse {
			cmd.On = !cmd.On
		}

	case ModeHBridge:
		eff := int(effective(cfg, v))
		delta := eff - telegram.CenterValue
		if delta < 0 {
			delta = -delta
		}
		cmd.Ticks = clampTicks(math.Round(float64(delta) * hbridgeScale))

		switch {
		case eff > telegram.CenterValue:
			cmd.Direction = Forward
		case eff < telegram.CenterValue:
			cmd.Direction = Back
		default:
			cmd.Direction = Stop
		}
	}

	return cmd
}
