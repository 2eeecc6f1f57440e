package channel

import (
	"fmt"

	"github.com/arloliu/go-rclink/telegram"
)

// Params holds the engine-wide settings shared by all channels.
type Params struct {
	// Frequency is the PWM frequency in Hz.
	Frequency float64 `yaml:"pwm_frequency"`
	// HBridgeScale converts |value-127| into PWM duty ticks.
	HBridgeScale float64 `yaml:"hbridge_scale"`
	// DualRatePercent is the deflection kept while dual-rate is engaged.
	DualRatePercent uint8 `yaml:"dual_rate_percent"`
}

// DefaultParams returns 50 Hz servo PWM, the L298 duty scale and 50 % dual-rate.
func DefaultParams() Params {
	return Params{
		Frequency:       50,
		HBridgeScale:    32.008,
		DualRatePercent: 50,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.Frequency <= 0:
		return fmt.Errorf("%w: pwm frequency %v must be positive", ErrInvalidConfig, p.Frequency)
	case p.HBridgeScale <= 0:
		return fmt.Errorf("%w: hbridge scale %v must be positive", ErrInvalidConfig, p.HBridgeScale)
	case p.DualRatePercent > 100:
		return fmt.Errorf("%w: dual rate %d%% exceeds 100%%", ErrInvalidConfig, p.DualRatePercent)
	}

	return nil
}

type channelState struct {
	cfg           Config
	trim          uint8
	trimmedCenter float64
	dualRate      bool
	last          uint8
	table         pulseTable
}

func (s *channelState) rebuild(freq float64) {
	s.trimmedCenter = trimmedCenter(s.cfg, s.trim)
	s.table = buildTable(s.cfg, s.trimmedCenter, freq)
}

// Engine turns control values into actuator commands for the 16 channels of a receiver.
//
// Engine is not safe for concurrent use. It is owned by one goroutine, other goroutines work
// on the immutable Snapshot it hands out.
type Engine struct {
	params   Params
	channels [telegram.NumChannels]channelState
	// direction lines of the configured H-bridge channels
	lines [telegram.NumChannels]bool
}

// NewEngine creates an engine with every channel set to DefaultConfig and neutral trim.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{params: params}
	for ch := range e.channels {
		s := &e.channels[ch]
		s.cfg = DefaultConfig()
		s.trim = telegram.CenterTrim
		s.last = s.cfg.Failsafe
		s.rebuild(params.Frequency)
	}
	e.updateLines()

	return e, nil
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

// SetConfig replaces the configuration of channel ch.
//
// The filter state is reset to the failsafe value, the current trim is kept and the pulse
// table is rebuilt.
func (e *Engine) SetConfig(ch int, cfg Config) error {
	if err := cfg.Validate(ch); err != nil {
		return err
	}

	s := &e.channels[ch]
	s.cfg = cfg
	s.last = cfg.Failsafe
	s.rebuild(e.params.Frequency)
	e.updateLines()

	return nil
}

func (e *Engine) updateLines() {
	e.lines = directionLines(func(ch int) Mode { return e.channels[ch].cfg.Mode })
}


// Config returns the configuration of channel ch.
func (e *Engine) Config(ch int) (Config, error) {
	if err := checkChannel(ch); err != nil {
		return Config{}, err
	}

	return e.channels[ch].cfg, nil
}

// SetTrim sets the trim of channel ch, trim in [0, 50] with 25 neutral, and rebuilds the
// pulse table.
func (e *Engine) SetTrim(ch int, trim int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if trim < 0 || trim > telegram.MaxTrim {
		return fmt.Errorf("%w: trim %d", ErrInvalidValue, trim)
	}

	s := &e.channels[ch]
	if s.trim == uint8(trim) {
		return nil
	}
	s.trim = uint8(trim)
	s.rebuild(e.params.Frequency)

	return nil
}

// StepTrim moves the trim of channel ch by step, stopping at 0 and 50, and reports the new
// trim and whether it changed.
func (e *Engine) StepTrim(ch int, step int) (uint8, bool, error) {
	prev, err := e.Trim(ch)
	if err != nil {
		return 0, false, err
	}

	next := min(max(int(prev)+step, 0), telegram.MaxTrim)
	if err := e.SetTrim(ch, next); err != nil {
		return prev, false, err
	}

	return uint8(next), uint8(next) != prev, nil
}

// Trim returns the trim of channel ch.
func (e *Engine) Trim(ch int) (uint8, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}

	return e.channels[ch].trim, nil
}

// TrimmedCenter returns the servo neutral pulse width of channel ch in milliseconds.
func (e *Engine) TrimmedCenter(ch int) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}

	return e.channels[ch].trimmedCenter, nil
}

// ToggleDualRate flips dual-rate on channel ch and returns the new setting.
func (e *Engine) ToggleDualRate(ch int) (bool, error) {
	if err := checkChannel(ch); err != nil {
		return false, err
	}

	s := &e.channels[ch]
	s.dualRate = !s.dualRate

	return s.dualRate, nil
}

// DualRateEngaged reports whether dual-rate is engaged on channel ch.
func (e *Engine) DualRateEngaged(ch int) bool {
	if checkChannel(ch) != nil {
		return false
	}

	return e.channels[ch].dualRate
}

// ApplyDualRate returns v compressed by dual-rate when it is engaged on channel ch, v
// otherwise.
func (e *Engine) ApplyDualRate(ch int, v uint8) uint8 {
	if !e.DualRateEngaged(ch) {
		return v
	}

	return DualRate(v, e.params.DualRatePercent)
}

// Output computes the actuator command for control value raw on channel ch.
//
// raw is first compressed by dual-rate when engaged, then passed through the acceleration
// filter when enabled, then mapped by the channel mode. The filtered value becomes the new
// filter state.
//
// The direction lines of an H-bridge channel are rejected with ErrInvalidChannel.
func (e *Engine) Output(ch int, raw int) (Command, error) {
	if err := checkChannel(ch); err != nil {
		return Command{}, err
	}
	if e.lines[ch] {
		return Command{}, fmt.Errorf("%w: channel %d is a direction line of channel %d", ErrInvalidChannel, ch, e.bridgeOf(ch))
	}
	if err := checkValue(raw); err != nil {
		return Command{}, err
	}

	s := &e.channels[ch]
	v := e.ApplyDualRate(ch, uint8(raw))
	if s.cfg.AccelFilter {
		v = accelFilter(s.last, v, s.cfg.StepWidth)
		s.last = v
	}

	return command(ch, s.cfg, &s.table, e.params.HBridgeScale, v), nil
}

// Failsafe returns the failsafe command of every channel and resets the filter state to
// the failsafe values. Failsafe values bypass dual-rate and the filter.
//
// The direction lines of an H-bridge channel get no command of their own, the H-bridge
// command drives them.
func (e *Engine) Failsafe() []Command {
	e.ResetFilters()

	cmds := make([]Command, 0, telegram.NumChannels)
	for ch := range e.channels {
		if e.lines[ch] {
			continue
		}
		s := &e.channels[ch]
		cmds = append(cmds, command(ch, s.cfg, &s.table, e.params.HBridgeScale, s.cfg.Failsafe))
	}

	return cmds
}

// bridgeOf returns the H-bridge channel owning direction line ch.
func (e *Engine) bridgeOf(ch int) int {
	for _, b := range []int{ch - 1, ch - 2} {
		if b >= 0 && e.channels[b].cfg.Mode == ModeHBridge {
			return b
		}
	}

	return -1
}

// ResetFilters seeds the acceleration filter of every channel with its failsafe value, as
// after Failsafe. It is used when the failsafe commands were applied from a Snapshot.
func (e *Engine) ResetFilters() {
	for ch := range e.channels {
		e.channels[ch].last = e.channels[ch].cfg.Failsafe
	}
}

// Snapshot returns an immutable copy of the configuration, trims and pulse tables.
func (e *Engine) Snapshot() *Snapshot {
	snap := &Snapshot{hbridgeScale: e.params.HBridgeScale, lines: e.lines}
	for ch := range e.channels {
		s := &e.channels[ch]
		snap.channels[ch] = snapshotChannel{
			cfg:      s.cfg,
			trim:     s.trim,
			dualRate: s.dualRate,
			table:    s.table,
		}
	}

	return snap
}
