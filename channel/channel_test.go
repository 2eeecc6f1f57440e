package channel

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/arloliu/go-rclink/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type recordingActuator struct {
	mu      sync.Mutex
	calls   []string
	failOn  string
	failErr error
}

func (a *recordingActuator) SetPWM(ch int, ticks uint16) error {
	return a.record(fmt.Sprintf("pwm %d %d", ch, ticks))
}

func (a *recordingActuator) SetDigital(ch int, on bool) error {
	return a.record(fmt.Sprintf("dio %d %t", ch, on))
}

func (a *recordingActuator) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, call)
	if call == a.failOn {
		return a.failErr
	}

	return nil
}

func newEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := NewEngine(DefaultParams())
	require.NoError(t, err)

	return e
}

func TestEngine_ServoScenario(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)

	tests := []struct {
		raw      int
		expected uint16
	}{
		{0, 205},
		{127, 307},
		{254, 410},
	}
	for _, tt := range tests {
		cmd, err := e.Output(0, tt.raw)
		require.NoError(err)
		require.Equal(ModeServo, cmd.Mode)
		require.Equal(tt.expected, cmd.Ticks, "raw %d", tt.raw)
	}
}

func TestEngine_ServoTableMonotonic(t *testing.T) {
	for _, reverse := range []bool{false, true} {
		t.Run(fmt.Sprintf("reverse=%t", reverse), func(t *testing.T) {
			e := newEngine(t)
			cfg := DefaultConfig()
			cfg.Reverse = reverse
			require.NoError(t, e.SetConfig(3, cfg))

			for _, trim := range []int{0, 10, 25, 40, 50} {
				require.NoError(t, e.SetTrim(3, trim))

				prev, err := e.Output(3, 0)
				require.NoError(t, err)
				for raw := 1; raw <= telegram.MaxValue; raw++ {
					cmd, err := e.Output(3, raw)
					require.NoError(t, err)
					if reverse {
						require.LessOrEqual(t, cmd.Ticks, prev.Ticks, "trim %d raw %d", trim, raw)
					} else {
						require.GreaterOrEqual(t, cmd.Ticks, prev.Ticks, "trim %d raw %d", trim, raw)
					}
					prev = cmd
				}
			}
		})
	}
}

func TestEngine_NeutralTrimMatchesUntrimmedTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Center = 1.4
	cfg.Rate = 0.4

	e := newEngine(t)
	require.NoError(t, e.SetConfig(0, cfg))
	require.NoError(t, e.SetTrim(0, 40))
	require.NoError(t, e.SetTrim(0, telegram.CenterTrim))

	tc, err := e.TrimmedCenter(0)
	require.NoError(t, err)
	assert.InDelta(t, cfg.Center, tc, 1e-12)

	untrimmed := buildTable(cfg, cfg.Center, DefaultParams().Frequency)
	for raw := 0; raw <= telegram.MaxValue; raw++ {
		cmd, err := e.Output(0, raw)
		require.NoError(t, err)
		require.Equal(t, untrimmed[raw], cmd.Ticks, "raw %d", raw)
	}
}

func TestEngine_Trim(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)

	require.NoError(e.SetTrim(0, 50))
	tc, err := e.TrimmedCenter(0)
	require.NoError(err)
	require.InDelta(1.648, tc, 1e-9)

	cmd, err := e.Output(0, telegram.CenterValue)
	require.NoError(err)
	require.Equal(uint16(337), cmd.Ticks)

	require.NoError(e.SetTrim(0, 0))
	tc, err = e.TrimmedCenter(0)
	require.NoError(err)
	require.InDelta(1.352, tc, 1e-9)

	trim, err := e.Trim(0)
	require.NoError(err)
	require.Equal(uint8(0), trim)

	// a narrow rate clamps the trimmed center
	cfg := DefaultConfig()
	cfg.Rate = 0.1
	require.NoError(e.SetConfig(1, cfg))
	require.NoError(e.SetTrim(1, 50))
	tc, err = e.TrimmedCenter(1)
	require.NoError(err)
	require.InDelta(1.6, tc, 1e-9)

	// reversed channels mirror the trim
	cfg = DefaultConfig()
	cfg.Reverse = true
	require.NoError(e.SetConfig(2, cfg))
	require.NoError(e.SetTrim(2, 0))
	tc, err = e.TrimmedCenter(2)
	require.NoError(err)
	require.InDelta(1.648, tc, 1e-9)

	require.ErrorIs(e.SetTrim(0, 51), ErrInvalidValue)
	require.ErrorIs(e.SetTrim(0, -1), ErrInvalidValue)
	require.ErrorIs(e.SetTrim(16, 25), ErrInvalidChannel)
}

func TestEngine_StepTrim(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)

	tests := []struct {
		step    int
		trim    uint8
		changed bool
	}{
		{1, 26, true},
		{-3, 23, true},
		{-30, 0, true},
		{-1, 0, false},
		{60, telegram.MaxTrim, true},
		{1, telegram.MaxTrim, false},
	}
	for _, tt := range tests {
		trim, changed, err := e.StepTrim(2, tt.step)
		require.NoError(err)
		require.Equal(tt.trim, trim, "step %d", tt.step)
		require.Equal(tt.changed, changed, "step %d", tt.step)
	}

	tc, err := e.TrimmedCenter(2)
	require.NoError(err)
	require.Greater(tc, DefaultConfig().Center)

	_, _, err = e.StepTrim(16, 1)
	require.ErrorIs(err, ErrInvalidChannel)
}

func TestEngine_AccelFilter(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	cfg := DefaultConfig()
	cfg.AccelFilter = true
	cfg.StepWidth = 10
	require.NoError(e.SetConfig(0, cfg))

	// departure from neutral is limited to one step per value
	expected := []uint8{137, 147, 157}
	for _, want := range expected {
		cmd, err := e.Output(0, 254)
		require.NoError(err)
		require.Equal(want, cmd.Value)
	}

	// toward neutral passes unchanged
	cmd, err := e.Output(0, 130)
	require.NoError(err)
	require.Equal(uint8(130), cmd.Value)

	cmd, err = e.Output(0, telegram.CenterValue)
	require.NoError(err)
	require.Equal(uint8(127), cmd.Value)

	// departure below neutral
	cmd, err = e.Output(0, 0)
	require.NoError(err)
	require.Equal(uint8(117), cmd.Value)
}

func TestEngine_AccelFilterBoundsDepartures(t *testing.T) {
	e := newEngine(t)
	cfg := DefaultConfig()
	cfg.AccelFilter = true
	cfg.StepWidth = 7
	require.NoError(t, e.SetConfig(5, cfg))

	inputs := []int{254, 254, 0, 0, 0, 200, 127, 254, 60, 30, 254}
	last := int(cfg.Failsafe)
	for _, in := range inputs {
		cmd, err := e.Output(5, in)
		require.NoError(t, err)

		out := int(cmd.Value)
		require.GreaterOrEqual(t, out, 0)
		require.LessOrEqual(t, out, telegram.MaxValue)

		awayFromNeutral := (out > telegram.CenterValue && out > last) || (out < telegram.CenterValue && out < last)
		if awayFromNeutral {
			d := out - last
			if d < 0 {
				d = -d
			}
			require.LessOrEqual(t, d, int(cfg.StepWidth), "input %d last %d out %d", in, last, out)
		}
		last = out
	}
}

func TestEngine_AccelFilterCrossingNeutral(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	cfg := DefaultConfig()
	cfg.AccelFilter = true
	cfg.StepWidth = 9
	require.NoError(e.SetConfig(0, cfg))

	var (
		cmd Command
		err error
	)
	for range 3 {
		cmd, err = e.Output(0, 0)
		require.NoError(err)
	}
	require.Equal(uint8(100), cmd.Value)

	// crossing neutral upward counts as a departure and is step limited
	cmd, err = e.Output(0, 140)
	require.NoError(err)
	require.Equal(uint8(109), cmd.Value)

	for range 5 {
		cmd, err = e.Output(0, 254)
		require.NoError(err)
	}
	require.Equal(uint8(154), cmd.Value)

	// and downward
	cmd, err = e.Output(0, 100)
	require.NoError(err)
	require.Equal(uint8(145), cmd.Value)
}

func TestEngine_Digital(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	cfg := DefaultConfig()
	cfg.Mode = ModeDigital
	cfg.Failsafe = 0
	require.NoError(e.SetConfig(5, cfg))

	cmd, err := e.Output(5, 0)
	require.NoError(err)
	require.False(cmd.On)

	for _, raw := range []int{1, 127, 254} {
		cmd, err = e.Output(5, raw)
		require.NoError(err)
		require.True(cmd.On)
	}

	cfg.Reverse = true
	require.NoError(e.SetConfig(5, cfg))
	cmd, err = e.Output(5, 0)
	require.NoError(err)
	require.True(cmd.On)
	cmd, err = e.Output(5, 254)
	require.NoError(err)
	require.False(cmd.On)
}

func TestEngine_HBridge(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	cfg := DefaultConfig()
	cfg.Mode = ModeHBridge
	require.NoError(e.SetConfig(0, cfg))

	tests := []struct {
		raw       int
		ticks     uint16
		direction Direction
	}{
		{254, 4065, Forward},
		{0, 4065, Back},
		{127, 0, Stop},
		{137, 320, Forward},
		{117, 320, Back},
	}
	for _, tt := range tests {
		cmd, err := e.Output(0, tt.raw)
		require.NoError(err)
		require.Equal(tt.ticks, cmd.Ticks, "raw %d", tt.raw)
		require.Equal(tt.direction, cmd.Direction, "raw %d", tt.raw)
	}

	cfg.Reverse = true
	require.NoError(e.SetConfig(0, cfg))
	cmd, err := e.Output(0, 254)
	require.NoError(err)
	require.Equal(Back, cmd.Direction)

	// duty is clamped to the PWM range
	p := DefaultParams()
	p.HBridgeScale = 40
	e, err = NewEngine(p)
	require.NoError(err)
	require.NoError(e.SetConfig(0, DefaultConfig()))
	cfg.Reverse = false
	require.NoError(e.SetConfig(0, cfg))
	cmd, err = e.Output(0, 254)
	require.NoError(err)
	require.Equal(uint16(MaxTicks), cmd.Ticks)
}

func TestCommand_ApplyHBridge(t *testing.T) {
	a := &recordingActuator{}

	require.NoError(t, Command{Channel: 2, Mode: ModeHBridge, Ticks: 100, Direction: Forward}.Apply(a))
	require.NoError(t, Command{Channel: 2, Mode: ModeHBridge, Ticks: 0, Direction: Stop}.Apply(a))
	require.NoError(t, Command{Channel: 2, Mode: ModeHBridge, Ticks: 50, Direction: Back}.Apply(a))

	assert.Equal(t, []string{
		"pwm 2 100", "dio 3 true", "dio 4 false",
		"pwm 2 0", "dio 3 false", "dio 4 false",
		"pwm 2 50", "dio 3 false", "dio 4 true",
	}, a.calls)
}

func TestCommand_ApplyError(t *testing.T) {
	errBus := errors.New("i2c bus error")
	a := &recordingActuator{failOn: "pwm 1 307", failErr: errBus}

	cmds := []Command{
		{Channel: 0, Mode: ModeServo, Ticks: 307},
		{Channel: 1, Mode: ModeServo, Ticks: 307},
		{Channel: 2, Mode: ModeDigital, On: true},
	}
	err := ApplyAll(a, cmds)
	require.ErrorIs(t, err, errBus)
	assert.Equal(t, []string{"pwm 0 307", "pwm 1 307", "dio 2 true"}, a.calls)

	require.ErrorIs(t, Command{Mode: Mode(9)}.Apply(a), ErrInvalidConfig)
}

func TestEngine_DualRate(t *testing.T) {
	assert.Equal(t, uint8(191), DualRate(254, 50))
	assert.Equal(t, uint8(63), DualRate(0, 50))
	assert.Equal(t, uint8(127), DualRate(127, 50))
	assert.Equal(t, uint8(254), DualRate(254, 100))
	assert.Equal(t, uint8(254), DualRate(254, 150))
	assert.Equal(t, uint8(127), DualRate(0, 0))

	e := newEngine(t)
	engaged, err := e.ToggleDualRate(0)
	require.NoError(t, err)
	require.True(t, engaged)
	require.True(t, e.DualRateEngaged(0))

	cmd, err := e.Output(0, 254)
	require.NoError(t, err)
	require.Equal(t, uint8(191), cmd.Value)
	require.Equal(t, uint8(191), e.ApplyDualRate(0, 254))
	require.Equal(t, uint8(254), e.ApplyDualRate(1, 254))

	engaged, err = e.ToggleDualRate(0)
	require.NoError(t, err)
	require.False(t, engaged)

	_, err = e.ToggleDualRate(-1)
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestEngine_ContractViolations(t *testing.T) {
	e := newEngine(t)

	_, err := e.Output(16, 127)
	require.ErrorIs(t, err, ErrInvalidChannel)
	_, err = e.Output(-1, 127)
	require.ErrorIs(t, err, ErrInvalidChannel)
	_, err = e.Output(0, 255)
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = e.Output(0, -1)
	require.ErrorIs(t, err, ErrInvalidValue)

	cfg := DefaultConfig()
	cfg.Mode = ModeHBridge
	require.ErrorIs(t, e.SetConfig(14, cfg), ErrInvalidConfig)
	require.NoError(t, e.SetConfig(13, cfg))

	bad := []Config{
		{Mode: ModeServo, Center: 0, Rate: 0.5},
		{Mode: ModeServo, Center: 1.5, Rate: 0},
		{Mode: ModeServo, Center: 1.5, Rate: 1.6},
		{Mode: ModeServo, Center: 1.5, Rate: 0.5, Failsafe: 255},
		{Mode: ModeServo, Center: 1.5, Rate: 0.5, StepWidth: 255},
		{Mode: Mode(7), Center: 1.5, Rate: 0.5},
	}
	for i, cfg := range bad {
		require.ErrorIs(t, e.SetConfig(0, cfg), ErrInvalidConfig, "config %d", i)
	}

	_, err = NewEngine(Params{Frequency: 0, HBridgeScale: 1})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewEngine(Params{Frequency: 50, HBridgeScale: 1, DualRatePercent: 101})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSnapshot(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	dio := DefaultConfig()
	dio.Mode = ModeDigital
	dio.Failsafe = 0
	require.NoError(e.SetConfig(4, dio))

	snap := e.Snapshot()

	// later changes do not leak into the snapshot
	require.NoError(e.SetTrim(0, 50))
	trim, err := snap.Trim(0)
	require.NoError(err)
	require.Equal(uint8(telegram.CenterTrim), trim)

	cmd, err := snap.Output(0, telegram.CenterValue)
	require.NoError(err)
	require.Equal(uint16(307), cmd.Ticks)

	cmds := snap.FailsafeCommands()
	require.Len(cmds, telegram.NumChannels)
	for ch, cmd := range cmds {
		require.Equal(ch, cmd.Channel)
	}
	require.Equal(ModeDigital, cmds[4].Mode)
	require.False(cmds[4].On)
	require.Equal(uint16(307), cmds[0].Ticks)

	cfg, err := snap.Config(4)
	require.NoError(err)
	require.Equal(dio, cfg)

	_, err = snap.Output(0, 300)
	require.ErrorIs(err, ErrInvalidValue)
}

func TestEngine_FailsafeResetsFilter(t *testing.T) {
	e := newEngine(t)
	cfg := DefaultConfig()
	cfg.AccelFilter = true
	cfg.StepWidth = 10
	require.NoError(t, e.SetConfig(0, cfg))

	for range 5 {
		_, err := e.Output(0, 254)
		require.NoError(t, err)
	}

	cmds := e.Failsafe()
	require.Len(t, cmds, telegram.NumChannels)
	require.Equal(t, uint8(127), cmds[0].Value)

	cmd, err := e.Output(0, 254)
	require.NoError(t, err)
	require.Equal(t, uint8(137), cmd.Value)
}

func TestEngine_FailsafeSkipsDirectionLines(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	hb := DefaultConfig()
	hb.Mode = ModeHBridge
	require.NoError(e.SetConfig(0, hb))

	for _, cmds := range [][]Command{e.Failsafe(), e.Snapshot().FailsafeCommands()} {
		require.Len(cmds, telegram.NumChannels-2)
		require.Equal(ModeHBridge, cmds[0].Mode)
		require.Equal(Stop, cmds[0].Direction)
		require.Equal(3, cmds[1].Channel)
	}
}

func TestEngine_OutputRejectsDirectionLines(t *testing.T) {
	require := require.New(t)

	e := newEngine(t)
	hb := DefaultConfig()
	hb.Mode = ModeHBridge
	require.NoError(e.SetConfig(4, hb))

	for _, ch := range []int{5, 6} {
		_, err := e.Output(ch, 200)
		require.ErrorIs(err, ErrInvalidChannel, "channel %d", ch)
	}

	cmd, err := e.Output(4, 254)
	require.NoError(err)
	require.Equal(Forward, cmd.Direction)
	_, err = e.Output(7, 200)
	require.NoError(err)
	_, err = e.Snapshot().Output(5, 200)
	require.ErrorIs(err, ErrInvalidChannel)

	// the lines are released once the channel is no longer an H-bridge
	require.NoError(e.SetConfig(4, DefaultConfig()))
	_, err = e.Output(5, 200)
	require.NoError(err)
}

func TestMode_YAML(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte("mode: hbridge\ncenter: 1.5\nrate: 0.5\nfailsafe: 127\n"), &cfg)
	require.NoError(t, err)
	require.Equal(t, ModeHBridge, cfg.Mode)

	err = yaml.Unmarshal([]byte("mode: DIO\n"), &cfg)
	require.NoError(t, err)
	require.Equal(t, ModeDigital, cfg.Mode)

	err = yaml.Unmarshal([]byte("mode: stepper\n"), &cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	out, err := yaml.Marshal(struct {
		Mode Mode `yaml:"mode"`
	}{ModeServo})
	require.NoError(t, err)
	require.Equal(t, "mode: servo\n", string(out))

	assert.Equal(t, "mode(9)", Mode(9).String())
}
