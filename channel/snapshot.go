package channel

import (
	"fmt"

	"github.com/arloliu/go-rclink/telegram"
)

type snapshotChannel struct {
	cfg      Config
	trim     uint8
	dualRate bool
	table    pulseTable
}

// Snapshot is a read-only copy of an Engine's channel state. It is safe for concurrent use
// and is how the failsafe path sees the configuration owned by the IO goroutine.
type Snapshot struct {
	hbridgeScale float64
	channels     [telegram.NumChannels]snapshotChannel
	lines        [telegram.NumChannels]bool
}

// Config returns the configuration of channel ch.
func (s *Snapshot) Config(ch int) (Config, error) {
	if err := checkChannel(ch); err != nil {
		return Config{}, err
	}

	return s.channels[ch].cfg, nil
}

// Trim returns the trim of channel ch at the time of the snapshot.
func (s *Snapshot) Trim(ch int) (uint8, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}

	return s.channels[ch].trim, nil
}

// Output maps raw on channel ch by its mode, without dual-rate or filtering. Direction lines
// are rejected as in Engine.Output.
func (s *Snapshot) Output(ch int, raw int) (Command, error) {
	if err := checkChannel(ch); err != nil {
		return Command{}, err
	}
	if s.lines[ch] {
		return Command{}, fmt.Errorf("%w: channel %d is an H-bridge direction line", ErrInvalidChannel, ch)
	}
	if err := checkValue(raw); err != nil {
		return Command{}, err
	}

	c := &s.channels[ch]

	return command(ch, c.cfg, &c.table, s.hbridgeScale, uint8(raw)), nil
}

// FailsafeCommands returns the failsafe command of every channel, see Engine.Failsafe.
func (s *Snapshot) FailsafeCommands() []Command {
	cmds := make([]Command, 0, telegram.NumChannels)
	for ch := range s.channels {
		if s.lines[ch] {
			continue
		}
		c := &s.channels[ch]
		cmds = append(cmds, command(ch, c.cfg, &c.table, s.hbridgeScale, c.cfg.Failsafe))
	}

	return cmds
}

// DualRateEngaged reports whether dual-rate was engaged on channel ch.
func (s *Snapshot) DualRateEngaged(ch int) bool {
	if checkChannel(ch) != nil {
		return false
	}

	return s.channels[ch].dualRate
}
