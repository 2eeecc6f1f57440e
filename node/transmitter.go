package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rclink/channel"
	"github.com/arloliu/go-rclink/config"
	"github.com/arloliu/go-rclink/discovery"
	"github.com/arloliu/go-rclink/driver"
	"github.com/arloliu/go-rclink/internal/queue"
	"github.com/arloliu/go-rclink/internal/task"
	"github.com/arloliu/go-rclink/logger"
	"github.com/arloliu/go-rclink/telegram"
	"github.com/arloliu/go-rclink/transport"
	"github.com/arloliu/go-rclink/watchdog"
)

const (
	stickQueueSize       = 100
	eventQueueSize       = 20
	observationQueueSize = 20

	// shutdownChannel is the channel the shutdown telegram is addressed to.
	shutdownChannel = telegram.MaxChannel
	// inputRetryDelay is the pause after a failed input device read.
	inputRetryDelay = 100 * time.Millisecond
	// noDualRate is reported to the screen for channels without dual-rate.
	noDualRate = 100
)

// stickValues holds the control value of every channel.
type stickValues [telegram.NumChannels]uint8

func neutralSticks() stickValues {
	var s stickValues
	for ch := range s {
		s[ch] = telegram.CenterValue
	}

	return s
}

// observation is what the observer reports to the IO loop.
type observation struct {
	State      watchdog.State
	Centivolts uint16
}

// Transmitter is the handheld node. It turns input device events into control and trim
// telegrams for the receiver and status telegrams for the screen.
//
// Three goroutines run while the transmitter runs:
//
//   - capture reads the input device. Stick positions go to a last-in-wins queue, button
//     presses to a FIFO event queue that drops and logs when full.
//   - observer owns the receive side of the socket and the link watchdog. It learns peer
//     addresses and reports the link state and the receiver's sensor reading.
//   - io sends control telegrams every control interval, trims when they change and
//     periodically, beacons and screen status. It owns the channel engine holding trims and
//     dual-rate state.
type Transmitter struct {
	cfg     transmitterConfig
	dev     driver.InputDevice
	inputs  *InputMap
	ep      *endpoint
	peers   *discovery.PeerTable
	wd      *watchdog.Watchdog
	logger  logger.Logger
	metrics *LinkMetrics
	running atomic.Bool
	mgr     *task.Manager

	sticks       *queue.LatestQueue[stickValues]
	events       *queue.EventQueue[Input]
	observations *queue.LatestQueue[observation]

	// owned by the capture goroutine
	captured stickValues

	// owned by the observer goroutine
	centivolts uint16

	// owned by the IO goroutine
	control      stickValues
	engine       *channel.Engine
	trimDirty    bool
	lastTrim     time.Time
	lastScreen   time.Time
	beacon       *discovery.Schedule
	identity     telegram.Telegram
	obs          observation
	trimChannels []uint8
	shutdownReq  bool
}

// NewTransmitter creates a transmitter talking over conn and reading dev. The transmitter
// takes ownership of dev and closes it when Run returns.
func NewTransmitter(conn transport.Conn, dev driver.InputDevice, opts ...TransmitterOption) (*Transmitter, error) {
	if conn == nil || dev == nil {
		return nil, ErrNilOption
	}

	def := config.Default()
	cfg := transmitterConfig{nodeConfig: defaultNodeConfig(def), tx: def.Transmitter}
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		if err := opt.applyTransmitter(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = logger.GetLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = NewLinkMetrics()
	}
	if cfg.tx.ControlInterval <= 0 || cfg.tx.ReadTimeout <= 0 {
		return nil, fmt.Errorf("%w: transmitter intervals must be positive", config.ErrInvalidConfig)
	}

	params := channel.DefaultParams()
	params.DualRatePercent = cfg.tx.DualRatePercent
	engine, err := channel.NewEngine(params)
	if err != nil {
		return nil, err
	}

	l := cfg.logger.With("node", "transmitter")
	t := &Transmitter{
		cfg:          cfg,
		dev:          dev,
		inputs:       NewInputMap(cfg.tx),
		ep:           newEndpoint(conn, &cfg.nodeConfig, l),
		peers:        discovery.NewPeerTable(),
		logger:       l,
		metrics:      cfg.metrics,
		sticks:       queue.NewLatestQueue[stickValues](stickQueueSize),
		observations: queue.NewLatestQueue[observation](observationQueueSize),
		captured:     neutralSticks(),
		control:      neutralSticks(),
		engine:       engine,
		beacon:       discovery.NewSchedule(cfg.tx.BeaconBurst, cfg.tx.BurstInterval, cfg.tx.BeaconInterval),
	}
	t.events = queue.NewEventQueue(eventQueueSize, func(in Input) {
		t.metrics.incQueueDropCount()
		t.ep.diag.Warn("input event dropped, queue full", "kind", in.Kind, "channel", in.Channel)
	})
	t.trimChannels = trimChannels(cfg.tx)
	t.identity, err = discovery.Identify(discovery.RoleTransmitter, t.ep.local)
	if err != nil {
		return nil, err
	}

	t.wd, err = watchdog.New("receiver", cfg.tx.Timeout, l, func(_, newState watchdog.State) {
		t.metrics.LinkState.Store(uint32(newState))
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// trimChannels returns the channels trims are sent for: every channel with an analog or a
// trim binding.
func trimChannels(cfg config.TransmitterConfig) []uint8 {
	var (
		out  []uint8
		seen [telegram.NumChannels]bool
	)
	add := func(ch uint8) {
		if int(ch) < len(seen) && !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	for _, b := range cfg.Analog {
		add(b.Channel)
	}
	for _, b := range cfg.Trim {
		add(b.Channel)
	}

	return out
}

// Metrics returns the metrics of the transmitter.
func (t *Transmitter) Metrics() *LinkMetrics { return t.metrics }

// LinkState returns the state of the link to the receiver.
func (t *Transmitter) LinkState() watchdog.State { return t.wd.State() }

// Peer returns the learned address of role.
func (t *Transmitter) Peer(role discovery.Role) (netip.Addr, bool) { return t.peers.Lookup(role) }

// Run runs the transmitter until ctx is done, the connection is closed or the shutdown
// sequence completed.
func (t *Transmitter) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	t.logger.Info("transmitter starting",
		"address", t.ep.local,
		"broadcast", t.ep.broadcast,
		"port", t.cfg.ports.Transmitter,
		"channels", t.inputs.Channels(),
	)

	t.mgr = task.NewManager(ctx, t.logger)
	// unblocks the capture goroutine
	stop := context.AfterFunc(t.mgr.Context(), func() { _ = t.dev.Close() })
	defer stop()

	if err := t.mgr.StartInterval("io", t.ioTick, t.cfg.tx.ControlInterval, true); err != nil {
		t.mgr.Stop()
		return err
	}
	t.mgr.Start("capture", t.capture)
	t.mgr.Start("observer", t.observe)

	err := t.mgr.Wait()
	_ = t.dev.Close()
	t.logger.Info("transmitter stopped")

	return err
}

// capture is one iteration of the capture goroutine.
func (t *Transmitter) capture() bool {
	ev, err := t.dev.ReadEvent()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, driver.ErrClosed) {
			t.logger.Info("input device closed")
			return false
		}
		t.ep.diag.Warn("failed to read input event", "error", err)
		time.Sleep(inputRetryDelay)

		return true
	}

	in := t.inputs.Map(ev)
	switch in.Kind {
	case InputNone:
	case InputAnalog:
		t.captured[in.Channel] = in.Value
		t.sticks.Push(t.captured)
	default:
		t.events.TryPush(in)
	}

	return true
}

// observe is one iteration of the observer goroutine.
func (t *Transmitter) observe() bool {
	tg, src, err := t.ep.receive(t.cfg.tx.ReadTimeout)
	if errors.Is(err, errConnClosed) {
		t.logger.Info("connection closed")
		t.mgr.Stop()

		return false
	}

	now := t.cfg.now()
	if tg != nil {
		t.observeTelegram(tg, src, now)
	}
	t.observations.Push(observation{State: t.wd.Check(now), Centivolts: t.centivolts})

	return true
}

func (t *Transmitter) learned(role discovery.Role, src netip.AddrPort) {
	t.logger.Info("peer learned", "role", role, "address", src.Addr())
}

func (t *Transmitter) observeTelegram(tg telegram.Telegram, src netip.AddrPort, now time.Time) {
	if hb, ok := tg.(telegram.Heartbeat); ok {
		if t.peers.Learn(discovery.RoleReceiver, src.Addr()) {
			t.learned(discovery.RoleReceiver, src)
		}
		t.wd.Mark(now)
		t.centivolts = hb.Centivolts

		return
	}

	role, changed, ok := t.peers.LearnTelegram(tg, src.Addr())
	if !ok {
		t.logger.Debug("ignored telegram", "type", tg.Type(), "src", src)
		return
	}
	if changed {
		t.learned(role, src)
	}
	if role == discovery.RoleReceiver {
		t.wd.Mark(now)
	}
}

// ioTick is one cycle of the IO goroutine.
func (t *Transmitter) ioTick() bool {
	now := t.cfg.now()

	if s, ok := t.sticks.Latest(); ok {
		t.control = s
	}
	if o, ok := t.observations.Latest(); ok {
		t.obs = o
	}
	t.events.Drain(t.applyInput)

	if t.shutdownReq {
		t.shutdown(t.mgr.Context())
		t.mgr.Stop()

		return false
	}

	rx := t.peers.Target(discovery.RoleReceiver, t.cfg.ports.Receiver, t.ep.broadcast, t.obs.State.IsLost())
	if ctl, ok := t.controlTelegram(); ok {
		_ = t.ep.send(ctl, rx)
	}

	if t.trimDirty || now.Sub(t.lastTrim) >= t.cfg.tx.TrimInterval {
		if trim, ok := t.trimTelegram(); ok {
			_ = t.ep.send(trim, rx)
		}
		t.trimDirty = false
		t.lastTrim = now
	}

	screen := t.peers.Target(discovery.RoleScreen, t.cfg.ports.Screen, t.ep.broadcast, false)
	if t.beacon.Due(now) {
		_ = t.ep.send(t.identity, screen)
		_ = t.ep.send(t.identity, rx)
	}

	if now.Sub(t.lastScreen) >= t.cfg.tx.ScreenInterval {
		_ = t.ep.send(t.screenStatus(), screen)
		t.lastScreen = now
	}

	return true
}

func (t *Transmitter) applyInput(in Input) {
	switch in.Kind {
	case InputTrim:
		trim, changed, err := t.engine.StepTrim(int(in.Channel), in.Step)
		if err != nil {
			t.logger.Error("rejected trim input", "channel", in.Channel, "error", err)
			return
		}
		t.trimDirty = t.trimDirty || changed
		t.logger.Debug("trim", "channel", in.Channel, "trim", trim)

	case InputDualRate:
		engaged, err := t.engine.ToggleDualRate(int(in.Channel))
		if err != nil {
			t.logger.Error("rejected dual-rate input", "channel", in.Channel, "error", err)
			return
		}
		t.logger.Info("dual-rate toggled", "channel", in.Channel, "engaged", engaged)

	case InputShutdown:
		t.shutdownReq = true
	}
}

// value returns the control value sent for ch, dual-rate applied.
func (t *Transmitter) value(ch uint8) uint8 {
	return t.engine.ApplyDualRate(int(ch), t.control[ch])
}

// trim returns the trim of ch, neutral for channels outside the engine's range.
func (t *Transmitter) trim(ch uint8) uint8 {
	trim, err := t.engine.Trim(int(ch))
	if err != nil {
		return telegram.CenterTrim
	}

	return trim
}

func (t *Transmitter) controlTelegram() (telegram.Control, bool) {
	chans := t.inputs.Channels()
	if len(chans) == 0 {
		return telegram.Control{}, false
	}

	values := make([]telegram.ChannelValue, 0, len(chans))
	for _, ch := range chans {
		values = append(values, telegram.ChannelValue{Channel: ch, Value: t.value(ch)})
	}

	return telegram.Control{Values: values}, true
}

func (t *Transmitter) trimTelegram() (telegram.Trim, bool) {
	if len(t.trimChannels) == 0 {
		return telegram.Trim{}, false
	}

	values := make([]telegram.ChannelValue, 0, len(t.trimChannels))
	for _, ch := range t.trimChannels {
		values = append(values, telegram.ChannelValue{Channel: ch, Value: t.trim(ch)})
	}

	return telegram.Trim{Values: values}, true
}

func (t *Transmitter) screenStatus() telegram.ScreenStatus {
	rxAddr, ok := t.peers.Lookup(discovery.RoleReceiver)
	if !ok {
		rxAddr = netip.IPv4Unspecified()
	}

	status := telegram.ScreenStatus{
		Receiver:   rxAddr,
		Link:       uint8(t.obs.State.Color()),
		Centivolts: t.obs.Centivolts,
		Channels:   make([]telegram.ChannelStatus, 0, len(t.cfg.tx.ScreenChannels)),
	}
	for _, ch := range t.cfg.tx.ScreenChannels {
		if ch > telegram.MaxChannel {
			continue
		}
		dr := uint8(noDualRate)
		if t.engine.DualRateEngaged(int(ch)) {
			dr = t.engine.Params().DualRatePercent
		}
		status.Channels = append(status.Channels, telegram.ChannelStatus{
			Channel:  ch,
			DualRate: dr,
			Trim:     t.trim(ch),
			Value:    t.value(ch),
		})
	}

	return status
}

// shutdown sends the shutdown telegram to the receiver by broadcast, then calls the shutdown
// hook.
func (t *Transmitter) shutdown(ctx context.Context) {
	t.logger.Warn("shutdown requested", "repeat", t.cfg.tx.ShutdownRepeat, "spacing", t.cfg.tx.ShutdownSpacing)

	dst := netip.AddrPortFrom(t.ep.broadcast, t.cfg.ports.Receiver)
	for range t.cfg.tx.ShutdownRepeat {
		_ = t.ep.send(telegram.Shutdown{Channel: shutdownChannel, Value: 0}, dst)
		if !sleepCtx(ctx, t.cfg.tx.ShutdownSpacing) {
			return
		}
	}

	if t.cfg.shutdown == nil {
		return
	}
	if err := t.cfg.shutdown(ctx); err != nil {
		t.logger.Error("shutdown hook failed", "error", err)
	}
}
