package node

import (
	"context"
	"errors"
	"fmt"
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

// ErrAlreadyRunning is returned by Run on a node that is running or has run.
var ErrAlreadyRunning = errors.New("node already running")

// queue capacities
const (
	markQueueSize     = 100
	snapshotQueueSize = 4
	stateQueueSize    = 20
	sensorQueueSize   = 20
)

// Receiver is the vehicle node. It drives the actuators from the control telegrams of the
// transmitter and reports its sensor reading.
//
// Two goroutines run while the receiver runs:
//
//   - io owns the socket and the transform engine. It sends beacons and heartbeats, receives
//     telegrams and applies control values, trims and shutdown requests.
//   - watchdog owns the link watchdog. It drives every channel to failsafe when the control
//     telegrams stop, and polls the sensor.
//
// They exchange state only through bounded last-in-wins queues: time marks of control
// telegrams and engine snapshots towards the watchdog, link states and sensor readings towards
// the IO loop.
type Receiver struct {
	cfg     receiverConfig
	act     driver.Actuator
	ep      *endpoint
	peers   *discovery.PeerTable
	wd      *watchdog.Watchdog
	logger  logger.Logger
	metrics *LinkMetrics
	running atomic.Bool
	mgr     *task.Manager

	marks     *queue.LatestQueue[time.Time]
	snapshots *queue.LatestQueue[*channel.Snapshot]
	states    *queue.LatestQueue[watchdog.State]
	volts     *queue.LatestQueue[float64]

	// owned by the IO goroutine
	engine     *channel.Engine
	beacon     *discovery.Schedule
	identity   telegram.Telegram
	linkState  watchdog.State
	centivolts uint16

	// owned by the watchdog goroutine
	snapshot *channel.Snapshot
	lastPoll time.Time
}

// NewReceiver creates a receiver talking over conn and driving act.
//
// The channels are configured from the selected model before NewReceiver returns; an invalid
// channel configuration is reported here.
func NewReceiver(conn transport.Conn, act driver.Actuator, opts ...ReceiverOption) (*Receiver, error) {
	if conn == nil || act == nil {
		return nil, ErrNilOption
	}

	def := config.Default()
	cfg := receiverConfig{nodeConfig: defaultNodeConfig(def), rx: def.Receiver}
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		if err := opt.applyReceiver(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = logger.GetLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = NewLinkMetrics()
	}
	if cfg.rx.ReadTimeout <= 0 || cfg.rx.WatchdogInterval <= 0 || cfg.rx.SensorInterval <= 0 {
		return nil, fmt.Errorf("%w: receiver intervals must be positive", config.ErrInvalidConfig)
	}

	if cfg.channels == nil {
		chans, err := cfg.rx.ModelChannels()
		if err != nil {
			return nil, err
		}
		cfg.channels = chans
	}

	engine, err := channel.NewEngine(cfg.rx.PWM)
	if err != nil {
		return nil, err
	}
	for _, cc := range cfg.channels {
		if err := engine.SetConfig(cc.Channel, cc.Config); err != nil {
			return nil, fmt.Errorf("failed to configure channel %d: %w", cc.Channel, err)
		}
	}

	l := cfg.logger.With("node", "receiver")
	r := &Receiver{
		cfg:        cfg,
		act:        act,
		ep:         newEndpoint(conn, &cfg.nodeConfig, l),
		peers:      discovery.NewPeerTable(),
		logger:     l,
		metrics:    cfg.metrics,
		marks:      queue.NewLatestQueue[time.Time](markQueueSize),
		snapshots:  queue.NewLatestQueue[*channel.Snapshot](snapshotQueueSize),
		states:     queue.NewLatestQueue[watchdog.State](stateQueueSize),
		volts:      queue.NewLatestQueue[float64](sensorQueueSize),
		engine:     engine,
		beacon:     discovery.NewSchedule(cfg.rx.BeaconBurst, cfg.rx.BurstInterval, cfg.rx.BeaconInterval),
		centivolts: telegram.Centivolts(cfg.rx.DefaultVolts),
		snapshot:   engine.Snapshot(),
	}

	r.identity, err = discovery.Identify(discovery.RoleReceiver, r.ep.local)
	if err != nil {
		return nil, err
	}

	r.wd, err = watchdog.New("transmitter", cfg.rx.Timeout, l, func(_, newState watchdog.State) {
		r.metrics.LinkState.Store(uint32(newState))
	})
	if err != nil {
		return nil, err
	}
	r.wd.OnLost(r.driveFailsafe)

	return r, nil
}

// Metrics returns the metrics of the receiver.
func (r *Receiver) Metrics() *LinkMetrics { return r.metrics }

// LinkState returns the state of the link to the transmitter.
func (r *Receiver) LinkState() watchdog.State { return r.wd.State() }

// Peer returns the learned address of role.
func (r *Receiver) Peer(role discovery.Role) (netip.Addr, bool) { return r.peers.Lookup(role) }

// Run drives every channel to failsafe, then runs the receiver until ctx is done, the
// connection is closed or a shutdown telegram was executed.
func (r *Receiver) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	r.logger.Info("receiver starting",
		"address", r.ep.local,
		"broadcast", r.ep.broadcast,
		"port", r.cfg.ports.Receiver,
		"channels", len(r.cfg.channels),
	)
	r.applyFailsafe(r.engine.Failsafe())

	r.mgr = task.NewManager(ctx, r.logger)
	if err := r.mgr.StartInterval("watchdog", r.watchdogTick, r.cfg.rx.WatchdogInterval, true); err != nil {
		r.mgr.Stop()
		return err
	}
	r.mgr.Go("io", r.ioLoop)

	err := r.mgr.Wait()
	r.logger.Info("receiver stopped")

	return err
}

func (r *Receiver) ioLoop(ctx context.Context) error {
	defer r.mgr.Stop()

	for ctx.Err() == nil {
		r.pollQueues()

		if r.beacon.Due(r.cfg.now()) {
			r.sendBeacon()
		}

		t, src, err := r.ep.receive(r.cfg.rx.ReadTimeout)
		if errors.Is(err, errConnClosed) {
			r.logger.Info("connection closed")
			return nil
		}
		if t == nil {
			continue
		}

		if !r.handle(ctx, t, src) {
			return nil
		}
	}

	return nil
}

func (r *Receiver) pollQueues() {
	if state, ok := r.states.Latest(); ok {
		if state.IsLost() && !r.linkState.IsLost() {
			// the watchdog applied the failsafe commands of a snapshot
			r.engine.ResetFilters()
		}
		r.linkState = state
	}
	if v, ok := r.volts.Latest(); ok {
		r.centivolts = telegram.Centivolts(v)
	}
}

func (r *Receiver) transmitter() netip.AddrPort {
	return r.peers.Target(discovery.RoleTransmitter, r.cfg.ports.Transmitter, r.ep.broadcast, r.linkState.IsLost())
}

func (r *Receiver) sendBeacon() {
	dst := r.transmitter()
	_ = r.ep.send(r.identity, dst)
	_ = r.ep.send(telegram.Heartbeat{Centivolts: r.centivolts}, dst)
}

func (r *Receiver) learn(role discovery.Role, src netip.AddrPort) {
	if r.peers.Learn(role, src.Addr()) {
		r.logger.Info("peer learned", "role", role, "address", src.Addr())
	}
}

// handle processes one telegram and reports whether the receiver keeps running.
func (r *Receiver) handle(ctx context.Context, t telegram.Telegram, src netip.AddrPort) bool {
	switch v := t.(type) {
	case telegram.Control:
		r.marks.Push(r.cfg.now())
		r.learn(discovery.RoleTransmitter, src)
		for _, cv := range v.Values {
			cmd, err := r.engine.Output(int(cv.Channel), int(cv.Value))
			if err != nil {
				r.ep.diag.Error("rejected control value", "channel", cv.Channel, "value", cv.Value, "error", err)
				continue
			}
			r.apply(cmd)
		}

	case telegram.Trim:
		r.learn(discovery.RoleTransmitter, src)
		if r.setTrims(v.Values) {
			r.snapshots.Push(r.engine.Snapshot())
		}

	case telegram.Shutdown:
		if v.Value != 0 {
			r.logger.Debug("ignored shutdown telegram", "channel", v.Channel, "value", v.Value)
			return true
		}
		r.shutdown(ctx)

		return false

	default:
		role, changed, ok := r.peers.LearnTelegram(t, src.Addr())
		if !ok {
			r.logger.Debug("ignored telegram", "type", t.Type(), "src", src)
			break
		}
		if changed {
			r.logger.Info("peer learned", "role", role, "address", src.Addr())
		}
	}

	return true
}

// setTrims applies trims and reports whether any of them changed.
func (r *Receiver) setTrims(values []telegram.ChannelValue) bool {
	changed := false
	for _, cv := range values {
		prev, err := r.engine.Trim(int(cv.Channel))
		if err == nil && prev == cv.Value {
			continue
		}
		if err := r.engine.SetTrim(int(cv.Channel), int(cv.Value)); err != nil {
			r.ep.diag.Error("rejected trim value", "channel", cv.Channel, "value", cv.Value, "error", err)
			continue
		}
		r.logger.Debug("trim changed", "channel", cv.Channel, "trim", cv.Value)
		changed = true
	}

	return changed
}

func (r *Receiver) apply(cmd channel.Command) {
	if err := cmd.Apply(r.act); err != nil {
		r.metrics.incActuatorErrCount()
		r.ep.diag.Warn("failed to drive channel", "channel", cmd.Channel, "error", err)
	}
}

func (r *Receiver) applyFailsafe(cmds []channel.Command) {
	r.metrics.incFailsafeCount()
	if err := channel.ApplyAll(r.act, cmds); err != nil {
		r.metrics.incActuatorErrCount()
		r.logger.Error("failed to drive failsafe", "error", err)
		return
	}
	r.logger.Info("all channels set to failsafe", "channels", len(cmds))
}

func (r *Receiver) shutdown(ctx context.Context) {
	r.logger.Warn("shutdown requested", "delay", r.cfg.rx.ShutdownDelay)
	r.applyFailsafe(r.engine.Failsafe())

	if !sleepCtx(ctx, r.cfg.rx.ShutdownDelay) {
		return
	}
	if r.cfg.shutdown == nil {
		return
	}
	if err := r.cfg.shutdown(ctx); err != nil {
		r.logger.Error("shutdown hook failed", "error", err)
	}
}

// watchdogTick is one iteration of the watchdog goroutine.
func (r *Receiver) watchdogTick() bool {
	if snap, ok := r.snapshots.Latest(); ok {
		r.snapshot = snap
	}
	if t, ok := r.marks.Latest(); ok {
		r.wd.Mark(t)
	}

	now := r.cfg.now()
	r.states.Push(r.wd.Check(now))
	r.pollSensor(now)

	return true
}

// driveFailsafe runs on the transition into Lost, from the watchdog goroutine.
func (r *Receiver) driveFailsafe() {
	r.applyFailsafe(r.snapshot.FailsafeCommands())
}

func (r *Receiver) pollSensor(now time.Time) {
	if r.cfg.sensor == nil {
		return
	}
	if !r.lastPoll.IsZero() && now.Sub(r.lastPoll) < r.cfg.rx.SensorInterval {
		return
	}
	r.lastPoll = now

	v, err := r.cfg.sensor.ReadVolts()
	if err != nil {
		r.ep.diag.Warn("failed to read sensor, keeping last value", "error", err)
		return
	}
	r.volts.Push(v)
}
