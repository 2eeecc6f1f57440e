package node

import (
	"context"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-rclink/channel"
	"github.com/arloliu/go-rclink/config"
	"github.com/arloliu/go-rclink/discovery"
	"github.com/arloliu/go-rclink/driver"
	"github.com/arloliu/go-rclink/driver/sim"
	"github.com/arloliu/go-rclink/internal/task"
	"github.com/arloliu/go-rclink/logger"
	"github.com/arloliu/go-rclink/telegram"
	"github.com/arloliu/go-rclink/transport"
	"github.com/arloliu/go-rclink/watchdog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const drainWait = 20 * time.Millisecond

type transmitterFixture struct {
	tx     *Transmitter
	dev    *sim.InputDevice
	clk    *fakeClock
	rx     *transport.MemConn
	screen *transport.MemConn
}

func newTestTransmitter(t *testing.T, opts ...TransmitterOption) *transmitterFixture {
	t.Helper()

	n := transport.NewMemNetwork(testPrefix)
	conn := listen(t, n, transmitterAddr, 6000)
	f := &transmitterFixture{
		dev:    sim.NewInputDevice(100),
		clk:    newFakeClock(),
		rx:     listen(t, n, receiverAddr, 6100),
		screen: listen(t, n, screenAddr, 5000),
	}

	cfg := config.Default()
	cfg.Transmitter.ReadTimeout = 10 * time.Millisecond

	opts = append([]TransmitterOption{
		WithConfig(cfg),
		WithClock(f.clk.Now),
		WithLogger(logger.NewNopMockLogger()),
		WithNetwork(networkOf(transmitterAddr)),
	}, opts...)

	var err error
	f.tx, err = NewTransmitter(conn, f.dev, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.tx.mgr = task.NewManager(ctx, logger.NewNopMockLogger())

	return f
}

// captureAll feeds every injected event through the capture loop.
func (f *transmitterFixture) captureAll(t *testing.T, events int) {
	t.Helper()
	for range events {
		require.True(t, f.tx.capture())
	}
}

func TestNewTransmitter_Errors(t *testing.T) {
	n := transport.NewMemNetwork(testPrefix)
	conn := listen(t, n, transmitterAddr, 6000)
	dev := sim.NewInputDevice(1)

	_, err := NewTransmitter(nil, dev)
	require.ErrorIs(t, err, ErrNilOption)

	_, err = NewTransmitter(conn, nil)
	require.ErrorIs(t, err, ErrNilOption)

	_, err = NewTransmitter(conn, dev, WithLogger(nil))
	require.ErrorIs(t, err, ErrNilOption)

	cfg := config.Default()
	cfg.Transmitter.ControlInterval = 0
	_, err = NewTransmitter(conn, dev, WithConfig(cfg))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTransmitter_FirstCycle(t *testing.T) {
	require := require.New(t)

	f := newTestTransmitter(t)
	require.True(f.dev.Inject(driver.EventAbs, 1, -128))
	f.captureAll(t, 1)

	require.True(f.tx.ioTick())

	// the receiver is unknown, everything goes to the broadcast address
	rx := drain(t, f.rx, drainWait)
	controls := filter[telegram.Control](rx)
	require.Len(controls, 1)
	require.Equal([]telegram.ChannelValue{{Channel: 0, Value: 254}, {Channel: 3, Value: 127}}, controls[0].Values)

	trims := filter[telegram.Trim](rx)
	require.Len(trims, 1)
	require.Equal([]telegram.ChannelValue{{Channel: 0, Value: 25}, {Channel: 3, Value: 25}}, trims[0].Values)

	ids := filter[telegram.IdentifyTransmitter](rx)
	require.Len(ids, 1)
	require.Equal(transmitterAddr, ids[0].Addr)

	screen := drain(t, f.screen, drainWait)
	require.Len(filter[telegram.IdentifyTransmitter](screen), 1)
	statuses := filter[telegram.ScreenStatus](screen)
	require.Len(statuses, 1)
	require.Equal(telegram.ScreenStatus{
		Receiver: netip.IPv4Unspecified(),
		Link:     uint8(watchdog.Yellow),
		Channels: []telegram.ChannelStatus{
			{Channel: 0, DualRate: 100, Trim: 25, Value: 254},
			{Channel: 3, DualRate: 100, Trim: 25, Value: 127},
		},
	}, statuses[0])
}

func TestTransmitter_Schedules(t *testing.T) {
	require := require.New(t)

	f := newTestTransmitter(t)
	require.True(f.tx.ioTick())
	drain(t, f.rx, drainWait)
	drain(t, f.screen, drainWait)

	// control every cycle, trims and screen status on their own intervals
	f.clk.Advance(30 * time.Millisecond)
	require.True(f.tx.ioTick())
	rx := drain(t, f.rx, drainWait)
	require.Len(filter[telegram.Control](rx), 1)
	require.Empty(filter[telegram.Trim](rx))
	require.Empty(filter[telegram.ScreenStatus](drain(t, f.screen, drainWait)))

	f.clk.Advance(200 * time.Millisecond)
	require.True(f.tx.ioTick())
	require.Len(filter[telegram.ScreenStatus](drain(t, f.screen, drainWait)), 1)
	require.Empty(filter[telegram.Trim](drain(t, f.rx, drainWait)))

	f.clk.Advance(time.Second)
	require.True(f.tx.ioTick())
	require.Len(filter[telegram.Trim](drain(t, f.rx, drainWait)), 1)
}

func TestTransmitter_TrimButtons(t *testing.T) {
	require := require.New(t)

	f := newTestTransmitter(t)
	require.True(f.tx.ioTick())
	drain(t, f.rx, drainWait)

	// press and release: one trim step
	require.True(f.dev.Press(304))
	require.True(f.dev.Press(306))
	require.True(f.dev.Press(306))
	f.captureAll(t, 6)

	f.clk.Advance(30 * time.Millisecond)
	require.True(f.tx.ioTick())

	// a changed trim is sent at once
	trims := filter[telegram.Trim](drain(t, f.rx, drainWait))
	require.Len(trims, 1)
	require.Equal([]telegram.ChannelValue{{Channel: 0, Value: 24}, {Channel: 3, Value: 27}}, trims[0].Values)

	// trims saturate at the range limits
	require.NoError(f.tx.engine.SetTrim(3, telegram.MaxTrim))
	require.True(f.dev.Press(306))
	f.captureAll(t, 2)
	f.clk.Advance(30 * time.Millisecond)
	require.True(f.tx.ioTick())
	require.Empty(filter[telegram.Trim](drain(t, f.rx, drainWait)))
	trim, err := f.tx.engine.Trim(3)
	require.NoError(err)
	require.Equal(uint8(telegram.MaxTrim), trim)
}

func TestTransmitter_DualRate(t *testing.T) {
	require := require.New(t)

	f := newTestTransmitter(t)
	require.True(f.dev.Inject(driver.EventAbs, 5, 127))
	require.True(f.dev.Press(310))
	f.captureAll(t, 3)
	require.True(f.tx.ioTick())

	require.True(f.tx.engine.DualRateEngaged(3))
	want := channel.DualRate(254, 50)
	controls := filter[telegram.Control](drain(t, f.rx, drainWait))
	require.Len(controls, 1)
	require.Equal(telegram.ChannelValue{Channel: 3, Value: want}, controls[0].Values[1])

	statuses := filter[telegram.ScreenStatus](drain(t, f.screen, drainWait))
	require.Len(statuses, 1)
	require.Equal(telegram.ChannelStatus{Channel: 3, DualRate: 50, Trim: 25, Value: want}, statuses[0].Channels[1])

	// toggled off again
	require.True(f.dev.Press(310))
	f.captureAll(t, 2)
	f.clk.Advance(30 * time.Millisecond)
	require.True(f.tx.ioTick())
	require.False(f.tx.engine.DualRateEngaged(3))
	controls = filter[telegram.Control](drain(t, f.rx, drainWait))
	require.Len(controls, 1)
	require.Equal(telegram.ChannelValue{Channel: 3, Value: 254}, controls[0].Values[1])
}

func TestTransmitter_EventQueueOverflow(t *testing.T) {
	f := newTestTransmitter(t)

	for range eventQueueSize + 5 {
		require.True(t, f.dev.Press(307))
	}
	f.captureAll(t, 2*(eventQueueSize+5))

	require.Equal(t, uint64(5), f.tx.Metrics().QueueDropCount.Load())
	require.True(t, f.tx.ioTick())
	trim, err := f.tx.engine.Trim(0)
	require.NoError(t, err)
	require.Equal(t, uint8(telegram.CenterTrim+eventQueueSize), trim)
}

func TestTransmitter_Observe(t *testing.T) {
	require := require.New(t)

	f := newTestTransmitter(t)
	rxSrc := f.rx.LocalAddr()

	sendTelegram(t, f.rx, telegram.IdentifyReceiver{Addr: receiverAddr}, netip.AddrPortFrom(transmitterAddr, 6000))
	sendTelegram(t, f.rx, telegram.Heartbeat{Centivolts: 740}, netip.AddrPortFrom(transmitterAddr, 6000))
	sendTelegram(t, f.screen, telegram.IdentifyScreen{Addr: screenAddr}, netip.AddrPortFrom(transmitterAddr, 6000))
	for range 3 {
		require.True(f.tx.observe())
	}

	require.Equal(watchdog.Connected, f.tx.LinkState())
	addr, ok := f.tx.Peer(discovery.RoleReceiver)
	require.True(ok)
	require.Equal(rxSrc.Addr(), addr)
	addr, ok = f.tx.Peer(discovery.RoleScreen)
	require.True(ok)
	require.Equal(screenAddr, addr)

	require.True(f.tx.ioTick())
	statuses := filter[telegram.ScreenStatus](drain(t, f.screen, drainWait))
	require.Len(statuses, 1)
	assert.Equal(t, receiverAddr, statuses[0].Receiver)
	assert.Equal(t, uint8(watchdog.Green), statuses[0].Link)
	assert.Equal(t, uint16(740), statuses[0].Centivolts)

	// silence beyond the timeout
	f.clk.Advance(4 * time.Second)
	require.True(f.tx.observe())
	require.Equal(watchdog.Lost, f.tx.LinkState())

	require.True(f.tx.ioTick())
	statuses = filter[telegram.ScreenStatus](drain(t, f.screen, drainWait))
	require.Len(statuses, 1)
	assert.Equal(t, uint8(watchdog.Red), statuses[0].Link)
	assert.Len(t, filter[telegram.Control](drain(t, f.rx, drainWait)), 2)
}

func TestTransmitter_Run(t *testing.T) {
	require := require.New(t)

	n := transport.NewMemNetwork(testPrefix)
	conn := listen(t, n, transmitterAddr, 6000)
	rx := listen(t, n, receiverAddr, 6100)
	dev := sim.NewInputDevice(10)

	var hookCalls atomic.Int32
	tx, err := NewTransmitter(conn, dev,
		WithConfig(fastConfig()),
		WithLogger(logger.NewNopMockLogger()),
		WithNetwork(networkOf(transmitterAddr)),
		WithShutdownHook(func(context.Context) error {
			hookCalls.Add(1)
			return nil
		}),
	)
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tx.Run(ctx) }()

	require.True(dev.Inject(driver.EventAbs, 5, -128))
	waitForTelegram(t, rx, time.Second, func(tg telegram.Telegram, _ netip.AddrPort) bool {
		c, ok := tg.(telegram.Control)
		return ok && len(c.Values) == 2 && c.Values[1].Value == 0
	})

	require.True(dev.Press(312))
	for range 3 {
		tg, _ := waitForTelegram(t, rx, time.Second, isType[telegram.Shutdown])
		require.Equal(telegram.Shutdown{Channel: 15, Value: 0}, tg)
	}

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(2 * time.Second):
		require.FailNow("transmitter did not stop after shutdown")
	}
	require.Equal(int32(1), hookCalls.Load())

	// the device is closed with the transmitter
	_, err = dev.ReadEvent()
	require.Error(err)
}
