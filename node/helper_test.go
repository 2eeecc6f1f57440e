package node

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-rclink/config"
	"github.com/arloliu/go-rclink/telegram"
	"github.com/arloliu/go-rclink/transport"
	"github.com/stretchr/testify/require"
)

var (
	testPrefix      = netip.MustParsePrefix("10.0.0.0/24")
	transmitterAddr = netip.MustParseAddr("10.0.0.1")
	receiverAddr    = netip.MustParseAddr("10.0.0.2")
	screenAddr      = netip.MustParseAddr("10.0.0.3")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func listen(t *testing.T, n *transport.MemNetwork, addr netip.Addr, port uint16) *transport.MemConn {
	t.Helper()

	conn, err := n.Listen(netip.AddrPortFrom(addr, port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func networkOf(addr netip.Addr) netip.Prefix {
	return netip.PrefixFrom(addr, testPrefix.Bits())
}

// fastConfig returns the default configuration with timings short enough for real-time tests.
func fastConfig() *config.Config {
	cfg := config.Default()

	rx := &cfg.Receiver
	rx.Timeout = 150 * time.Millisecond
	rx.WatchdogInterval = 10 * time.Millisecond
	rx.ReadTimeout = 10 * time.Millisecond
	rx.BeaconInterval = 50 * time.Millisecond
	rx.BurstInterval = 10 * time.Millisecond
	rx.SensorInterval = 20 * time.Millisecond
	rx.ShutdownDelay = 10 * time.Millisecond

	tx := &cfg.Transmitter
	tx.Timeout = 200 * time.Millisecond
	tx.ControlInterval = 10 * time.Millisecond
	tx.TrimInterval = 100 * time.Millisecond
	tx.BeaconInterval = 50 * time.Millisecond
	tx.BurstInterval = 10 * time.Millisecond
	tx.ScreenInterval = 20 * time.Millisecond
	tx.ReadTimeout = 10 * time.Millisecond
	tx.ShutdownSpacing = 10 * time.Millisecond

	return cfg
}

func sendTelegram(t *testing.T, conn *transport.MemConn, tg telegram.Telegram, dst netip.AddrPort) {
	t.Helper()

	frame, err := telegram.Encode(tg)
	require.NoError(t, err)
	_, err = conn.WriteTo(frame, dst)
	require.NoError(t, err)
}

// waitForTelegram reads conn until a telegram matching match arrives or timeout passes.
func waitForTelegram(t *testing.T, conn *transport.MemConn, timeout time.Duration, match func(telegram.Telegram, netip.AddrPort) bool) (telegram.Telegram, netip.AddrPort) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, telegram.MaxFrameSize)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		n, src, err := conn.ReadFrom(buf)
		if transport.IsTimeout(err) {
			break
		}
		require.NoError(t, err)

		tg, err := telegram.Decode(buf[:n])
		require.NoError(t, err)
		if match(tg, src) {
			return tg, src
		}
	}
	require.FailNow(t, "no matching telegram received", "timeout %v", timeout)

	return nil, netip.AddrPort{}
}

func isType[T telegram.Telegram](tg telegram.Telegram, _ netip.AddrPort) bool {
	_, ok := tg.(T)
	return ok
}

// drain returns the telegrams queued on conn, waiting at most wait for each.
func drain(t *testing.T, conn *transport.MemConn, wait time.Duration) []telegram.Telegram {
	t.Helper()

	var out []telegram.Telegram
	buf := make([]byte, telegram.MaxFrameSize)
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
		n, _, err := conn.ReadFrom(buf)
		if transport.IsTimeout(err) {
			return out
		}
		require.NoError(t, err)

		tg, err := telegram.Decode(buf[:n])
		require.NoError(t, err)
		out = append(out, tg)
	}
}

func filter[T telegram.Telegram](tgs []telegram.Telegram) []T {
	var out []T
	for _, tg := range tgs {
		if v, ok := tg.(T); ok {
			out = append(out, v)
		}
	}

	return out
}
