package node

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/arloliu/go-rclink/logger"
	"github.com/arloliu/go-rclink/telegram"
	"github.com/arloliu/go-rclink/transport"
)

// Diagnostics emitted per datagram or per input event are limited to diagBurst messages per
// diagInterval.
const (
	diagInterval = time.Second
	diagBurst    = 5
)

// endpoint is the socket side of a node: encoding, sending, receiving and decoding, with the
// failures counted and logged.
//
// send is called only from the IO goroutine and receive only from the goroutine owning the
// receive side of the socket.
type endpoint struct {
	conn      transport.Conn
	local     netip.Addr
	broadcast netip.Addr
	metrics   *LinkMetrics
	logger    logger.Logger
	diag      logger.Logger

	sendBuf []byte
	recvBuf []byte
}

func newEndpoint(conn transport.Conn, cfg *nodeConfig, l logger.Logger) *endpoint {
	local, broadcast := cfg.addresses(conn.LocalAddr())

	return &endpoint{
		conn:      conn,
		local:     local,
		broadcast: broadcast,
		metrics:   cfg.metrics,
		logger:    l,
		diag:      logger.NewThrottled(l, diagInterval, diagBurst),
		sendBuf:   make([]byte, 0, telegram.MaxFrameSize),
		recvBuf:   make([]byte, telegram.MaxFrameSize),
	}
}

// send encodes t and sends it to dst. Failures are transient: they are counted, logged and
// returned, the caller carries on with the next cycle.
func (e *endpoint) send(t telegram.Telegram, dst netip.AddrPort) error {
	frame, err := telegram.AppendEncode(e.sendBuf[:0], t)
	if err != nil {
		e.logger.Error("failed to encode telegram", "type", t.Type(), "error", err)
		return err
	}
	e.sendBuf = frame[:0]

	if _, err := e.conn.WriteTo(frame, dst); err != nil {
		e.metrics.incSendErrCount()
		e.diag.Warn("failed to send telegram", "type", t.Type(), "dst", dst, "error", err)

		return err
	}
	e.metrics.incSendCount()
	e.logger.Debug("telegram sent", "type", t.Type(), "dst", dst)

	return nil
}

var errConnClosed = errors.New("connection closed")

// receive waits up to timeout for one datagram and decodes it.
//
// It returns a nil telegram when nothing usable arrived: the deadline passed, the read failed
// or the datagram was malformed. errConnClosed is returned once the connection is closed.
func (e *endpoint) receive(timeout time.Duration) (telegram.Telegram, netip.AddrPort, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, netip.AddrPort{}, errConnClosed
		}
		e.diag.Warn("failed to set read deadline", "error", err)
	}

	n, src, err := e.conn.ReadFrom(e.recvBuf)
	switch {
	case err == nil:
	case transport.IsTimeout(err):
		return nil, src, nil
	case errors.Is(err, net.ErrClosed):
		return nil, src, errConnClosed
	default:
		e.metrics.incRecvErrCount()
		e.diag.Warn("failed to receive datagram", "error", err)

		return nil, src, nil
	}

	t, err := telegram.Decode(e.recvBuf[:n])
	if err != nil {
		e.metrics.incMalformedCount()
		e.diag.Warn("dropped malformed datagram", "src", src, "size", n, "error", err)

		return nil, src, nil
	}
	e.metrics.incRecvCount(t.Type())

	return t, netip.AddrPortFrom(src.Addr().Unmap(), src.Port()), nil
}

// sleepCtx pauses for d and reports false if ctx was done first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
