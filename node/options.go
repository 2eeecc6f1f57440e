package node

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/arloliu/go-rclink/config"
	"github.com/arloliu/go-rclink/driver"
	"github.com/arloliu/go-rclink/logger"
	"github.com/arloliu/go-rclink/transport"
)

// ErrNilOption is returned by the constructors for a nil option argument.
var ErrNilOption = errors.New("nil option value")

// ShutdownFunc hands a node over to process termination after a shutdown sequence,
// typically by running the configured shutdown command.
type ShutdownFunc func(ctx context.Context) error

// nodeConfig holds the settings shared by both roles.
type nodeConfig struct {
	logger   logger.Logger
	metrics  *LinkMetrics
	network  netip.Prefix
	ports    config.Ports
	now      func() time.Time
	shutdown ShutdownFunc
}

func defaultNodeConfig(cfg *config.Config) nodeConfig {
	return nodeConfig{
		ports: cfg.Ports,
		now:   time.Now,
	}
}

// addresses returns the own address and the broadcast address of the subnet. Without a network the
// local address of conn and the limited broadcast address are used.
func (c *nodeConfig) addresses(connAddr netip.AddrPort) (netip.Addr, netip.Addr) {
	if c.network.IsValid() {
		return c.network.Addr().Unmap(), transport.Broadcast(c.network)
	}

	return connAddr.Addr().Unmap(), netip.AddrFrom4([4]byte{255, 255, 255, 255})
}

type receiverConfig struct {
	nodeConfig
	rx       config.ReceiverConfig
	channels []config.ChannelConfig
	sensor   driver.Sensor
}

type transmitterConfig struct {
	nodeConfig
	tx config.TransmitterConfig
}

// ReceiverOption configures a Receiver.
type ReceiverOption interface {
	applyReceiver(*receiverConfig) error
}

// TransmitterOption configures a Transmitter.
type TransmitterOption interface {
	applyTransmitter(*transmitterConfig) error
}

// Option configures either node.
type Option interface {
	ReceiverOption
	TransmitterOption
}

type nodeOptFunc struct {
	name      string
	applyFunc func(*nodeConfig) error
}

func (o *nodeOptFunc) applyReceiver(cfg *receiverConfig) error {
	return o.applyFunc(&cfg.nodeConfig)
}

func (o *nodeOptFunc) applyTransmitter(cfg *transmitterConfig) error {
	return o.applyFunc(&cfg.nodeConfig)
}

func newNodeOptFunc(name string, f func(*nodeConfig) error) *nodeOptFunc {
	return &nodeOptFunc{name: name, applyFunc: f}
}

type receiverOptFunc struct {
	name      string
	applyFunc func(*receiverConfig) error
}

func (o *receiverOptFunc) applyReceiver(cfg *receiverConfig) error { return o.applyFunc(cfg) }

type configOpt struct {
	cfg *config.Config
}

func (o configOpt) applyReceiver(cfg *receiverConfig) error {
	if o.cfg == nil {
		return ErrNilOption
	}
	cfg.ports = o.cfg.Ports
	cfg.rx = o.cfg.Receiver

	return nil
}

func (o configOpt) applyTransmitter(cfg *transmitterConfig) error {
	if o.cfg == nil {
		return ErrNilOption
	}
	cfg.ports = o.cfg.Ports
	cfg.tx = o.cfg.Transmitter

	return nil
}

// WithConfig takes ports, timing, channels and bindings from a loaded configuration.
// The configuration is expected to be validated, see config.Load.
//
// The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return configOpt{cfg: cfg}
}

// WithLogger sets the logger of the node.
//
// The default logger is the global logger instance.
func WithLogger(l logger.Logger) Option {
	return newNodeOptFunc("WithLogger", func(cfg *nodeConfig) error {
		if l == nil {
			return ErrNilOption
		}
		cfg.logger = l

		return nil
	})
}

// WithMetrics sets the metrics the node updates. The default is a private LinkMetrics
// available through the node's Metrics method.
func WithMetrics(m *LinkMetrics) Option {
	return newNodeOptFunc("WithMetrics", func(cfg *nodeConfig) error {
		if m == nil {
			return ErrNilOption
		}
		cfg.metrics = m

		return nil
	})
}

// WithNetwork sets the own address and subnet of the node, e.g. 192.168.4.10/24, as
// returned by transport.WaitForIPv4. It determines the address sent in identify telegrams and
// the broadcast address.
//
// The default is the local address of the connection and 255.255.255.255.
func WithNetwork(prefix netip.Prefix) Option {
	return newNodeOptFunc("WithNetwork", func(cfg *nodeConfig) error {
		if !prefix.IsValid() || !prefix.Addr().Unmap().Is4() {
			return errors.New("network must be an IPv4 prefix")
		}
		cfg.network = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits())

		return nil
	})
}

// WithClock sets the clock used for watchdog and schedule decisions.
func WithClock(now func() time.Time) Option {
	return newNodeOptFunc("WithClock", func(cfg *nodeConfig) error {
		if now == nil {
			return ErrNilOption
		}
		cfg.now = now

		return nil
	})
}

// WithShutdownHook sets the function called at the end of the shutdown sequence.
//
// Without a hook the node just stops.
func WithShutdownHook(fn ShutdownFunc) Option {
	return newNodeOptFunc("WithShutdownHook", func(cfg *nodeConfig) error {
		cfg.shutdown = fn
		return nil
	})
}

// WithSensor sets the analog sensor polled by the receiver. Without a sensor the receiver
// reports the configured default voltage.
func WithSensor(s driver.Sensor) ReceiverOption {
	return &receiverOptFunc{name: "WithSensor", applyFunc: func(cfg *receiverConfig) error {
		cfg.sensor = s
		return nil
	}}
}

// WithChannels replaces the model selected in the configuration with chans.
func WithChannels(chans []config.ChannelConfig) ReceiverOption {
	return &receiverOptFunc{name: "WithChannels", applyFunc: func(cfg *receiverConfig) error {
		if len(chans) == 0 {
			return errors.New("empty channel configuration")
		}
		cfg.channels = append([]config.ChannelConfig(nil), chans...)

		return nil
	}}
}
