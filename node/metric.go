package node

import (
	"sync/atomic"

	"github.com/arloliu/go-rclink/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// LinkMetrics contains atomic metrics for one node.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc, see Register.
type LinkMetrics struct {
	// SendCount indicates the number of telegrams sent.
	SendCount atomic.Uint64
	// SendErrCount indicates the number of failed sends.
	SendErrCount atomic.Uint64
	// RecvCount indicates the number of valid telegrams received.
	RecvCount atomic.Uint64
	// RecvErrCount indicates the number of failed socket reads, timeouts excluded.
	RecvErrCount atomic.Uint64
	// MalformedCount indicates the number of datagrams dropped by the decoder.
	MalformedCount atomic.Uint64
	// QueueDropCount indicates the number of input events dropped because a queue was full.
	QueueDropCount atomic.Uint64
	// ActuatorErrCount indicates the number of failed actuator writes.
	ActuatorErrCount atomic.Uint64
	// FailsafeCount indicates the number of times all channels were driven to failsafe.
	FailsafeCount atomic.Uint64
	// LinkState is the current watchdog.State of the link.
	LinkState atomic.Uint32

	recvByType *xsync.MapOf[telegram.Type, *atomic.Uint64]
}

// NewLinkMetrics creates zeroed metrics.
func NewLinkMetrics() *LinkMetrics {
	return &LinkMetrics{recvByType: xsync.NewMapOf[telegram.Type, *atomic.Uint64]()}
}

// RecvCountByType returns the number of received telegrams of type t.
func (m *LinkMetrics) RecvCountByType(t telegram.Type) uint64 {
	if c, ok := m.recvByType.Load(t); ok {
		return c.Load()
	}

	return 0
}

func (m *LinkMetrics) incRecvCount(t telegram.Type) {
	m.RecvCount.Add(1)
	c, _ := m.recvByType.LoadOrCompute(t, func() *atomic.Uint64 { return &atomic.Uint64{} })
	c.Add(1)
}

func (m *LinkMetrics) incSendCount() { m.SendCount.Add(1) }
func (m *LinkMetrics) incSendErrCount() { m.SendErrCount.Add(1) }
func (m *LinkMetrics) incRecvErrCount() { m.RecvErrCount.Add(1) }
func (m *LinkMetrics) incMalformedCount() { m.MalformedCount.Add(1) }
func (m *LinkMetrics) incQueueDropCount() { m.QueueDropCount.Add(1) }
func (m *LinkMetrics) incActuatorErrCount() { m.ActuatorErrCount.Add(1) }
func (m *LinkMetrics) incFailsafeCount() { m.FailsafeCount.Add(1) }

// Register exposes the metrics on reg. labels are added to every metric, typically the node
// role.
func (m *LinkMetrics) Register(reg prometheus.Registerer, labels prometheus.Labels) error {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "rclink",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(v.Load()) })
	}

	collectors := []prometheus.Collector{
		counter("telegrams_sent_total", "Telegrams sent.", &m.SendCount),
		counter("send_errors_total", "Failed telegram sends.", &m.SendErrCount),
		counter("telegrams_received_total", "Valid telegrams received.", &m.RecvCount),
		counter("receive_errors_total", "Failed socket reads.", &m.RecvErrCount),
		counter("malformed_total", "Datagrams dropped by the decoder.", &m.MalformedCount),
		counter("queue_drops_total", "Input events dropped on a full queue.", &m.QueueDropCount),
		counter("actuator_errors_total", "Failed actuator writes.", &m.ActuatorErrCount),
		counter("failsafe_total", "Failsafe activations.", &m.FailsafeCount),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "rclink",
			Name:        "link_state",
			Help:        "Link state: 0 unknown, 1 connected, 2 lost.",
			ConstLabels: labels,
		}, func() float64 { return float64(m.LinkState.Load()) }),
	}

	for _, t := range []telegram.Type{
		telegram.IdentifyReceiverType,
		telegram.ValuesType,
		telegram.IdentifyTransmitterType,
		telegram.ScreenStatusType,
		telegram.IdentifyScreenType,
		telegram.HeartbeatType,
	} {
		typeLabels := prometheus.Labels{"type": t.String()}
		for k, v := range labels {
			typeLabels[k] = v
		}
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "rclink",
			Name:        "telegrams_received_by_type_total",
			Help:        "Valid telegrams received per telegram type.",
			ConstLabels: typeLabels,
		}, func() float64 { return float64(m.RecvCountByType(t)) }))
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}
