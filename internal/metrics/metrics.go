package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for an encode session.
// All methods are safe on a nil receiver so components can run unmetered.
type Metrics struct {
	registry *prometheus.Registry

	framesSubmitted   prometheus.Counter
	framesDropped     *prometheus.CounterVec
	packetsEmitted    prometheus.Counter
	bytesEmitted      prometheus.Counter
	busyRounds        prometheus.Counter
	deadlocks         prometheus.Counter
	poolAllocations   prometheus.Counter
	poolReuses        prometheus.Counter
	poolDiscards      prometheus.Counter
	poolFree          prometheus.Gauge
	poolInFlight      prometheus.Gauge
	lockTimeouts      prometheus.Counter
	encodeRoundTiming prometheus.Histogram
}

// New creates and registers the encoder metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: FramesSubmitted,
			Help: "Frames accepted by the codec",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: FramesDropped,
			Help: "Frames dropped before reaching the codec, by reason",
		}, []string{"reason"}),
		packetsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: Packets,
			Help: "Packets drained from the codec",
		}),
		bytesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PacketBytes,
			Help: "Compressed bytes drained from the codec",
		}),
		busyRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: CodecBusyRounds,
			Help: "Submit attempts refused with backpressure",
		}),
		deadlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: Deadlocks,
			Help: "Rounds where both submit and drain reported busy",
		}),
		poolAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PoolAllocations,
			Help: "Frames allocated because the reuse stack had none",
		}),
		poolReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PoolReuses,
			Help: "Frames served from the reuse stack",
		}),
		poolDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PoolDiscards,
			Help: "Returned frames discarded by the idle threshold or a geometry change",
		}),
		poolFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "encodebridge_pool_free_frames",
			Help: "Frames waiting on the reuse stack",
		}),
		poolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "encodebridge_pool_inflight_frames",
			Help: "Frames currently owned by the codec",
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: LockTimeouts,
			Help: "Shared texture lock acquisitions that timed out",
		}),
		encodeRoundTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "encodebridge_encode_round_seconds",
			Help:    "Wall time spent in one submit/drain call",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1},
		}),
	}

	registry.MustRegister(
		m.framesSubmitted,
		m.framesDropped,
		m.packetsEmitted,
		m.bytesEmitted,
		m.busyRounds,
		m.deadlocks,
		m.poolAllocations,
		m.poolReuses,
		m.poolDiscards,
		m.poolFree,
		m.poolInFlight,
		m.lockTimeouts,
		m.encodeRoundTiming,
	)

	return m
}

func (m *Metrics) FrameSubmitted() {
	if m != nil {
		m.framesSubmitted.Inc()
	}
}

// FrameDropped counts a frame that never reached the codec
func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PacketEmitted(size int) {
	if m != nil {
		m.packetsEmitted.Inc()
		m.bytesEmitted.Add(float64(size))
	}
}

func (m *Metrics) CodecBusy() {
	if m != nil {
		m.busyRounds.Inc()
	}
}

func (m *Metrics) CodecDeadlock() {
	if m != nil {
		m.deadlocks.Inc()
	}
}

func (m *Metrics) PoolAllocated() {
	if m != nil {
		m.poolAllocations.Inc()
	}
}

func (m *Metrics) PoolReused() {
	if m != nil {
		m.poolReuses.Inc()
	}
}

func (m *Metrics) PoolDiscarded() {
	if m != nil {
		m.poolDiscards.Inc()
	}
}

// PoolSizes records the current reuse stack and in-flight FIFO lengths
func (m *Metrics) PoolSizes(free, inFlight int) {
	if m != nil {
		m.poolFree.Set(float64(free))
		m.poolInFlight.Set(float64(inFlight))
	}
}

func (m *Metrics) LockTimeout() {
	if m != nil {
		m.lockTimeouts.Inc()
	}
}

// ObserveRound records the duration of one encode call in seconds
func (m *Metrics) ObserveRound(seconds float64) {
	if m != nil {
		m.encodeRoundTiming.Observe(seconds)
	}
}

// Metric family names used by Total
const (
	FramesSubmitted = "encodebridge_frames_submitted_total"
	FramesDropped   = "encodebridge_frames_dropped_total"
	Packets         = "encodebridge_packets_total"
	PacketBytes     = "encodebridge_packet_bytes_total"
	CodecBusyRounds = "encodebridge_codec_busy_total"
	Deadlocks       = "encodebridge_codec_deadlocks_total"
	PoolAllocations = "encodebridge_pool_allocations_total"
	PoolReuses      = "encodebridge_pool_reuses_total"
	PoolDiscards    = "encodebridge_pool_discards_total"
	LockTimeouts    = "encodebridge_keyed_mutex_timeouts_total"
)

// Total sums every counter and gauge sample of the named family, across all
// label values. Unknown names and a nil receiver yield 0.
func (m *Metrics) Total(name string) float64 {
	if m == nil {
		return 0
	}
	families, err := m.registry.Gather()
	if err != nil {
		return 0
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, s := range mf.GetMetric() {
			if c := s.GetCounter(); c != nil {
				sum += c.GetValue()
			}
			if g := s.GetGauge(); g != nil {
				sum += g.GetValue()
			}
		}
	}
	return sum
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
