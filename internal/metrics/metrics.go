// Package metrics exposes prometheus collectors for frame ingestion and engine
// lifecycle. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/mem"
)

const namespace = "vodrive"

// Engine states reported through the vodrive_engine_state gauge.
var engineStates = []string{"uninitialized", "tracking", "init_failed", "lost", "terminated"}

// Recorder owns a private registry so tests and multiple controllers do not
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	framesFed      prometheus.Counter
	framesSkipped  prometheus.Counter
	resets         *prometheus.CounterVec
	state          *prometheus.GaugeVec
	generation     prometheus.Gauge
	feedDuration   prometheus.Histogram
	preloadBytes   prometheus.Gauge
	trajectoryDrop prometheus.Counter
	streamClients  prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		framesFed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_fed_total",
			Help:      "Frames delivered to the engine.",
		}),
		framesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Playback frames dropped for arriving too late.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_resets_total",
			Help:      "Engine reset transitions by reason.",
		}, []string{"reason"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_state",
			Help:      "1 for the current engine session state, 0 otherwise.",
		}, []string{"state"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_generation",
			Help:      "Number of engine instances constructed.",
		}),
		feedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_duration_seconds",
			Help:      "Time spent inside one engine feed, including lock wait.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		preloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preload_bytes",
			Help:      "Memory held by preloaded playback frames.",
		}),
		trajectoryDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trajectory_dropped_total",
			Help:      "Trajectory records dropped because the writer fell behind.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket event stream clients.",
		}),
	}
	memoryPercent := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_used_percent",
		Help:      "System memory in use.",
	}, func() float64 {
		stat, err := mem.VirtualMemory()
		if err != nil {
			return 0
		}
		return stat.UsedPercent
	})

	r.registry.MustRegister(
		r.framesFed, r.framesSkipped, r.resets, r.state, r.generation,
		r.feedDuration, r.preloadBytes, r.trajectoryDrop, r.streamClients,
		memoryPercent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, s := range engineStates {
		r.state.WithLabelValues(s).Set(0)
	}
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// FrameFed counts one delivered frame and its feed latency.
func (r *Recorder) FrameFed(seconds float64) {
	if r == nil {
		return
	}
	r.framesFed.Inc()
	r.feedDuration.Observe(seconds)
}

// FrameSkipped counts one dropped playback frame.
func (r *Recorder) FrameSkipped() {
	if r == nil {
		return
	}
	r.framesSkipped.Inc()
}

// EngineReset counts one reset transition.
func (r *Recorder) EngineReset(reason string) {
	if r == nil {
		return
	}
	r.resets.WithLabelValues(reason).Inc()
}

// EngineState marks state as current.
func (r *Recorder) EngineState(state string) {
	if r == nil {
		return
	}
	for _, s := range engineStates {
		value := 0.0
		if s == state {
			value = 1
		}
		r.state.WithLabelValues(s).Set(value)
	}
}

// EngineGeneration records the number of engines constructed.
func (r *Recorder) EngineGeneration(generation int) {
	if r == nil {
		return
	}
	r.generation.Set(float64(generation))
}

// PreloadBytes records memory held by the preload buffer.
func (r *Recorder) PreloadBytes(bytes int64) {
	if r == nil {
		return
	}
	r.preloadBytes.Set(float64(bytes))
}

// TrajectoryDropped counts records the trajectory writer could not keep up with.
func (r *Recorder) TrajectoryDropped() {
	if r == nil {
		return
	}
	r.trajectoryDrop.Inc()
}

// StreamClients records the number of connected event stream clients.
func (r *Recorder) StreamClients(n int) {
	if r == nil {
		return
	}
	r.streamClients.Set(float64(n))
}
