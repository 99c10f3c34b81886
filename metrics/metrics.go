// Package metrics provides Prometheus metrics for acquired framebuffers.
package metrics

import (
	"image"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/BeatGlow/urmfb"
)

// Namespace of all metrics.
const Namespace = "urmfb"

// Collector records framebuffer updates. It implements [urmfb.Observer].
type Collector struct {
	// Updates counts processed updates by device, update mode and result.
	Updates *prometheus.CounterVec

	// Pixels counts updated pixels by device and update mode.
	Pixels *prometheus.CounterVec

	// Duration observes how long the device took per update.
	Duration *prometheus.HistogramVec

	// Pending tracks the updates queued but not yet completed.
	Pending *prometheus.GaugeVec
}

// New registers the framebuffer metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		Updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "updates_total",
			Help:      "Total number of framebuffer updates, by device, mode and result.",
		}, []string{"device", "mode", "result"}),
		Pixels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "updated_pixels_total",
			Help:      "Total number of pixels pushed to the panel, by device and mode.",
		}, []string{"device", "mode"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "update_duration_seconds",
			Help:      "Time the device took to complete an update, by device and mode.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"device", "mode"}),
		Pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_updates",
			Help:      "Current number of queued updates, by device.",
		}, []string{"device"}),
	}
}

// ObserveUpdate implements [urmfb.Observer].
func (c *Collector) ObserveUpdate(device string, mode urmfb.UpdateMode, r image.Rectangle, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m := mode.String()
	c.Updates.WithLabelValues(device, m, result).Inc()
	if err == nil {
		c.Pixels.WithLabelValues(device, m).Add(float64(r.Dx() * r.Dy()))
	}
	c.Duration.WithLabelValues(device, m).Observe(took.Seconds())
}

// ObserveQueue implements [urmfb.Observer].
func (c *Collector) ObserveQueue(device string, pending int) {
	c.Pending.WithLabelValues(device).Set(float64(pending))
}

var _ urmfb.Observer = (*Collector)(nil)
