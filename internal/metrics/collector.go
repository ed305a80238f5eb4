// Package metrics exposes the profiler's aggregate state as Prometheus
// metrics. The collector reads the lock-free counters directly at scrape
// time; nothing is cached and the hot instrumentation paths are untouched.
package metrics

import (
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"frameprof/internal/logger"
	"frameprof/internal/profiler"
)

// ProfilerCollector implements prometheus.Collector over a profiler instance.
type ProfilerCollector struct {
	prof *profiler.Profiler
	log  log.Logger

	timerAverageDesc *prometheus.Desc
	timerCallsDesc   *prometheus.Desc
	fpsDesc          *prometheus.Desc
	frameDurationMS  *prometheus.Desc
	framesTotalDesc  *prometheus.Desc
	memCurrentDesc   *prometheus.Desc
	memPeakDesc      *prometheus.Desc
	eventsDropped    *prometheus.Desc
	netBytesDesc     *prometheus.Desc
	netPacketsDesc   *prometheus.Desc
}

// NewProfilerCollector creates the collector for a profiler instance.
func NewProfilerCollector(p *profiler.Profiler) *ProfilerCollector {
	return &ProfilerCollector{
		prof: p,
		log:  logger.NewLoggerWithContext("metrics"),

		timerAverageDesc: prometheus.NewDesc(
			"frameprof_timer_average_ms",
			"Average duration of a named timer in milliseconds.",
			[]string{"timer"}, nil),
		timerCallsDesc: prometheus.NewDesc(
			"frameprof_timer_calls_total",
			"Completed samples of a named timer.",
			[]string{"timer"}, nil),
		fpsDesc: prometheus.NewDesc(
			"frameprof_fps_average",
			"Rolling average frames per second over the frame history.",
			nil, nil),
		frameDurationMS: prometheus.NewDesc(
			"frameprof_frame_duration_ms",
			"Duration of the most recently completed frame in milliseconds.",
			nil, nil),
		framesTotalDesc: prometheus.NewDesc(
			"frameprof_frames_total",
			"Completed frames this session.",
			nil, nil),
		memCurrentDesc: prometheus.NewDesc(
			"frameprof_memory_tracked_bytes",
			"Bytes in live tracked allocations.",
			nil, nil),
		memPeakDesc: prometheus.NewDesc(
			"frameprof_memory_tracked_peak_bytes",
			"High-water mark of live tracked allocation bytes.",
			nil, nil),
		eventsDropped: prometheus.NewDesc(
			"frameprof_events_dropped_total",
			"Events discarded across all thread rings and timer stacks.",
			nil, nil),
		netBytesDesc: prometheus.NewDesc(
			"frameprof_network_bytes_total",
			"Bytes observed by the network recorder.",
			[]string{"direction"}, nil),
		netPacketsDesc: prometheus.NewDesc(
			"frameprof_network_packets_total",
			"Packets observed by the network recorder.",
			[]string{"direction"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *ProfilerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.timerAverageDesc
	ch <- c.timerCallsDesc
	ch <- c.fpsDesc
	ch <- c.frameDurationMS
	ch <- c.framesTotalDesc
	ch <- c.memCurrentDesc
	ch <- c.memPeakDesc
	ch <- c.eventsDropped
	ch <- c.netBytesDesc
	ch <- c.netPacketsDesc
}

// Collect implements prometheus.Collector.
func (c *ProfilerCollector) Collect(ch chan<- prometheus.Metric) {
	c.prof.ForEachTimer(func(ts profiler.TimerStats) {
		ch <- prometheus.MustNewConstMetric(
			c.timerAverageDesc, prometheus.GaugeValue, ts.AverageMS, ts.Name)
		ch <- prometheus.MustNewConstMetric(
			c.timerCallsDesc, prometheus.CounterValue, float64(ts.CallCount), ts.Name)
	})

	ch <- prometheus.MustNewConstMetric(
		c.fpsDesc, prometheus.GaugeValue, c.prof.AverageFPS())
	ch <- prometheus.MustNewConstMetric(
		c.framesTotalDesc, prometheus.CounterValue, float64(c.prof.FrameNumber()))
	if fs, ok := c.prof.FrameStats(0); ok {
		ch <- prometheus.MustNewConstMetric(
			c.frameDurationMS, prometheus.GaugeValue, fs.DurationMS)
	}

	ch <- prometheus.MustNewConstMetric(
		c.memCurrentDesc, prometheus.GaugeValue, float64(c.prof.CurrentMemory()))
	ch <- prometheus.MustNewConstMetric(
		c.memPeakDesc, prometheus.GaugeValue, float64(c.prof.PeakMemory()))
	ch <- prometheus.MustNewConstMetric(
		c.eventsDropped, prometheus.CounterValue, float64(c.prof.DroppedEvents()))

	if net := c.prof.Network(); net != nil {
		ch <- prometheus.MustNewConstMetric(
			c.netBytesDesc, prometheus.CounterValue, float64(net.BytesSent()), "sent")
		ch <- prometheus.MustNewConstMetric(
			c.netBytesDesc, prometheus.CounterValue, float64(net.BytesReceived()), "received")
		ch <- prometheus.MustNewConstMetric(
			c.netPacketsDesc, prometheus.CounterValue, float64(net.PacketsSent()), "sent")
		ch <- prometheus.MustNewConstMetric(
			c.netPacketsDesc, prometheus.CounterValue, float64(net.PacketsReceived()), "received")
	}

	c.log.Debug().Msg("Collected profiler metrics")
}
