// Package metrics exposes every endpoint's live C2 buffer counters (spec
// §3's stat fields) as Prometheus metrics, read straight from
// playermanager.Manager on each scrape rather than mirrored into a second
// set of counters incremented by hand — the status broadcaster and
// /metrics end up reading the exact same numbers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sendspin/endpoint-core/internal/playermanager"
)

const namespace = "endpointd"

// Collector implements prometheus.Collector over a playermanager.Manager.
type Collector struct {
	manager *playermanager.Manager

	totalWritten    *prometheus.Desc
	totalRead       *prometheus.Desc
	droppedOverflow *prometheus.Desc
	droppedSync     *prometheus.Desc
	insertedSync    *prometheus.Desc
	overrunCount    *prometheus.Desc
	underrunCount   *prometheus.Desc
	bufferedMS      *prometheus.Desc
	targetMS        *prometheus.Desc
	syncErrorUS     *prometheus.Desc
	playbackActive  *prometheus.Desc
}

// NewCollector builds a Collector over manager. Register it with a
// *prometheus.Registry before serving /metrics.
func NewCollector(manager *playermanager.Manager) *Collector {
	labels := []string{"player"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(namespace+"_"+name, help, labels, nil)
	}
	return &Collector{
		manager:         manager,
		totalWritten:    desc("buffer_total_written_samples", "Total sample frames (one sample per channel) written to the timed audio buffer."),
		totalRead:       desc("buffer_total_read_samples", "Total sample frames (one sample per channel) read from the timed audio buffer."),
		droppedOverflow: desc("buffer_dropped_overflow_samples", "Samples dropped because the buffer was full."),
		droppedSync:     desc("buffer_dropped_sync_samples", "Samples dropped for being a duplicate or too late."),
		insertedSync:    desc("buffer_inserted_sync_samples", "Samples inserted by the legacy correction path."),
		overrunCount:    desc("buffer_overrun_total", "Count of overflow-eviction events."),
		underrunCount:   desc("buffer_underrun_total", "Count of reads that found no due frame."),
		bufferedMS:      desc("buffer_buffered_milliseconds", "Currently buffered audio, in milliseconds."),
		targetMS:        desc("buffer_target_milliseconds", "Configured target buffer depth, in milliseconds."),
		syncErrorUS:     desc("sync_error_microseconds", "Smoothed sync error, in microseconds."),
		playbackActive:  desc("playback_active", "1 if the endpoint has started playing its first scheduled frame, else 0."),
	}
}

// Describe satisfies prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalWritten
	ch <- c.totalRead
	ch <- c.droppedOverflow
	ch <- c.droppedSync
	ch <- c.insertedSync
	ch <- c.overrunCount
	ch <- c.underrunCount
	ch <- c.bufferedMS
	ch <- c.targetMS
	ch <- c.syncErrorUS
	ch <- c.playbackActive
}

// Collect satisfies prometheus.Collector, emitting one sample set per
// known player from a fresh BufferStats snapshot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, stats := range c.manager.BufferStats() {
		ch <- prometheus.MustNewConstMetric(c.totalWritten, prometheus.CounterValue, float64(stats.TotalWritten), name)
		ch <- prometheus.MustNewConstMetric(c.totalRead, prometheus.CounterValue, float64(stats.TotalRead), name)
		ch <- prometheus.MustNewConstMetric(c.droppedOverflow, prometheus.CounterValue, float64(stats.DroppedOverflow), name)
		ch <- prometheus.MustNewConstMetric(c.droppedSync, prometheus.CounterValue, float64(stats.DroppedSync), name)
		ch <- prometheus.MustNewConstMetric(c.insertedSync, prometheus.CounterValue, float64(stats.InsertedSync), name)
		ch <- prometheus.MustNewConstMetric(c.overrunCount, prometheus.CounterValue, float64(stats.OverrunCount), name)
		ch <- prometheus.MustNewConstMetric(c.underrunCount, prometheus.CounterValue, float64(stats.UnderrunCount), name)
		ch <- prometheus.MustNewConstMetric(c.bufferedMS, prometheus.GaugeValue, stats.BufferedMS, name)
		ch <- prometheus.MustNewConstMetric(c.targetMS, prometheus.GaugeValue, stats.TargetMS, name)
		ch <- prometheus.MustNewConstMetric(c.syncErrorUS, prometheus.GaugeValue, stats.SyncErrorUS, name)

		active := 0.0
		if stats.IsPlaybackActive {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.playbackActive, prometheus.GaugeValue, active, name)
	}
}
