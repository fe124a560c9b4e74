// Package metrics exposes recording statistics to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrec/pkg/recorder"
)

const namespace = "screenrec"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(*recorder.Stats) uint64
}

// Collector reports the stats of the current recording session.
type Collector struct {
	getStats func(context.Context) (recorder.Stats, bool)

	counters      []counterDesc
	poolSlotsDesc *prometheus.Desc
	clockDesc     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over getStats; getStats returns false
// if there is no session (yet).
func NewCollector(getStats func(context.Context) (recorder.Stats, bool)) *Collector {
	counter := func(name, help string, value func(*recorder.Stats) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			value: value,
		}
	}
	return &Collector{
		getStats: getStats,
		counters: []counterDesc{
			counter("video_frames_received_total", "Frames received from the capture source.",
				func(s *recorder.Stats) uint64 { return s.FramesReceived }),
			counter("video_frames_paced_out_total", "Frames skipped to keep the target frame rate.",
				func(s *recorder.Stats) uint64 { return s.FramesPacedOut }),
			counter("video_frames_dropped_total", "Frames dropped due to the encoder backpressure.",
				func(s *recorder.Stats) uint64 { return s.FramesDropped }),
			counter("video_frames_submitted_total", "Frames submitted to the encoder.",
				func(s *recorder.Stats) uint64 { return s.FramesSubmitted }),
			counter("timeline_ticks_total", "Timeline ticks sent while the video was stalled.",
				func(s *recorder.Stats) uint64 { return s.TimelineTicks }),
			counter("audio_blocks_before_start_total", "Audio blocks captured before the first video frame.",
				func(s *recorder.Stats) uint64 { return s.AudioBlocksBeforeStart }),
			counter("audio_blocks_trimmed_total", "Audio blocks partially preceding the recording start.",
				func(s *recorder.Stats) uint64 { return s.AudioBlocksTrimmed }),
			counter("audio_blocks_discarded_total", "Audio blocks entirely preceding the recording start.",
				func(s *recorder.Stats) uint64 { return s.AudioBlocksDiscarded }),
			counter("audio_frames_submitted_total", "Audio frames submitted to the encoder.",
				func(s *recorder.Stats) uint64 { return s.AudioFramesSubmitted }),
			counter("output_bytes_total", "Bytes written into the output file.",
				func(s *recorder.Stats) uint64 { return s.Encoder.BytesCountWrote }),
		},
		poolSlotsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_slots"),
			"Buffer pool slots by stream and state.",
			[]string{"stream", "state"}, nil,
		),
		clockDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "audio_clock_source"),
			"The clock source chosen for the audio timestamps.",
			[]string{"source"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, counter := range c.counters {
		ch <- counter.desc
	}
	ch <- c.poolSlotsDesc
	ch <- c.clockDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats, ok := c.getStats(context.Background())
	if !ok {
		return
	}
	for _, counter := range c.counters {
		ch <- prometheus.MustNewConstMetric(counter.desc, prometheus.CounterValue, float64(counter.value(&stats)))
	}
	for stream, pool := range map[string]struct{ Free, Held, InFlight int }{
		"video": {stats.VideoPool.Free, stats.VideoPool.Held, stats.VideoPool.InFlight},
		"audio": {stats.AudioPool.Free, stats.AudioPool.Held, stats.AudioPool.InFlight},
	} {
		ch <- prometheus.MustNewConstMetric(c.poolSlotsDesc, prometheus.GaugeValue, float64(pool.Free), stream, "free")
		ch <- prometheus.MustNewConstMetric(c.poolSlotsDesc, prometheus.GaugeValue, float64(pool.Held), stream, "held")
		ch <- prometheus.MustNewConstMetric(c.poolSlotsDesc, prometheus.GaugeValue, float64(pool.InFlight), stream, "in_flight")
	}
	ch <- prometheus.MustNewConstMetric(c.clockDesc, prometheus.GaugeValue, 1, stats.ClockSource.String())
}

// Serve exposes the registry at "/metrics" until the context is
// cancelled.
func Serve(
	ctx context.Context,
	listenAddr string,
	registry *prometheus.Registry,
) (net.Addr, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("unable to listen at '%s': %w", listenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Infof(ctx, "serving metrics at 'http://%s/metrics'", listener.Addr())
	observability.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		if err := srv.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the metrics server: %v", err)
		}
	})
	observability.Go(ctx, func(ctx context.Context) {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Errorf(ctx, "the metrics server failed: %v", err)
		}
	})
	return listener.Addr(), nil
}
