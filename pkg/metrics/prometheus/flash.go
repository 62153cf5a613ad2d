// Package prometheus implements the flash core metrics interfaces on top
// of prometheus/client_golang.
package prometheus

import (
	"time"

	"github.com/marmos91/flashcore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// opDurationBuckets covers in-memory metadata work up to slow physical
// erases, in milliseconds.
var opDurationBuckets = []float64{
	0.01, // 10us
	0.05,
	0.1,
	0.5,
	1,
	5,
	10, // slow program
	50,
	100, // slow erase
	500,
}

// flashMetrics is the Prometheus implementation of metrics.FlashMetrics.
type flashMetrics struct {
	reads         prometheus.Counter
	readBytes     prometheus.Counter
	readDuration  prometheus.Histogram
	programs      prometheus.Counter
	programBytes  prometheus.Counter
	programDur    prometheus.Histogram
	erases        prometheus.Counter
	eraseDuration prometheus.Histogram
	readFailures  prometheus.Counter
	progFailures  prometheus.Counter
	eraseFailures prometheus.Counter
	badBlocks     *prometheus.CounterVec
	blocksByState *prometheus.GaugeVec
	avgEraseCount prometheus.Gauge
}

// NewFlashMetrics registers and returns flash core metrics on the given
// registry. The device id becomes a constant label so several cores can
// share one registry.
func NewFlashMetrics(reg prometheus.Registerer, deviceID string) metrics.FlashMetrics {
	constLabels := prometheus.Labels{"device": deviceID}
	factory := promauto.With(reg)

	return &flashMetrics{
		reads: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_reads_total",
			Help:        "Total number of page reads",
			ConstLabels: constLabels,
		}),
		readBytes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_read_bytes_total",
			Help:        "Total bytes read from pages",
			ConstLabels: constLabels,
		}),
		readDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "flashcore_read_duration_milliseconds",
			Help:        "Duration of page reads in milliseconds",
			Buckets:     opDurationBuckets,
			ConstLabels: constLabels,
		}),
		programs: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_programs_total",
			Help:        "Total number of page programs",
			ConstLabels: constLabels,
		}),
		programBytes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_program_bytes_total",
			Help:        "Total bytes programmed into pages",
			ConstLabels: constLabels,
		}),
		programDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "flashcore_program_duration_milliseconds",
			Help:        "Duration of page programs in milliseconds",
			Buckets:     opDurationBuckets,
			ConstLabels: constLabels,
		}),
		erases: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_erases_total",
			Help:        "Total number of block erases",
			ConstLabels: constLabels,
		}),
		eraseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "flashcore_erase_duration_milliseconds",
			Help:        "Duration of block erases in milliseconds",
			Buckets:     opDurationBuckets,
			ConstLabels: constLabels,
		}),
		readFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_read_failures_total",
			Help:        "Total number of physical read failures",
			ConstLabels: constLabels,
		}),
		progFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_program_failures_total",
			Help:        "Total number of physical program failures",
			ConstLabels: constLabels,
		}),
		eraseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "flashcore_erase_failures_total",
			Help:        "Total number of physical erase failures",
			ConstLabels: constLabels,
		}),
		badBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashcore_bad_blocks_total",
			Help:        "Total number of blocks quarantined, by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		blocksByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "flashcore_blocks",
			Help:        "Number of blocks by health state",
			ConstLabels: constLabels,
		}, []string{"state"}),
		avgEraseCount: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "flashcore_avg_erase_count",
			Help:        "Average erase count across all blocks",
			ConstLabels: constLabels,
		}),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func (m *flashMetrics) ObserveRead(bytes int, duration time.Duration) {
	m.reads.Inc()
	m.readBytes.Add(float64(bytes))
	m.readDuration.Observe(ms(duration))
}

func (m *flashMetrics) ObserveProgram(bytes int, duration time.Duration) {
	m.programs.Inc()
	m.programBytes.Add(float64(bytes))
	m.programDur.Observe(ms(duration))
}

func (m *flashMetrics) ObserveErase(duration time.Duration) {
	m.erases.Inc()
	m.eraseDuration.Observe(ms(duration))
}

func (m *flashMetrics) IncReadFailure()    { m.readFailures.Inc() }
func (m *flashMetrics) IncProgramFailure() { m.progFailures.Inc() }
func (m *flashMetrics) IncEraseFailure()   { m.eraseFailures.Inc() }

func (m *flashMetrics) IncBadBlock(reason string) {
	m.badBlocks.WithLabelValues(reason).Inc()
}

func (m *flashMetrics) SetBlockStates(good, worn, bad uint32) {
	m.blocksByState.WithLabelValues("good").Set(float64(good))
	m.blocksByState.WithLabelValues("worn").Set(float64(worn))
	m.blocksByState.WithLabelValues("bad").Set(float64(bad))
}

func (m *flashMetrics) SetAvgEraseCount(avg float64) {
	m.avgEraseCount.Set(avg)
}

// Ensure flashMetrics implements metrics.FlashMetrics.
var _ metrics.FlashMetrics = (*flashMetrics)(nil)
