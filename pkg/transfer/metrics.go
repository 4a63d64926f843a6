package transfer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plus_frametransfer"

var (
	transfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Frame transfers issued by backend, direction and result.",
	}, []string{"backend", "direction", "result"})

	issueSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "issue_seconds",
		Help:      "Time spent in TransferBegin.",
		Buckets:   []float64{.0001, .0005, .001, .002, .005, .01, .02, .04, .08},
	}, []string{"backend", "direction"})

	waitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "wait_seconds",
		Help:      "Time spent blocked in WaitForCompletion.",
		Buckets:   []float64{.0001, .0005, .001, .002, .005, .01, .02, .04, .08},
	}, []string{"backend"})

	sessionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_open",
		Help:      "Frame transfer sessions currently open.",
	})

	pinnedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pinned_bytes",
		Help:      "Host memory locked by the native copy engine sessions.",
	})
)

func init() {
	prometheus.MustRegister(transfersTotal, issueSeconds, waitSeconds, sessionsOpen, pinnedBytes)
}

func observeIssue(k Kind, d Direction, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrTransferTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	transfersTotal.WithLabelValues(k.String(), d.String(), result).Inc()
	issueSeconds.WithLabelValues(k.String(), d.String()).Observe(time.Since(start).Seconds())
}
