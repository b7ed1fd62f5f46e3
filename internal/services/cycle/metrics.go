package cycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series exported by the controller.
type Metrics struct {
	Cycles           *prometheus.CounterVec
	Duration         prometheus.Histogram
	Skipped          *prometheus.CounterVec
	ClimateFallbacks prometheus.Counter
	AdvisorFallbacks prometheus.Counter
	UploadFailures   prometheus.Counter
	AuditFailures    prometheus.Counter
	PumpPulses       prometheus.Counter
	FanOn            prometheus.Counter
	Temperature      prometheus.Gauge
	Humidity         prometheus.Gauge
	LastCompleted    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "cycles_total",
			Help:      "Control cycles by terminal status and the stage they ended in.",
		}, []string{"status", "stage"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plantcare",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a control cycle.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "cycles_skipped_total",
			Help:      "Cycle requests dropped because a cycle was already running, by trigger source.",
		}, []string{"source"}),
		ClimateFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "climate_fallbacks_total",
			Help:      "Cycles that used the default temperature and humidity.",
		}),
		AdvisorFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "advisor_fallbacks_total",
			Help:      "Cycles that used the neutral recommendation.",
		}),
		UploadFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "image_upload_failures_total",
			Help:      "Frames that could not be stored.",
		}),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "audit_failures_total",
			Help:      "Cycle records that could not be appended to every sink.",
		}),
		PumpPulses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "pump_pulses_total",
			Help:      "Completed watering pulses.",
		}),
		FanOn: f.NewCounter(prometheus.CounterOpts{
			Namespace: "plantcare",
			Name:      "fan_on_total",
			Help:      "Cycles that left the fan running.",
		}),
		Temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "plantcare",
			Name:      "temperature_celsius",
			Help:      "Temperature used by the last cycle.",
		}),
		Humidity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "plantcare",
			Name:      "humidity_percent",
			Help:      "Relative humidity used by the last cycle.",
		}),
		LastCompleted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "plantcare",
			Name:      "last_completed_cycle_timestamp_seconds",
			Help:      "Unix time of the last completed cycle.",
		}),
	}
}
