package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/pkg/venus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "essload"

type Metrics struct {
	registry          *prometheus.Registry
	output            prometheus.Gauge
	pvAverage         prometheus.Gauge
	batteryAverage    prometheus.Gauge
	integral          prometheus.Gauge
	targetPower       prometheus.Gauge
	surplusPower      prometheus.Gauge
	gated             *prometheus.GaugeVec
	acSource          prometheus.Gauge
	ticks             prometheus.Counter
	droppedTicks      prometheus.Counter
	publishFailures   prometheus.Counter
	missingTelemetry  *prometheus.CounterVec
	telemetryErrors   prometheus.Counter
	telemetryDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		output: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_output",
			Help:      "Last command sent to the load dimmer.",
		}),
		pvAverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pv_average_watts",
			Help:      "Smoothed PV power.",
		}),
		batteryAverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_power_average_watts",
			Help:      "Smoothed battery power, positive when discharging.",
		}),
		integral: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pi_integral",
			Help:      "PI controller integral accumulator.",
		}),
		targetPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_target_power_watts",
			Help:      "Power reserved for the battery in the current charge mode.",
		}),
		surplusPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "surplus_power_watts",
			Help:      "Controller error: PV average minus consumption minus battery target.",
		}),
		gated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gated",
			Help:      "1 when the load is gated, by reason.",
		}, []string{"reason"}),
		acSource: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ac_source",
			Help:      "Last reported active AC input source.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control ticks processed.",
		}),
		droppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_dropped_total",
			Help:      "Ticks dropped while a telemetry read was in progress.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_publish_failures_total",
			Help:      "Failed or timed out actuator command publishes.",
		}),
		missingTelemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_missing_values_total",
			Help:      "Telemetry values missing and defaulted to 0, by value.",
		}, []string{"value"}),
		telemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_read_errors_total",
			Help:      "Failed telemetry reads.",
		}),
		telemetryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telemetry_read_duration_seconds",
			Help:      "Duration of telemetry bus operations.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.output,
		m.pvAverage,
		m.batteryAverage,
		m.integral,
		m.targetPower,
		m.surplusPower,
		m.gated,
		m.acSource,
		m.ticks,
		m.droppedTicks,
		m.publishFailures,
		m.missingTelemetry,
		m.telemetryErrors,
		m.telemetryDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records the outcome of a control tick.
func (m *Metrics) ObserveTick(state domain.ControllerState, result domain.LoadControlTickResult) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.output.Set(float64(result.Output))
	for _, gate := range []domain.GateState{domain.GATE_GRID_CONNECTED, domain.GATE_DISABLED} {
		v := 0.0
		if result.Gate == gate {
			v = 1
		}
		m.gated.WithLabelValues(gate.String()).Set(v)
	}
	if result.Gate.Gated() {
		return
	}
	m.pvAverage.Set(state.PVAverage)
	m.batteryAverage.Set(state.BatteryPowerAverage)
	m.integral.Set(state.Integral)
	m.targetPower.Set(result.TargetPower)
	m.surplusPower.Set(result.SurplusPower)
	for _, name := range result.Missing {
		m.missingTelemetry.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) ObserveACSource(source int) {
	if m == nil {
		return
	}
	m.acSource.Set(float64(source))
}

func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.droppedTicks.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) TelemetryReadFailed() {
	if m == nil {
		return
	}
	m.telemetryErrors.Inc()
}

func (m *Metrics) ObserveTelemetryOp(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.telemetryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// TelemetryInstrument feeds bus operation timings into the read duration histogram.
func (m *Metrics) TelemetryInstrument() *venus.Instrument {
	if m == nil {
		return nil
	}
	return &venus.Instrument{
		RecordTime: m.ObserveTelemetryOp,
	}
}
