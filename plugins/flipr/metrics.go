package flipr

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes the latest readings held in the snapshot cache.
type MetricsCollector struct {
	snapshots *Snapshots

	mu          sync.Mutex
	temperature *prometheus.GaugeVec
	ph          *prometheus.GaugeVec
	orp         *prometheus.GaugeVec
	disinfect   *prometheus.GaugeVec
	uvIndex     *prometheus.GaugeVec
	battery     *prometheus.GaugeVec
	surveyTime  *prometheus.GaugeVec
	hubOn       *prometheus.GaugeVec
	hubMode     *prometheus.GaugeVec
	success     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	modules     *prometheus.GaugeVec
}

func NewMetricsCollector(snapshots *Snapshots) *MetricsCollector {
	labels := []string{"serial", "type"}
	return &MetricsCollector{
		snapshots: snapshots,
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_water_temperature_celsius",
			Help: "Water temperature per analyser",
		}, labels),
		ph: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_ph",
			Help: "Water pH per analyser",
		}, labels),
		orp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_orp_millivolts",
			Help: "Oxidation reduction potential per analyser",
		}, labels),
		disinfect: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_disinfectant_value",
			Help: "Disinfectant reading per analyser",
		}, labels),
		uvIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_uv_index",
			Help: "UV index reported with the last survey",
		}, labels),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_battery_deviation",
			Help: "Battery deviation reported with the last survey",
		}, labels),
		surveyTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_survey_timestamp_seconds",
			Help: "Timestamp of the last survey (epoch seconds)",
		}, labels),
		hubOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_hub_on",
			Help: "Hub equipment state (1=on, 0=off)",
		}, labels),
		hubMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_hub_mode_info",
			Help: "Hub behaviour, 1 for the active mode",
		}, []string{"serial", "type", "mode"}),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_poll_success",
			Help: "Last poll success per module (1=ok, 0=error)",
		}, labels),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_last_success_timestamp_seconds",
			Help: "Last successful poll per module (epoch seconds)",
		}, labels),
		modules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_flipr_modules",
			Help: "Modules returned by the last listing",
		}, labels),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.temperature.Describe(ch)
	c.ph.Describe(ch)
	c.orp.Describe(ch)
	c.disinfect.Describe(ch)
	c.uvIndex.Describe(ch)
	c.battery.Describe(ch)
	c.surveyTime.Describe(ch)
	c.hubOn.Describe(ch)
	c.hubMode.Describe(ch)
	c.success.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.modules.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.temperature.Reset()
	c.ph.Reset()
	c.orp.Reset()
	c.disinfect.Reset()
	c.uvIndex.Reset()
	c.battery.Reset()
	c.surveyTime.Reset()
	c.hubOn.Reset()
	c.hubMode.Reset()
	c.success.Reset()
	c.lastSuccess.Reset()
	c.modules.Reset()

	types := c.snapshots.Modules()
	for serial, model := range types {
		c.modules.WithLabelValues(serial, model).Set(1)
	}

	for _, snap := range c.snapshots.Surveys() {
		s := snap.Survey
		c.temperature.WithLabelValues(snap.Serial, snap.Model).Set(s.Temperature)
		c.ph.WithLabelValues(snap.Serial, snap.Model).Set(s.PH.Value)
		c.orp.WithLabelValues(snap.Serial, snap.Model).Set(s.OxydoReductionPotentiel.Value)
		c.disinfect.WithLabelValues(snap.Serial, snap.Model).Set(s.Desinfectant.Value)
		c.uvIndex.WithLabelValues(snap.Serial, snap.Model).Set(s.UvIndex)
		c.battery.WithLabelValues(snap.Serial, snap.Model).Set(s.Battery.Deviation)
		if ts, err := time.Parse(time.RFC3339, s.DateTime); err == nil {
			c.surveyTime.WithLabelValues(snap.Serial, snap.Model).Set(float64(ts.Unix()))
		}
	}

	for _, snap := range c.snapshots.Hubs() {
		model := types[snap.Serial]
		if model == "" {
			model = TypeStart
		}
		c.hubOn.WithLabelValues(snap.Serial, model).Set(boolToFloat(snap.On))
		for _, mode := range []HubMode{ModeManual, ModeAuto, ModePlanning} {
			c.hubMode.WithLabelValues(snap.Serial, model, string(mode)).Set(boolToFloat(snap.Mode == mode))
		}
	}

	for serial, result := range c.snapshots.Polls() {
		model := types[serial]
		c.success.WithLabelValues(serial, model).Set(boolToFloat(result.OK))
		if !result.LastSuccess.IsZero() {
			c.lastSuccess.WithLabelValues(serial, model).Set(float64(result.LastSuccess.Unix()))
		}
	}

	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.temperature.Collect(ch)
	c.ph.Collect(ch)
	c.orp.Collect(ch)
	c.disinfect.Collect(ch)
	c.uvIndex.Collect(ch)
	c.battery.Collect(ch)
	c.surveyTime.Collect(ch)
	c.hubOn.Collect(ch)
	c.hubMode.Collect(ch)
	c.success.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.modules.Collect(ch)
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
