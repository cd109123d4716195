package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

const namespace = "solarlog"

// Source hands out the most recent snapshot. err is the outcome of the last poll.
type Source interface {
	Latest() (*model.DeviceSnapshot, error)
}

// Collector exports the latest snapshot. Scrapes never query the device.
type Collector struct {
	source Source

	up               *prometheus.Desc
	snapshotTime     *prometheus.Desc
	totalPower       *prometheus.Desc
	energy           *prometheus.Desc
	inverterPower    *prometheus.Desc
	inverterStatus   *prometheus.Desc
	inverterTemp     *prometheus.Desc
	inverterEnergy   *prometheus.Desc
	inverterVoltage  *prometheus.Desc
	inverterCurrent  *prometheus.Desc
	consumptionPower *prometheus.Desc

	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
}

func NewCollector(source Source) *Collector {
	inverterLabels := []string{"inverter", "name"}
	return &Collector{
		source: source,
		up: prometheus.NewDesc(
			namespace+"_up",
			"Whether the last poll of the device was successful",
			nil, nil,
		),
		snapshotTime: prometheus.NewDesc(
			namespace+"_snapshot_timestamp_seconds",
			"Device time of the latest snapshot",
			nil, nil,
		),
		totalPower: prometheus.NewDesc(
			namespace+"_power_watts",
			"Current AC output of all inverters",
			nil, nil,
		),
		energy: prometheus.NewDesc(
			namespace+"_energy_wh",
			"Energy produced in the current period",
			[]string{"period"}, nil,
		),
		consumptionPower: prometheus.NewDesc(
			namespace+"_consumption_watts",
			"Current consumption",
			nil, nil,
		),
		inverterPower: prometheus.NewDesc(
			namespace+"_inverter_power_watts",
			"Current AC output of one inverter",
			inverterLabels, nil,
		),
		inverterStatus: prometheus.NewDesc(
			namespace+"_inverter_status",
			"Operating state of one inverter (1 for the current state)",
			append(inverterLabels, "status"), nil,
		),
		inverterTemp: prometheus.NewDesc(
			namespace+"_inverter_temperature_celsius",
			"Inverter temperature",
			inverterLabels, nil,
		),
		inverterEnergy: prometheus.NewDesc(
			namespace+"_inverter_energy_today_wh",
			"Energy produced by one inverter today",
			inverterLabels, nil,
		),
		inverterVoltage: prometheus.NewDesc(
			namespace+"_inverter_voltage_volts",
			"Inverter voltage per string or phase",
			append(inverterLabels, "string"), nil,
		),
		inverterCurrent: prometheus.NewDesc(
			namespace+"_inverter_current_amperes",
			"Inverter current per string or phase",
			append(inverterLabels, "string"), nil,
		),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Polls of the device by result",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll including login and follow-up queries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObservePoll records the outcome of one poll.
func (c *Collector) ObservePoll(err error, took time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.polls.WithLabelValues(result).Inc()
	c.pollDuration.Observe(took.Seconds())
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.snapshotTime
	ch <- c.totalPower
	ch <- c.energy
	ch <- c.consumptionPower
	ch <- c.inverterPower
	ch <- c.inverterStatus
	ch <- c.inverterTemp
	ch <- c.inverterEnergy
	ch <- c.inverterVoltage
	ch <- c.inverterCurrent
	c.polls.Describe(ch)
	c.pollDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.polls.Collect(ch)
	c.pollDuration.Collect(ch)

	snapshot, err := c.source.Latest()
	up := 1.0
	if err != nil || snapshot == nil {
		up = 0
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up)
	if snapshot == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.snapshotTime, prometheus.GaugeValue, float64(snapshot.Timestamp.Unix()))
	gauge(ch, c.totalPower, snapshot.TotalPower)
	gauge(ch, c.energy, snapshot.TotalEnergyToday, "day")
	gauge(ch, c.energy, snapshot.TotalEnergyMonth, "month")
	gauge(ch, c.energy, snapshot.TotalEnergyYear, "year")
	if snapshot.Basic != nil {
		gauge(ch, c.consumptionPower, snapshot.Basic.ConsumptionAC)
	}

	for _, inv := range snapshot.Inverters {
		labels := []string{inv.ID, inv.DisplayName()}
		gauge(ch, c.inverterPower, inv.Power, labels...)
		gauge(ch, c.inverterTemp, inv.Temperature, labels...)
		gauge(ch, c.inverterEnergy, inv.EnergyToday, labels...)
		for _, status := range []model.Status{model.StatusOK, model.StatusOffline, model.StatusError, model.StatusUnknown} {
			v := 0.0
			if inv.Status == status {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.inverterStatus, prometheus.GaugeValue, v, append(labels, status.String())...)
		}
		for i, v := range inv.Voltages {
			ch <- prometheus.MustNewConstMetric(c.inverterVoltage, prometheus.GaugeValue, v, append(labels, strconv.Itoa(i+1))...)
		}
		for i, v := range inv.Currents {
			ch <- prometheus.MustNewConstMetric(c.inverterCurrent, prometheus.GaugeValue, v, append(labels, strconv.Itoa(i+1))...)
		}
	}
}

// gauge emits nothing for values the device did not report.
func gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v *float64, labels ...string) {
	if v == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, *v, labels...)
}
