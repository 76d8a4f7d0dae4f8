package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Charging state and network status enums as reported by the vendor.
var NetworkStatusNames = map[int]string{
	0: "None",
	1: "WiFi",
	2: "LTE",
}

var ChargingStateNames = map[int]string{
	0: "Idle",
	1: "Connected",
	2: "Charging",
	3: "Finished",
	4: "Error",
	5: "Load Balancing",
	6: "Delayed",
	7: "EV Waiting",
}

// chargerMetricDef maps one charger field to one gauge. The extractor is a
// pure function over a charger entry, absent fields emit nothing.
type chargerMetricDef struct {
	name    string
	help    string
	extract func(charger map[string]interface{}) (float64, bool)
}

var chargerMetricDefs = []chargerMetricDef{
	{
		name: "nexblue_charging_state",
		help: "Charging state reported by the charger (0=Idle, 2=Charging, see vendor enum)",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "charging_state")
		},
	},
	{
		name: "nexblue_power_kw",
		help: "Current charging power in kilowatts",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "power")
		},
	},
	{
		name: "nexblue_session_energy_kwh",
		help: "Energy delivered in the current session in kilowatt hours",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "energy")
		},
	},
	{
		name: "nexblue_lifetime_energy_kwh",
		help: "Total energy delivered by the charger in kilowatt hours",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "lifetime_energy")
		},
	},
	{
		name: "nexblue_current_amps",
		help: "Current charging current in amperes",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "current")
		},
	},
	{
		name: "nexblue_voltage",
		help: "Charging voltage in volts",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "voltage")
		},
	},
	{
		name: "nexblue_current_limit_amps",
		help: "Configured current limit in amperes",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return statusField(charger, "current_limit")
		},
	},
	{
		name: "nexblue_connected",
		help: "Charger is reachable by the vendor cloud (1=yes, 0=no)",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return boolField(charger, "connected")
		},
	},
	{
		name: "nexblue_vehicle_connected",
		help: "A vehicle is plugged in (1=yes, 0=no)",
		extract: func(charger map[string]interface{}) (float64, bool) {
			return boolField(charger, "vehicle_connected")
		},
	},
}

type ChargerCollector struct {
	coordinator *DataCoordinator

	chargerMetrics []*prometheus.Desc
	info           *prometheus.Desc
	pollSuccess    *prometheus.Desc
	pollAge        *prometheus.Desc
}

func NewChargerCollector(coordinator *DataCoordinator) *ChargerCollector {
	c := &ChargerCollector{
		coordinator: coordinator,
		info: prometheus.NewDesc(
			"nexblue_charger_info",
			"NexBlue charger information",
			[]string{"serial", "model", "firmware_version", "network_status"},
			nil,
		),
		pollSuccess: prometheus.NewDesc(
			"nexblue_poll_success",
			"Whether the last poll of the NexBlue API was successful",
			nil,
			nil,
		),
		pollAge: prometheus.NewDesc(
			"nexblue_last_poll_age_seconds",
			"Seconds since the last successful poll",
			nil,
			nil,
		),
	}
	for _, def := range chargerMetricDefs {
		c.chargerMetrics = append(c.chargerMetrics, prometheus.NewDesc(def.name, def.help, []string{"serial"}, nil))
	}
	return c
}

func (c *ChargerCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.chargerMetrics {
		ch <- desc
	}
	ch <- c.info
	ch <- c.pollSuccess
	ch <- c.pollAge
}

// Collect reads the coordinator snapshot only, it never hits the network.
func (c *ChargerCollector) Collect(ch chan<- prometheus.Metric) {
	success := 0.0
	if c.coordinator.LastUpdateSuccess() {
		success = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.pollSuccess, prometheus.GaugeValue, success)
	if last := c.coordinator.LastSuccessTime(); last != nil {
		age := c.coordinator.Time.UTCNow().Sub(*last).Seconds()
		ch <- prometheus.MustNewConstMetric(c.pollAge, prometheus.GaugeValue, age)
	}

	serialField := GetConfig().SerialField
	for _, entry := range c.coordinator.GetChargers() {
		charger, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		serial, ok := charger[serialField].(string)
		if !ok || serial == "" {
			continue
		}
		for i, def := range chargerMetricDefs {
			if value, ok := def.extract(charger); ok {
				ch <- prometheus.MustNewConstMetric(c.chargerMetrics[i], prometheus.GaugeValue, value, serial)
			}
		}
		model, _ := charger["model"].(string)
		firmware, _ := charger["firmware_version"].(string)
		networkStatus := "Unknown"
		if v, ok := statusField(charger, "network_status"); ok {
			if name, ok := NetworkStatusNames[int(v)]; ok {
				networkStatus = name
			}
		}
		ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, serial, model, firmware, networkStatus)
	}
}

func statusField(charger map[string]interface{}, key string) (float64, bool) {
	status, ok := charger["status"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	value, ok := status[key].(float64)
	return value, ok
}

func boolField(charger map[string]interface{}, key string) (float64, bool) {
	value, ok := charger[key].(bool)
	if !ok {
		return 0, false
	}
	if value {
		return 1, true
	}
	return 0, true
}

func InitMetrics() {
	prometheus.MustRegister(NewChargerCollector(GetDataCoordinator()))
}
