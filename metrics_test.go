package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func collectMetrics(c *ChargerCollector) []prometheus.Metric {
	ch := make(chan prometheus.Metric, 100)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	res := []prometheus.Metric{}
	for m := range ch {
		res = append(res, m)
	}
	return res
}

func TestCollectorDescribe(t *testing.T) {
	t.Cleanup(ResetTestDB)
	collector := NewChargerCollector(GetDataCoordinator())
	ch := make(chan *prometheus.Desc, 20)
	go func() {
		collector.Describe(ch)
		close(ch)
	}()
	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, len(chargerMetricDefs)+3, count)
}

func TestCollectorCollectNoData(t *testing.T) {
	t.Cleanup(ResetTestDB)
	collector := NewChargerCollector(GetDataCoordinator())

	// only poll_success before the first successful poll
	metrics := collectMetrics(collector)
	assert.Equal(t, 1, len(metrics))
}

func TestCollectorCollectFullCharger(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	api.On("GetData").Return(map[string]interface{}{
		"chargers": []interface{}{
			map[string]interface{}{
				"serial_number":     "X",
				"model":             "NexBlue Pro",
				"firmware_version":  "1.2.3",
				"connected":         true,
				"vehicle_connected": false,
				"status": map[string]interface{}{
					"charging_state":  float64(2),
					"power":           7.4,
					"energy":          10.5,
					"lifetime_energy": 1234.5,
					"current":         16.0,
					"voltage":         230.0,
					"current_limit":   float64(16),
					"network_status":  float64(1),
				},
			},
		},
	})
	c := GetDataCoordinator()
	assert.True(t, c.Refresh())
	GlobalMockTime.CurTime = GlobalMockTime.CurTime.Add(10 * time.Second)

	collector := NewChargerCollector(c)
	// 9 charger gauges + info + poll_success + poll age
	metrics := collectMetrics(collector)
	assert.Equal(t, len(chargerMetricDefs)+3, len(metrics))
}

func TestCollectorCollectChargerWithoutStatus(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	api.On("GetData").Return(map[string]interface{}{
		"chargers": []interface{}{
			map[string]interface{}{
				"serial_number": "X",
				"connected":     true,
			},
		},
	})
	c := GetDataCoordinator()
	assert.True(t, c.Refresh())

	collector := NewChargerCollector(c)
	// connected + info + poll_success + poll age
	metrics := collectMetrics(collector)
	assert.Equal(t, 4, len(metrics))
}

func TestCollectorSkipsChargerWithoutSerial(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	api.On("GetData").Return(map[string]interface{}{
		"chargers": []interface{}{
			map[string]interface{}{
				"connected": true,
			},
		},
	})
	c := GetDataCoordinator()
	assert.True(t, c.Refresh())

	collector := NewChargerCollector(c)
	// poll_success + poll age only
	metrics := collectMetrics(collector)
	assert.Equal(t, 2, len(metrics))
}
