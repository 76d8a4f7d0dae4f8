package main

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func seedCoordinator(t *testing.T, api *NexBlueAPIMock) {
	api.On("GetData").Return(testChargerData("X"))
	assert.True(t, GetDataCoordinator().Refresh())
}

func TestRouterGetChargers(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)

	req := newHTTPRequest("GET", "/api/1/chargers", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusOK, res.Code)
	var body map[string]interface{}
	assert.Nil(t, UnmarshalBody(res.Body, &body))
	chargers := body["chargers"].([]interface{})
	assert.Equal(t, 1, len(chargers))
}

func TestRouterGetChargersNoData(t *testing.T) {
	t.Cleanup(ResetTestDB)

	req := newHTTPRequest("GET", "/api/1/chargers", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestRouterGetCharger(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)

	req := newHTTPRequest("GET", "/api/1/chargers/X", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusOK, res.Code)
	var body map[string]interface{}
	assert.Nil(t, UnmarshalBody(res.Body, &body))
	assert.Equal(t, "X", body["serial_number"])
	assert.Equal(t, "NexBlue Pro", body["model"])
}

func TestRouterGetChargerNotFound(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)

	req := newHTTPRequest("GET", "/api/1/chargers/Y", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestRouterStartCharging(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)
	api.On("StartCharging", "X").Return(true)

	req := newHTTPRequest("POST", "/api/1/chargers/X/start", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusOK, res.Code)
	api.AssertCalled(t, "StartCharging", "X")
	// command triggers an out-of-band refresh
	api.AssertNumberOfCalls(t, "GetData", 2)
	event := GetDB().GetLatestChargingEvent("X", LogEventChargeStart)
	assert.NotNil(t, event)
	assert.Equal(t, "", event.Data)
}

func TestRouterStartChargingFailed(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)
	api.On("StartCharging", "X").Return(false)

	req := newHTTPRequest("POST", "/api/1/chargers/X/start", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusBadGateway, res.Code)
	api.AssertNumberOfCalls(t, "GetData", 1)
	event := GetDB().GetLatestChargingEvent("X", LogEventChargeStart)
	assert.NotNil(t, event)
	assert.Equal(t, "start charging failed", event.Data)
}

func TestRouterStopCharging(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)
	api.On("StopCharging", "X").Return(true)

	req := newHTTPRequest("POST", "/api/1/chargers/X/stop", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusOK, res.Code)
	api.AssertCalled(t, "StopCharging", "X")
	api.AssertNumberOfCalls(t, "GetData", 2)
}

func TestRouterSetCurrentLimit(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)
	api.On("SetCurrentLimit", "X", 16).Return(true)

	req := newHTTPRequest("PUT", "/api/1/chargers/X/current_limit", bytes.NewBufferString(`{"limit": 16}`))
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusOK, res.Code)
	api.AssertCalled(t, "SetCurrentLimit", "X", 16)
	api.AssertNumberOfCalls(t, "GetData", 2)
	event := GetDB().GetLatestChargingEvent("X", LogEventSetCurrentLimit)
	assert.NotNil(t, event)
	assert.Equal(t, "current limit set to 16", event.Data)
}

func TestRouterSetCurrentLimitOutOfRange(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)

	req := newHTTPRequest("PUT", "/api/1/chargers/X/current_limit", bytes.NewBufferString(`{"limit": 40}`))
	res := executeTestRequest(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	req = newHTTPRequest("PUT", "/api/1/chargers/X/current_limit", bytes.NewBufferString(`{"limit": 5}`))
	res = executeTestRequest(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	api.AssertNotCalled(t, "SetCurrentLimit", "X", 40)
	api.AssertNotCalled(t, "SetCurrentLimit", "X", 5)
}

func TestRouterSetCurrentLimitInvalidBody(t *testing.T) {
	t.Cleanup(ResetTestDB)
	api := NexBlueAPIInstance.(*NexBlueAPIMock)
	seedCoordinator(t, api)

	req := newHTTPRequest("PUT", "/api/1/chargers/X/current_limit", bytes.NewBufferString(`{}`))
	res := executeTestRequest(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	req = newHTTPRequest("PUT", "/api/1/chargers/X/current_limit", bytes.NewBufferString(`not json`))
	res = executeTestRequest(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRouterGetEvents(t *testing.T) {
	t.Cleanup(ResetTestDB)
	GetDB().LogChargingEvent("X", LogEventChargeStart, "")
	GetDB().LogChargingEvent("X", LogEventChargeStop, "")
	GetDB().LogChargingEvent("Y", LogEventChargeStart, "")

	req := newHTTPRequest("GET", "/api/1/chargers/X/events", nil)
	res := executeTestRequest(req)

	assert.Equal(t, http.StatusOK, res.Code)
	var events []*ChargingEvent
	assert.Nil(t, UnmarshalBody(res.Body, &events))
	assert.Equal(t, 2, len(events))
}

func TestRouterHealth(t *testing.T) {
	t.Cleanup(ResetTestDB)
	req := newHTTPRequest("GET", "/health", nil)
	res := executeTestRequest(req)
	assert.Equal(t, http.StatusOK, res.Code)
}
