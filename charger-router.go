package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

type ChargerRouter struct {
}

type SetCurrentLimitRequest struct {
	Limit int `json:"limit" validate:"required"`
}

func (router *ChargerRouter) SetupRoutes(s *mux.Router) {
	s.HandleFunc("/chargers", router.getChargers).Methods("GET")
	s.HandleFunc("/chargers/{serial}", router.getCharger).Methods("GET")
	s.HandleFunc("/chargers/{serial}/start", router.startCharging).Methods("POST")
	s.HandleFunc("/chargers/{serial}/stop", router.stopCharging).Methods("POST")
	s.HandleFunc("/chargers/{serial}/current_limit", router.setCurrentLimit).Methods("PUT")
	s.HandleFunc("/chargers/{serial}/events", router.getEvents).Methods("GET")
}

func (router *ChargerRouter) getChargers(w http.ResponseWriter, r *http.Request) {
	snapshot := GetDataCoordinator().Snapshot()
	if snapshot == nil {
		SendServiceUnavailable(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(snapshot)
}

func (router *ChargerRouter) getCharger(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	charger := GetDataCoordinator().GetCharger(vars["serial"])
	if charger == nil {
		SendNotFound(w)
		return
	}
	SendJSON(w, charger)
}

func (router *ChargerRouter) startCharging(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serial := vars["serial"]
	if !GetNexBlueAPI().StartCharging(serial) {
		GetDB().LogChargingEvent(serial, LogEventChargeStart, "start charging failed")
		SendBadGateway(w)
		return
	}
	GetDB().LogChargingEvent(serial, LogEventChargeStart, "")
	GetDataCoordinator().RequestRefresh()
	SendJSON(w, true)
}

func (router *ChargerRouter) stopCharging(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serial := vars["serial"]
	if !GetNexBlueAPI().StopCharging(serial) {
		GetDB().LogChargingEvent(serial, LogEventChargeStop, "stop charging failed")
		SendBadGateway(w)
		return
	}
	GetDB().LogChargingEvent(serial, LogEventChargeStop, "")
	GetDataCoordinator().RequestRefresh()
	SendJSON(w, true)
}

func (router *ChargerRouter) setCurrentLimit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serial := vars["serial"]

	var m SetCurrentLimitRequest
	if err := UnmarshalValidateBody(r.Body, &m); err != nil {
		SendBadRequest(w)
		return
	}
	if m.Limit < GetConfig().MinCurrentLimit || m.Limit > GetConfig().MaxCurrentLimit {
		SendBadRequest(w)
		return
	}

	if !GetNexBlueAPI().SetCurrentLimit(serial, m.Limit) {
		GetDB().LogChargingEvent(serial, LogEventSetCurrentLimit, fmt.Sprintf("setting current limit to %d failed", m.Limit))
		SendBadGateway(w)
		return
	}
	GetDB().LogChargingEvent(serial, LogEventSetCurrentLimit, fmt.Sprintf("current limit set to %d", m.Limit))
	GetDataCoordinator().RequestRefresh()
	SendJSON(w, true)
}

func (router *ChargerRouter) getEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	events := GetDB().GetLatestChargingEvents(vars["serial"], 50)
	SendJSON(w, events)
}
