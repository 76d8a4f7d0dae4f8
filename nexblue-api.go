package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const APIRequestTimeout = 10 * time.Second
const DefaultTokenLifetimeSeconds = 3600
const TokenExpiryMarginSeconds = 60

type NexBlueAPI interface {
	Login() bool
	RefreshToken() bool
	EnsureTokenValid() bool
	GetData() map[string]interface{}
	StartCharging(serial string) bool
	StopCharging(serial string) bool
	SetCurrentLimit(serial string, amps int) bool
}

type NexBlueAPIImpl struct {
	Username string
	Password string
	BaseURL  string
	Time     Time

	accessToken    string
	refreshToken   string
	tokenExpiresAt *time.Time
}

var NexBlueAPIInstance NexBlueAPI

func GetNexBlueAPI() NexBlueAPI {
	return NexBlueAPIInstance
}

func NewNexBlueAPI() *NexBlueAPIImpl {
	return &NexBlueAPIImpl{
		Username: GetConfig().Username,
		Password: GetConfig().Password,
		BaseURL:  GetConfig().BaseURL,
		Time:     new(RealTime),
	}
}

// Login posts the account credentials and stores the resulting token set.
// A response without an access token counts as a failed login and leaves
// the current token state untouched.
func (a *NexBlueAPIImpl) Login() bool {
	LogDebug("logging in to NexBlue API")
	data := map[string]interface{}{
		"username":     a.Username,
		"password":     a.Password,
		"account_type": 0,
	}
	response := a.apiRequest("post", a.BaseURL+"/account/login", data, nil)
	token, ok := response["access_token"].(string)
	if !ok || token == "" {
		log.Printf("login to NexBlue API failed: %v\n", response)
		GetDB().LogChargingEvent("", LogEventLogin, "login failed")
		return false
	}
	a.refreshToken, _ = response["refresh_token"].(string)
	a.storeAccessToken(token, response["expires_in"])
	GetDB().LogChargingEvent("", LogEventLogin, "")
	return true
}

// RefreshToken renews the access token using the held refresh token. A
// missing refresh token or a rejected refresh both degrade to a fresh
// credential login, so a failed refresh is never terminal.
func (a *NexBlueAPIImpl) RefreshToken() bool {
	if a.refreshToken == "" {
		LogDebug("no refresh token available, logging in again")
		return a.Login()
	}
	LogDebug("refreshing NexBlue API token")
	data := map[string]interface{}{
		"refresh_token": a.refreshToken,
		"account_type":  0,
	}
	response := a.apiRequest("post", a.BaseURL+"/account/refresh_token", data, nil)
	token, ok := response["access_token"].(string)
	if !ok || token == "" {
		log.Printf("refreshing NexBlue API token failed, retrying login: %v\n", response)
		return a.Login()
	}
	if refresh, ok := response["refresh_token"].(string); ok && refresh != "" {
		a.refreshToken = refresh
	}
	a.storeAccessToken(token, response["expires_in"])
	GetDB().LogChargingEvent("", LogEventTokenRefresh, "")
	return true
}

// EnsureTokenValid is the gate every authenticated call passes through
// first. It makes no network call while the held token is still fresh.
func (a *NexBlueAPIImpl) EnsureTokenValid() bool {
	if a.accessToken == "" || a.tokenExpiresAt == nil {
		return a.Login()
	}
	if !a.now().Before(*a.tokenExpiresAt) {
		return a.RefreshToken()
	}
	return true
}

// GetData aggregates the charger list, per-charger detail and per-charger
// status into a single mapping. An empty mapping signals an auth or list
// failure, while {"chargers": []} means authenticated but nothing usable
// was returned. Partial per-charger failures never abort the batch.
func (a *NexBlueAPIImpl) GetData() map[string]interface{} {
	if !a.EnsureTokenValid() {
		log.Println("could not authenticate with NexBlue API")
		return map[string]interface{}{}
	}

	chargersData := a.apiRequest("get", a.BaseURL+"/chargers", nil, nil)
	if chargersData == nil {
		log.Println("no charger data received from NexBlue API")
		return map[string]interface{}{}
	}

	rawList, ok := chargersData["data"]
	if !ok {
		keys := make([]string, 0, len(chargersData))
		for k := range chargersData {
			keys = append(keys, k)
		}
		log.Printf("unexpected charger list response, expected 'data' key, got keys: %v\n", keys)
		return map[string]interface{}{}
	}
	list, ok := rawList.([]interface{})
	if !ok {
		log.Printf("unexpected charger list response, 'data' is %T, expected a list\n", rawList)
		return map[string]interface{}{}
	}

	serialField := GetConfig().SerialField
	chargers := []interface{}{}
	for _, entry := range list {
		charger, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		serial, ok := charger[serialField].(string)
		if !ok || serial == "" {
			continue
		}
		detail := a.apiRequest("get", a.BaseURL+"/chargers/"+serial, nil, nil)
		if detail == nil {
			continue
		}
		status := a.apiRequest("get", a.BaseURL+"/chargers/"+serial+"/cmd/status", nil, nil)
		if status != nil {
			detail["status"] = status
		}
		chargers = append(chargers, detail)
	}

	return map[string]interface{}{"chargers": chargers}
}

func (a *NexBlueAPIImpl) StartCharging(serial string) bool {
	return a.sendChargerCommand(serial, "start_charging", nil, GetConfig().StartSuccessResult)
}

func (a *NexBlueAPIImpl) StopCharging(serial string) bool {
	return a.sendChargerCommand(serial, "stop_charging", nil, GetConfig().StopSuccessResult)
}

// SetCurrentLimit forwards an amperage to the charger. Clamping to the
// advertised range is the caller's responsibility.
func (a *NexBlueAPIImpl) SetCurrentLimit(serial string, amps int) bool {
	data := map[string]interface{}{"limit": amps}
	return a.sendChargerCommand(serial, "set_current_limit", data, GetConfig().LimitSuccessResult)
}

func (a *NexBlueAPIImpl) sendChargerCommand(serial, command string, data map[string]interface{}, successResult int) bool {
	if !a.EnsureTokenValid() {
		log.Println("could not authenticate with NexBlue API")
		return false
	}
	response := a.apiRequest("post", a.BaseURL+"/chargers/"+serial+"/cmd/"+command, data, nil)
	if response == nil {
		log.Printf("no response for %s command on charger %s\n", command, serial)
		return false
	}
	result, ok := response["result"].(float64)
	if !ok || int(result) != successResult {
		log.Printf("charger %s rejected %s command: %v\n", serial, command, response)
		return false
	}
	return true
}

// apiRequest is the single transport wrapper used by every operation.
// All failures collapse to a nil result plus a logged message, so a bad
// response can never break a poll cycle.
func (a *NexBlueAPIImpl) apiRequest(method, url string, data map[string]interface{}, headers map[string]string) map[string]interface{} {
	method = strings.ToLower(method)
	switch method {
	case "get", "post", "put", "patch", "delete":
	default:
		log.Printf("unsupported method: %s\n", method)
		return nil
	}

	if headers == nil {
		headers = a.defaultHeaders()
	}

	var body io.Reader = nil
	if method != "get" {
		if data == nil {
			data = map[string]interface{}{}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("error encoding request body for %s: %s\n", url, err.Error())
			return nil
		}
		body = bytes.NewReader(payload)
	} else {
		// some servers reject content-type hints on bodyless requests
		for k := range headers {
			if strings.EqualFold(k, "content-type") {
				delete(headers, k)
			}
		}
	}

	req, err := http.NewRequest(strings.ToUpper(method), url, body)
	if err != nil {
		log.Printf("error building %s request to %s: %s\n", method, url, err.Error())
		return nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	LogDebug(fmt.Sprintf("%s request to %s", strings.ToUpper(method), url))
	client := &http.Client{
		Timeout: APIRequestTimeout,
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("error fetching information from %s: %s\n", url, err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(resp.Body)
		log.Printf("error response from %s: %d - %s\n", url, resp.StatusCode, string(text))
		return nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("error parsing response from %s: %s\n", url, err.Error())
		return nil
	}
	return result
}

// defaultHeaders recomputes the header set from the current token state on
// every call, there is no shared header map mutated across requests.
func (a *NexBlueAPIImpl) defaultHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if a.accessToken != "" {
		headers["Authorization"] = "Bearer " + a.accessToken
	}
	return headers
}

// storeAccessToken writes the token fields as one unit. Lifetime comes
// from the expires_in field, falling back to the exp claim of the token
// itself, then to one hour, always minus a safety margin.
func (a *NexBlueAPIImpl) storeAccessToken(accessToken string, expiresIn interface{}) {
	seconds := DefaultTokenLifetimeSeconds
	if v, ok := expiresIn.(float64); ok && v > 0 {
		seconds = int(v)
	} else if claimed := tokenExpClaimSeconds(accessToken, a.now()); claimed > 0 {
		seconds = claimed
	}
	expiresAt := a.now().Add(time.Duration(seconds-TokenExpiryMarginSeconds) * time.Second)
	a.accessToken = accessToken
	a.tokenExpiresAt = &expiresAt
}

func tokenExpClaimSeconds(accessToken string, now time.Time) int {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	seconds := int(exp.Time.Sub(now).Seconds())
	if seconds <= 0 {
		return 0
	}
	return seconds
}

func (a *NexBlueAPIImpl) now() time.Time {
	if a.Time == nil {
		return time.Now().UTC()
	}
	return a.Time.UTCNow()
}
