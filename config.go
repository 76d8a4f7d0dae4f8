package main

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"sync"
)

type Config struct {
	Username           string
	Password           string
	BaseURL            string
	Port               int
	DBFile             string
	PollInterval       int
	SerialField        string
	StartSuccessResult int
	StopSuccessResult  int
	LimitSuccessResult int
	MinCurrentLimit    int
	MaxCurrentLimit    int
	DebugLog           bool
}

var _configInstance *Config
var _configOnce sync.Once

func GetConfig() *Config {
	_configOnce.Do(func() {
		_configInstance = &Config{}
		_configInstance.ReadConfig()
	})
	return _configInstance
}

func (c *Config) ReadConfig() {
	c.Username = c.getEnv("NEXBLUE_USERNAME", "")
	c.Password = c.getEnv("NEXBLUE_PASSWORD", "")
	c.BaseURL = c.getEnv("NEXBLUE_BASE_URL", "https://api.nexblue.com/third_party/openapi")
	c.Port = c.getEnvInt("PORT", 8080)
	c.DBFile = c.getEnv("DB_FILE", "/tmp/nexblue_bridge.db")
	c.PollInterval = c.getEnvInt("POLL_INTERVAL", 30)
	c.SerialField = c.getEnv("NEXBLUE_SERIAL_FIELD", "serial_number")
	c.StartSuccessResult = c.getEnvInt("NEXBLUE_START_SUCCESS_RESULT", 1)
	c.StopSuccessResult = c.getEnvInt("NEXBLUE_STOP_SUCCESS_RESULT", 0)
	c.LimitSuccessResult = c.getEnvInt("NEXBLUE_LIMIT_SUCCESS_RESULT", 0)
	c.MinCurrentLimit = c.getEnvInt("NEXBLUE_MIN_CURRENT_LIMIT", 6)
	c.MaxCurrentLimit = c.getEnvInt("NEXBLUE_MAX_CURRENT_LIMIT", 32)
	c.DebugLog = (c.getEnv("DEBUG_LOG", "0") == "1")
}

func (c *Config) Print() {
	s, _ := json.MarshalIndent(c, "", "\t")
	log.Println("Using config:\n" + string(s))
}

func (c *Config) getEnv(key, defaultValue string) string {
	res := os.Getenv(key)
	if res == "" {
		return defaultValue
	}
	return res
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	res := os.Getenv(key)
	if res == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(res)
	if err != nil {
		log.Panicln(key + " must be numeric")
	}
	return i
}

func LogDebug(s string) {
	if GetConfig().DebugLog {
		log.Println("DEBUG: " + s)
	}
}
