package main

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
)

const SnapshotCacheKey = "chargers"
const SnapshotCacheLifetime = 10 * time.Minute

// DataCoordinator polls the NexBlue API on a fixed interval, deduplicates
// concurrent refreshes and keeps the last successful result for readers.
// A failed poll leaves the previous snapshot in place.
type DataCoordinator struct {
	API      NexBlueAPI
	Interval time.Duration
	Time     Time
	Async    bool

	mutex       sync.Mutex
	data        map[string]interface{}
	lastSuccess *time.Time
	lastOK      bool
	inFlight    chan struct{}
	ticker      *time.Ticker
	snapshots   *bigcache.BigCache
}

var DataCoordinatorInstance *DataCoordinator

func GetDataCoordinator() *DataCoordinator {
	return DataCoordinatorInstance
}

func NewDataCoordinator(api NexBlueAPI) *DataCoordinator {
	c := &DataCoordinator{
		API:      api,
		Interval: time.Second * time.Duration(GetConfig().PollInterval),
		Time:     new(RealTime),
		Async:    true,
	}
	c.initSnapshotCache()
	return c
}

func (c *DataCoordinator) initSnapshotCache() {
	config := bigcache.DefaultConfig(SnapshotCacheLifetime)
	config.CleanWindow = 1 * time.Minute
	config.HardMaxCacheSize = 16
	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		log.Panicln(err)
	}
	c.snapshots = cache
}

func (c *DataCoordinator) InitPeriodicRefresh() {
	c.ticker = time.NewTicker(c.Interval)
	go func() {
		for {
			c.Refresh()
			<-c.ticker.C
		}
	}()
}

// Refresh performs one poll cycle. When a poll is already in flight the
// call waits for its outcome instead of issuing a second one, so there is
// never more than one GetData running against the client.
func (c *DataCoordinator) Refresh() bool {
	c.mutex.Lock()
	if c.inFlight != nil {
		done := c.inFlight
		c.mutex.Unlock()
		<-done
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return c.lastOK
	}
	done := make(chan struct{})
	c.inFlight = done
	c.mutex.Unlock()

	data := c.API.GetData()
	// an empty mapping signals a failed update, {"chargers": []} is a
	// successful poll with nothing to report
	ok := len(data) > 0

	c.mutex.Lock()
	wasOK := c.lastOK
	if ok {
		c.data = data
		now := c.Time.UTCNow()
		c.lastSuccess = &now
		c.cacheSnapshot(data)
	}
	c.lastOK = ok
	c.inFlight = nil
	c.mutex.Unlock()
	close(done)

	if !ok {
		log.Println("charger data refresh failed, keeping previous data")
		GetDB().LogChargingEvent("", LogEventPollFailed, "")
	} else if !wasOK {
		GetDB().LogChargingEvent("", LogEventPollRecovered, "")
	}
	return ok
}

// RequestRefresh triggers an out-of-band poll after a command without
// blocking the caller.
func (c *DataCoordinator) RequestRefresh() {
	if c.Async {
		go c.Refresh()
	} else {
		c.Refresh()
	}
}

func (c *DataCoordinator) LastUpdateSuccess() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastOK
}

func (c *DataCoordinator) LastSuccessTime() *time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastSuccess
}

// GetChargers returns the charger entries of the last successful poll.
func (c *DataCoordinator) GetChargers() []interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.data == nil {
		return nil
	}
	chargers, ok := c.data["chargers"].([]interface{})
	if !ok {
		return nil
	}
	return chargers
}

func (c *DataCoordinator) GetCharger(serial string) map[string]interface{} {
	serialField := GetConfig().SerialField
	for _, entry := range c.GetChargers() {
		charger, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if s, _ := charger[serialField].(string); s == serial {
			return charger
		}
	}
	return nil
}

func (c *DataCoordinator) cacheSnapshot(data map[string]interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Println(err)
		return
	}
	if err := c.snapshots.Set(SnapshotCacheKey, payload); err != nil {
		log.Println(err)
	}
}

// Snapshot returns the serialized last successful result, or nil when no
// poll has succeeded within the cache lifetime.
func (c *DataCoordinator) Snapshot() []byte {
	payload, err := c.snapshots.Get(SnapshotCacheKey)
	if err != nil {
		return nil
	}
	return payload
}
