package main

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var SQLITE_DATETIME_LAYOUT string = "2006-01-02 15:04:05"

type ChargingEvent struct {
	ID        string    `json:"id"`
	Serial    string    `json:"charger_serial"`
	Timestamp time.Time `json:"ts"`
	Event     int       `json:"event"`
	Data      string    `json:"data"`
}

const (
	LogEventLogin           = 1
	LogEventTokenRefresh    = 2
	LogEventPollFailed      = 3
	LogEventPollRecovered   = 4
	LogEventChargeStart     = 5
	LogEventChargeStop      = 6
	LogEventSetCurrentLimit = 7
)

type DB struct {
	Connection *sql.DB
	Time       Time
}

var _DBInstance *DB
var _DBOnce sync.Once

func GetDB() *DB {
	_DBOnce.Do(func() {
		_DBInstance = &DB{
			Time: new(RealTime),
		}
	})
	return _DBInstance
}

func (db *DB) Connect() {
	log.Println("Connecting to database...")
	con, err := sql.Open("sqlite", GetConfig().DBFile+"?_pragma=busy_timeout=10000&_pragma=journal_mode=WAL")
	if err != nil {
		log.Panicln(err)
	}
	db.Connection = con
}

func (db *DB) GetConnection() *sql.DB {
	return db.Connection
}

func (db *DB) ResetDBStructure() {
	log.Println("Resetting database...")
	_, err := db.GetConnection().Exec(`
drop table if exists logs;
`)
	if err != nil {
		log.Panicln(err)
	}
}

func (db *DB) InitDBStructure() {
	log.Println("Initializing database structure...")
	_, err := db.GetConnection().Exec(`
create table if not exists logs(id text primary key, charger_serial text, ts text, event_id int, details text);
create index if not exists idx_logs_serial on logs(charger_serial, ts);
`)
	if err != nil {
		log.Panicln(err)
	}
}

// LogChargingEvent records a diagnostics event. Events with an empty
// serial concern the account as a whole (logins, poll outcomes).
func (db *DB) LogChargingEvent(serial string, eventType int, text string) {
	LogDebug("charging event " + text)
	_, err := db.GetConnection().Exec("insert into logs values(?, ?, ?, ?, ?)",
		uuid.New().String(), serial, db.formatSqliteDatetime(db.Time.UTCNow()), eventType, text)
	if err != nil {
		log.Println(err)
	}
}

func (db *DB) GetLatestChargingEvent(serial string, eventType int) *ChargingEvent {
	var e ChargingEvent
	var ts string
	err := db.GetConnection().QueryRow("select id, charger_serial, ts, event_id, details "+
		"from logs where charger_serial = ? and event_id = ? order by ts desc limit 1",
		serial, eventType).
		Scan(&e.ID, &e.Serial, &ts, &e.Event, &e.Data)
	if err != nil {
		return nil
	}
	e.Timestamp, _ = time.Parse(SQLITE_DATETIME_LAYOUT, ts)
	return &e
}

func (db *DB) GetLatestChargingEvents(serial string, limit int) []*ChargingEvent {
	rows, err := db.GetConnection().Query("select id, charger_serial, ts, event_id, details "+
		"from logs where charger_serial = ? order by ts desc, id limit ?",
		serial, limit)
	if err != nil {
		log.Println(err)
		return nil
	}
	defer rows.Close()
	res := []*ChargingEvent{}
	for rows.Next() {
		var e ChargingEvent
		var ts string
		if err := rows.Scan(&e.ID, &e.Serial, &ts, &e.Event, &e.Data); err != nil {
			log.Println(err)
			continue
		}
		e.Timestamp, _ = time.Parse(SQLITE_DATETIME_LAYOUT, ts)
		res = append(res, &e)
	}
	return res
}

func (db *DB) formatSqliteDatetime(ts time.Time) string {
	return ts.Format(SQLITE_DATETIME_LAYOUT)
}
