package status

import (
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/smart-house/internal/house"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64                        `json:"uptime_seconds"`
	StartTime     string                       `json:"start_time"`
	Timestamp     string                       `json:"timestamp"`
	MQTT          MQTTStatus                   `json:"mqtt"`
	Sensor        *SensorJSON                  `json:"sensor,omitempty"`
	Devices       map[string]map[string]string `json:"devices"`
	LogEntries    int                          `json:"log_entries"`
	Cache         *CacheJSON                   `json:"cache,omitempty"`
	Config        ConfigJSON                   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	HasData   bool   `json:"has_data"`
	State     string `json:"state"`
	Broker    string `json:"broker"`
}

// SensorJSON is the latest reading.
type SensorJSON struct {
	Temperature float64 `json:"temperatura"`
	Humidity    float64 `json:"umidade"`
	Timestamp   string  `json:"timestamp"`
	Age         string  `json:"age"`
}

// CacheJSON describes the reading history.
type CacheJSON struct {
	Records   int    `json:"total_records"`
	SizeBytes int    `json:"size_bytes"`
	Size      string `json:"size"`
	Oldest    string `json:"oldest_record,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	CachePath   string `json:"cache_path"`
	ReconnectMs int64  `json:"reconnect_ms"`
	RetentionH  int64  `json:"retention_hours"`
}

// DeviceRows flattens the device statuses into room -> device -> state with
// every known command device present, defaulting to OFF.
func DeviceRows(d house.DeviceStatus) map[string]map[string]string {
	out := make(map[string]map[string]string, len(house.Rooms))
	for _, room := range house.Rooms {
		row := make(map[string]string)
		for device := range house.Commands[room] {
			row[device] = d.Get(room, device)
		}
		for device, v := range d[room] {
			row[device] = v
		}
		out[string(room)] = row
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.Connected,
			HasData:   snap.HasData,
			State:     snap.State,
			Broker:    snap.Config.Broker,
		},
		Devices:    DeviceRows(snap.Devices),
		LogEntries: snap.LogEntries,
		Config: ConfigJSON{
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			CachePath:   snap.Config.CachePath,
			ReconnectMs: snap.Config.ReconnectInterval.Milliseconds(),
			RetentionH:  int64(snap.Config.Retention.Hours()),
		},
	}

	if !snap.Reading.IsZero() {
		inner.Sensor = &SensorJSON{
			Temperature: snap.Reading.Temperature,
			Humidity:    snap.Reading.Humidity,
			Timestamp:   snap.Reading.Timestamp.UTC().Format(time.RFC3339),
			Age:         humanize.RelTime(snap.Reading.Timestamp, snap.Now, "ago", "from now"),
		}
	}

	if snap.Cache != nil {
		inner.Cache = &CacheJSON{
			Records:   snap.Cache.Records,
			SizeBytes: snap.Cache.SizeBytes,
			Size:      snap.Cache.Size,
		}
		if !snap.Cache.Oldest.IsZero() {
			inner.Cache.Oldest = snap.Cache.Oldest.UTC().Format(time.RFC3339)
		}
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
