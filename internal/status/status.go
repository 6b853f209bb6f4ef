// Package status keeps a point-in-time view of the dashboard daemon for the
// HTTP status page and JSON endpoint.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/smart-house/internal/cache"
	"github.com/sweeney/smart-house/internal/house"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker            string
	HTTPAddr          string
	CachePath         string
	ReconnectInterval time.Duration
	Retention         time.Duration
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	StartTime  time.Time
	Now        time.Time
	Connected  bool
	HasData    bool
	State      string
	Reading    house.Reading
	Devices    house.DeviceStatus
	LogEntries int
	Cache      *cache.Stats
	Config     Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It is fed by
// session subscriptions.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			State:     "CONNECTING",
			Devices:   make(house.DeviceStatus),
			Config:    cfg,
		},
	}
}

// SetConnection records the broker connection state.
func (t *Tracker) SetConnection(connected, hasData bool, state string) {
	t.mu.Lock()
	t.snap.Connected = connected
	t.snap.HasData = hasData
	t.snap.State = state
	t.mu.Unlock()
}

// SetReading records the latest sensor reading.
func (t *Tracker) SetReading(r house.Reading) {
	t.mu.Lock()
	t.snap.Reading = r
	t.mu.Unlock()
}

// SetDevices records the device statuses. d is copied.
func (t *Tracker) SetDevices(d house.DeviceStatus) {
	c := d.Clone()
	t.mu.Lock()
	t.snap.Devices = c
	t.mu.Unlock()
}

// SetLogEntries records the message log size.
func (t *Tracker) SetLogEntries(n int) {
	t.mu.Lock()
	t.snap.LogEntries = n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Devices = t.snap.Devices.Clone()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
