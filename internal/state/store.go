// Package state holds the last known sensor reading and device statuses,
// derived from inbound broker messages, and fans changes out to subscribers.
package state

import (
	"sync"

	"github.com/sweeney/smart-house/internal/fanout"
	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
)

// Fallback supplies a reading recovered from durable storage, used until
// the first live reading of the session arrives.
type Fallback interface {
	LastKnown() (house.Reading, bool)
}

// Store is safe for concurrent use.
//
// Subscribers are notified in registration order, and notifications are
// delivered in the order the mutations happened. A new subscriber receives
// the current value before any later notification. Callbacks may mutate
// the store or issue commands; a notification caused from inside a
// callback is delivered once the current delivery completes.
type Store struct {
	queue fanout.Queue

	mu         sync.RWMutex
	current    house.Reading
	hasCurrent bool
	devices    house.DeviceStatus
	sensorSubs fanout.Set[house.Reading]
	statusSubs fanout.Set[house.DeviceStatus]

	fallback Fallback
	logger   *logging.Logger
}

// New creates a Store. fallback may be nil.
func New(fallback Fallback, logger *logging.Logger) *Store {
	return &Store{
		devices:  make(house.DeviceStatus),
		fallback: fallback,
		logger:   logger,
	}
}

// CurrentSensorData returns the last reading of this session, else the
// fallback's last known value, else the zero Reading.
func (s *Store) CurrentSensorData() house.Reading {
	r, _ := s.currentOrFallback()
	return r
}

// HasSensorData reports whether a live reading arrived this session.
func (s *Store) HasSensorData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCurrent
}

func (s *Store) currentOrFallback() (house.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentOrFallbackLocked()
}

func (s *Store) currentOrFallbackLocked() (house.Reading, bool) {
	if s.hasCurrent {
		return s.current, true
	}
	if s.fallback != nil {
		if r, ok := s.fallback.LastKnown(); ok {
			return r, true
		}
	}
	return house.Reading{}, false
}

// SetSensorData records r as the current reading and notifies subscribers.
func (s *Store) SetSensorData(r house.Reading) {
	s.mu.Lock()
	s.current = r
	s.hasCurrent = true
	handles := s.sensorSubs.Snapshot()
	s.queue.Push(func() { fanout.Deliver(handles, r, s.recovered("sensor")) })
	s.mu.Unlock()

	s.queue.Drain()
}

// SubscribeSensorData registers fn for every new reading. If a value is
// already known, fn is called with it before SubscribeSensorData returns,
// or after the current delivery when subscribing from inside a callback.
func (s *Store) SubscribeSensorData(fn func(house.Reading)) (unsubscribe func()) {
	s.mu.Lock()
	h := s.sensorSubs.Add(fn)
	if r, ok := s.currentOrFallbackLocked(); ok {
		s.queue.Push(func() { fanout.Call(h, r, s.recovered("sensor")) })
	}
	s.mu.Unlock()

	s.queue.Drain()

	return func() {
		s.mu.Lock()
		s.sensorSubs.Remove(h)
		s.mu.Unlock()
	}
}

// CurrentDeviceStatus returns a copy of the known device statuses.
func (s *Store) CurrentDeviceStatus() house.DeviceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices.Clone()
}

// SubscribeDeviceStatus registers fn for every device status change. If any
// status is known, fn is called with it before SubscribeDeviceStatus returns.
func (s *Store) SubscribeDeviceStatus(fn func(house.DeviceStatus)) (unsubscribe func()) {
	s.mu.Lock()
	h := s.statusSubs.Add(fn)
	if len(s.devices) > 0 {
		snap := s.devices.Clone()
		s.queue.Push(func() { fanout.Call(h, snap, s.recovered("device status")) })
	}
	s.mu.Unlock()

	s.queue.Drain()

	return func() {
		s.mu.Lock()
		s.statusSubs.Remove(h)
		s.mu.Unlock()
	}
}

// UpdateDeviceStatus sets one device's state and notifies subscribers.
// An empty value is stored as OFF. Setting the current value again is not
// a transition and notifies no one. Reports whether the state changed.
func (s *Store) UpdateDeviceStatus(room house.Room, device, value string) bool {
	return s.ApplyRoomStatus(room, map[string]string{device: value})
}

// ApplyRoomStatus sets several device states of one room as a single
// transition: subscribers are notified at most once.
func (s *Store) ApplyRoomStatus(room house.Room, fields map[string]string) bool {
	s.mu.Lock()
	changed := false
	for device, value := range fields {
		if value == "" {
			value = house.StateOff
		}
		devices, ok := s.devices[room]
		if !ok {
			devices = make(map[string]string)
			s.devices[room] = devices
		}
		if old, ok := devices[device]; ok && old == value {
			continue
		}
		devices[device] = value
		changed = true
	}
	if !changed {
		s.mu.Unlock()
		return false
	}
	snap := s.devices.Clone()
	handles := s.statusSubs.Snapshot()
	s.queue.Push(func() {
		// Each subscriber gets its own copy.
		for _, h := range handles {
			fanout.Call(h, snap.Clone(), s.recovered("device status"))
		}
	})
	s.mu.Unlock()

	s.queue.Drain()
	return true
}

func (s *Store) recovered(kind string) func(any) {
	return func(r any) {
		s.logger.Errorw("state subscriber panicked", "kind", kind, "panic", r)
	}
}
