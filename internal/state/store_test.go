package state

import (
	"testing"
	"time"

	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
)

type fakeFallback struct {
	r  house.Reading
	ok bool
}

func (f fakeFallback) LastKnown() (house.Reading, bool) { return f.r, f.ok }

func reading(temp, hum float64) house.Reading {
	return house.Reading{Temperature: temp, Humidity: hum, Timestamp: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCurrentSensorDataLastWriteWins(t *testing.T) {
	s := New(nil, logging.Nop())

	seq := []house.Reading{reading(20, 50), reading(21.5, 48), reading(19, 70)}
	for k, r := range seq {
		s.SetSensorData(r)
		if got := s.CurrentSensorData(); got != r {
			t.Errorf("after message %d: got %+v, want %+v", k, got, r)
		}
	}
}

func TestCurrentSensorDataFallbacks(t *testing.T) {
	s := New(nil, logging.Nop())
	if got := s.CurrentSensorData(); !got.IsZero() {
		t.Errorf("no data: got %+v, want zero", got)
	}
	if s.HasSensorData() {
		t.Error("HasSensorData before any reading")
	}

	cached := reading(18, 40)
	s = New(fakeFallback{r: cached, ok: true}, logging.Nop())
	if got := s.CurrentSensorData(); got != cached {
		t.Errorf("fallback: got %+v, want %+v", got, cached)
	}
	if s.HasSensorData() {
		t.Error("fallback value must not count as live data")
	}

	live := reading(25, 30)
	s.SetSensorData(live)
	if got := s.CurrentSensorData(); got != live {
		t.Errorf("live: got %+v, want %+v", got, live)
	}
	if !s.HasSensorData() {
		t.Error("HasSensorData after reading")
	}
}

func TestSubscribeSensorDataReplay(t *testing.T) {
	s := New(nil, logging.Nop())

	var early []house.Reading
	s.SubscribeSensorData(func(r house.Reading) { early = append(early, r) })
	if len(early) != 0 {
		t.Fatalf("no replay expected without data, got %d", len(early))
	}

	r1 := reading(22, 55)
	s.SetSensorData(r1)

	var late []house.Reading
	s.SubscribeSensorData(func(r house.Reading) { late = append(late, r) })
	if len(late) != 1 || late[0] != r1 {
		t.Fatalf("late subscriber should be replayed r1, got %+v", late)
	}

	r2 := reading(23, 56)
	s.SetSensorData(r2)
	if len(late) != 2 || late[1] != r2 {
		t.Errorf("late subscriber missed r2: %+v", late)
	}
	if len(early) != 2 || early[0] != r1 || early[1] != r2 {
		t.Errorf("early subscriber: %+v", early)
	}
}

func TestSubscribeSensorDataReplaysFallback(t *testing.T) {
	cached := reading(17, 45)
	s := New(fakeFallback{r: cached, ok: true}, logging.Nop())

	var got []house.Reading
	s.SubscribeSensorData(func(r house.Reading) { got = append(got, r) })
	if len(got) != 1 || got[0] != cached {
		t.Errorf("expected cached replay, got %+v", got)
	}
}

func TestUnsubscribeSensorData(t *testing.T) {
	s := New(nil, logging.Nop())
	calls := 0
	unsub := s.SubscribeSensorData(func(house.Reading) { calls++ })
	unsub()
	unsub()
	s.SetSensorData(reading(1, 1))
	if calls != 0 {
		t.Errorf("unsubscribed callback called %d times", calls)
	}
}

func TestFanOutOrderAndPanicIsolation(t *testing.T) {
	s := New(nil, logging.Nop())
	var order []int

	s.SubscribeSensorData(func(house.Reading) { order = append(order, 1) })
	s.SubscribeSensorData(func(house.Reading) { panic("broken widget") })
	s.SubscribeSensorData(func(house.Reading) { order = append(order, 3) })

	s.SetSensorData(reading(1, 2))

	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Errorf("unexpected delivery order: %v", order)
	}
}

func TestUpdateDeviceStatus(t *testing.T) {
	s := New(nil, logging.Nop())

	var got []house.DeviceStatus
	s.SubscribeDeviceStatus(func(d house.DeviceStatus) { got = append(got, d) })
	if len(got) != 0 {
		t.Fatalf("no replay expected without status, got %d", len(got))
	}

	if !s.UpdateDeviceStatus(house.RoomGaragem, house.DeviceLed, "ON") {
		t.Error("expected change")
	}
	if len(got) != 1 || got[0].Get(house.RoomGaragem, house.DeviceLed) != "ON" {
		t.Fatalf("unexpected notification: %+v", got)
	}

	// Same value again is not a transition.
	if s.UpdateDeviceStatus(house.RoomGaragem, house.DeviceLed, "ON") {
		t.Error("expected no change")
	}
	if len(got) != 1 {
		t.Errorf("duplicate transition notified: %d notifications", len(got))
	}

	s.UpdateDeviceStatus(house.RoomGaragem, house.DeviceLed, "")
	if len(got) != 2 || got[1].Get(house.RoomGaragem, house.DeviceLed) != house.StateOff {
		t.Errorf("empty value should be stored as OFF: %+v", got)
	}
}

func TestApplyRoomStatusNotifiesOnce(t *testing.T) {
	s := New(nil, logging.Nop())
	calls := 0
	s.SubscribeDeviceStatus(func(house.DeviceStatus) { calls++ })

	s.ApplyRoomStatus(house.RoomSala, map[string]string{
		house.DeviceLed:          "ON",
		house.DeviceAr:           "OFF",
		house.FieldAutoAr:        "ON",
		house.DeviceUmidificador: "OFF",
	})

	if calls != 1 {
		t.Errorf("expected one notification, got %d", calls)
	}
	cur := s.CurrentDeviceStatus()
	if cur.Get(house.RoomSala, house.FieldAutoAr) != "ON" || cur.Get(house.RoomSala, house.DeviceLed) != "ON" {
		t.Errorf("unexpected status: %+v", cur)
	}
}

func TestSubscribeDeviceStatusReplay(t *testing.T) {
	s := New(nil, logging.Nop())
	s.UpdateDeviceStatus(house.RoomQuarto, house.DeviceLuz, "ON")

	var got house.DeviceStatus
	s.SubscribeDeviceStatus(func(d house.DeviceStatus) { got = d })

	if got == nil || got.Get(house.RoomQuarto, house.DeviceLuz) != "ON" {
		t.Errorf("expected replay with bedroom light ON, got %+v", got)
	}
}

func TestDeviceStatusCopiesAreIndependent(t *testing.T) {
	s := New(nil, logging.Nop())
	s.SubscribeDeviceStatus(func(d house.DeviceStatus) {
		d[house.RoomSala][house.DeviceLed] = "TAMPERED"
	})
	var second house.DeviceStatus
	s.SubscribeDeviceStatus(func(d house.DeviceStatus) { second = d })

	s.UpdateDeviceStatus(house.RoomSala, house.DeviceLed, "ON")

	if second.Get(house.RoomSala, house.DeviceLed) != "ON" {
		t.Errorf("second subscriber saw a mutated copy: %+v", second)
	}
	if s.CurrentDeviceStatus().Get(house.RoomSala, house.DeviceLed) != "ON" {
		t.Error("subscriber mutated the store")
	}
}

// A subscriber that reacts to a reading by switching a device must not
// deadlock, and every subscriber sees the reading before the status change.
func TestSubscriberMayMutateStore(t *testing.T) {
	s := New(nil, logging.Nop())
	var events []string

	s.SubscribeSensorData(func(r house.Reading) {
		events = append(events, "sensor a")
		if r.Temperature > 28 {
			s.UpdateDeviceStatus(house.RoomSala, house.DeviceAr, "ON")
			events = append(events, "command issued")
		}
	})
	s.SubscribeSensorData(func(house.Reading) { events = append(events, "sensor b") })
	s.SubscribeDeviceStatus(func(d house.DeviceStatus) {
		events = append(events, "status "+d.Get(house.RoomSala, house.DeviceAr))
	})

	done := make(chan struct{})
	go func() {
		s.SetSensorData(reading(30, 40))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetSensorData deadlocked on a re-entrant mutation")
	}

	want := []string{"sensor a", "command issued", "sensor b", "status ON"}
	if len(events) != len(want) {
		t.Fatalf("got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, events[i], want[i])
		}
	}
	if s.CurrentDeviceStatus().Get(house.RoomSala, house.DeviceAr) != "ON" {
		t.Error("status change from callback was not applied")
	}
}

func TestSubscribeFromInsideCallback(t *testing.T) {
	s := New(nil, logging.Nop())
	var late []house.Reading

	s.SubscribeSensorData(func(r house.Reading) {
		if late == nil {
			late = []house.Reading{}
			s.SubscribeSensorData(func(r house.Reading) { late = append(late, r) })
		}
	})
	r1 := reading(21, 50)
	s.SetSensorData(r1)

	if len(late) != 1 || late[0] != r1 {
		t.Fatalf("nested subscriber should be replayed r1 after the delivery, got %+v", late)
	}

	r2 := reading(22, 51)
	s.SetSensorData(r2)
	if len(late) != 2 || late[1] != r2 {
		t.Errorf("nested subscriber missed r2: %+v", late)
	}
}
