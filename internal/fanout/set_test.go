package fanout

import "testing"

func TestDeliverInRegistrationOrder(t *testing.T) {
	var s Set[int]
	var got []string

	s.Add(func(v int) { got = append(got, "a") })
	s.Add(func(v int) { got = append(got, "b") })
	s.Add(func(v int) { got = append(got, "c") })

	Deliver(s.Snapshot(), 1, nil)

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSameFunctionTwiceIsTwoSubscribers(t *testing.T) {
	var s Set[int]
	calls := 0
	fn := func(int) { calls++ }

	h1 := s.Add(fn)
	s.Add(fn)

	s.Remove(h1)
	Deliver(s.Snapshot(), 0, nil)

	if calls != 1 {
		t.Errorf("expected 1 call after removing one of two registrations, got %d", calls)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 handle left, got %d", s.Len())
	}
}

func TestRemoveTwiceIsNoop(t *testing.T) {
	var s Set[int]
	h := s.Add(func(int) {})
	s.Add(func(int) {})

	s.Remove(h)
	s.Remove(h)
	s.Remove(nil)

	if s.Len() != 1 {
		t.Errorf("expected 1 handle, got %d", s.Len())
	}
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	var s Set[string]
	var panics []any
	delivered := 0

	s.Add(func(string) { delivered++ })
	s.Add(func(string) { panic("boom") })
	s.Add(func(string) { delivered++ })

	Deliver(s.Snapshot(), "x", func(r any) { panics = append(panics, r) })

	if delivered != 2 {
		t.Errorf("expected 2 healthy subscribers notified, got %d", delivered)
	}
	if len(panics) != 1 || panics[0] != "boom" {
		t.Errorf("expected one recovered panic, got %v", panics)
	}
}

// A handle removed after the snapshot was taken must not be called.
func TestRemovedDuringDeliveryIsSkipped(t *testing.T) {
	var s Set[int]
	var second *Handle[int]
	secondCalled := false

	s.Add(func(int) { s.Remove(second) })
	second = s.Add(func(int) { secondCalled = true })

	Deliver(s.Snapshot(), 0, nil)

	if secondCalled {
		t.Error("handle removed mid-delivery was still invoked")
	}
	if second.Active() {
		t.Error("removed handle reports active")
	}
}
