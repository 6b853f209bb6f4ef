package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
)

var testNow = time.Date(2026, 6, 10, 15, 30, 0, 0, time.UTC)

func newTestCache(st Storage) *Cache {
	c := New(st, DefaultRetention, logging.Nop())
	c.now = func() time.Time { return testNow }
	return c
}

func sample(ago time.Duration, temp float64) house.Reading {
	return house.Reading{Temperature: temp, Humidity: temp * 2, Timestamp: testNow.Add(-ago)}
}

func storeSamples(t *testing.T, st *MemoryStorage, samples []house.Reading) {
	t.Helper()
	data, err := json.Marshal(samples)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := st.Set(context.Background(), KeySamples, string(data)); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	c := newTestCache(st)
	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []house.Reading{
		sample(6*24*time.Hour, 20),
		sample(3*time.Hour, 21),
		sample(time.Minute, 22),
	}
	for _, r := range want {
		if err := c.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reloaded := newTestCache(st)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Samples()
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) || got[i].Temperature != want[i].Temperature {
			t.Errorf("sample %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	last, ok := reloaded.LastKnown()
	if !ok || last.Temperature != 22 {
		t.Errorf("LastKnown: got %+v (%v), want temperature 22", last, ok)
	}
}

func TestLoadPurgesExpiredAndRewrites(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	storeSamples(t, st, []house.Reading{
		sample(8*24*time.Hour, 10),
		sample(7*24*time.Hour+time.Second, 11),
		sample(2*24*time.Hour, 12),
	})
	writesBefore := st.Writes

	c := newTestCache(st)
	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := c.Samples()
	if len(got) != 1 || got[0].Temperature != 12 {
		t.Fatalf("expected only the 2-day old sample, got %+v", got)
	}
	if st.Writes != writesBefore+1 {
		t.Errorf("expected the store to be rewritten once, got %d writes", st.Writes-writesBefore)
	}

	raw, _, _ := st.Get(ctx, KeySamples)
	var stored []house.Reading
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored data unreadable: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("expected 1 stored sample after purge, got %d", len(stored))
	}
}

func TestLoadWithoutExpiredDoesNotRewrite(t *testing.T) {
	st := NewMemoryStorage()
	storeSamples(t, st, []house.Reading{sample(time.Hour, 20)})
	writesBefore := st.Writes

	c := newTestCache(st)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Writes != writesBefore {
		t.Errorf("unexpected rewrite")
	}
}

func TestLastKnownFallsBackToHistoryTail(t *testing.T) {
	st := NewMemoryStorage()
	storeSamples(t, st, []house.Reading{sample(2*time.Hour, 20), sample(time.Hour, 21)})

	c := newTestCache(st)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	last, ok := c.LastKnown()
	if !ok || last.Temperature != 21 {
		t.Errorf("got %+v (%v), want the newest history sample", last, ok)
	}
}

func TestLastKnownSlotSurvivesPurge(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	old := sample(30*24*time.Hour, 5)
	storeSamples(t, st, []house.Reading{old})
	data, _ := json.Marshal(old)
	st.Set(ctx, KeyLast, string(data))

	c := newTestCache(st)
	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Samples()) != 0 {
		t.Errorf("expired sample kept")
	}
	last, ok := c.LastKnown()
	if !ok || last.Temperature != 5 {
		t.Errorf("last known value should be available for cold start, got %+v (%v)", last, ok)
	}
}

func TestLoadCorruptData(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	st.Set(ctx, KeySamples, "{not json")
	st.Set(ctx, KeyLast, `{"temperatura":21.5,"umidade":60,"timestamp":"2026-06-10T15:00:00Z"}`)

	c := newTestCache(st)
	if err := c.Load(ctx); err != nil {
		t.Fatalf("corrupt history must not fail Load: %v", err)
	}
	if len(c.Samples()) != 0 {
		t.Error("expected empty history after corrupt load")
	}
	last, ok := c.LastKnown()
	if !ok || last.Temperature != 21.5 || last.Humidity != 60 {
		t.Errorf("last known value should survive a corrupt history, got %+v (%v)", last, ok)
	}
	if raw, _, _ := st.Get(ctx, KeySamples); raw != "[]" {
		t.Errorf("corrupt history not replaced, storage holds %q", raw)
	}

	// Later appends build on the clean history.
	if err := c.Append(ctx, sample(time.Minute, 22)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := c.Samples(); len(got) != 1 || got[0].Temperature != 22 {
		t.Errorf("unexpected samples: %+v", got)
	}
}

func TestLoadCorruptDataNothingElse(t *testing.T) {
	st := NewMemoryStorage()
	st.Set(context.Background(), KeySamples, "{not json")

	c := newTestCache(st)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.LastKnown(); ok {
		t.Error("no last known value expected")
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	c := newTestCache(st)
	c.Load(ctx)

	c.Append(ctx, sample(time.Hour, 1))
	c.Append(ctx, sample(time.Minute, 2))

	removed, err := c.Sweep(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("nothing to sweep: removed=%d err=%v", removed, err)
	}

	// Eight days later the first sample is outside the window.
	c.now = func() time.Time { return testNow.Add(7*24*time.Hour - 30*time.Minute) }
	writes := st.Writes
	removed, err = c.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if st.Writes != writes+1 {
		t.Errorf("expected a single rewrite, got %d", st.Writes-writes)
	}
	if got := c.Samples(); len(got) != 1 || got[0].Temperature != 2 {
		t.Errorf("unexpected samples after sweep: %+v", got)
	}
}

func TestAppendStorageFailureKeepsMemory(t *testing.T) {
	st := NewMemoryStorage()
	c := newTestCache(st)
	c.Load(context.Background())

	st.SetError = errors.New("disk full")
	if err := c.Append(context.Background(), sample(0, 30)); err == nil {
		t.Error("expected storage error")
	}
	if len(c.Samples()) != 1 {
		t.Error("in-memory sample lost on storage failure")
	}
	if last, ok := c.LastKnown(); !ok || last.Temperature != 30 {
		t.Errorf("last known not updated: %+v", last)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	c := newTestCache(st)
	c.Load(ctx)

	empty, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if empty.Records != 0 || !empty.Oldest.IsZero() {
		t.Errorf("unexpected empty stats: %+v", empty)
	}

	c.Append(ctx, sample(3*time.Hour, 1))
	c.Append(ctx, sample(time.Hour, 2))

	s, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Records != 2 {
		t.Errorf("Records: got %d, want 2", s.Records)
	}
	raw, _, _ := st.Get(ctx, KeySamples)
	if s.SizeBytes != len(raw) {
		t.Errorf("SizeBytes: got %d, want %d", s.SizeBytes, len(raw))
	}
	if s.Size == "" {
		t.Error("expected human-readable size")
	}
	if !s.Oldest.Equal(testNow.Add(-3 * time.Hour)) {
		t.Errorf("Oldest: got %v", s.Oldest)
	}
}

func TestReadingsByPeriod(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(NewMemoryStorage())
	c.Load(ctx)

	// testNow is 2026-06-10 15:30 UTC.
	for _, r := range []house.Reading{
		{Temperature: 1, Timestamp: time.Date(2026, 6, 5, 12, 0, 0, 0, time.UTC)},
		{Temperature: 2, Timestamp: time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC)},
		{Temperature: 3, Timestamp: time.Date(2026, 6, 9, 23, 0, 0, 0, time.UTC)},
		{Temperature: 4, Timestamp: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)},
	} {
		c.Append(ctx, r)
	}

	tests := []struct {
		period Period
		want   []float64
	}{
		{PeriodLast24h, []float64{3, 4}},
		{PeriodYesterday, []float64{2, 3}},
		{PeriodLast7Days, []float64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			got := c.Readings(tt.period)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d readings, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].Temperature != w {
					t.Errorf("reading %d: got %v, want %v", i, got[i].Temperature, w)
				}
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{
		"24h":       PeriodLast24h,
		"yesterday": PeriodYesterday,
		"7days":     PeriodLast7Days,
		"":          PeriodLast24h,
		"month":     PeriodLast24h,
	} {
		if got := ParsePeriod(in); got != want {
			t.Errorf("ParsePeriod(%q): got %s, want %s", in, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]house.Reading{
		{Temperature: 20, Humidity: 40},
		{Temperature: 26, Humidity: 60},
		{Temperature: 23, Humidity: 50},
	})
	if s.Count != 3 {
		t.Errorf("Count: got %d", s.Count)
	}
	if s.Temperature.Mean != 23 || s.Temperature.Max != 26 || s.Temperature.Min != 20 {
		t.Errorf("temperature: %+v", s.Temperature)
	}
	if s.Humidity.Mean != 50 || s.Humidity.Max != 60 || s.Humidity.Min != 40 {
		t.Errorf("humidity: %+v", s.Humidity)
	}

	if z := Summarize(nil); z != (Summary{}) {
		t.Errorf("empty input: %+v", z)
	}
}
