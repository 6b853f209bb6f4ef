// Package cache keeps a durable history of recent sensor readings with a
// rolling retention window, plus a last-known-value slot for cold starts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/logging"
)

// Storage keys.
const (
	KeySamples = "sensorData"
	KeyLast    = "lastSensorData"
)

// DefaultRetention is how long samples are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Cache is safe for concurrent use. The in-memory history is authoritative;
// storage failures are reported but never lose in-memory samples.
type Cache struct {
	storage   Storage
	retention time.Duration
	now       func() time.Time
	logger    *logging.Logger

	mu      sync.RWMutex
	samples []house.Reading
	last    house.Reading
	hasLast bool
}

// New creates an empty Cache on top of storage. Call Load before use.
func New(storage Storage, retention time.Duration, logger *logging.Logger) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Cache{
		storage:   storage,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Load reads the stored history, purges samples outside the retention
// window and rewrites the store if anything was purged. An unreadable
// history is logged and replaced by an empty one; the last-known-value
// slot is still loaded. Only storage errors are returned.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = nil
	c.last, c.hasLast = house.Reading{}, false

	raw, ok, err := c.storage.Get(ctx, KeySamples)
	if err != nil {
		return fmt.Errorf("load samples: %w", err)
	}
	if ok && raw != "" {
		var samples []house.Reading
		if err := json.Unmarshal([]byte(raw), &samples); err != nil {
			c.logger.Warnw("discarding unreadable sensor history", "err", err)
			if err := c.persistSamples(ctx); err != nil {
				return err
			}
		} else {
			kept := retain(samples, c.cutoff())
			c.samples = kept
			if len(kept) != len(samples) {
				c.logger.Infow("purged expired sensor samples", "removed", len(samples)-len(kept), "kept", len(kept))
				if err := c.persistSamples(ctx); err != nil {
					return err
				}
			}
		}
	}

	raw, ok, err = c.storage.Get(ctx, KeyLast)
	if err != nil {
		return fmt.Errorf("load last sample: %w", err)
	}
	if ok && raw != "" {
		var r house.Reading
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			c.logger.Warnw("discarding unreadable last sample", "err", err)
		} else {
			c.last, c.hasLast = r, true
		}
	}
	if !c.hasLast && len(c.samples) > 0 {
		c.last, c.hasLast = c.samples[len(c.samples)-1], true
	}
	return nil
}

// Append adds r to the history, applies the retention window and persists
// both the history and the last-known-value slot.
func (c *Cache) Append(ctx context.Context, r house.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = retain(append(c.samples, r), c.cutoff())
	c.last, c.hasLast = r, true

	if err := c.persistSamples(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode last sample: %w", err)
	}
	if err := c.storage.Set(ctx, KeyLast, string(data)); err != nil {
		return fmt.Errorf("save last sample: %w", err)
	}
	return nil
}

// Sweep purges samples outside the retention window, rewriting the store
// only when something was removed. It returns the number removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.samples)
	c.samples = retain(c.samples, c.cutoff())
	removed := before - len(c.samples)
	if removed == 0 {
		return 0, nil
	}
	return removed, c.persistSamples(ctx)
}

// LastKnown returns the most recent sample ever appended or loaded.
func (c *Cache) LastKnown() (house.Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.hasLast
}

// Samples returns a copy of the history, oldest first.
func (c *Cache) Samples() []house.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]house.Reading, len(c.samples))
	copy(out, c.samples)
	return out
}

// Readings returns the samples that fall into period, oldest first.
func (c *Cache) Readings(p Period) []house.Reading {
	from, to := p.Bounds(c.now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []house.Reading
	for _, r := range c.samples {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Stats describes the stored history.
type Stats struct {
	Records   int       `json:"total_records"`
	SizeBytes int       `json:"size_bytes"`
	Size      string    `json:"size"`
	Oldest    time.Time `json:"oldest_record,omitempty"`
}

// Stats computes record count, stored size and oldest record on demand.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	st := Stats{Records: len(c.samples)}
	for i, r := range c.samples {
		if i == 0 || r.Timestamp.Before(st.Oldest) {
			st.Oldest = r.Timestamp
		}
	}
	c.mu.RUnlock()

	raw, _, err := c.storage.Get(ctx, KeySamples)
	if err != nil {
		return st, fmt.Errorf("read stored samples: %w", err)
	}
	st.SizeBytes = len(raw)
	st.Size = humanize.Bytes(uint64(len(raw)))
	return st, nil
}

func (c *Cache) cutoff() time.Time {
	return c.now().Add(-c.retention)
}

// persistSamples writes the history. Caller must hold c.mu.
func (c *Cache) persistSamples(ctx context.Context) error {
	samples := c.samples
	if samples == nil {
		samples = []house.Reading{}
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}
	if err := c.storage.Set(ctx, KeySamples, string(data)); err != nil {
		return fmt.Errorf("save samples: %w", err)
	}
	return nil
}

// retain returns the samples not older than cutoff, preserving order.
func retain(samples []house.Reading, cutoff time.Time) []house.Reading {
	kept := samples[:0:0]
	for _, r := range samples {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}
