// Package msglog keeps a bounded, append-ordered record of the messages sent
// and received over the broker, plus system and error events.
package msglog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/smart-house/internal/fanout"
	"github.com/sweeney/smart-house/internal/logging"
)

// MaxEntries is the number of entries kept; older entries are evicted first.
const MaxEntries = 100

// Kind classifies a log entry.
type Kind string

const (
	KindSent     Kind = "sent"
	KindReceived Kind = "received"
	KindSystem   Kind = "system"
	KindError    Kind = "error"
)

// AuthorSystem is the author of entries produced by the session itself.
const AuthorSystem = "Sistema"

// Entry is one line of the message log.
type Entry struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"` // topic, or AuthorSystem
	Text      string    `json:"text"`
	Time      string    `json:"time"` // HH:MM, local time
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is the message log. All methods are safe for concurrent use.
//
// Subscribers are called in registration order, each with its own copy of
// the whole log. Callbacks may read the log, unsubscribe, add entries or
// clear the log; an entry added from inside a callback is delivered once
// the current delivery completes.
type Log struct {
	queue fanout.Queue

	mu   sync.Mutex // guards buf and subs
	buf  *ringBuffer
	subs fanout.Set[[]Entry]

	now    func() time.Time
	logger *logging.Logger
}

// New creates an empty Log.
func New(logger *logging.Logger) *Log {
	return &Log{
		buf:    newRingBuffer(MaxEntries),
		now:    time.Now,
		logger: logger,
	}
}

// Add appends an entry and notifies subscribers.
func (l *Log) Add(author, text string, kind Kind) Entry {
	now := l.now()
	e := Entry{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      text,
		Time:      now.Format("15:04"),
		Kind:      kind,
		Timestamp: now,
	}

	l.mu.Lock()
	l.buf.push(e)
	snap := l.buf.items()
	handles := l.subs.Snapshot()
	l.queue.Push(func() { l.deliver(handles, snap) })
	l.mu.Unlock()

	l.queue.Drain()
	return e
}

// Subscribe registers fn and immediately replays the current log to it.
// Called from inside a callback, the replay follows the current delivery.
// The returned function unregisters fn.
func (l *Log) Subscribe(fn func([]Entry)) (unsubscribe func()) {
	l.mu.Lock()
	h := l.subs.Add(fn)
	snap := l.buf.items()
	l.queue.Push(func() { fanout.Call(h, snap, l.recovered) })
	l.mu.Unlock()

	l.queue.Drain()

	return func() {
		l.mu.Lock()
		l.subs.Remove(h)
		l.mu.Unlock()
	}
}

// History returns the current entries, oldest first.
func (l *Log) History() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.items()
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.len()
}

// Clear replaces the log with a fresh empty one and notifies subscribers.
// Slices previously returned by History are not affected.
func (l *Log) Clear() {
	l.mu.Lock()
	l.buf = newRingBuffer(MaxEntries)
	handles := l.subs.Snapshot()
	l.queue.Push(func() { l.deliver(handles, []Entry{}) })
	l.mu.Unlock()

	l.queue.Drain()
}

// deliver hands every subscriber a private copy of snap.
func (l *Log) deliver(handles []*fanout.Handle[[]Entry], snap []Entry) {
	for _, h := range handles {
		fanout.Call(h, append([]Entry{}, snap...), l.recovered)
	}
}

func (l *Log) recovered(r any) {
	l.logger.Errorw("message log subscriber panicked", "panic", r)
}
