package msglog

// ringBuffer keeps the most recent entries up to capacity. The caller
// synchronizes access.
type ringBuffer struct {
	buf      []Entry
	capacity int
	head     int // next write position
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]Entry, capacity),
		capacity: capacity,
	}
}

// push appends e, evicting the oldest entry when full.
func (r *ringBuffer) push(e Entry) {
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// items returns a copy of the entries, oldest first.
func (r *ringBuffer) items() []Entry {
	result := make([]Entry, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
