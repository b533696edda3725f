package status

// ringBuffer is a fixed-capacity FIFO of recent rejects.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []Reject
	capacity int
	head     int // next write position
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]Reject, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(item Reject) {
	r.buf[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// items returns a copy of the buffered entries, oldest first.
func (r *ringBuffer) items() []Reject {
	if r.count == 0 {
		return nil
	}

	result := make([]Reject, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}
	return result
}
