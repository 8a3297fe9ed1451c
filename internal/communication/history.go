package communication

import "github.com/nerrad567/commlink/internal/message"

// DefaultHistorySize is used when the configured size is not positive.
const DefaultHistorySize = 100

// history is a fixed-capacity ring of messages. Once full, each add
// overwrites the oldest entry by insertion order.
//
// Not safe for concurrent use; the Coordinator guards it.
type history struct {
	buf  []message.Message
	next int // index the next add writes to
	n    int
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &history{buf: make([]message.Message, size)}
}

func (h *history) add(m message.Message) {
	h.buf[h.next] = m
	h.next = (h.next + 1) % len(h.buf)
	if h.n < len(h.buf) {
		h.n++
	}
}

// snapshot returns a copy, newest first.
func (h *history) snapshot() []message.Message {
	out := make([]message.Message, h.n)
	for i := range h.n {
		idx := (h.next - 1 - i + len(h.buf)) % len(h.buf)
		out[i] = h.buf[idx]
	}
	return out
}

func (h *history) clear() {
	clear(h.buf)
	h.next = 0
	h.n = 0
}

func (h *history) len() int {
	return h.n
}
