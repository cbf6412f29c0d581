package runner

import "sync"

// cappedBuffer keeps the first cap bytes written and silently discards the
// rest, so runaway program output cannot grow memory without bound.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
	cap int
}

func newCappedBuffer(capBytes int) *cappedBuffer {
	return &cappedBuffer{cap: capBytes}
}

// Write always reports the full length as written; overflow is dropped.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remain := b.cap - len(b.buf); remain > 0 {
		if len(p) > remain {
			b.buf = append(b.buf, p[:remain]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
