package scanner

import (
	"context"
	"sync"
)

// Watch returns a channel receiving every scanner event until ctx is done,
// after which the listener is removed and the channel closed. Delivery blocks
// the emitting goroutine while the buffer is full.
func (s *Scanner) Watch(ctx context.Context, buffer int) <-chan Event {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	id := s.On(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	})
	go func() {
		<-ctx.Done()
		s.Off(id)
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
