package location

import "sync"

// Feed is a multicast, push-only stream. Subscribers only see values
// published after they subscribed, and a subscriber whose buffer is full
// misses the value rather than blocking the publisher.
type Feed[T any] struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan T
	buffer int
}

func NewFeed[T any](buffer int) *Feed[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed[T]{subs: make(map[int]chan T), buffer: buffer}
}

// Subscribe registers a new receiver. The returned cancel func closes the
// channel and is safe to call more than once.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan T, f.buffer)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}

// Publish delivers v to every current subscriber and reports how many
// received it.
func (f *Feed[T]) Publish(v T) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for _, ch := range f.subs {
		select {
		case ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}

func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
