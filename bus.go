package main

import "sync"

// busBuffer is the per-subscriber queue depth.
const busBuffer = 64

// Bus broadcasts messages to every subscriber, like window.postMessage does
// for every listener on a page. It carries no business logic.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Message)}
}

// Post delivers msg to all current subscribers without blocking. A
// subscriber whose queue is full misses the message.
func (b *Bus) Post(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers a listener. The returned cancel func removes it and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Message, busBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}
