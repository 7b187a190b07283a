package docstore

import (
	"context"
	"sync"
)

// Event is one coalesced, consistent snapshot of a conversation's document
// set. Observers never see partial sub-states of a multi-step operation.
type Event struct {
	ConversationID string
	Documents      []*Document
}

const eventBuffer = 64

// broker fans events out to subscribers. Publish is non-blocking: a
// subscriber whose buffer is full misses that event rather than stalling
// the store.
type broker struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	done chan struct{}
}

func newBroker() *broker {
	return &broker{
		subs: make(map[chan Event]struct{}),
		done: make(chan struct{}),
	}
}

func (b *broker) subscribe(ctx context.Context) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event)
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event, eventBuffer)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		select {
		case <-b.done:
			return
		default:
		}
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

func (b *broker) publish(ev Event) {
	b.mu.RLock()
	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}
	subs := make([]chan Event, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (b *broker) shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub)
	}
}
