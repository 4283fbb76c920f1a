package drone

import (
	"context"
	"sync"
)

const feedBuffer = 32

// feed fans published values out to subscribers. Sends never block: a
// subscriber that falls behind loses values. A replaying feed hands the last
// published value to every new subscriber first.
type feed[T any] struct {
	mu     sync.Mutex
	replay bool
	last   T
	has    bool
	subs   map[chan T]struct{}
}

func newFeed[T any](replay bool) *feed[T] {
	return &feed[T]{replay: replay, subs: make(map[chan T]struct{})}
}

func (f *feed[T]) publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last, f.has = v, true
	for ch := range f.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (f *feed[T]) latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.has
}

// subscribe returns a channel that is closed once ctx is done.
func (f *feed[T]) subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, feedBuffer)

	f.mu.Lock()
	if f.replay && f.has {
		ch <- f.last
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}
