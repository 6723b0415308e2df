package store

import (
	"context"
	"sync"
)

// notifier fans write notifications out to watchers. Each subscriber channel
// holds at most one pending signal, so bursts of writes coalesce.
type notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan struct{}]struct{})}
}

func (n *notifier) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
}

func (n *notifier) publish() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WatchIdentityCount emits the current identity count immediately and again
// after every change. A failed query emits 0. The channel closes when ctx ends.
func (s *Store) WatchIdentityCount(ctx context.Context) <-chan int {
	return watch(ctx, s, 0, s.IdentityCount)
}

// WatchAllIdentitiesBlocked emits whether all identities are blocked,
// immediately and after every change. A failed query emits false.
func (s *Store) WatchAllIdentitiesBlocked(ctx context.Context) <-chan bool {
	return watch(ctx, s, false, s.AllIdentitiesBlocked)
}

func watch[T any](ctx context.Context, s *Store, fallback T, query func(context.Context) (T, error)) <-chan T {
	out := make(chan T)
	changes := s.notifier.subscribe()

	go func() {
		defer close(out)
		defer s.notifier.unsubscribe(changes)

		for {
			v, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.WarnContext(ctx, "identity watch query failed", "error", err)
				v = fallback
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
