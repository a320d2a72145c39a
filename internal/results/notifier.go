package results

import (
	"context"
	"sync"
)

// Notifier is the event bus boundary: fire-and-forget publish with delivery
// acknowledgment. Delivery is at-least-once and ordering is the bus's
// business; consumers deduplicate by Event.ID and must not assume event order
// matches processing order.
type Notifier interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// InMemoryNotifier records published events for tests.
type InMemoryNotifier struct {
	mu     sync.Mutex
	events []PublishedEvent

	// failFor makes Publish calls fail once failAfter successes have been
	// recorded, to exercise retry and resume paths.
	failAfter int
	failFor   int
	failErr   error
}

// PublishedEvent is one captured publish call.
type PublishedEvent struct {
	Topic   string
	Key     string
	Payload []byte
}

func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{}
}

func (n *InMemoryNotifier) Publish(_ context.Context, topic, key string, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor > 0 && len(n.events) >= n.failAfter {
		n.failFor--
		return n.failErr
	}
	n.events = append(n.events, PublishedEvent{Topic: topic, Key: key, Payload: payload})
	return nil
}

// FailNext makes the next count publishes return err.
func (n *InMemoryNotifier) FailNext(count int, err error) {
	n.FailAfter(0, count, err)
}

// FailAfter lets after publishes succeed, then fails the next count.
func (n *InMemoryNotifier) FailAfter(after, count int, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failAfter = after
	n.failFor = count
	n.failErr = err
}

// Events returns a copy of everything published so far.
func (n *InMemoryNotifier) Events() []PublishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]PublishedEvent{}, n.events...)
}
