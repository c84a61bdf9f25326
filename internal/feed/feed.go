// Package feed carries change signals from writers to live subscribers.
// A signal carries no payload: subscribers re-read the full current state,
// so missed or coalesced signals never leave a subscriber behind.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type Broker interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a channel that receives a signal after each publish on topic.
	// The channel is closed once ctx is done.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
}

func ProjectTasks(projectID string) string { return "project:" + projectID + ":tasks" }

func UserNotifications(userID string) string { return "user:" + userID + ":notifications" }

func UserProjects(userID string) string { return "user:" + userID + ":projects" }

// Hub is an in-process Broker.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: map[string]map[chan struct{}]struct{}{}, log: log}
}

func (h *Hub) Publish(_ context.Context, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		notify(ch)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[chan struct{}]struct{}{}
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("feed subscribe", zap.String("topic", topic))

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[topic], ch)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		close(ch)
		h.mu.Unlock()
		h.log.Debug("feed unsubscribe", zap.String("topic", topic))
	}()
	return ch, nil
}

// Subscribers reports how many subscribers topic has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// notify coalesces: a pending signal already covers this one.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
