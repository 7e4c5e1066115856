package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub is the subscriber registry. Publish fans an event out to every
// observer; NotifyError reaches one observer only.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	observers map[string]*observer
	closed    bool

	wg sync.WaitGroup

	// Stats (guarded by statsMu)
	statsMu   sync.Mutex
	published int64
	delivered int64
	dropped   int64
}

type observer struct {
	id    string
	sink  Sink
	queue *Queue[[]byte]
}

// NewHub creates an empty hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Hub{
		cfg:       cfg,
		logger:    logger,
		observers: make(map[string]*observer),
	}
}

// Subscribe registers sink and starts its writer goroutine.
// The returned ID addresses the observer in NotifyError and Unsubscribe.
func (h *Hub) Subscribe(sink Sink) (string, error) {
	obs := &observer{
		id:    uuid.NewString(),
		sink:  sink,
		queue: NewQueue[[]byte](h.cfg.QueueSize, h.cfg.MaxPending),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	h.observers[obs.id] = obs
	count := len(h.observers)
	h.mu.Unlock()

	h.wg.Add(1)
	go h.pump(obs)

	h.logger.Debug("observer subscribed", "observer_id", obs.id, "observers", count)
	return obs.id, nil
}

// Unsubscribe removes an observer. Events already queued for it are discarded
// once its writer goroutine notices. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	obs, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	obs.queue.Close()
	h.logger.Debug("observer unsubscribed", "observer_id", id)
}

// Publish queues ev for every current observer and returns how many accepted it.
// It never blocks on delivery. Observers whose queue is full are dropped.
func (h *Hub) Publish(ev Event) (int, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", ev.Name, err)
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0, ErrHubClosed
	}
	targets := make([]*observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.RUnlock()

	accepted := 0
	var behind []*observer
	for _, obs := range targets {
		if obs.queue.Push(data) {
			accepted++
			continue
		}
		if obs.queue.Len() > 0 {
			behind = append(behind, obs)
		}
		// Otherwise it was unsubscribed mid-iteration.
	}

	for _, obs := range behind {
		h.drop(obs)
	}

	h.statsMu.Lock()
	h.published++
	h.statsMu.Unlock()

	return accepted, nil
}

// NotifyError delivers msg privately to one observer.
func (h *Hub) NotifyError(id, msg string) error {
	data, err := json.Marshal(ErrorEvent(msg))
	if err != nil {
		return fmt.Errorf("encode error event: %w", err)
	}

	h.mu.RLock()
	obs, ok := h.observers[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownObserver
	}

	if !obs.queue.Push(data) {
		h.drop(obs)
		return ErrObserverBehind
	}
	return nil
}

// Count returns the number of subscribed observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	observers := h.Count()

	h.statsMu.Lock()
	defer h.statsMu.Unlock()

	return HubStats{
		Observers: observers,
		Published: h.published,
		Delivered: h.delivered,
		Dropped:   h.dropped,
	}
}

// Close unsubscribes every observer and waits for writer goroutines to exit
// or ctx to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	observers := h.observers
	h.observers = make(map[string]*observer)
	h.mu.Unlock()

	for _, obs := range observers {
		obs.queue.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("broadcast hub stopped")
		return nil
	case <-ctx.Done():
		h.logger.Warn("broadcast hub stop timed out")
		return ctx.Err()
	}
}

// pump drains one observer's queue into its sink.
func (h *Hub) pump(obs *observer) {
	defer h.wg.Done()

	for {
		data, ok := obs.queue.Pop()
		if !ok {
			return
		}
		if h.unsubscribed(obs.id) {
			return
		}

		if err := obs.sink.Send(data); err != nil {
			h.logger.Debug("observer send failed", "observer_id", obs.id, "error", err)
			h.Unsubscribe(obs.id)
			return
		}

		h.statsMu.Lock()
		h.delivered++
		h.statsMu.Unlock()
	}
}

// drop disconnects an observer that fell behind.
func (h *Hub) drop(obs *observer) {
	h.mu.Lock()
	current, ok := h.observers[obs.id]
	if ok && current == obs {
		delete(h.observers, obs.id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	obs.queue.Close()

	h.statsMu.Lock()
	h.dropped++
	h.statsMu.Unlock()

	h.logger.Warn("dropping slow observer",
		"observer_id", obs.id,
		"pending", obs.queue.Len(),
	)

	if err := obs.sink.Close(); err != nil {
		h.logger.Debug("close slow observer", "observer_id", obs.id, "error", err)
	}
}

func (h *Hub) unsubscribed(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.observers[id]
	return !ok
}
