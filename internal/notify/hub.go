package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizrank",
		Subsystem: "notify",
		Name:      "connections",
		Help:      "Connections registered in the local hub.",
	})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizrank",
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Frames handed to connections, by result.",
	}, []string{"result"})
)

// Member is a live connection as the hub sees it. Send must not block.
type Member interface {
	ID() string
	Send(payload []byte) bool
}

// Hub is the topic membership table of this process. It tracks which members joined
// which topics but does not own their lifetime.
type Hub struct {
	mu      sync.RWMutex
	members map[string]Member
	topics  map[Topic]map[string]struct{}
	joined  map[string]map[Topic]struct{}
}

func NewHub() *Hub {
	return &Hub{
		members: make(map[string]Member),
		topics:  make(map[Topic]map[string]struct{}),
		joined:  make(map[string]map[Topic]struct{}),
	}
}

// Join adds m to topic. Joining a topic twice is a no-op and reports false.
func (h *Hub) Join(m Member, topic Topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := m.ID()
	if _, ok := h.members[id]; !ok {
		h.members[id] = m
		h.joined[id] = make(map[Topic]struct{})
		connections.Inc()
	}

	if _, ok := h.joined[id][topic]; ok {
		return false
	}

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]struct{})
	}
	h.topics[topic][id] = struct{}{}
	h.joined[id][topic] = struct{}{}

	return true
}

// Leave removes the member from topic, reporting whether it was there.
func (h *Hub) Leave(id string, topic Topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.joined[id][topic]; !ok {
		return false
	}

	h.removeLocked(id, topic)
	return true
}

// Disconnect removes the member from every topic it joined.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[id]; !ok {
		return
	}

	for topic := range h.joined[id] {
		h.removeLocked(id, topic)
	}
	delete(h.joined, id)
	delete(h.members, id)
	connections.Dec()
}

func (h *Hub) removeLocked(id string, topic Topic) {
	delete(h.joined[id], topic)

	delete(h.topics[topic], id)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}

// Deliver hands payload to every member of topic and returns how many accepted it.
// Members are snapshotted under the lock and sent to outside it.
func (h *Hub) Deliver(topic Topic, payload []byte) int {
	h.mu.RLock()
	targets := make([]Member, 0, len(h.topics[topic]))
	for id := range h.topics[topic] {
		targets = append(targets, h.members[id])
	}
	h.mu.RUnlock()

	n := 0
	for _, m := range targets {
		if m.Send(payload) {
			n++
			deliveries.WithLabelValues("sent").Inc()
			continue
		}
		deliveries.WithLabelValues("dropped").Inc()
	}

	return n
}

// Topics lists the topics member id has joined.
func (h *Hub) Topics(id string) []Topic {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Topic, 0, len(h.joined[id]))
	for t := range h.joined[id] {
		out = append(out, t)
	}
	return out
}

// Size reports how many members joined topic.
func (h *Hub) Size(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.topics[topic])
}
