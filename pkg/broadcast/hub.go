// Package broadcast fans model events out to websocket clients subscribed to named channels.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Event is the message delivered to subscribers.
type Event struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// Hub manages subscriptions by channel name.
type Hub struct {
	log       *slog.Logger
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
}

// message couples payload with channel name.
type message struct {
	channel string
	payload []byte
}

// subscription defines register/unregister requests. An empty channel on unregister
// removes the client everywhere.
type subscription struct {
	channel string
	client  Subscriber
}

// NewHub creates a running Hub. Call Close to stop it.
func NewHub(log *slog.Logger) *Hub {
	h := &Hub{
		log:       log,
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = make(map[string]map[Subscriber]struct{})
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[sub.channel]; !ok {
				h.clients[sub.channel] = make(map[Subscriber]struct{})
			}
			h.clients[sub.channel][sub.client] = struct{}{}
			h.mu.Unlock()
		case sub := <-h.unreg:
			h.mu.Lock()
			for name, clients := range h.clients {
				if sub.channel != "" && name != sub.channel {
					continue
				}
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, name)
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[msg.channel]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						h.log.Warn("dropping slow subscriber", "channel", msg.channel, "error", err)
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.channel)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(channel string, client Subscriber) {
	select {
	case h.register <- subscription{channel: channel, client: client}:
	case <-h.done:
	}
}

// Unsubscribe removes a client from channel, or from every channel when channel is "".
func (h *Hub) Unsubscribe(channel string, client Subscriber) {
	select {
	case h.unreg <- subscription{channel: channel, client: client}:
	case <-h.done:
	}
}

// Publish sends an event to all subscribers of channel. It does not wait for delivery.
func (h *Hub) Publish(channel, event string, data any) error {
	payload, err := json.Marshal(Event{Channel: channel, Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message{channel: channel, payload: payload}:
	case <-h.done:
	}
	return nil
}

// Count returns the number of subscribers of channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// Close stops the hub and closes every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
