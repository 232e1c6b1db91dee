// Package egress implements the single typed output stream (spec.md §9
// Design Notes) fanned out to dashboard consumers over SSE and WebSocket,
// adapted from the teacher's realtime.Broker.
package egress

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType enumerates the egress kinds listed in spec.md §6.
type MessageType string

const (
	MessageTrade                  MessageType = "trade"
	MessageOrderbook              MessageType = "orderbook"
	MessageSignal                 MessageType = "signal"
	MessageSignalBundle           MessageType = "signal_bundle"
	MessageZoneUpdate             MessageType = "zoneUpdate"
	MessageZoneSignal             MessageType = "zoneSignal"
	MessageSupportResistanceLevel MessageType = "supportResistanceLevel"
	MessageAnomaly                MessageType = "anomaly"
	MessageStats                  MessageType = "stats"
	MessageError                  MessageType = "error"
	MessageRuntimeConfig          MessageType = "runtimeConfig"
)

// Message is the single typed envelope every egress payload travels in
// (spec.md §6 "JSON messages on a WebSocket, each {type, data, now}").
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
	Now  time.Time   `json:"now"`
}

// Broker fans Messages out to registered clients, one buffered channel per
// client, dropping on a full buffer rather than blocking the publishing
// goroutine (teacher's realtime.Broker, generalized from raw []byte frames
// to the typed Message envelope).
type Broker struct {
	clients    map[chan Message]bool
	register   chan chan Message
	unregister chan chan Message
	broadcast  chan Message
	mu         sync.RWMutex

	dropped int64
}

// NewBroker constructs a broker with the teacher's 1000-message broadcast
// buffer.
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan Message]bool),
		register:   make(chan chan Message),
		unregister: make(chan chan Message),
		broadcast:  make(chan Message, 1000),
	}
}

// Run drives the broker loop; call it from its own goroutine at startup.
func (b *Broker) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			log.Printf("egress client connected, total=%d", len(b.clients))

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("egress client disconnected, total=%d", len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					b.dropped++
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Publish enqueues a message for fan-out, dropping it if the broker's own
// buffer is saturated (spec.md §5 backpressure: output bus is FIFO per
// consumer, never blocks the publisher).
func (b *Broker) Publish(typ MessageType, data any, now time.Time) {
	select {
	case b.broadcast <- Message{Type: typ, Data: data, Now: now}:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Dropped reports how many fan-out sends have been skipped due to a full
// per-client or broadcast buffer.
func (b *Broker) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// ServeSSE exposes the broker as a Server-Sent Events endpoint.
func (b *Broker) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan Message, 32)
	b.register <- clientChan

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			b.unregister <- clientChan
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			body, err := json.Marshal(msg)
			if err != nil {
				log.Printf("egress: marshal error: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", body)
			flusher.Flush()
		}
	}
}

// wsUpgrader accepts cross-origin dashboard connections, mirroring the
// teacher's websocket.Client being dialed without origin restrictions.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS exposes the broker as a gorilla/websocket endpoint, the second
// of the two dashboard transports named in spec.md §6 (the other being
// ServeSSE).
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("egress: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	clientChan := b.Register()
	defer b.Unregister(clientChan)

	// Drain and discard inbound frames so control frames (ping, close) are
	// processed; the reader exits once the connection errors or closes.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range clientChan {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// Register is exposed for transports other than SSE/ServeHTTP (e.g. the
// gorilla/websocket pump in ServeWS above) that want a raw client channel.
func (b *Broker) Register() chan Message {
	ch := make(chan Message, 32)
	b.register <- ch
	return ch
}

// Unregister removes a channel obtained from Register.
func (b *Broker) Unregister(ch chan Message) {
	b.unregister <- ch
}
