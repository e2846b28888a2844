package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client merepresentasikan satu koneksi WebSocket ke FE.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Channel untuk mengirim event ke client ini.
	// Goroutine write akan membaca dari sini dan mengirim ke conn.
	send chan WsEvent

	// channel (clientID) yang di-subscribe koneksi ini.
	// Kosong = terima semua channel.
	channel string
}

// Hub menyimpan semua subscriber aktif dan fan-out event per channel.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register / unregister requests from clients.
	register   chan *Client
	unregister chan *Client

	// broadcast adalah channel event yang akan di-route ke subscriber.
	broadcast chan WsEvent

	mu sync.RWMutex
}

// NewHub membuat instance Hub baru.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan WsEvent, 256), // buffer kecil untuk mencegah blocking
	}
}

// Run harus dijalankan di goroutine terpisah.
// Loop ini menerima subscriber baru, menghapus yang disconnect,
// dan me-route event ke subscriber sesuai channel-nya.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.channel != "" && client.channel != event.Channel {
					continue
				}
				select {
				case client.send <- event:
					// sukses kirim ke buffer client
				default:
					// kalau buffer penuh, anggap client bermasalah dan putuskan
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register digunakan oleh handler WS saat koneksi baru dibuat.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister dipanggil ketika koneksi WS ditutup.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish mengimplementasikan service.ChannelPublisher: kirim satu
// event ke semua subscriber channel tersebut.
func (h *Hub) Publish(channel string, event string, data interface{}) {
	h.broadcast <- WsEvent{
		ID:        uuid.NewString(),
		Channel:   channel,
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewClient membuat subscriber baru dari koneksi Gorilla WebSocket.
// channel kosong berarti subscribe ke semua client.
func NewClient(hub *Hub, conn *websocket.Conn, channel string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan WsEvent, 256),
		channel: channel,
	}
}

// WritePump adalah loop yang mengirim event dari channel send ke koneksi WS.
// Biasanya dipanggil sebagai goroutine dari handler /ws.
func (c *Client) WritePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for event := range c.send {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("ws: failed to marshal event: %v", err)
			continue
		}

		// Set deadline sederhana supaya tidak hang selamanya.
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("ws: failed to write message: %v", err)
			return
		}
	}
}

// ReadPump hanya consume dan buang; dipakai untuk deteksi disconnect.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)

	_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
