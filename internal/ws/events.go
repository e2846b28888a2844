package ws

import "time"

// WsEvent satu event yang dikirim ke subscriber lewat WebSocket.
// Channel = clientID pemilik event; Event = kategori (qr, statusChange,
// session, messages, chats, contacts, calls, history).
type WsEvent struct {
	ID        string      `json:"id"`
	Channel   string      `json:"channel"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
