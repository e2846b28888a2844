package handler

import (
	"log"
	"net/http"

	"gowa-sessions/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// upgrader untuk Gorilla
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: production: batasi origin
		return true
	},
}

// WebSocketHandler meng-handle koneksi WS di route /ws.
// Query param ?clientId=... membatasi subscription ke satu channel;
// tanpa itu, subscriber menerima event semua client.
func WebSocketHandler(hub *ws.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return err
		}

		channel := c.QueryParam("clientId")

		client := ws.NewClient(hub, conn, channel)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()

		return nil
	}
}

// ListenClientEvents versi per-client di bawah /api (butuh JWT):
// subscribe ke channel milik satu clientId lewat path param.
func ListenClientEvents(hub *ws.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return err
		}

		client := ws.NewClient(hub, conn, c.Param("clientId"))
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()

		return nil
	}
}
