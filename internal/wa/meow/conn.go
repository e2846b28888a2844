package meow

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"gowa-sessions/internal/wa"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// Conn implementasi wa.Conn di atas satu *whatsmeow.Client.
type Conn struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	events chan wa.Event

	// ended di-set saat End/Logout dipanggil dari sisi kita, supaya
	// Disconnected yang menyusul dibaca sebagai manual close, bukan
	// transient loss yang memicu reconnect.
	ended atomic.Bool

	mu     sync.Mutex
	closed bool
}

func newConn(client *whatsmeow.Client, container *sqlstore.Container) *Conn {
	return &Conn{
		client:    client,
		container: container,
		events:    make(chan wa.Event, 64),
	}
}

func (c *Conn) Events() <-chan wa.Event { return c.events }

func (c *Conn) emit(evt wa.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		log.Printf("⚠ Event buffer full, dropping %s event", evt.Category())
	}
}

// finish tutup stream event; idempotent.
func (c *Conn) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// pumpQR teruskan kode pairing dari QR channel whatsmeow sebagai
// event PairingCode. Sukses/timeout ditangani lewat event stream biasa.
func (c *Conn) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch {
		case evt.Event == "code":
			c.emit(&wa.PairingCode{Code: evt.Code})
		case evt.Event == "success":
			log.Println("✓ QR scanned, pairing successful")
		case evt.Event == "timeout":
			log.Println("✗ QR channel timed out")
		case strings.HasPrefix(evt.Event, "err-"):
			log.Println("✗ QR channel error:", evt.Event)
		}
	}
}

// translate map event whatsmeow ke tagged variant wa.Event.
func (c *Conn) translate(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		id := c.client.Store.ID
		if id == nil {
			return
		}
		c.emit(&wa.Connected{
			JID:         id.String(),
			PushName:    c.client.Store.PushName,
			PhoneNumber: id.User,
		})
		// Simpan mapping client -> device lewat jalur credential biasa.
		blob, err := json.Marshal(meowCreds{JID: id.String()})
		if err == nil {
			c.emit(&wa.CredentialUpdate{Creds: blob})
		}

	case *events.PairSuccess:
		log.Println("✓ Pair success:", v.ID)

	case *events.LoggedOut:
		// Device store sudah tidak valid; bersihkan best-effort.
		if c.client.Store != nil && c.client.Store.ID != nil {
			if err := c.container.DeleteDevice(context.Background(), c.client.Store); err != nil {
				log.Println("⚠ Failed to delete device store:", err)
			}
		}
		c.emit(&wa.Closed{Cause: wa.CauseLoggedOut})
		c.finish()

	case *events.StreamReplaced:
		c.emit(&wa.Closed{Cause: wa.CauseConnectionReplaced})
		c.finish()

	case *events.StreamError:
		cause := wa.CauseUnknown
		if v.Code == "515" {
			cause = wa.CauseRestartRequired
		}
		c.emit(&wa.Closed{Cause: cause, Message: v.Code})
		c.finish()

	case *events.Disconnected:
		cause := wa.CauseUnknown
		if c.ended.Load() {
			cause = wa.CauseManualClose
		}
		c.emit(&wa.Closed{Cause: cause})
		c.finish()

	case *events.Message:
		c.emit(&wa.Content{Kind: wa.CategoryMessage, Payload: v})

	case *events.Contact:
		c.emit(&wa.Content{Kind: wa.CategoryContact, Payload: v})

	case *events.PushName:
		c.emit(&wa.Content{Kind: wa.CategoryContact, Payload: v})

	case *events.ChatPresence:
		c.emit(&wa.Content{Kind: wa.CategoryChat, Payload: v})

	case *events.CallOffer:
		c.emit(&wa.Content{Kind: wa.CategoryCall, Payload: v})

	case *events.HistorySync:
		c.emit(&wa.Content{Kind: wa.CategoryHistory, Payload: v})
	}
}

func (c *Conn) SendMessage(ctx context.Context, to string, text string) (string, error) {
	var jid types.JID
	var err error
	if strings.Contains(to, "@") {
		jid, err = types.ParseJID(to)
		if err != nil {
			return "", err
		}
	} else {
		jid = types.NewJID(to, types.DefaultUserServer)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	resp, err := c.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

// Keepalive kirim presence supaya session tetap dianggap online di HP.
func (c *Conn) Keepalive(ctx context.Context) error {
	return c.client.SendPresence(ctx, types.PresenceAvailable)
}

func (c *Conn) Alive() bool {
	return c.client.IsConnected()
}

// End putus transport, kredensial tetap tersimpan.
func (c *Conn) End() {
	c.ended.Store(true)
	c.client.Disconnect()
	c.emit(&wa.Closed{Cause: wa.CauseManualClose})
	c.finish()
}

// Logout unlink device dari WhatsApp; whatsmeow menghapus device store.
func (c *Conn) Logout(ctx context.Context) error {
	c.ended.Store(true)
	return c.client.Logout(ctx)
}
