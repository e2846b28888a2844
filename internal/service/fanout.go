package service

import (
	"log"
	"sync"

	"gowa-sessions/internal/wa"
)

// Nama event di channel per-client (konsumsi FE lewat ws).
const (
	EventQR           = "qr"
	EventStatusChange = "statusChange"
	EventSession      = "session"
	EventMessages     = "messages"
	EventChats        = "chats"
	EventContacts     = "contacts"
	EventCalls        = "calls"
	EventHistory      = "history"
)

// fanoutBridge republish event protokol ke channel bernama clientID.
// Status dan credential-update selalu diteruskan; event konten ditahan
// selama flag soft-disconnect aktif, supaya subscriber tidak menerima
// data dari session yang sudah logout tapi stream-nya belum kering.
type fanoutBridge struct {
	pub ChannelPublisher

	mu   sync.RWMutex
	soft map[string]bool
}

func newFanoutBridge(pub ChannelPublisher) *fanoutBridge {
	return &fanoutBridge{pub: pub, soft: make(map[string]bool)}
}

func channelEventFor(cat wa.Category) string {
	switch cat {
	case wa.CategoryCreds:
		return EventSession
	case wa.CategoryMessage:
		return EventMessages
	case wa.CategoryChat:
		return EventChats
	case wa.CategoryContact:
		return EventContacts
	case wa.CategoryCall:
		return EventCalls
	case wa.CategoryHistory:
		return EventHistory
	default:
		return EventStatusChange
	}
}

func isContentCategory(cat wa.Category) bool {
	switch cat {
	case wa.CategoryMessage, wa.CategoryChat, wa.CategoryContact, wa.CategoryCall, wa.CategoryHistory:
		return true
	default:
		return false
	}
}

// Forward teruskan satu event ke channel client, dengan gate
// soft-disconnect untuk kategori konten.
func (f *fanoutBridge) Forward(id string, evt wa.Event) {
	cat := evt.Category()
	if isContentCategory(cat) && f.SoftDisconnected(id) {
		log.Printf("⏹ Suppressing %s event for soft-disconnected client %s", cat, id)
		return
	}

	var payload interface{}
	switch e := evt.(type) {
	case *wa.Content:
		payload = e.Payload
	default:
		payload = evt
	}
	f.pub.Publish(id, channelEventFor(cat), payload)
}

func (f *fanoutBridge) SetSoftDisconnected(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soft[id] = true
}

// ClearSoftDisconnected hapus flag; dipanggil saat autentikasi sukses.
func (f *fanoutBridge) ClearSoftDisconnected(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.soft, id)
}

func (f *fanoutBridge) SoftDisconnected(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.soft[id]
}
