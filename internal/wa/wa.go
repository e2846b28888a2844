// Package wa mendefinisikan kontrak abstrak ke library protokol WhatsApp.
// Core lifecycle manager hanya bicara lewat interface di sini, bukan ke
// whatsmeow langsung (implementasi production ada di internal/wa/meow).
package wa

import (
	"context"
	"encoding/json"
)

// Category keluarga event yang dikirim lewat stream koneksi.
type Category string

const (
	CategoryStatus  Category = "connection-status"
	CategoryCreds   Category = "credential-update"
	CategoryMessage Category = "message"
	CategoryChat    Category = "chat"
	CategoryContact Category = "contact"
	CategoryCall    Category = "call"
	CategoryHistory Category = "history-sync"
)

// Event adalah tagged variant, di-switch pakai type assertion
// (pola yang sama dengan events.* di whatsmeow).
type Event interface {
	Category() Category
}

// PairingCode dikirim setiap kali kode pairing (QR) baru diterbitkan.
type PairingCode struct {
	Code string
}

func (*PairingCode) Category() Category { return CategoryStatus }

// Connected menandakan autentikasi berhasil dan koneksi terbuka.
type Connected struct {
	JID         string
	PushName    string
	PhoneNumber string
}

func (*Connected) Category() Category { return CategoryStatus }

// Closed menandakan koneksi tertutup. Cause sudah di-decode sekali
// dari raw close reason, jadi handler tinggal switch di enum.
type Closed struct {
	Cause   DisconnectCause
	Message string
}

func (*Closed) Category() Category { return CategoryStatus }

// CredentialUpdate membawa material kredensial baru yang harus
// dipersist sebelum event diteruskan ke subscriber.
type CredentialUpdate struct {
	// Creds snapshot penuh kredensial (opaque), nil kalau tidak berubah.
	Creds json.RawMessage
	// Mutations perubahan key-value store, keyType -> id -> value.
	// Value nil berarti key dihapus.
	Mutations map[string]map[string][]byte
}

func (*CredentialUpdate) Category() Category { return CategoryCreds }

// Content adalah event konten (pesan, chat, kontak, call, history).
type Content struct {
	Kind    Category
	Payload interface{}
}

func (c *Content) Category() Category { return c.Kind }

// KeyStore kontrak get/set yang diminta library protokol untuk
// menyimpan signal keys dsb. Implementasinya Auth State Bridge.
type KeyStore interface {
	// Get mengembalikan hanya subset key yang memang ada.
	Get(ctx context.Context, keyType string, ids []string) (map[string][]byte, error)
	// Set merge mutasi ke key map dan persist seluruh state sebagai
	// satu write. Gagal persist tidak boleh mematikan session.
	Set(ctx context.Context, mutations map[string]map[string][]byte) error
}

// Dialer membuka satu koneksi protokol per client.
type Dialer interface {
	Open(ctx context.Context, version string, creds json.RawMessage, keys KeyStore) (Conn, error)
}

// Conn satu session protokol yang hidup.
type Conn interface {
	// Events stream push dari protokol; channel ditutup setelah Closed.
	Events() <-chan Event
	SendMessage(ctx context.Context, to string, text string) (string, error)
	// Keepalive kirim presence supaya session tetap dianggap online.
	Keepalive(ctx context.Context) error
	Alive() bool
	// End memutus transport tanpa menghapus kredensial.
	End()
	// Logout unlink device; kredensial tersimpan jadi tidak valid lagi.
	Logout(ctx context.Context) error
}
