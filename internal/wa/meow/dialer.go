// Package meow implementasi production dari kontrak internal/wa di
// atas whatsmeow. Core lifecycle manager tidak pernah import package
// ini langsung; wiring-nya di main.
package meow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gowa-sessions/internal/wa"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// meowCreds bentuk credential blob milik adapter ini: cukup JID untuk
// menemukan kembali device di container whatsmeow. Material kripto
// session dipegang sqlstore, bukan blob.
type meowCreds struct {
	JID string `json:"jid"`
}

// Dialer buka koneksi whatsmeow per client.
type Dialer struct {
	Container *sqlstore.Container
	// DeviceOS nama device yang tampil di HP user saat pairing.
	DeviceOS string
}

// Open implementasi wa.Dialer. Parameter version tidak dipakai:
// whatsmeow pin versi protokolnya sendiri. keys juga tidak dipakai
// langsung karena sqlstore punya key store sendiri; adapter tetap
// emit CredentialUpdate supaya bridge menyimpan mapping client->device.
func (d *Dialer) Open(ctx context.Context, version string, creds json.RawMessage, keys wa.KeyStore) (wa.Conn, error) {
	var saved meowCreds
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &saved); err != nil {
			log.Printf("⚠ Unreadable credential blob, pairing from scratch: %v", err)
		}
	}

	var device *store.Device
	if saved.JID != "" {
		devices, err := d.Container.GetAllDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("load devices: %w", err)
		}
		for _, dev := range devices {
			if dev.ID != nil && dev.ID.String() == saved.JID {
				device = dev
				break
			}
		}
		if device == nil {
			log.Println("⚠ Stored device not found in container, pairing from scratch:", saved.JID)
		}
	}

	if device == nil {
		// Set device name SEBELUM create device (ini global setting).
		if d.DeviceOS != "" {
			store.DeviceProps.Os = proto.String(d.DeviceOS)
		}
		device = d.Container.NewDevice()
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))

	conn := newConn(client, d.Container)
	client.AddEventHandler(conn.translate)

	// Device baru belum punya session tersimpan: pairing code harus
	// diambil lewat QR channel SEBELUM Connect.
	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("get qr channel: %w", err)
		}
		go conn.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		conn.finish()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return conn, nil
}
