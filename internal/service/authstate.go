package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"gowa-sessions/internal/wa"
)

// authSnapshot bentuk serialisasi credential_blob. Di luar bridge ini
// blob diperlakukan opaque.
type authSnapshot struct {
	Creds json.RawMessage              `json:"creds,omitempty"`
	Keys  map[string]map[string][]byte `json:"keys,omitempty"`
}

// AuthStateBridge adaptasi satu record kredensial persisten ke kontrak
// get/set key-value yang diminta library protokol.
type AuthStateBridge struct {
	store Store
}

func NewAuthStateBridge(store Store) *AuthStateBridge {
	return &AuthStateBridge{store: store}
}

// Load baca blob dari record dan deserialize; kalau kosong atau korup,
// mulai dari state fresh (cuma butuh pairing ulang, bukan korupsi data).
func (b *AuthStateBridge) Load(ctx context.Context, id string) (*ClientAuthState, error) {
	blob, err := b.store.Credentials(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var snap authSnapshot
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &snap); err != nil {
			log.Printf("⚠ Corrupt credential blob for client %s, starting fresh: %v", id, err)
			snap = authSnapshot{}
		}
	}
	if snap.Keys == nil {
		snap.Keys = make(map[string]map[string][]byte)
	}

	return &ClientAuthState{store: b.store, id: id, snap: snap}, nil
}

// ClientAuthState state kredensial in-memory untuk satu client.
// Mengimplementasikan wa.KeyStore.
type ClientAuthState struct {
	mu    sync.Mutex
	store Store
	id    string
	snap  authSnapshot
}

// Creds snapshot kredensial opaque untuk dioper ke Dialer.Open.
func (s *ClientAuthState) Creds() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Creds
}

// Get mengembalikan hanya subset key yang memang ada di store.
func (s *ClientAuthState) Get(ctx context.Context, keyType string, ids []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string][]byte)
	byType, ok := s.snap.Keys[keyType]
	if !ok {
		return result, nil
	}
	for _, id := range ids {
		if v, found := byType[id]; found {
			result[id] = v
		}
	}
	return result, nil
}

// Set merge mutasi ke key map lalu persist seluruh snapshot sebagai
// satu write. Gagal persist hanya di-log: paling buruk client harus
// pairing ulang setelah restart, bukan data corruption.
func (s *ClientAuthState) Set(ctx context.Context, mutations map[string]map[string][]byte) error {
	s.mu.Lock()
	s.merge(nil, mutations)
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		log.Printf("⚠ Failed to persist key store for client %s: %v", s.id, err)
	}
	return nil
}

// Apply terapkan CredentialUpdate (snapshot kredensial baru dan/atau
// mutasi key) lalu persist sekali.
func (s *ClientAuthState) Apply(ctx context.Context, upd *wa.CredentialUpdate) error {
	s.mu.Lock()
	s.merge(upd.Creds, upd.Mutations)
	s.mu.Unlock()

	return s.persist(ctx)
}

// merge harus dipanggil dengan lock dipegang. Value nil = hapus key.
func (s *ClientAuthState) merge(creds json.RawMessage, mutations map[string]map[string][]byte) {
	if creds != nil {
		s.snap.Creds = creds
	}
	for keyType, byID := range mutations {
		if s.snap.Keys[keyType] == nil {
			s.snap.Keys[keyType] = make(map[string][]byte)
		}
		for id, value := range byID {
			if value == nil {
				delete(s.snap.Keys[keyType], id)
			} else {
				s.snap.Keys[keyType][id] = value
			}
		}
	}
}

func (s *ClientAuthState) persist(ctx context.Context) error {
	s.mu.Lock()
	blob, err := json.Marshal(s.snap)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal credential blob: %w", err)
	}

	if err := s.store.SaveCredentials(ctx, s.id, blob); err != nil {
		return fmt.Errorf("save credential blob: %w", err)
	}
	return nil
}
