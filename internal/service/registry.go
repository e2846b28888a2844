package service

import (
	"errors"
	"sync"

	"gowa-sessions/internal/model"
	"gowa-sessions/internal/wa"
)

var ErrAlreadyRegistered = errors.New("client already has a live session handle")

// Session handle in-memory untuk satu koneksi protokol yang hidup.
// Tidak pernah dipersist; dimiliki Registry selama umurnya.
type Session struct {
	ID         string
	ClientType model.ClientType
	Conn       wa.Conn
	Auth       *ClientAuthState

	mu            sync.RWMutex
	authenticated bool
	jid           string
	profileName   string
	phoneNumber   string
}

func (s *Session) MarkAuthenticated(jid, profileName, phoneNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.jid = jid
	s.profileName = profileName
	s.phoneNumber = phoneNumber
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Session) JID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jid
}

func (s *Session) PhoneNumber() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phoneNumber
}

// Registry peta otoritatif clientID -> handle yang hidup. Satu-satunya
// penulis invariant "maksimal satu handle per client".
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put daftarkan handle baru; gagal kalau sudah ada handle hidup.
func (r *Registry) Put(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ID]; exists {
		return ErrAlreadyRegistered
	}
	r.sessions[sess.ID] = sess
	return nil
}

func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove hapus handle dari registry. Return false kalau sudah tidak
// ada — caller wajib cek ini supaya teardown tidak jalan dua kali
// setelah interleaving callback.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Take cabut dan return handle secara atomik; nil kalau tidak ada.
func (r *Registry) Take(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.sessions[id]
	delete(r.sessions, id)
	return sess
}

func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		result = append(result, sess)
	}
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
