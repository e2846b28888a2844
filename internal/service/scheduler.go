package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gowa-sessions/internal/model"
)

const (
	// maxReconnectAttempts batas retry otomatis sejak sukses terakhir.
	maxReconnectAttempts = 10
	maxReconnectDelay    = 300 * time.Second
)

// reconnectDelay = min(2^attempts, 300) detik, deterministik.
func reconnectDelay(attempts int) time.Duration {
	if attempts > 8 { // 2^9 sudah lewat cap
		return maxReconnectDelay
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

// reconnectScheduler pemilik timer reconnect per client. Timer selalu
// cancellable lewat Cancel/Clear, jadi initializeClient/disconnectClient
// yang menyusul bisa mematikan retry yang masih pending secara
// deterministik, bukan cuma mengandalkan cek registry.
type reconnectScheduler struct {
	mu       sync.Mutex
	store    Store
	notify   func(id string, status model.Status, message string)
	fire     func(id string)
	attempts map[string]int
	timers   map[string]*time.Timer

	// after bisa di-swap di test supaya timer tidak jalan beneran.
	after func(d time.Duration, f func()) *time.Timer
}

func newReconnectScheduler(store Store, notify func(string, model.Status, string), fire func(string)) *reconnectScheduler {
	return &reconnectScheduler{
		store:    store,
		notify:   notify,
		fire:     fire,
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
		after:    time.AfterFunc,
	}
}

// Schedule pasang satu timer reconnect untuk client. Kalau attempt
// sudah mencapai batas, tidak ada timer baru: status DISCONNECTED
// dipersist dan counter dibersihkan; client butuh re-initialize manual.
func (s *reconnectScheduler) Schedule(id string) {
	s.mu.Lock()
	n := s.attempts[id]
	if n >= maxReconnectAttempts {
		delete(s.attempts, id)
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
		s.mu.Unlock()

		log.Printf("✗ Client %s: maximum reconnection attempts reached, giving up", id)
		if err := s.store.SetStatus(context.Background(), id, model.StatusDisconnected); err != nil {
			log.Printf("⚠ Failed to persist DISCONNECTED for client %s: %v", id, err)
		}
		s.notify(id, model.StatusDisconnected, "maximum reconnection attempts reached")
		return
	}

	s.attempts[id] = n + 1
	delay := reconnectDelay(n)
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = s.after(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.fire(id)
	})
	s.mu.Unlock()

	log.Printf("⚠ Client %s: reconnecting in %s (attempt %d/%d)", id, delay, n+1, maxReconnectAttempts)
	if err := s.store.SetStatus(context.Background(), id, model.StatusReconnecting); err != nil {
		log.Printf("⚠ Failed to persist RECONNECTING for client %s: %v", id, err)
	}
	s.notify(id, model.StatusReconnecting,
		fmt.Sprintf("reconnecting in %s (attempt %d of %d)", delay, n+1, maxReconnectAttempts))
}

// Cancel matikan timer pending tanpa menyentuh attempt counter.
func (s *reconnectScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// ResetAttempts nolkan counter; dipanggil tiap autentikasi sukses
// supaya kegagalan berikutnya mulai backoff dari nol lagi.
func (s *reconnectScheduler) ResetAttempts(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
}

// Clear bersihkan timer + counter sekaligus (terminal disconnect).
func (s *reconnectScheduler) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.attempts, id)
}

func (s *reconnectScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *reconnectScheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

func (s *reconnectScheduler) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}
