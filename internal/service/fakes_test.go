package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gowa-sessions/internal/model"
	"gowa-sessions/internal/wa"
)

// fakeStore in-memory pengganti postgres untuk test.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*model.ClientSession
	failSave bool
	saves    int
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{sessions: make(map[string]*model.ClientSession)}
	for _, id := range ids {
		s.sessions[id] = &model.ClientSession{
			ID:         id,
			Status:     model.StatusInitialized,
			ClientType: model.ClientTypeChatbot,
		}
	}
	return s
}

func (s *fakeStore) Get(ctx context.Context, id string) (*model.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrClientSessionNotFound
	}
	cp := *cs
	return &cp, nil
}

func (s *fakeStore) List(ctx context.Context) ([]model.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.ClientSession
	for _, cs := range s.sessions {
		result = append(result, *cs)
	}
	return result, nil
}

func (s *fakeStore) SetStatus(ctx context.Context, id string, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return model.ErrClientSessionNotFound
	}
	cs.Status = status
	return nil
}

func (s *fakeStore) SetAuthenticated(ctx context.Context, id, profileName, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return model.ErrClientSessionNotFound
	}
	cs.Status = model.StatusAuthenticated
	cs.ProfileName.String, cs.ProfileName.Valid = profileName, true
	cs.PhoneNumber.String, cs.PhoneNumber.Valid = phoneNumber, true
	return nil
}

func (s *fakeStore) Credentials(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrClientSessionNotFound
	}
	return cs.CredentialBlob, nil
}

func (s *fakeStore) SaveCredentials(ctx context.Context, id string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("save failed")
	}
	cs, ok := s.sessions[id]
	if !ok {
		return model.ErrClientSessionNotFound
	}
	s.saves++
	cs.CredentialBlob = blob
	return nil
}

func (s *fakeStore) ClearCredentials(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return model.ErrClientSessionNotFound
	}
	cs.CredentialBlob = nil
	return nil
}

func (s *fakeStore) MarkAllDisconnected(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, cs := range s.sessions {
		if cs.Status != model.StatusDisconnected {
			cs.Status = model.StatusDisconnected
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) status(id string) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.sessions[id]; ok {
		return cs.Status
	}
	return ""
}

func (s *fakeStore) blob(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.sessions[id]; ok {
		return cs.CredentialBlob
	}
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// fakePublisher rekam semua event yang diterbitkan.
type published struct {
	Channel string
	Event   string
	Data    interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(channel string, event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: channel, Event: event, Data: data})
}

func (p *fakePublisher) byEvent(channel, event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []published
	for _, e := range p.events {
		if e.Channel == channel && e.Event == event {
			result = append(result, e)
		}
	}
	return result
}

func (p *fakePublisher) count(channel, event string) int {
	return len(p.byEvent(channel, event))
}

// fakeConn koneksi protokol palsu; test dorong event lewat emit.
type fakeConn struct {
	mu        sync.Mutex
	events    chan wa.Event
	ended     bool
	loggedOut bool
	alive     bool
	sent      []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan wa.Event, 16), alive: true}
}

func (c *fakeConn) Events() <-chan wa.Event { return c.events }

func (c *fakeConn) emit(evt wa.Event) { c.events <- evt }

func (c *fakeConn) SendMessage(ctx context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to+":"+text)
	return "MSG-1", nil
}

func (c *fakeConn) Keepalive(ctx context.Context) error { return nil }

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeConn) setAlive(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = v
}

func (c *fakeConn) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
	c.alive = false
}

func (c *fakeConn) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	return nil
}

func (c *fakeConn) wasEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *fakeConn) wasLoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

// fakeDialer kasih fakeConn dari antrian; bisa disetel gagal dulu.
type fakeDialer struct {
	mu        sync.Mutex
	queue     []*fakeConn
	opens     int
	failures  int
	lastCreds json.RawMessage
}

func (d *fakeDialer) enqueue(conns ...*fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, conns...)
}

func (d *fakeDialer) Open(ctx context.Context, version string, creds json.RawMessage, keys wa.KeyStore) (wa.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	d.lastCreds = creds
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial failed")
	}
	if len(d.queue) == 0 {
		c := newFakeConn()
		d.queue = append(d.queue, c)
	}
	conn := d.queue[0]
	d.queue = d.queue[1:]
	return conn, nil
}

func (d *fakeDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}
