package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gowa-sessions/internal/helper"
	"gowa-sessions/internal/model"
	"gowa-sessions/internal/wa"
)

var (
	ErrClientNotFound   = errors.New("client not found")
	ErrAlreadyConnected = errors.New("client already has a live connection")
	ErrNotConnected     = errors.New("client is not connected")
)

// Manager adalah lifecycle controller: buka/tutup/logout session per
// client, interpretasi disconnect reason, dan koordinasi registry,
// QR governor, scheduler, dan fan-out bridge. Dibuat sekali saat boot
// dan di-inject ke consumer — tidak ada state module-level.
type Manager struct {
	dialer  wa.Dialer
	store   Store
	pub     ChannelPublisher
	version string

	registry *Registry
	auth     *AuthStateBridge
	qr       *qrGovernor
	sched    *reconnectScheduler
	fanout   *fanoutBridge

	healthStop chan struct{}
}

func NewManager(dialer wa.Dialer, store Store, pub ChannelPublisher, version string) *Manager {
	m := &Manager{
		dialer:   dialer,
		store:    store,
		pub:      pub,
		version:  version,
		registry: NewRegistry(),
		auth:     NewAuthStateBridge(store),
		qr:       newQRGovernor(),
		fanout:   newFanoutBridge(pub),
	}
	m.sched = newReconnectScheduler(store, m.publishStatus, m.reconnect)
	return m
}

func (m *Manager) publishStatus(id string, status model.Status, message string) {
	data := map[string]interface{}{"status": string(status)}
	if message != "" {
		data["message"] = message
	}
	m.pub.Publish(id, EventStatusChange, data)
}

// InitializeClient buka session protokol untuk satu client. Lookup
// registry di sini adalah titik deduplikasi: handle yang masih hidup
// menolak init baru, timer reconnect yang pending dibatalkan (init
// eksplisit menggantikan retry yang stale).
func (m *Manager) InitializeClient(ctx context.Context, id string) error {
	m.sched.Cancel(id)

	if m.registry.Get(id) != nil {
		return ErrAlreadyConnected
	}
	return m.initialize(ctx, id)
}

func (m *Manager) initialize(ctx context.Context, id string) error {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrClientSessionNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("load client record: %w", err)
	}

	state, err := m.auth.Load(ctx, id)
	if err != nil {
		return err
	}

	if err := m.store.SetStatus(ctx, id, model.StatusInitializing); err != nil {
		log.Printf("⚠ Failed to persist INITIALIZING for client %s: %v", id, err)
	}
	m.publishStatus(id, model.StatusInitializing, "")

	conn, err := m.dialer.Open(ctx, m.version, state.Creds(), state)
	if err != nil {
		if serr := m.store.SetStatus(ctx, id, model.StatusDisconnected); serr != nil {
			log.Printf("⚠ Failed to persist DISCONNECTED for client %s: %v", id, serr)
		}
		m.publishStatus(id, model.StatusDisconnected, "failed to open connection")
		return fmt.Errorf("open connection: %w", err)
	}

	sess := &Session{ID: id, ClientType: rec.ClientType, Conn: conn, Auth: state}
	if err := m.registry.Put(sess); err != nil {
		// Handle lain nyelip selama Open; yang baru kalah.
		conn.End()
		return ErrAlreadyConnected
	}

	go m.eventLoop(sess)

	log.Println("✓ Session initializing for client:", id)
	return nil
}

// eventLoop konsumsi stream event dari satu koneksi sampai Closed.
// Satu goroutine per handle; operasi untuk client yang sama efektif
// serial karena semua datang dari callback sequence koneksi itu sendiri.
func (m *Manager) eventLoop(sess *Session) {
	for evt := range sess.Conn.Events() {
		switch e := evt.(type) {
		case *wa.PairingCode:
			m.handlePairingCode(sess, e)
		case *wa.Connected:
			m.handleConnected(sess, e)
		case *wa.CredentialUpdate:
			m.handleCredentialUpdate(sess, e)
		case *wa.Closed:
			m.handleClosed(sess, e)
			return
		default:
			m.fanout.Forward(sess.ID, evt)
		}
	}
}

func (m *Manager) handlePairingCode(sess *Session, e *wa.PairingCode) {
	ctx := context.Background()
	attempt := m.qr.Issued(sess.ID)

	if attempt > maxQRAttempts {
		log.Printf("✗ Client %s: QR code generated too many times (%d), closing session", sess.ID, attempt)
		m.qr.Reset(sess.ID)
		m.finalize(sess.ID, "QR code generated too many times, session closed")
		return
	}

	if err := m.store.SetStatus(ctx, sess.ID, model.StatusWaitingQR); err != nil {
		log.Printf("⚠ Failed to persist WAITING_QR for client %s: %v", sess.ID, err)
	}

	data := map[string]interface{}{
		"code":    e.Code,
		"attempt": attempt,
	}
	if image, err := helper.QRImageDataURI(e.Code); err != nil {
		log.Printf("⚠ Failed to render QR image for client %s: %v", sess.ID, err)
	} else {
		data["image"] = image
	}
	m.pub.Publish(sess.ID, EventQR, data)
}

func (m *Manager) handleConnected(sess *Session, e *wa.Connected) {
	ctx := context.Background()

	m.qr.Reset(sess.ID)
	m.sched.ResetAttempts(sess.ID)
	m.fanout.ClearSoftDisconnected(sess.ID)
	sess.MarkAuthenticated(e.JID, e.PushName, e.PhoneNumber)

	if err := m.store.SetAuthenticated(ctx, sess.ID, e.PushName, e.PhoneNumber); err != nil {
		log.Printf("⚠ Failed to persist AUTHENTICATED for client %s: %v", sess.ID, err)
	}
	m.publishStatus(sess.ID, model.StatusAuthenticated, "")

	log.Println("✓ Connected! Client:", sess.ID, "JID:", e.JID)
}

func (m *Manager) handleCredentialUpdate(sess *Session, e *wa.CredentialUpdate) {
	// Persist dulu, baru forward, supaya subscriber tidak pernah lihat
	// credential state yang belum tersimpan.
	if err := sess.Auth.Apply(context.Background(), e); err != nil {
		log.Printf("⚠ Failed to persist credential update for client %s: %v", sess.ID, err)
	}
	m.fanout.Forward(sess.ID, e)
}

func (m *Manager) handleClosed(sess *Session, e *wa.Closed) {
	log.Printf("⚠ Connection closed for client %s: %s", sess.ID, e.Cause)

	switch e.Cause {
	case wa.CauseConnectionReplaced:
		m.fanout.SetSoftDisconnected(sess.ID)
		m.finalize(sess.ID, "session replaced by another connection")

	case wa.CauseLoggedOut:
		m.fanout.SetSoftDisconnected(sess.ID)
		m.finalize(sess.ID, "logged out from device")

	case wa.CauseManualClose:
		// Biasanya teardown sudah dikerjakan oleh caller yang manggil
		// End(); finalize jadi no-op kalau handle sudah hilang.
		m.finalize(sess.ID, "disconnected")

	default:
		// Transient (termasuk restart_required / 515): re-check dulu,
		// disconnect eksplisit bisa saja sudah mencabut handle ini.
		if m.registry.Take(sess.ID) == nil {
			return
		}
		m.sched.Schedule(sess.ID)
	}
}

// finalize teardown terminal: cabut handle, matikan retry state, dan
// persist + publish DISCONNECTED. No-op kalau handle sudah dicabut.
func (m *Manager) finalize(id string, message string) {
	sess := m.registry.Take(id)
	if sess == nil {
		return
	}
	sess.Conn.End()

	m.qr.Reset(id)
	m.sched.Clear(id)

	if err := m.store.SetStatus(context.Background(), id, model.StatusDisconnected); err != nil {
		log.Printf("⚠ Failed to persist DISCONNECTED for client %s: %v", id, err)
	}
	m.publishStatus(id, model.StatusDisconnected, message)
}

// reconnect dipanggil scheduler saat timer jatuh tempo. Gagal init di
// jalur ini tidak dipropagasi: dijadwalkan ulang, tunduk ke attempt cap.
func (m *Manager) reconnect(id string) {
	if m.registry.Get(id) != nil {
		return // sudah ada handle hidup, retry ini stale
	}

	log.Println("🔁 Reconnect attempt for client:", id)
	if err := m.initialize(context.Background(), id); err != nil {
		log.Printf("⚠ Reconnect failed for client %s: %v", id, err)
		m.sched.Schedule(id)
	}
}

// DisconnectClient teardown eksplisit tanpa menghapus kredensial.
func (m *Manager) DisconnectClient(ctx context.Context, id string) error {
	m.sched.Cancel(id)

	if _, err := m.store.Get(ctx, id); err != nil {
		if errors.Is(err, model.ErrClientSessionNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("load client record: %w", err)
	}

	if sess := m.registry.Take(id); sess != nil {
		sess.Conn.End()
	}

	m.qr.Reset(id)
	m.sched.Clear(id)

	if err := m.store.SetStatus(ctx, id, model.StatusDisconnected); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	m.publishStatus(id, model.StatusDisconnected, "disconnected by request")

	log.Println("✓ Client disconnected:", id)
	return nil
}

// LogoutClient unlink device: handle dicabut, kredensial dihapus,
// event konten yang masih menetes ditahan lewat soft-disconnect.
func (m *Manager) LogoutClient(ctx context.Context, id string) error {
	m.sched.Cancel(id)

	if _, err := m.store.Get(ctx, id); err != nil {
		if errors.Is(err, model.ErrClientSessionNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("load client record: %w", err)
	}

	m.fanout.SetSoftDisconnected(id)

	if sess := m.registry.Take(id); sess != nil {
		if err := sess.Conn.Logout(ctx); err != nil {
			log.Printf("⚠ Failed to logout client %s from protocol: %v", id, err)
		}
		sess.Conn.End()
	}

	m.qr.Reset(id)
	m.sched.Clear(id)

	if err := m.store.ClearCredentials(ctx, id); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	if err := m.store.SetStatus(ctx, id, model.StatusDisconnected); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	m.publishStatus(id, model.StatusDisconnected, "logged out")

	log.Println("✓ Client logged out, credentials cleared:", id)
	return nil
}

// GetClient return handle hidup, atau nil kalau tidak ada.
func (m *Manager) GetClient(id string) *Session {
	return m.registry.Get(id)
}

// SendMessage passthrough ke handle hidup milik client.
func (m *Manager) SendMessage(ctx context.Context, id, to, text string) (string, error) {
	sess := m.registry.Get(id)
	if sess == nil {
		return "", ErrNotConnected
	}
	if !sess.Authenticated() {
		return "", ErrNotConnected
	}
	return sess.Conn.SendMessage(ctx, to, text)
}

// ListClients gabungkan record persisten dengan state live registry.
func (m *Manager) ListClients(ctx context.Context) ([]model.ClientSessionResp, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]model.ClientSessionResp, 0, len(records))
	for _, rec := range records {
		resp := model.ToResponse(rec)
		if sess := m.registry.Get(rec.ID); sess != nil {
			resp.HasSession = true
			resp.Connected = sess.Authenticated() && sess.Conn.Alive()
		}
		result = append(result, resp)
	}
	return result, nil
}

// ClientStatus view gabungan untuk satu client.
func (m *Manager) ClientStatus(ctx context.Context, id string) (*model.ClientSessionResp, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrClientSessionNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	resp := model.ToResponse(*rec)
	if sess := m.registry.Get(id); sess != nil {
		resp.HasSession = true
		resp.Connected = sess.Authenticated() && sess.Conn.Alive()
	}
	return &resp, nil
}

// RestoreOnStartup rekonsiliasi record persisten saat boot: tidak ada
// handle in-memory yang bisa selamat dari restart, jadi semua record
// dipaksa DISCONNECTED sebelum request lifecycle diterima.
func (m *Manager) RestoreOnStartup(ctx context.Context) error {
	n, err := m.store.MarkAllDisconnected(ctx)
	if err != nil {
		return fmt.Errorf("reconcile persisted sessions: %w", err)
	}
	log.Printf("Startup reconcile: %d session(s) forced to DISCONNECTED", n)
	return nil
}

// StartHealthChecks jalankan loop periodik yang kirim keepalive ke tiap
// handle dan mendorong socket yang diam-diam mati ke jalur reconnect.
func (m *Manager) StartHealthChecks(intervalMinutes int) {
	if m.healthStop != nil {
		return
	}
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}
	m.healthStop = make(chan struct{})

	go func() {
		ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-m.healthStop:
				return
			case <-ticker.C:
				m.runHealthCheck()
			}
		}
	}()

	log.Printf("💓 Health checks started (every %d minutes)", intervalMinutes)
}

func (m *Manager) runHealthCheck() {
	for _, sess := range m.registry.All() {
		if !sess.Conn.Alive() {
			// Socket mati tanpa event Closed. Cabut dan serahkan ke
			// scheduler seperti transient disconnect biasa.
			if sess.Authenticated() && m.registry.Take(sess.ID) != nil {
				log.Printf("⚠ Dead socket detected for client %s, scheduling reconnect", sess.ID)
				sess.Conn.End()
				m.sched.Schedule(sess.ID)
			}
			continue
		}
		if err := sess.Conn.Keepalive(context.Background()); err != nil {
			log.Printf("⚠ Heartbeat failed for client %s: %v", sess.ID, err)
		}
	}
}

// Shutdown drain semua session hidup sebelum proses keluar, supaya
// tidak ada koneksi protokol yang ditinggal terbuka.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.healthStop != nil {
		close(m.healthStop)
		m.healthStop = nil
	}
	m.sched.CancelAll()

	for _, sess := range m.registry.All() {
		if err := m.DisconnectClient(ctx, sess.ID); err != nil {
			log.Printf("⚠ Failed to disconnect client %s on shutdown: %v", sess.ID, err)
		}
	}
	log.Println("✓ All sessions drained")
}
