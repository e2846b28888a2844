package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gowa-sessions/internal/model"
	"gowa-sessions/internal/wa"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newTestManager(st *fakeStore) (*Manager, *fakeDialer, *fakePublisher, *timerCapture) {
	dialer := &fakeDialer{}
	pub := &fakePublisher{}
	m := NewManager(dialer, st, pub, "2.3000.0")

	// Timer reconnect dicatat, tidak jalan beneran.
	tc := &timerCapture{}
	m.sched.after = tc.after
	return m, dialer, pub, tc
}

func lastStatusMessage(pub *fakePublisher, id string) string {
	events := pub.byEvent(id, EventStatusChange)
	if len(events) == 0 {
		return ""
	}
	data, ok := events[len(events)-1].Data.(map[string]interface{})
	if !ok {
		return ""
	}
	msg, _ := data["message"].(string)
	return msg
}

func TestInitializePublishesPairingCode(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)

	require.NoError(t, m.InitializeClient(context.Background(), "C1"))
	require.NotNil(t, m.GetClient("C1"))

	conn.emit(&wa.PairingCode{Code: "2@abc"})

	require.Eventually(t, func() bool {
		return pub.count("C1", EventQR) == 1
	}, waitFor, 10*time.Millisecond)

	assert.Equal(t, model.StatusWaitingQR, st.status("C1"))

	data := pub.byEvent("C1", EventQR)[0].Data.(map[string]interface{})
	assert.Equal(t, "2@abc", data["code"])
	assert.Equal(t, 1, data["attempt"])
	assert.Contains(t, data["image"], "data:image/png;base64,")
}

func TestInitializeUnknownClient(t *testing.T) {
	st := newFakeStore()
	m, _, _, _ := newTestManager(st)

	assert.ErrorIs(t, m.InitializeClient(context.Background(), "nope"), ErrClientNotFound)
}

func TestInitializeRejectsDuplicate(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, _, _ := newTestManager(st)
	dialer.enqueue(newFakeConn())

	require.NoError(t, m.InitializeClient(context.Background(), "C1"))
	assert.ErrorIs(t, m.InitializeClient(context.Background(), "C1"), ErrAlreadyConnected)
	assert.Equal(t, 1, dialer.openCount(), "second init must not dial")
}

func TestInitializeDialFailure(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)
	dialer.failures = 1

	err := m.InitializeClient(context.Background(), "C1")
	require.Error(t, err)
	assert.Nil(t, m.GetClient("C1"))
	assert.Equal(t, model.StatusDisconnected, st.status("C1"))
	assert.Equal(t, "failed to open connection", lastStatusMessage(pub, "C1"))
}

func TestTooManyPairingCodesForcesDisconnect(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	for i := 0; i < maxQRAttempts+1; i++ {
		conn.emit(&wa.PairingCode{Code: fmt.Sprintf("2@code-%d", i)})
	}

	require.Eventually(t, func() bool {
		return m.GetClient("C1") == nil
	}, waitFor, 10*time.Millisecond)

	// Lima kode dipublish, yang ke-6 memaksa teardown.
	assert.Equal(t, maxQRAttempts, pub.count("C1", EventQR))
	assert.True(t, conn.wasEnded())
	assert.Equal(t, model.StatusDisconnected, st.status("C1"))
	assert.Contains(t, lastStatusMessage(pub, "C1"), "too many times")

	// Counter QR bersih: init berikutnya mulai dari attempt 1 lagi.
	assert.Equal(t, 0, m.qr.Count("C1"))
}

func TestConnectedMarksAuthenticated(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.Connected{JID: "628123@s.whatsapp.net", PushName: "Budi", PhoneNumber: "628123"})

	require.Eventually(t, func() bool {
		return st.status("C1") == model.StatusAuthenticated
	}, waitFor, 10*time.Millisecond)

	sess := m.GetClient("C1")
	require.NotNil(t, sess)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, "628123@s.whatsapp.net", sess.JID())
	assert.GreaterOrEqual(t, pub.count("C1", EventStatusChange), 2) // INITIALIZING lalu AUTHENTICATED
}

func TestTransientCloseSchedulesReconnect(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, tc := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.Connected{JID: "628123@s.whatsapp.net", PushName: "Budi", PhoneNumber: "628123"})
	require.Eventually(t, func() bool {
		return st.status("C1") == model.StatusAuthenticated
	}, waitFor, 10*time.Millisecond)

	conn.emit(&wa.Closed{Cause: wa.CauseRestartRequired, Message: "stream error 515"})

	require.Eventually(t, func() bool {
		return st.status("C1") == model.StatusReconnecting
	}, waitFor, 10*time.Millisecond)

	assert.Nil(t, m.GetClient("C1"), "handle must be gone while waiting to reconnect")
	assert.Equal(t, 1, tc.armed())
	assert.Equal(t, 1*time.Second, tc.lastDelay(), "first retry backs off one second")
	assert.Contains(t, lastStatusMessage(pub, "C1"), "attempt 1 of 10")

	// Timer jatuh tempo: dial kedua jalan.
	tc.fireLast()
	require.Eventually(t, func() bool {
		return dialer.openCount() == 2
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return m.GetClient("C1") != nil
	}, waitFor, 10*time.Millisecond)
}

func TestReconnectFailureIsRescheduled(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, _, tc := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.Closed{Cause: wa.CauseUnknown, Message: "socket hangup"})
	require.Eventually(t, func() bool {
		return tc.armed() == 1
	}, waitFor, 10*time.Millisecond)

	// Dial reconnect gagal: harus dijadwalkan ulang dengan delay dobel.
	dialer.failures = 1
	tc.fireLast()

	require.Eventually(t, func() bool {
		return tc.armed() == 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, 2*time.Second, tc.lastDelay())
}

func TestLoggedOutCloseIsTerminal(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, tc := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.Closed{Cause: wa.CauseLoggedOut, Message: "401"})

	require.Eventually(t, func() bool {
		return m.GetClient("C1") == nil && st.status("C1") == model.StatusDisconnected
	}, waitFor, 10*time.Millisecond)

	assert.Equal(t, 0, tc.armed(), "terminal close must not arm a retry timer")
	assert.Contains(t, lastStatusMessage(pub, "C1"), "logged out")

	// Event konten yang masih menetes setelah logout ditahan.
	assert.True(t, m.fanout.SoftDisconnected("C1"))
}

func TestDisconnectClient(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	require.NoError(t, m.DisconnectClient(context.Background(), "C1"))

	assert.True(t, conn.wasEnded())
	assert.False(t, conn.wasLoggedOut(), "disconnect must not unlink the device")
	assert.Nil(t, m.GetClient("C1"))
	assert.Equal(t, model.StatusDisconnected, st.status("C1"))
	assert.Equal(t, "disconnected by request", lastStatusMessage(pub, "C1"))
}

func TestDisconnectUnknownClient(t *testing.T) {
	st := newFakeStore()
	m, _, _, _ := newTestManager(st)

	assert.ErrorIs(t, m.DisconnectClient(context.Background(), "nope"), ErrClientNotFound)
}

func TestLogoutClientClearsCredentials(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	// Pastikan ada blob tersimpan dulu.
	conn.emit(&wa.CredentialUpdate{Creds: []byte(`{"jid":"628123@s.whatsapp.net"}`)})
	require.Eventually(t, func() bool {
		return len(st.blob("C1")) > 0
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, m.LogoutClient(context.Background(), "C1"))

	assert.True(t, conn.wasLoggedOut())
	assert.True(t, conn.wasEnded())
	assert.Nil(t, m.GetClient("C1"))
	assert.Nil(t, st.blob("C1"), "credentials must be wiped")
	assert.Equal(t, model.StatusDisconnected, st.status("C1"))
	assert.Equal(t, "logged out", lastStatusMessage(pub, "C1"))
	assert.True(t, m.fanout.SoftDisconnected("C1"))
}

func TestCredentialUpdatePersistedBeforeForward(t *testing.T) {
	st := newFakeStore("C1")
	dialer := &fakeDialer{}

	// Publisher yang memotret blob tersimpan pada saat publish, supaya
	// urutan persist-dulu-baru-forward bisa diverifikasi.
	var mu sync.Mutex
	var blobAtPublish [][]byte
	pub := &orderPublisher{inner: &fakePublisher{}, onSession: func() {
		mu.Lock()
		defer mu.Unlock()
		blobAtPublish = append(blobAtPublish, st.blob("C1"))
	}}

	m := NewManager(dialer, st, pub, "2.3000.0")
	tc := &timerCapture{}
	m.sched.after = tc.after

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.CredentialUpdate{Creds: []byte(`{"jid":"628123@s.whatsapp.net"}`)})

	require.Eventually(t, func() bool {
		return pub.inner.count("C1", EventSession) == 1
	}, waitFor, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, blobAtPublish, 1)
	assert.NotEmpty(t, blobAtPublish[0], "blob must already be durable when the event goes out")
}

// orderPublisher delegasi ke fakePublisher plus hook saat event session.
type orderPublisher struct {
	inner     *fakePublisher
	onSession func()
}

func (p *orderPublisher) Publish(channel string, event string, data interface{}) {
	if event == EventSession && p.onSession != nil {
		p.onSession()
	}
	p.inner.Publish(channel, event, data)
}

func TestSendMessageRequiresAuthenticatedHandle(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, _, _ := newTestManager(st)

	_, err := m.SendMessage(context.Background(), "C1", "628999", "halo")
	assert.ErrorIs(t, err, ErrNotConnected)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	// Handle hidup tapi belum authenticated: tetap ditolak.
	_, err = m.SendMessage(context.Background(), "C1", "628999", "halo")
	assert.ErrorIs(t, err, ErrNotConnected)

	conn.emit(&wa.Connected{JID: "628123@s.whatsapp.net", PushName: "Budi", PhoneNumber: "628123"})
	require.Eventually(t, func() bool {
		return st.status("C1") == model.StatusAuthenticated
	}, waitFor, 10*time.Millisecond)

	msgID, err := m.SendMessage(context.Background(), "C1", "628999", "halo")
	require.NoError(t, err)
	assert.Equal(t, "MSG-1", msgID)
}

func TestRestoreOnStartupForcesDisconnected(t *testing.T) {
	st := newFakeStore()
	st.sessions["C1"] = &model.ClientSession{ID: "C1", Status: model.StatusAuthenticated}
	st.sessions["C2"] = &model.ClientSession{ID: "C2", Status: model.StatusReconnecting}
	st.sessions["C3"] = &model.ClientSession{ID: "C3", Status: model.StatusWaitingQR}
	m, _, _, _ := newTestManager(st)

	require.NoError(t, m.RestoreOnStartup(context.Background()))

	for _, id := range []string{"C1", "C2", "C3"} {
		assert.Equal(t, model.StatusDisconnected, st.status(id), id)
	}
	assert.Equal(t, 0, m.registry.Len())
}

func TestShutdownDrainsAllSessions(t *testing.T) {
	st := newFakeStore("C1", "C2")
	m, dialer, _, _ := newTestManager(st)

	c1, c2 := newFakeConn(), newFakeConn()
	dialer.enqueue(c1, c2)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))
	require.NoError(t, m.InitializeClient(context.Background(), "C2"))

	m.Shutdown(context.Background())

	assert.True(t, c1.wasEnded())
	assert.True(t, c2.wasEnded())
	assert.Equal(t, 0, m.registry.Len())
	assert.Equal(t, model.StatusDisconnected, st.status("C1"))
	assert.Equal(t, model.StatusDisconnected, st.status("C2"))
}

func TestHealthCheckReschedulesDeadSocket(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, _, tc := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.Connected{JID: "628123@s.whatsapp.net", PushName: "Budi", PhoneNumber: "628123"})
	require.Eventually(t, func() bool {
		return st.status("C1") == model.StatusAuthenticated
	}, waitFor, 10*time.Millisecond)

	conn.setAlive(false)
	m.runHealthCheck()

	assert.Nil(t, m.GetClient("C1"))
	assert.True(t, conn.wasEnded())
	assert.Equal(t, 1, tc.armed())
	assert.Equal(t, model.StatusReconnecting, st.status("C1"))
}

func TestContentEventsFanOutPerClient(t *testing.T) {
	st := newFakeStore("C1")
	m, dialer, pub, _ := newTestManager(st)

	conn := newFakeConn()
	dialer.enqueue(conn)
	require.NoError(t, m.InitializeClient(context.Background(), "C1"))

	conn.emit(&wa.Content{Kind: wa.CategoryMessage, Payload: map[string]string{"text": "halo"}})
	conn.emit(&wa.Content{Kind: wa.CategoryHistory, Payload: "sync"})

	require.Eventually(t, func() bool {
		return pub.count("C1", EventMessages) == 1 && pub.count("C1", EventHistory) == 1
	}, waitFor, 10*time.Millisecond)

	msg := pub.byEvent("C1", EventMessages)[0]
	assert.Equal(t, map[string]string{"text": "halo"}, msg.Data)
}
