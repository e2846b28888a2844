package service

import "sync"

// maxQRAttempts batas regenerasi kode pairing per session. QR expire
// cepat dan regenerate otomatis; tanpa batas, pairing flow yang
// ditinggalkan user akan loop terus dan bocorin resource di sisi protokol.
const maxQRAttempts = 5

// qrGovernor hitung berapa kali QR sudah diterbitkan per client.
type qrGovernor struct {
	mu     sync.Mutex
	counts map[string]int
}

func newQRGovernor() *qrGovernor {
	return &qrGovernor{counts: make(map[string]int)}
}

// Issued catat satu penerbitan QR, return nomor attempt (mulai 1).
// Lifecycle controller yang memutuskan kapan attempt > maxQRAttempts
// berujung force disconnect.
func (g *qrGovernor) Issued(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[id]++
	return g.counts[id]
}

// Reset hapus counter; dipanggil saat autentikasi sukses atau forced
// disconnect supaya map tidak tumbuh seiring client churn.
func (g *qrGovernor) Reset(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.counts, id)
}

func (g *qrGovernor) Count(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[id]
}
