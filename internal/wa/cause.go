package wa

import "fmt"

// DisconnectCause alasan koneksi tertutup, closed enum.
type DisconnectCause int

const (
	// CauseUnknown alasan lain yang tidak dikenal; dianggap transient.
	CauseUnknown DisconnectCause = iota
	// CauseConnectionReplaced session digantikan koneksi lain.
	CauseConnectionReplaced
	// CauseLoggedOut remote melakukan logout eksplisit.
	CauseLoggedOut
	// CauseManualClose disconnect diminta oleh caller.
	CauseManualClose
	// CauseRestartRequired stream error 515, recoverable.
	CauseRestartRequired
)

// Kode close reason dari protokol (mengikuti kode stream WhatsApp Web).
const (
	CodeLoggedOut          = 401
	CodeConnectionReplaced = 440
	CodeRestartRequired    = 515
)

// CauseFromCode decode raw close reason code jadi DisconnectCause.
// Dipanggil sekali di adapter, state machine tinggal switch enum.
func CauseFromCode(code int) DisconnectCause {
	switch code {
	case CodeLoggedOut:
		return CauseLoggedOut
	case CodeConnectionReplaced:
		return CauseConnectionReplaced
	case CodeRestartRequired:
		return CauseRestartRequired
	default:
		return CauseUnknown
	}
}

// Transient true kalau close reason ini boleh di-retry otomatis.
func (c DisconnectCause) Transient() bool {
	return c == CauseUnknown || c == CauseRestartRequired
}

func (c DisconnectCause) String() string {
	switch c {
	case CauseConnectionReplaced:
		return "connection_replaced"
	case CauseLoggedOut:
		return "logged_out"
	case CauseManualClose:
		return "manual_close"
	case CauseRestartRequired:
		return "restart_required"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}
