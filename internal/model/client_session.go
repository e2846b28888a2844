// internal/model/client_session.go
package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status lifecycle dari satu client session (persisted).
type Status string

const (
	StatusInitialized   Status = "INITIALIZED"
	StatusInitializing  Status = "INITIALIZING"
	StatusWaitingQR     Status = "WAITING_QR"
	StatusAuthenticated Status = "AUTHENTICATED"
	StatusReconnecting  Status = "RECONNECTING"
	StatusDisconnected  Status = "DISCONNECTED"
)

// ClientType tipe logical client; opaque untuk core, hanya passthrough.
type ClientType string

const (
	ClientTypeChatbot   ClientType = "chatbot"
	ClientTypeTranslate ClientType = "translate"
)

var ErrClientSessionNotFound = errors.New("client session not found")

// ClientSession record persisten, satu baris per tenant.
// CredentialBlob opaque: hanya Auth State Bridge yang boleh baca/tulis isinya.
type ClientSession struct {
	ID             string
	Status         Status
	ClientType     ClientType
	ProfileName    sql.NullString
	PhoneNumber    sql.NullString
	CredentialBlob []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClientSessionResp bentuk response untuk API (primitif semua).
type ClientSessionResp struct {
	ID          string `json:"clientId"`
	Status      string `json:"status"`
	ClientType  string `json:"clientType"`
	ProfileName string `json:"profileName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Connected   bool   `json:"connected"`
	HasSession  bool   `json:"hasSession"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// ToResponse convert record DB ke bentuk response.
func ToResponse(cs ClientSession) ClientSessionResp {
	return ClientSessionResp{
		ID:          cs.ID,
		Status:      string(cs.Status),
		ClientType:  string(cs.ClientType),
		ProfileName: cs.ProfileName.String,
		PhoneNumber: cs.PhoneNumber.String,
		CreatedAt:   cs.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   cs.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SessionStore akses SQL untuk client_sessions. DB di-inject supaya
// test bisa pakai store palsu lewat interface di service.
type SessionStore struct {
	DB *sql.DB
}

const sessionColumns = `client_id, status, client_type, profile_name, phone_number, credential_blob, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*ClientSession, error) {
	var cs ClientSession
	err := row.Scan(&cs.ID, &cs.Status, &cs.ClientType, &cs.ProfileName,
		&cs.PhoneNumber, &cs.CredentialBlob, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*ClientSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM client_sessions WHERE client_id = $1`

	cs, err := scanSession(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client session: %w", err)
	}
	return cs, nil
}

func (s *SessionStore) List(ctx context.Context) ([]ClientSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM client_sessions ORDER BY created_at DESC`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list client sessions: %w", err)
	}
	defer rows.Close()

	var sessions []ClientSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *cs)
	}
	return sessions, rows.Err()
}

// Create insert record baru dengan status INITIALIZED.
func (s *SessionStore) Create(ctx context.Context, id string, clientType ClientType) error {
	query := `
		INSERT INTO client_sessions (client_id, status, client_type)
		VALUES ($1, $2, $3)
	`
	_, err := s.DB.ExecContext(ctx, query, id, StatusInitialized, clientType)
	if err != nil {
		return fmt.Errorf("insert client session: %w", err)
	}
	return nil
}

func (s *SessionStore) SetStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE client_sessions SET status = $1, updated_at = NOW() WHERE client_id = $2`

	res, err := s.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClientSessionNotFound
	}
	return nil
}

// SetAuthenticated set status AUTHENTICATED sekaligus isi profile fields.
func (s *SessionStore) SetAuthenticated(ctx context.Context, id, profileName, phoneNumber string) error {
	query := `
		UPDATE client_sessions
		SET status = $1, profile_name = $2, phone_number = $3, updated_at = NOW()
		WHERE client_id = $4
	`
	res, err := s.DB.ExecContext(ctx, query, StatusAuthenticated, profileName, phoneNumber, id)
	if err != nil {
		return fmt.Errorf("update on authenticated: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClientSessionNotFound
	}
	return nil
}

// Credentials baca credential blob mentah (bisa nil kalau belum pairing).
func (s *SessionStore) Credentials(ctx context.Context, id string) ([]byte, error) {
	query := `SELECT credential_blob FROM client_sessions WHERE client_id = $1`

	var blob []byte
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return blob, nil
}

// SaveCredentials tulis seluruh blob dalam satu write.
func (s *SessionStore) SaveCredentials(ctx context.Context, id string, blob []byte) error {
	query := `UPDATE client_sessions SET credential_blob = $1, updated_at = NOW() WHERE client_id = $2`

	res, err := s.DB.ExecContext(ctx, query, blob, id)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClientSessionNotFound
	}
	return nil
}

func (s *SessionStore) ClearCredentials(ctx context.Context, id string) error {
	query := `UPDATE client_sessions SET credential_blob = NULL, updated_at = NOW() WHERE client_id = $1`

	res, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClientSessionNotFound
	}
	return nil
}

// MarkAllDisconnected dipanggil sekali saat boot: tidak mungkin ada
// handle in-memory yang selamat dari restart, jadi semua record dipaksa
// DISCONNECTED sebelum request lifecycle diterima.
func (s *SessionStore) MarkAllDisconnected(ctx context.Context) (int64, error) {
	query := `UPDATE client_sessions SET status = $1, updated_at = NOW() WHERE status <> $1`

	res, err := s.DB.ExecContext(ctx, query, StatusDisconnected)
	if err != nil {
		return 0, fmt.Errorf("mark all disconnected: %w", err)
	}
	return res.RowsAffected()
}
