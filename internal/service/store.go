package service

import (
	"context"

	"gowa-sessions/internal/model"
)

// Store kontrak persistence yang dibutuhkan lifecycle manager.
// Implementasi production: model.SessionStore (postgres).
type Store interface {
	Get(ctx context.Context, id string) (*model.ClientSession, error)
	List(ctx context.Context) ([]model.ClientSession, error)
	SetStatus(ctx context.Context, id string, status model.Status) error
	SetAuthenticated(ctx context.Context, id, profileName, phoneNumber string) error
	Credentials(ctx context.Context, id string) ([]byte, error)
	SaveCredentials(ctx context.Context, id string, blob []byte) error
	ClearCredentials(ctx context.Context, id string) error
	MarkAllDisconnected(ctx context.Context) (int64, error)
}

// ChannelPublisher kontrak fan-out ke subscriber eksternal.
// Channel = clientID, event = nama kategori (qr, statusChange, dst).
// Implementasi production: ws.Hub.
type ChannelPublisher interface {
	Publish(channel string, event string, data interface{})
}
