package database

import (
	"context"
	"log"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// InitWhatsmeow inisialisasi sqlstore container milik whatsmeow
// (device store terpisah dari DB custom).
func InitWhatsmeow(dbURL string) *sqlstore.Container {
	container, err := sqlstore.New(context.Background(), "postgres", dbURL, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		log.Fatal("Failed to connect whatsmeow DB:", err)
	}

	log.Println("Whatsmeow DB connected successfully")
	return container
}
