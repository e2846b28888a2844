package database

import (
	"database/sql"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

// InitAppDB inisialisasi koneksi ke database custom (bukan whatsmeow).
// Ping di-retry dengan backoff karena DB container sering telat siap.
func InitAppDB(appDbURL string) *sql.DB {
	db, err := sql.Open("postgres", appDbURL)
	if err != nil {
		log.Fatal("Failed to connect app DB:", err)
	}

	op := func() error { return db.Ping() }
	err = backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 10))
	if err != nil {
		log.Fatal("Failed to ping app DB:", err)
	}

	log.Println("App DB (custom) connected successfully")
	return db
}
