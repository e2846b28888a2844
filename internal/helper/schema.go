// internal/helper/schema.go
package helper

import (
	"database/sql"
	"log"
)

// InitCustomSchema buat/ensure schema custom (bukan schema whatsmeow,
// itu diurus sqlstore sendiri). Dipanggil lewat flag --createschema.
func InitCustomSchema(db *sql.DB) {
	baseSchema := `
        CREATE TABLE IF NOT EXISTS client_sessions (
            id                  SERIAL PRIMARY KEY,
            client_id           VARCHAR(255) UNIQUE NOT NULL,
            status              VARCHAR(50) NOT NULL DEFAULT 'INITIALIZED',
            client_type         VARCHAR(50) NOT NULL DEFAULT 'chatbot',
            profile_name        VARCHAR(255),
            phone_number        VARCHAR(50),
            credential_blob     BYTEA,
            created_at          TIMESTAMP NOT NULL DEFAULT NOW(),
            updated_at          TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_client_sessions_client_id ON client_sessions(client_id);
        CREATE INDEX IF NOT EXISTS idx_client_sessions_status ON client_sessions(status);
        CREATE INDEX IF NOT EXISTS idx_client_sessions_client_type ON client_sessions(client_type);
    `
	if _, err := db.Exec(baseSchema); err != nil {
		log.Fatalf("failed to init base schema: %v", err)
	}

	log.Println("✓ Custom schema ready (client_sessions)")
}
