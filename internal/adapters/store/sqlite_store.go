package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS clarification_requests (
			id TEXT PRIMARY KEY,
			broker_id TEXT NOT NULL,
			shipper_email TEXT NOT NULL,
			freight_type TEXT NOT NULL,
			type_confidence INTEGER NOT NULL DEFAULT 0,
			extracted_data TEXT NOT NULL,
			missing_fields TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			thread_root_id TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			clarification_message_id TEXT NOT NULL DEFAULT '',
			round INTEGER NOT NULL DEFAULT 1,
			response_received INTEGER NOT NULL DEFAULT 0,
			merged_data TEXT,
			load_created INTEGER NOT NULL DEFAULT 0,
			load_id TEXT NOT NULL DEFAULT '',
			abandoned INTEGER NOT NULL DEFAULT 0,
			open_slot TEXT UNIQUE,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clarification_shipper ON clarification_requests(broker_id, shipper_email, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_clarification_message ON clarification_requests(broker_id, message_id)`,
		`CREATE TABLE IF NOT EXISTS loads (
			id TEXT PRIMARY KEY,
			broker_id TEXT NOT NULL,
			shipper_email TEXT NOT NULL,
			freight_type TEXT NOT NULL,
			equipment TEXT NOT NULL,
			origin_zip TEXT NOT NULL DEFAULT '',
			destination_zip TEXT NOT NULL DEFAULT '',
			pickup_at INTEGER NOT NULL,
			pickup_date_estimated INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			complexity_flags TEXT NOT NULL,
			requires_review INTEGER NOT NULL DEFAULT 0,
			clarification_id TEXT UNIQUE,
			source_message_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_messages (
			broker_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			processed_at INTEGER NOT NULL,
			PRIMARY KEY (broker_id, message_id)
		)`,
	},
	insertIgnore: `INSERT OR IGNORE INTO`,
	isUniqueViolation: func(err error) bool {
		var se sqlite3.Error
		return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger, cleanupFreq, matchWindow time.Duration) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// one writer at a time keeps the conditional updates serial
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(context.Background(), db, sqliteDialect, logger, cleanupFreq, matchWindow)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return s, nil
}
