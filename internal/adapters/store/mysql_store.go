package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const mysqlDuplicateEntry = 1062

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS clarification_requests (
			id VARCHAR(64) PRIMARY KEY,
			broker_id VARCHAR(64) NOT NULL,
			shipper_email VARCHAR(255) NOT NULL,
			freight_type VARCHAR(32) NOT NULL,
			type_confidence INT NOT NULL DEFAULT 0,
			extracted_data MEDIUMTEXT NOT NULL,
			missing_fields TEXT NOT NULL,
			message_id VARCHAR(255) NOT NULL DEFAULT '',
			thread_root_id VARCHAR(255) NOT NULL DEFAULT '',
			subject VARCHAR(998) NOT NULL DEFAULT '',
			clarification_message_id VARCHAR(255) NOT NULL DEFAULT '',
			round INT NOT NULL DEFAULT 1,
			response_received TINYINT NOT NULL DEFAULT 0,
			merged_data MEDIUMTEXT NULL,
			load_created TINYINT NOT NULL DEFAULT 0,
			load_id VARCHAR(64) NOT NULL DEFAULT '',
			abandoned TINYINT NOT NULL DEFAULT 0,
			open_slot VARCHAR(320) NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE KEY uq_open_slot (open_slot),
			INDEX idx_clarification_shipper (broker_id, shipper_email, created_at),
			INDEX idx_clarification_message (broker_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS loads (
			id VARCHAR(64) PRIMARY KEY,
			broker_id VARCHAR(64) NOT NULL,
			shipper_email VARCHAR(255) NOT NULL,
			freight_type VARCHAR(32) NOT NULL,
			equipment VARCHAR(32) NOT NULL,
			origin_zip VARCHAR(10) NOT NULL DEFAULT '',
			destination_zip VARCHAR(10) NOT NULL DEFAULT '',
			pickup_at BIGINT NOT NULL,
			pickup_date_estimated TINYINT NOT NULL DEFAULT 0,
			data MEDIUMTEXT NOT NULL,
			raw_text MEDIUMTEXT NOT NULL,
			confidence INT NOT NULL,
			complexity_flags TEXT NOT NULL,
			requires_review TINYINT NOT NULL DEFAULT 0,
			clarification_id VARCHAR(64) NULL,
			source_message_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			UNIQUE KEY uq_load_clarification (clarification_id)
		)`,
		`CREATE TABLE IF NOT EXISTS processed_messages (
			broker_id VARCHAR(64) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			processed_at BIGINT NOT NULL,
			PRIMARY KEY (broker_id, message_id)
		)`,
	},
	insertIgnore: `INSERT IGNORE INTO`,
	isUniqueViolation: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
	},
}

// NewMySQLStore connects to MySQL and creates the schema
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq, matchWindow time.Duration) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "mysql: connect")
	}

	s, err := newSQLStore(context.Background(), db, mysqlDialect, logger, cleanupFreq, matchWindow)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Connected to MySQL store")
	return s, nil
}
