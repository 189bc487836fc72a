package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// dialect holds the statements that differ between SQL engines
type dialect struct {
	name              string
	schema            []string
	insertIgnore      string
	isUniqueViolation func(err error) bool
}

// SQLStore is a core.Repository over database/sql. Uniqueness of the open
// request per broker and shipper is enforced by the open_slot column.
type SQLStore struct {
	db       *sql.DB
	dialect  dialect
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger, cleanupFreq, matchWindow time.Duration) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, logger: logger, stopCh: make(chan struct{})}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	if cleanupFreq > 0 {
		go runCleanup(s, logger, cleanupFreq, matchWindow, s.stopCh)
	}
	return s, nil
}

// Migrate creates the tables when they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "%s: migrate", s.dialect.name)
		}
	}
	return nil
}

const requestColumns = `id, broker_id, shipper_email, freight_type, type_confidence, extracted_data,
	missing_fields, message_id, thread_root_id, subject, clarification_message_id, round,
	response_received, merged_data, load_created, load_id, abandoned, created_at, updated_at`

const loadColumns = `id, broker_id, shipper_email, freight_type, equipment, origin_zip, destination_zip,
	pickup_at, pickup_date_estimated, data, raw_text, confidence, complexity_flags, requires_review,
	clarification_id, source_message_id, created_at`

const openCondition = `response_received = 0 AND load_created = 0 AND abandoned = 0`

func openSlot(brokerID, shipperEmail string) string {
	return brokerID + "|" + shipperEmail
}

// CreateClarification abandons the pair's open request and inserts req in one transaction
func (s *SQLStore) CreateClarification(ctx context.Context, req *core.ClarificationRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin create clarification", s.dialect.name)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.insertRequest(ctx, tx, req); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "%s: commit create clarification", s.dialect.name)
}

func (s *SQLStore) insertRequest(ctx context.Context, tx *sql.Tx, req *core.ClarificationRequest) error {
	slot := openSlot(req.BrokerID, req.ShipperEmail)
	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx,
		`UPDATE clarification_requests SET abandoned = 1, open_slot = NULL, updated_at = ? WHERE open_slot = ?`,
		now, slot)
	if err != nil {
		return eris.Wrapf(err, "%s: supersede open request", s.dialect.name)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("Superseded open clarification request",
			zap.String("shipper_email", req.ShipperEmail),
			zap.String("superseded_by", req.ID))
	}

	extracted, err := json.Marshal(req.ExtractedData)
	if err != nil {
		return eris.Wrapf(err, "%s: marshal extracted data", s.dialect.name)
	}
	missing, err := json.Marshal(req.MissingFields)
	if err != nil {
		return eris.Wrapf(err, "%s: marshal missing fields", s.dialect.name)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO clarification_requests (`+requestColumns+`, open_slot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, 0, '', 0, ?, ?, ?)`,
		req.ID, req.BrokerID, req.ShipperEmail, string(req.FreightType), req.TypeConfidence, string(extracted),
		string(missing), req.MessageID, req.ThreadRootID, req.Subject, req.ClarificationMessageID, req.Round,
		req.CreatedAt.UnixMilli(), req.UpdatedAt.UnixMilli(), slot)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return eris.Wrapf(core.ErrOpenRequestExists, "%s: insert clarification %s", s.dialect.name, req.ID)
		}
		return eris.Wrapf(err, "%s: insert clarification", s.dialect.name)
	}
	return nil
}

// GetClarification fetches a request by id
func (s *SQLStore) GetClarification(ctx context.Context, brokerID, id string) (*core.ClarificationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM clarification_requests WHERE broker_id = ? AND id = ?`,
		brokerID, id)
	return s.scanRequest(row, "clarification "+id)
}

// FindOpenByMessageIDs returns the newest open request linked to any of ids
func (s *SQLStore) FindOpenByMessageIDs(ctx context.Context, brokerID string, ids []string) (*core.ClarificationRequest, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil, eris.Wrapf(core.ErrNotFound, "%s: no message ids", s.dialect.name)
	}

	in := strings.TrimSuffix(strings.Repeat("?, ", len(clean)), ", ")
	args := []any{brokerID}
	for i := 0; i < 3; i++ {
		for _, id := range clean {
			args = append(args, id)
		}
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM clarification_requests
		WHERE broker_id = ? AND `+openCondition+`
		AND (message_id IN (`+in+`) OR thread_root_id IN (`+in+`) OR clarification_message_id IN (`+in+`))
		ORDER BY created_at DESC LIMIT 1`,
		args...)
	return s.scanRequest(row, "thread "+strings.Join(clean, ","))
}

// FindLatestOpenByShipper returns the newest open request for the pair created after since
func (s *SQLStore) FindLatestOpenByShipper(ctx context.Context, brokerID, shipperEmail string, since time.Time) (*core.ClarificationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM clarification_requests
		WHERE broker_id = ? AND shipper_email = ? AND `+openCondition+` AND created_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		brokerID, shipperEmail, since.UnixMilli())
	return s.scanRequest(row, "shipper "+shipperEmail)
}

// SetClarificationMessageID records the outbound message-id
func (s *SQLStore) SetClarificationMessageID(ctx context.Context, brokerID, id, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clarification_requests SET clarification_message_id = ?, updated_at = ? WHERE broker_id = ? AND id = ?`,
		messageID, time.Now().UnixMilli(), brokerID, id)
	if err != nil {
		return eris.Wrapf(err, "%s: set clarification message id %s", s.dialect.name, id)
	}
	return checkRowsAffected(res, "clarification", id)
}

// AdvanceClarification closes an open request and inserts next in one transaction
func (s *SQLStore) AdvanceClarification(ctx context.Context, brokerID, id string, merged core.LoadData, next *core.ClarificationRequest) (bool, error) {
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return false, eris.Wrapf(err, "%s: marshal merged data", s.dialect.name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrapf(err, "%s: begin advance clarification", s.dialect.name)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE clarification_requests
		SET response_received = 1, merged_data = ?, open_slot = NULL, updated_at = ?
		WHERE broker_id = ? AND id = ? AND `+openCondition,
		string(mergedJSON), time.Now().UnixMilli(), brokerID, id)
	if err != nil {
		return false, eris.Wrapf(err, "%s: close clarification %s", s.dialect.name, id)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, eris.Wrapf(err, "%s: close clarification %s rows affected", s.dialect.name, id)
	}

	if err := s.insertRequest(ctx, tx, next); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrapf(err, "%s: commit advance clarification", s.dialect.name)
	}
	return true, nil
}

// CreateLoadForClarification flips load_created on an open request and
// inserts the load in the same transaction
func (s *SQLStore) CreateLoadForClarification(ctx context.Context, brokerID, id string, merged core.LoadData, load *core.Load) (bool, error) {
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return false, eris.Wrapf(err, "%s: marshal merged data", s.dialect.name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrapf(err, "%s: begin create load", s.dialect.name)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE clarification_requests
		SET response_received = 1, merged_data = ?, load_created = 1, load_id = ?, open_slot = NULL, updated_at = ?
		WHERE broker_id = ? AND id = ? AND `+openCondition,
		string(mergedJSON), load.ID, time.Now().UnixMilli(), brokerID, id)
	if err != nil {
		return false, eris.Wrapf(err, "%s: resolve clarification %s", s.dialect.name, id)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, eris.Wrapf(err, "%s: resolve clarification %s rows affected", s.dialect.name, id)
	}

	if err := s.insertLoad(ctx, tx, load); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrapf(err, "%s: commit create load", s.dialect.name)
	}
	return true, nil
}

// CreateLoad inserts a load
func (s *SQLStore) CreateLoad(ctx context.Context, load *core.Load) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: begin create load", s.dialect.name)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.insertLoad(ctx, tx, load); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "%s: commit create load", s.dialect.name)
}

func (s *SQLStore) insertLoad(ctx context.Context, tx *sql.Tx, load *core.Load) error {
	data, err := json.Marshal(load.Data)
	if err != nil {
		return eris.Wrapf(err, "%s: marshal load data", s.dialect.name)
	}
	flags, err := json.Marshal(load.ComplexityFlags)
	if err != nil {
		return eris.Wrapf(err, "%s: marshal complexity flags", s.dialect.name)
	}
	var clarificationID any
	if load.ClarificationID != "" {
		clarificationID = load.ClarificationID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO loads (`+loadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		load.ID, load.BrokerID, load.ShipperEmail, string(load.FreightType), load.Equipment,
		load.OriginZip, load.DestinationZip, load.PickupAt.UnixMilli(), boolInt(load.PickupDateEstimated),
		string(data), load.RawText, load.Confidence, string(flags), boolInt(load.RequiresReview),
		clarificationID, load.SourceMessageID, load.CreatedAt.UnixMilli())
	return eris.Wrapf(err, "%s: insert load", s.dialect.name)
}

// GetLoad fetches a load by id
func (s *SQLStore) GetLoad(ctx context.Context, brokerID, id string) (*core.Load, error) {
	var (
		load                     core.Load
		freightType, data, flags string
		pickupAt, createdAt      int64
		estimated, review        int
		clarificationID          sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+loadColumns+` FROM loads WHERE broker_id = ? AND id = ?`, brokerID, id).Scan(
		&load.ID, &load.BrokerID, &load.ShipperEmail, &freightType, &load.Equipment,
		&load.OriginZip, &load.DestinationZip, &pickupAt, &estimated,
		&data, &load.RawText, &load.Confidence, &flags, &review,
		&clarificationID, &load.SourceMessageID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(core.ErrNotFound, "%s: load %s", s.dialect.name, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: scan load", s.dialect.name)
	}
	if err := json.Unmarshal([]byte(data), &load.Data); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal load data", s.dialect.name)
	}
	if err := json.Unmarshal([]byte(flags), &load.ComplexityFlags); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal complexity flags", s.dialect.name)
	}
	load.FreightType = core.FreightType(freightType)
	load.PickupAt = time.UnixMilli(pickupAt)
	load.CreatedAt = time.UnixMilli(createdAt)
	load.PickupDateEstimated = estimated != 0
	load.RequiresReview = review != 0
	load.ClarificationID = clarificationID.String
	return &load, nil
}

// ExpireStale abandons open requests created before the cutoff
func (s *SQLStore) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clarification_requests SET abandoned = 1, open_slot = NULL, updated_at = ?
		WHERE `+openCondition+` AND created_at < ?`,
		time.Now().UnixMilli(), before.UnixMilli())
	if err != nil {
		return 0, eris.Wrapf(err, "%s: expire stale requests", s.dialect.name)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "rows affected")
}

// MarkMessageProcessed records a message-id and reports whether it was new
func (s *SQLStore) MarkMessageProcessed(ctx context.Context, brokerID, messageID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.dialect.insertIgnore+` processed_messages (broker_id, message_id, processed_at) VALUES (?, ?, ?)`,
		brokerID, messageID, time.Now().UnixMilli())
	if err != nil {
		return false, eris.Wrapf(err, "%s: mark message processed", s.dialect.name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// ReleaseMessage forgets a message-id
func (s *SQLStore) ReleaseMessage(ctx context.Context, brokerID, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE broker_id = ? AND message_id = ?`, brokerID, messageID)
	return eris.Wrapf(err, "%s: release message", s.dialect.name)
}

// Stop stops the background cleanup task and closes the database connection
func (s *SQLStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.String("dialect", s.dialect.name), zap.Error(err))
		}
	})
}

type scannable interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanRequest(row scannable, what string) (*core.ClarificationRequest, error) {
	var (
		req                               core.ClarificationRequest
		freightType, extracted, missing   string
		merged                            sql.NullString
		responded, loadCreated, abandoned int
		createdAt, updatedAt              int64
	)
	err := row.Scan(&req.ID, &req.BrokerID, &req.ShipperEmail, &freightType, &req.TypeConfidence, &extracted,
		&missing, &req.MessageID, &req.ThreadRootID, &req.Subject, &req.ClarificationMessageID, &req.Round,
		&responded, &merged, &loadCreated, &req.LoadID, &abandoned, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(core.ErrNotFound, "%s: %s", s.dialect.name, what)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: scan clarification", s.dialect.name)
	}
	if err := json.Unmarshal([]byte(extracted), &req.ExtractedData); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal extracted data", s.dialect.name)
	}
	if err := json.Unmarshal([]byte(missing), &req.MissingFields); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal missing fields", s.dialect.name)
	}
	if merged.Valid && merged.String != "" {
		var m core.LoadData
		if err := json.Unmarshal([]byte(merged.String), &m); err != nil {
			return nil, eris.Wrapf(err, "%s: unmarshal merged data", s.dialect.name)
		}
		req.MergedData = &m
	}
	req.FreightType = core.FreightType(freightType)
	req.ResponseReceived = responded != 0
	req.LoadCreated = loadCreated != 0
	req.Abandoned = abandoned != 0
	req.CreatedAt = time.UnixMilli(createdAt)
	req.UpdatedAt = time.UnixMilli(updatedAt)
	return &req, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(core.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
