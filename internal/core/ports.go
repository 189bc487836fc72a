package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Repository when nothing matches
	ErrNotFound = errors.New("not found")

	// ErrOpenRequestExists is returned when another open clarification
	// request for the same broker and shipper won a concurrent insert
	ErrOpenRequestExists = errors.New("open clarification request already exists")
)

// ExtractionOracle classifies an email and extracts raw load fields from it
type ExtractionOracle interface {
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// Repository is the persistence boundary for clarification requests and loads
type Repository interface {
	// CreateClarification stores req as the single open request for its
	// broker and shipper, abandoning any request that was open before.
	CreateClarification(ctx context.Context, req *ClarificationRequest) error

	// GetClarification fetches a request by id
	GetClarification(ctx context.Context, brokerID, id string) (*ClarificationRequest, error)

	// FindOpenByMessageIDs returns the newest open request whose originating,
	// thread root or outbound clarification message-id is in ids
	FindOpenByMessageIDs(ctx context.Context, brokerID string, ids []string) (*ClarificationRequest, error)

	// FindLatestOpenByShipper returns the newest open request for the pair created after since
	FindLatestOpenByShipper(ctx context.Context, brokerID, shipperEmail string, since time.Time) (*ClarificationRequest, error)

	// SetClarificationMessageID records the message-id of the outbound clarification
	SetClarificationMessageID(ctx context.Context, brokerID, id, messageID string) error

	// AdvanceClarification closes an open request with the merged data and
	// opens next in its place. Returns false when the request was no longer open.
	AdvanceClarification(ctx context.Context, brokerID, id string, merged LoadData, next *ClarificationRequest) (bool, error)

	// CreateLoadForClarification marks the request as resolved and inserts the
	// load only if the request was still open. Returns false for the losing writer.
	CreateLoadForClarification(ctx context.Context, brokerID, id string, merged LoadData, load *Load) (bool, error)

	// CreateLoad inserts a load for a single-email conversation
	CreateLoad(ctx context.Context, load *Load) error

	// GetLoad fetches a load by id
	GetLoad(ctx context.Context, brokerID, id string) (*Load, error)

	// ExpireStale abandons open requests created before the cutoff
	ExpireStale(ctx context.Context, before time.Time) (int64, error)

	// MarkMessageProcessed records a message-id and reports whether it was new
	MarkMessageProcessed(ctx context.Context, brokerID, messageID string) (bool, error)

	// ReleaseMessage forgets a message-id so a failed delivery can be retried
	ReleaseMessage(ctx context.Context, brokerID, messageID string) error
}

// ClarificationNotifier delivers a clarification payload to the shipper and
// returns the outbound message-id when it is known
type ClarificationNotifier interface {
	Send(ctx context.Context, payload *ClarificationPayload) (string, error)
}

// SenderPolicy decides whether mail from an address is never a load request
type SenderPolicy interface {
	ShouldIgnore(from string) (bool, string)
}
