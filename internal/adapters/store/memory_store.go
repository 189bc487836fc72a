package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MemoryStore is an in-process core.Repository. A single mutex makes every
// conditional update atomic.
type MemoryStore struct {
	mu          sync.Mutex
	requests    map[string]*core.ClarificationRequest
	loads       map[string]*core.Load
	processed   map[string]time.Time
	logger      *zap.Logger
	cleanupFreq time.Duration
	matchWindow time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates an in-memory store. A positive cleanupFreq starts
// the background expiry of requests older than matchWindow.
func NewMemoryStore(logger *zap.Logger, cleanupFreq, matchWindow time.Duration) *MemoryStore {
	s := &MemoryStore{
		requests:    make(map[string]*core.ClarificationRequest),
		loads:       make(map[string]*core.Load),
		processed:   make(map[string]time.Time),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		matchWindow: matchWindow,
		stopCh:      make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go runCleanup(s, logger, cleanupFreq, matchWindow, s.stopCh)
	}
	return s
}

func key(brokerID, id string) string {
	return brokerID + "\x00" + id
}

func copyRequest(r *core.ClarificationRequest) *core.ClarificationRequest {
	out := *r
	out.ExtractedData = r.ExtractedData.Clone()
	out.MissingFields = append([]string(nil), r.MissingFields...)
	if r.MergedData != nil {
		m := r.MergedData.Clone()
		out.MergedData = &m
	}
	return &out
}

func copyLoad(l *core.Load) *core.Load {
	out := *l
	out.Data = l.Data.Clone()
	out.ComplexityFlags = append([]string(nil), l.ComplexityFlags...)
	return &out
}

// CreateClarification stores req and abandons any request open for the same pair
func (s *MemoryStore) CreateClarification(ctx context.Context, req *core.ClarificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, r := range s.requests {
		if r.BrokerID == req.BrokerID && r.ShipperEmail == req.ShipperEmail && r.IsOpen() {
			r.Abandoned = true
			r.UpdatedAt = now
			s.logger.Info("Superseded open clarification request",
				zap.String("request_id", r.ID),
				zap.String("superseded_by", req.ID))
		}
	}
	s.requests[key(req.BrokerID, req.ID)] = copyRequest(req)
	return nil
}

// GetClarification fetches a request by id
func (s *MemoryStore) GetClarification(ctx context.Context, brokerID, id string) (*core.ClarificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[key(brokerID, id)]
	if !ok {
		return nil, eris.Wrapf(core.ErrNotFound, "memory: clarification %s", id)
	}
	return copyRequest(r), nil
}

// FindOpenByMessageIDs returns the newest open request linked to any of ids
func (s *MemoryStore) FindOpenByMessageIDs(ctx context.Context, brokerID string, ids []string) (*core.ClarificationRequest, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			want[id] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*core.ClarificationRequest
	for _, r := range s.requests {
		if r.BrokerID != brokerID || !r.IsOpen() {
			continue
		}
		if want[r.MessageID] || want[r.ThreadRootID] || want[r.ClarificationMessageID] {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, eris.Wrap(core.ErrNotFound, "memory: no open request for thread")
	}
	return copyRequest(newest(matches)), nil
}

// FindLatestOpenByShipper returns the newest open request for the pair created after since
func (s *MemoryStore) FindLatestOpenByShipper(ctx context.Context, brokerID, shipperEmail string, since time.Time) (*core.ClarificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*core.ClarificationRequest
	for _, r := range s.requests {
		if r.BrokerID == brokerID && r.ShipperEmail == shipperEmail && r.IsOpen() && r.CreatedAt.After(since) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, eris.Wrapf(core.ErrNotFound, "memory: no open request for %s", shipperEmail)
	}
	return copyRequest(newest(matches)), nil
}

// SetClarificationMessageID records the outbound message-id
func (s *MemoryStore) SetClarificationMessageID(ctx context.Context, brokerID, id, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[key(brokerID, id)]
	if !ok {
		return eris.Wrapf(core.ErrNotFound, "memory: clarification %s", id)
	}
	r.ClarificationMessageID = messageID
	r.UpdatedAt = time.Now()
	return nil
}

// AdvanceClarification closes an open request and stores next as the open one
func (s *MemoryStore) AdvanceClarification(ctx context.Context, brokerID, id string, merged core.LoadData, next *core.ClarificationRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[key(brokerID, id)]
	if !ok {
		return false, eris.Wrapf(core.ErrNotFound, "memory: clarification %s", id)
	}
	if !r.IsOpen() {
		return false, nil
	}
	m := merged.Clone()
	r.ResponseReceived = true
	r.MergedData = &m
	r.UpdatedAt = time.Now()
	s.requests[key(next.BrokerID, next.ID)] = copyRequest(next)
	return true, nil
}

// CreateLoadForClarification resolves an open request and inserts its load
func (s *MemoryStore) CreateLoadForClarification(ctx context.Context, brokerID, id string, merged core.LoadData, load *core.Load) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[key(brokerID, id)]
	if !ok {
		return false, eris.Wrapf(core.ErrNotFound, "memory: clarification %s", id)
	}
	if !r.IsOpen() {
		return false, nil
	}
	m := merged.Clone()
	r.ResponseReceived = true
	r.MergedData = &m
	r.LoadCreated = true
	r.LoadID = load.ID
	r.UpdatedAt = time.Now()
	s.loads[key(load.BrokerID, load.ID)] = copyLoad(load)
	return true, nil
}

// CreateLoad inserts a load
func (s *MemoryStore) CreateLoad(ctx context.Context, load *core.Load) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(load.BrokerID, load.ID)
	if _, exists := s.loads[k]; exists {
		return eris.Errorf("memory: load %s already exists", load.ID)
	}
	s.loads[k] = copyLoad(load)
	return nil
}

// GetLoad fetches a load by id
func (s *MemoryStore) GetLoad(ctx context.Context, brokerID, id string) (*core.Load, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loads[key(brokerID, id)]
	if !ok {
		return nil, eris.Wrapf(core.ErrNotFound, "memory: load %s", id)
	}
	return copyLoad(l), nil
}

// ExpireStale abandons open requests created before the cutoff
func (s *MemoryStore) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := time.Now()
	for _, r := range s.requests {
		if r.IsOpen() && r.CreatedAt.Before(before) {
			r.Abandoned = true
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// MarkMessageProcessed records a message-id and reports whether it was new
func (s *MemoryStore) MarkMessageProcessed(ctx context.Context, brokerID, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(brokerID, messageID)
	if _, seen := s.processed[k]; seen {
		return false, nil
	}
	s.processed[k] = time.Now()
	return true, nil
}

// ReleaseMessage forgets a message-id
func (s *MemoryStore) ReleaseMessage(ctx context.Context, brokerID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.processed, key(brokerID, messageID))
	return nil
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func newest(reqs []*core.ClarificationRequest) *core.ClarificationRequest {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
	return reqs[0]
}
