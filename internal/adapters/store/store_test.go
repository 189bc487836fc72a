package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testRepo interface {
	core.Repository
	Stop()
}

func repos(t *testing.T) map[string]func(t *testing.T) testRepo {
	return map[string]func(t *testing.T) testRepo{
		"memory": func(t *testing.T) testRepo {
			return NewMemoryStore(zap.NewNop(), 0, 7*24*time.Hour)
		},
		"sqlite": func(t *testing.T) testRepo {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "intake.db"), zap.NewNop(), 0, 7*24*time.Hour)
			require.NoError(t, err)
			return s
		},
	}
}

func forEachRepo(t *testing.T, fn func(t *testing.T, repo testRepo)) {
	for name, open := range repos(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			t.Cleanup(repo.Stop)
			fn(t, repo)
		})
	}
}

func intPtr(v int) *int { return &v }

func newRequest(id, shipper string, created time.Time) *core.ClarificationRequest {
	return &core.ClarificationRequest{
		ID:           id,
		BrokerID:     "broker-1",
		ShipperEmail: shipper,
		FreightType:  core.FreightDryVan,
		ExtractedData: core.LoadData{
			PickupLocation: core.Location{City: "Dallas", State: "TX", Zip: "75201"},
			Weight:         intPtr(42000),
		},
		MissingFields: []string{core.FieldDeliveryLocation, core.FieldCommodity},
		MessageID:     "msg-" + id + "@shipper.test",
		ThreadRootID:  "msg-" + id + "@shipper.test",
		Subject:       "Load request",
		Round:         1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func newLoad(id, clarificationID string) *core.Load {
	return &core.Load{
		ID:              id,
		BrokerID:        "broker-1",
		ShipperEmail:    "ops@shipper.test",
		FreightType:     core.FreightDryVan,
		Equipment:       "V",
		OriginZip:       "75201",
		DestinationZip:  "30301",
		PickupAt:        time.Now().Add(24 * time.Hour).Truncate(time.Millisecond),
		Data:            core.LoadData{Commodity: "Paper rolls", Weight: intPtr(38000)},
		RawText:         "Load request\n\nbody",
		Confidence:      88,
		ComplexityFlags: []string{"appointment"},
		ClarificationID: clarificationID,
		CreatedAt:       time.Now().Truncate(time.Millisecond),
	}
}

func TestRepository_CreateAndGetClarification(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		now := time.Now().Truncate(time.Millisecond)
		req := newRequest("req-1", "ops@shipper.test", now)
		require.NoError(t, repo.CreateClarification(ctx, req))

		got, err := repo.GetClarification(ctx, "broker-1", "req-1")
		require.NoError(t, err)
		assert.Equal(t, req.ShipperEmail, got.ShipperEmail)
		assert.Equal(t, req.MissingFields, got.MissingFields)
		assert.Equal(t, 42000, *got.ExtractedData.Weight)
		assert.Equal(t, "Dallas", got.ExtractedData.PickupLocation.City)
		assert.True(t, got.IsOpen())
		assert.WithinDuration(t, now, got.CreatedAt, time.Millisecond)

		_, err = repo.GetClarification(ctx, "broker-2", "req-1")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestRepository_NewRequestSupersedesOpenOne(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, repo.CreateClarification(ctx, newRequest("old", "ops@shipper.test", now.Add(-time.Hour))))
		require.NoError(t, repo.CreateClarification(ctx, newRequest("new", "ops@shipper.test", now)))

		old, err := repo.GetClarification(ctx, "broker-1", "old")
		require.NoError(t, err)
		assert.True(t, old.Abandoned)

		latest, err := repo.FindLatestOpenByShipper(ctx, "broker-1", "ops@shipper.test", now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "new", latest.ID)
	})
}

func TestRepository_FindOpenByMessageIDs(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		req := newRequest("req-1", "ops@shipper.test", time.Now())
		require.NoError(t, repo.CreateClarification(ctx, req))
		require.NoError(t, repo.SetClarificationMessageID(ctx, "broker-1", "req-1", "clar-1@broker.test"))

		got, err := repo.FindOpenByMessageIDs(ctx, "broker-1", []string{"unrelated@x", "clar-1@broker.test"})
		require.NoError(t, err)
		assert.Equal(t, "req-1", got.ID)
		assert.Equal(t, "clar-1@broker.test", got.ClarificationMessageID)

		got, err = repo.FindOpenByMessageIDs(ctx, "broker-1", []string{req.MessageID})
		require.NoError(t, err)
		assert.Equal(t, "req-1", got.ID)

		_, err = repo.FindOpenByMessageIDs(ctx, "broker-2", []string{req.MessageID})
		assert.True(t, errors.Is(err, core.ErrNotFound))

		_, err = repo.FindOpenByMessageIDs(ctx, "broker-1", []string{"", "nothing@x"})
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestRepository_FindLatestOpenByShipperRespectsWindow(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, repo.CreateClarification(ctx, newRequest("req-1", "ops@shipper.test", now.Add(-10*24*time.Hour))))

		_, err := repo.FindLatestOpenByShipper(ctx, "broker-1", "ops@shipper.test", now.Add(-7*24*time.Hour))
		assert.True(t, errors.Is(err, core.ErrNotFound))

		_, err = repo.FindLatestOpenByShipper(ctx, "broker-1", "other@shipper.test", now.Add(-30*24*time.Hour))
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestRepository_AdvanceClarification(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, repo.CreateClarification(ctx, newRequest("round-1", "ops@shipper.test", now)))

		merged := core.LoadData{Commodity: "Steel coils", Weight: intPtr(42000)}
		next := newRequest("round-2", "ops@shipper.test", now.Add(time.Second))
		next.Round = 2
		next.MissingFields = []string{core.FieldDeliveryLocation}

		ok, err := repo.AdvanceClarification(ctx, "broker-1", "round-1", merged, next)
		require.NoError(t, err)
		assert.True(t, ok)

		first, err := repo.GetClarification(ctx, "broker-1", "round-1")
		require.NoError(t, err)
		assert.True(t, first.ResponseReceived)
		require.NotNil(t, first.MergedData)
		assert.Equal(t, "Steel coils", first.MergedData.Commodity)

		open, err := repo.FindLatestOpenByShipper(ctx, "broker-1", "ops@shipper.test", now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "round-2", open.ID)
		assert.Equal(t, 2, open.Round)

		again := newRequest("round-2b", "ops@shipper.test", now)
		ok, err = repo.AdvanceClarification(ctx, "broker-1", "round-1", merged, again)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.GetClarification(ctx, "broker-1", "round-2b")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestRepository_CreateLoadForClarification(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		require.NoError(t, repo.CreateClarification(ctx, newRequest("req-1", "ops@shipper.test", time.Now())))

		merged := core.LoadData{Commodity: "Paper rolls"}
		ok, err := repo.CreateLoadForClarification(ctx, "broker-1", "req-1", merged, newLoad("load-1", "req-1"))
		require.NoError(t, err)
		assert.True(t, ok)

		req, err := repo.GetClarification(ctx, "broker-1", "req-1")
		require.NoError(t, err)
		assert.True(t, req.LoadCreated)
		assert.Equal(t, "load-1", req.LoadID)
		assert.False(t, req.IsOpen())

		load, err := repo.GetLoad(ctx, "broker-1", "load-1")
		require.NoError(t, err)
		assert.Equal(t, "req-1", load.ClarificationID)
		assert.Equal(t, []string{"appointment"}, load.ComplexityFlags)
		assert.Equal(t, 38000, *load.Data.Weight)

		ok, err = repo.CreateLoadForClarification(ctx, "broker-1", "req-1", merged, newLoad("load-2", "req-1"))
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.GetLoad(ctx, "broker-1", "load-2")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestRepository_ConcurrentRepliesCreateOneLoad(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		require.NoError(t, repo.CreateClarification(ctx, newRequest("req-1", "ops@shipper.test", time.Now())))

		var (
			wg      sync.WaitGroup
			created atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := repo.CreateLoadForClarification(ctx, "broker-1", "req-1",
					core.LoadData{Commodity: "Paper"}, newLoad(fmt.Sprintf("load-%d", i), "req-1"))
				assert.NoError(t, err)
				if ok {
					created.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), created.Load())
	})
}

func TestRepository_StandaloneLoad(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		require.NoError(t, repo.CreateLoad(ctx, newLoad("load-1", "")))
		require.NoError(t, repo.CreateLoad(ctx, newLoad("load-2", "")))

		load, err := repo.GetLoad(ctx, "broker-1", "load-1")
		require.NoError(t, err)
		assert.Empty(t, load.ClarificationID)
		assert.Equal(t, "75201", load.OriginZip)

		_, err = repo.GetLoad(ctx, "broker-1", "missing")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestRepository_ExpireStale(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, repo.CreateClarification(ctx, newRequest("stale", "a@shipper.test", now.Add(-8*24*time.Hour))))
		require.NoError(t, repo.CreateClarification(ctx, newRequest("fresh", "b@shipper.test", now)))

		n, err := repo.ExpireStale(ctx, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		stale, err := repo.GetClarification(ctx, "broker-1", "stale")
		require.NoError(t, err)
		assert.True(t, stale.Abandoned)

		fresh, err := repo.GetClarification(ctx, "broker-1", "fresh")
		require.NoError(t, err)
		assert.True(t, fresh.IsOpen())
	})
}

func TestRepository_MessageDeduplication(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		ctx := context.Background()
		first, err := repo.MarkMessageProcessed(ctx, "broker-1", "m1@x")
		require.NoError(t, err)
		assert.True(t, first)

		second, err := repo.MarkMessageProcessed(ctx, "broker-1", "m1@x")
		require.NoError(t, err)
		assert.False(t, second)

		otherBroker, err := repo.MarkMessageProcessed(ctx, "broker-2", "m1@x")
		require.NoError(t, err)
		assert.True(t, otherBroker)

		require.NoError(t, repo.ReleaseMessage(ctx, "broker-1", "m1@x"))
		again, err := repo.MarkMessageProcessed(ctx, "broker-1", "m1@x")
		require.NoError(t, err)
		assert.True(t, again)
	})
}

func TestSetClarificationMessageID_Unknown(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo testRepo) {
		err := repo.SetClarificationMessageID(context.Background(), "broker-1", "nope", "x@y")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(zap.NewNop(), 0, time.Hour)
	defer s.Stop()
	ctx := context.Background()
	require.NoError(t, s.CreateClarification(ctx, newRequest("req-1", "ops@shipper.test", time.Now())))

	got, err := s.GetClarification(ctx, "broker-1", "req-1")
	require.NoError(t, err)
	*got.ExtractedData.Weight = 1
	got.MissingFields[0] = "changed"

	again, err := s.GetClarification(ctx, "broker-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, 42000, *again.ExtractedData.Weight)
	assert.Equal(t, core.FieldDeliveryLocation, again.MissingFields[0])
}
