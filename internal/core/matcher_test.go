package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/llm-freight-intake/internal/adapters/store"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func seedRequest(t *testing.T, repo core.Repository, createdAt time.Time) *core.ClarificationRequest {
	t.Helper()
	req := &core.ClarificationRequest{
		ID:                     "req-1",
		BrokerID:               "broker-1",
		ShipperEmail:           "ops@shipper.test",
		FreightType:            core.FreightDryVan,
		MissingFields:          []string{core.FieldDeliveryLocation},
		MessageID:              "orig@shipper.test",
		ThreadRootID:           "orig@shipper.test",
		ClarificationMessageID: "clar@broker.test",
		Subject:                "Need a truck",
		Round:                  1,
		CreatedAt:              createdAt,
		UpdatedAt:              createdAt,
	}
	require.NoError(t, repo.CreateClarification(context.Background(), req))
	return req
}

func TestClarificationMatcher_FindMatchingRequest(t *testing.T) {
	repo := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer repo.Stop()
	seedRequest(t, repo, time.Now())
	m := core.NewClarificationMatcher(repo, zap.NewNop(), 0)
	ctx := context.Background()

	tests := []struct {
		name  string
		email core.Email
		match bool
	}{
		{
			name:  "in-reply-to our clarification",
			email: core.Email{BrokerID: "broker-1", From: "someone@else.test", InReplyTo: "<clar@broker.test>"},
			match: true,
		},
		{
			name:  "references the original",
			email: core.Email{BrokerID: "broker-1", From: "someone@else.test", References: []string{"<x@y.test> <orig@shipper.test>"}},
			match: true,
		},
		{
			name:  "sender fallback without thread headers",
			email: core.Email{BrokerID: "broker-1", From: "Ops Team <OPS@shipper.test>", Subject: "more info"},
			match: true,
		},
		{
			name:  "unrelated thread with a fresh subject",
			email: core.Email{BrokerID: "broker-1", From: "ops@shipper.test", Subject: "New load", InReplyTo: "<other@shipper.test>"},
			match: false,
		},
		{
			name:  "unrelated thread with a reply subject",
			email: core.Email{BrokerID: "broker-1", From: "ops@shipper.test", Subject: "RE: Need a truck", InReplyTo: "<other@shipper.test>"},
			match: true,
		},
		{
			name:  "other broker",
			email: core.Email{BrokerID: "broker-2", From: "ops@shipper.test", InReplyTo: "<clar@broker.test>"},
			match: false,
		},
		{
			name:  "other shipper",
			email: core.Email{BrokerID: "broker-1", From: "ops@other.test"},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := tt.email
			got := m.FindMatchingRequest(ctx, &email)
			if !tt.match {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, "req-1", got.ID)
		})
	}
}

func TestClarificationMatcher_WindowAndClosedRequests(t *testing.T) {
	ctx := context.Background()

	repo := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer repo.Stop()
	seedRequest(t, repo, time.Now().Add(-2*time.Hour))

	narrow := core.NewClarificationMatcher(repo, zap.NewNop(), time.Hour)
	assert.Nil(t, narrow.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", From: "ops@shipper.test"}))

	// thread headers are not bound by the window
	assert.NotNil(t, narrow.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", InReplyTo: "<orig@shipper.test>"}))

	wide := core.NewClarificationMatcher(repo, zap.NewNop(), 0)
	require.NotNil(t, wide.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", From: "ops@shipper.test"}))

	ok, err := repo.CreateLoadForClarification(ctx, "broker-1", "req-1", core.LoadData{}, &core.Load{ID: "load-1", BrokerID: "broker-1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, wide.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", InReplyTo: "<clar@broker.test>"}))
	assert.Nil(t, wide.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", From: "ops@shipper.test"}))
}

func TestClarificationMatcher_LogsSenderMatches(t *testing.T) {
	repo := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer repo.Stop()
	seedRequest(t, repo, time.Now())

	obsCore, logs := observer.New(zapcore.InfoLevel)
	m := core.NewClarificationMatcher(repo, zap.New(obsCore), 0)
	ctx := context.Background()

	got := m.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", From: "ops@shipper.test", Subject: "Houston to Denver", MessageID: "<new@shipper.test>"})
	require.NotNil(t, got)

	entries := logs.FilterMessage("Matched clarification by sender").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "Houston to Denver", fields["subject"])
	assert.Equal(t, "Need a truck", fields["request_subject"])

	// header matches stay below info
	require.NotNil(t, m.FindMatchingRequest(ctx, &core.Email{BrokerID: "broker-1", InReplyTo: "<clar@broker.test>"}))
	assert.Equal(t, 1, logs.Len())
}

func TestThreadMessageIDs(t *testing.T) {
	ids := core.ThreadMessageIDs(&core.Email{
		InReplyTo:  "<b@x.test>",
		References: []string{"<a@x.test>\r\n <b@x.test>", "c@x.test"},
	})
	assert.Equal(t, []string{"b@x.test", "a@x.test", "c@x.test"}, ids)
	assert.Empty(t, core.ThreadMessageIDs(&core.Email{}))
}

func TestIsReplySubject(t *testing.T) {
	for _, s := range []string{"Re: quote", "RE:quote", "AW: Angebot", "Re[2]: quote", "  re : quote"} {
		assert.True(t, core.IsReplySubject(s), s)
	}
	for _, s := range []string{"Fwd: quote", "Request: quote", "quote re: dallas"} {
		assert.False(t, core.IsReplySubject(s), s)
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "ops@shipper.test", core.NormalizeAddress("Ops Team <OPS@Shipper.test>"))
	assert.Equal(t, "ops@shipper.test", core.NormalizeAddress("  ops@shipper.test "))
	assert.Equal(t, "", core.NormalizeAddress(""))
}
