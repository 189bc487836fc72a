package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikey/llm-freight-intake/internal/adapters/intake"
	"github.com/mikey/llm-freight-intake/internal/adapters/store"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticOracle struct {
	result *core.ExtractionResult
}

func (o *staticOracle) Extract(_ context.Context, _ core.ExtractionRequest) (*core.ExtractionResult, error) {
	return o.result, nil
}

func completeExtraction() *core.ExtractionResult {
	return &core.ExtractionResult{
		IsLoadRequest:        true,
		Confidence:           95,
		ExtractionConfidence: 90,
		Intent:               "LOAD_TENDER",
		Fields: map[string]any{
			"pickup_location":   "Dallas, TX 75201",
			"delivery_location": "Atlanta, GA 30303",
			"commodity":         "paper rolls",
			"weight":            "42,000 lbs",
			"equipment_type":    "53' dry van",
			"pickup_date":       "2025-06-10",
		},
		Model: "test",
	}
}

func newTestServer(t *testing.T, extraction *core.ExtractionResult) (*Server, *store.MemoryStore) {
	t.Helper()
	logger := zap.NewNop()
	repo := store.NewMemoryStore(logger, 0, 0)
	service := core.NewIntakeService(&staticOracle{result: extraction}, repo, nil, nil, logger, core.IntakeOptions{})
	tp := utils.NewTextProcessor(logger)
	handler := intake.NewHandler(service, repo, intake.NewBrokerResolver(config.IntakeConfig{DefaultBrokerID: "broker-1"}), logger)
	return NewServer(handler, repo, tp, logger, config.ServerConfig{MaxMessageBytes: 64 * 1024}), repo
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/emails", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, completeExtraction())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestPostEmail_JSONCreatesLoad(t *testing.T) {
	srv, repo := newTestServer(t, completeExtraction())
	h := srv.Router()

	rr := postJSON(t, h, EmailRequest{
		From:      "Dock Ops <ops@shipper.test>",
		Subject:   "Dry van Dallas to Atlanta",
		Body:      "Need a 53' dry van, 42,000 lbs paper rolls, Dallas TX 75201 to Atlanta GA 30303",
		MessageID: "<m1@shipper.test>",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result core.IntakeResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, core.ActionProceedToQuote, result.Action)
	assert.Equal(t, core.FreightDryVan, result.FreightType)
	require.True(t, result.LoadCreated)

	load, err := repo.GetLoad(context.Background(), "broker-1", result.LoadID)
	require.NoError(t, err)
	assert.Equal(t, "75201", load.OriginZip)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/brokers/broker-1/loads/"+result.LoadID, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"equipment":"Van"`)

	// redelivery of the same message is a no-op
	rr = postJSON(t, h, EmailRequest{From: "ops@shipper.test", Subject: "again", MessageID: "m1@shipper.test"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Duplicate)
}

func TestPostEmail_RawMessageRequestsClarification(t *testing.T) {
	extraction := completeExtraction()
	delete(extraction.Fields, "delivery_location")
	srv, _ := newTestServer(t, extraction)
	h := srv.Router()

	raw := strings.ReplaceAll(`From: ops@shipper.test
To: quotes@broker.test
Subject: Need a truck
Message-ID: <m2@shipper.test>

Dry van out of Dallas, 42k lbs paper rolls.
`, "\n", "\r\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/emails", strings.NewReader(raw))
	req.Header.Set("Content-Type", "message/rfc822")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result core.IntakeResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, core.ActionRequestClarification, result.Action)
	assert.Contains(t, result.ClarificationNeeded, "Delivery Location")
	require.NotEmpty(t, result.ClarificationRequestID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/brokers/broker-1/clarifications/"+result.ClarificationRequestID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var stored core.ClarificationRequest
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, "ops@shipper.test", stored.ShipperEmail)
	assert.Equal(t, []string{core.FieldDeliveryLocation}, stored.MissingFields)
}

func TestPostEmail_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, completeExtraction())
	h := srv.Router()

	rr := postJSON(t, h, map[string]string{"subject": "no sender"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/emails", strings.NewReader(strings.Repeat("x", 70*1024)))
	req.Header.Set("Content-Type", "message/rfc822")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestGetRecords_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, completeExtraction())
	h := srv.Router()

	for _, path := range []string{"/v1/brokers/b/loads/nope", "/v1/brokers/b/clarifications/nope"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestServer_StartStop(t *testing.T) {
	srv, _ := newTestServer(t, completeExtraction())
	srv.addr = "127.0.0.1:0"
	require.NoError(t, srv.Start())

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())
}
