package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixwallet/internal/clock"
	"pixwallet/internal/domain"
	"pixwallet/internal/handler"
	"pixwallet/internal/idempotency"
	"pixwallet/internal/keyedlease"
	"pixwallet/internal/metrics"
	"pixwallet/internal/repository"
	"pixwallet/internal/transfer"
	"pixwallet/internal/usecase"
	"pixwallet/internal/walletengine"
)

var transferCols = []string{
	"id", "end_to_end_id", "idempotency_key", "from_wallet_id", "to_pix_key", "to_pix_key_type",
	"amount_cents", "status", "created_at", "confirmed_at", "rejected_at", "rejection_reason", "version",
}
var pixKeyCols = []string{"id", "key_value", "key_type", "wallet_id", "is_active", "created_at"}
var idempotencyCols = []string{
	"id", "scope", "idempotency_key", "request_hash", "response_body", "response_status", "created_at", "expires_at",
}

func newTransferRouter(t *testing.T, now time.Time) (*mux.Router, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	store := repository.NewStore(db, discardLogger())
	clk := clock.NewFrozen(now)
	leases := keyedlease.New(100)
	engine := walletengine.New(store, leases, clk, discardLogger())
	atomic := transfer.New(store, engine, clk, discardLogger())
	idem := idempotency.New(store, clk, discardLogger())
	orch := usecase.NewTransferOrchestrator(store, atomic, idem, clk, discardLogger())
	h := handler.NewTransferHandler(orch, idem, metrics.New(prometheus.NewRegistry()), discardLogger())

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/pix/transfers", h.CreateTransfer).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/pix/webhook", h.HandleWebhook).Methods(http.MethodPost)

	return r, mock, func() { db.Close() }
}

func postWithHeaders(r *mux.Router, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateTransferRequiresIdempotencyKeyHeader(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	router, _, closeDB := newTransferRouter(t, now)
	defer closeDB()

	rec := postWithHeaders(router, "/api/v1/pix/transfers", map[string]string{
		"fromWalletId": uuid.New().String(), "toPixKey": "bob@example.com", "amount": "10.00",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTransferSucceedsAndReplaysOnRetry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	router, mock, closeDB := newTransferRouter(t, now)
	defer closeDB()

	fromWalletID := uuid.New()
	toWalletID := uuid.New()
	headers := map[string]string{"Idempotency-Key": "http-idem-1"}
	reqBody := map[string]string{"fromWalletId": fromWalletID.String(), "toPixKey": "bob@example.com", "amount": "10.00"}

	mock.ExpectQuery("FROM idempotency_records WHERE scope = \\$1 AND idempotency_key = \\$2").
		WithArgs("transfer", "http-idem-1").
		WillReturnRows(sqlmock.NewRows(idempotencyCols))

	mock.ExpectQuery("FROM pix_transfers WHERE idempotency_key = \\$1").
		WithArgs("http-idem-1").
		WillReturnRows(sqlmock.NewRows(transferCols))

	mock.ExpectQuery("SELECT id, key_value, key_type, wallet_id, is_active, created_at\\s+FROM pix_keys").
		WithArgs("bob@example.com", domain.PixKeyEmail).
		WillReturnRows(sqlmock.NewRows(pixKeyCols).AddRow(uuid.New(), "bob@example.com", "EMAIL", toWalletID, true, now))

	mock.ExpectQuery("FROM pix_transfers WHERE idempotency_key = \\$1").
		WithArgs("http-idem-1").
		WillReturnRows(sqlmock.NewRows(transferCols))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, balance_cents, version, created_at, updated_at\\s+FROM wallets WHERE id = \\$1 FOR UPDATE").
		WithArgs(fromWalletID).
		WillReturnRows(sqlmock.NewRows(walletCols).AddRow(fromWalletID, "user-1", int64(5000), int64(0), now, now))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE wallets").
		WithArgs(int64(4000), now, fromWalletID, int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO pix_transfers").WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("FROM idempotency_records WHERE scope = \\$1 AND idempotency_key = \\$2").
		WithArgs("transfer", "http-idem-1").
		WillReturnRows(sqlmock.NewRows(idempotencyCols))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	first := postWithHeaders(router, "/api/v1/pix/transfers", reqBody, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	require.NoError(t, mock.ExpectationsWereMet())

	// Retried request with the same key must be served entirely from the
	// idempotency service's in-process cache: no further DB calls expected.
	second := postWithHeaders(router, "/api/v1/pix/transfers", reqBody, headers)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransferRejectsBodyMismatchOnReplay(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	router, mock, closeDB := newTransferRouter(t, now)
	defer closeDB()

	headers := map[string]string{"Idempotency-Key": "http-idem-2"}

	cached := sqlmock.NewRows(idempotencyCols).
		AddRow(uuid.New(), "transfer", "http-idem-2", idempotency.Fingerprint([]byte(`{"fromWalletId":"x","toPixKey":"bob@example.com","amount":"10.00"}`)), `{}`, 201, now, now.Add(24*time.Hour))
	mock.ExpectQuery("FROM idempotency_records WHERE scope = \\$1 AND idempotency_key = \\$2").
		WithArgs("transfer", "http-idem-2").
		WillReturnRows(cached)

	rec := postWithHeaders(router, "/api/v1/pix/transfers", map[string]string{
		"fromWalletId": uuid.New().String(), "toPixKey": "bob@example.com", "amount": "99.00",
	}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookAbsorbsUnknownEventType(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	router, _, closeDB := newTransferRouter(t, now)
	defer closeDB()

	rec := postWithHeaders(router, "/api/v1/pix/webhook", map[string]string{
		"endToEndId": "E2E1", "eventId": "evt-1", "eventType": "PROCESSING",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "absorbed", body["data"]["status"])
}

func TestHandleWebhookRejectsMissingRequiredFields(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	router, _, closeDB := newTransferRouter(t, now)
	defer closeDB()

	rec := postWithHeaders(router, "/api/v1/pix/webhook", map[string]string{
		"eventType": "CONFIRMED",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
