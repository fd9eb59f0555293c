package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/idempotency"
	"pixwallet/internal/metrics"
	"pixwallet/internal/money"
	"pixwallet/internal/usecase"
)

// TransferHandler exposes the transfer orchestrator over HTTP.
type TransferHandler struct {
	orchestrator *usecase.TransferOrchestrator
	idempotency  *idempotency.Service
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewTransferHandler builds a TransferHandler.
func NewTransferHandler(orchestrator *usecase.TransferOrchestrator, idem *idempotency.Service, m *metrics.Metrics, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{orchestrator: orchestrator, idempotency: idem, metrics: m, logger: logger}
}

type transferRequest struct {
	FromWalletID string `json:"fromWalletId" validate:"required,uuid"`
	ToPixKey     string `json:"toPixKey" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
}

// CreateTransfer handles POST /api/v1/pix/transfers. The Idempotency-Key
// header is mandatory: the full HTTP response is cached against it so
// retries replay byte-for-byte, independent of the PixTransfer uniqueness
// enforced at the domain layer.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		writeError(w, walleterrors.New(walleterrors.InvalidInput, "Idempotency-Key header is required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "failed to read request body").WithDetails(err.Error()))
		return
	}

	if rec, found, err := h.idempotency.Find(r.Context(), idempotency.ScopeTransfer, idempotencyKey); err != nil {
		writeError(w, err)
		return
	} else if found {
		if !idempotency.ValidateMatches(rec, body) {
			writeError(w, walleterrors.New(walleterrors.InvalidInput, "idempotency key reused with a different request body"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.ResponseStatus)
		w.Write([]byte(rec.ResponseBody))
		return
	}

	var req transferRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "malformed request body").WithDetails(err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "validation failed").WithDetails(err.Error()))
		return
	}

	fromWalletID, err := uuid.Parse(req.FromWalletID)
	if err != nil {
		writeError(w, walleterrors.New(walleterrors.InvalidInput, "invalid fromWalletId"))
		return
	}

	amount, err := money.FromMajorUnitsString(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	transferRec, err := h.orchestrator.Initiate(r.Context(), idempotencyKey, fromWalletID, req.ToPixKey, amount)

	status := http.StatusCreated
	var responsePayload []byte

	if err != nil {
		h.metrics.PixTransfers.WithLabelValues("failure").Inc()
		we, ok := err.(*walleterrors.WalletError)
		if !ok {
			we = walleterrors.New(walleterrors.InternalError, "internal error")
		}
		status = we.HTTPStatus()
		responsePayload, _ = json.Marshal(Response{Error: &Error{Code: string(we.Code), Message: we.Message, Details: we.Details}})
	} else {
		h.metrics.PixTransfers.WithLabelValues("success").Inc()
		responsePayload, _ = json.Marshal(Response{Data: transferRec})
	}

	if _, saveErr := h.idempotency.SaveFirst(r.Context(), idempotency.ScopeTransfer, idempotencyKey, body, string(responsePayload), status); saveErr != nil {
		h.logger.Error("failed to persist transfer idempotency record", "idempotency_key", idempotencyKey, "error", saveErr)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responsePayload)
}

type webhookRequest struct {
	EndToEndID string `json:"endToEndId" validate:"required"`
	EventID    string `json:"eventId" validate:"required"`
	EventType  string `json:"eventType" validate:"required,oneof=CONFIRMED REJECTED"`
	OccurredAt string `json:"occurredAt,omitempty"`
}

// HandleWebhook handles POST /api/v1/pix/webhook.
func (h *TransferHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	validationErr := validate.Struct(req)
	if validationErr != nil {
		// Unrecognized event types are absorbed (logged and dropped), not
		// rejected, per the webhook contract; only missing required fields
		// are a hard 400.
		if req.EndToEndID == "" || req.EventID == "" {
			writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "validation failed").WithDetails(validationErr.Error()))
			return
		}
		h.logger.Info("absorbing webhook with unrecognized event type", "end_to_end_id", req.EndToEndID, "event_id", req.EventID, "event_type", req.EventType)
		h.metrics.PixWebhooks.WithLabelValues(req.EventType, "absorbed_unknown_type").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "absorbed"})
		return
	}

	if err := h.orchestrator.HandleWebhook(r.Context(), req.EndToEndID, req.EventID, req.EventType); err != nil {
		h.metrics.PixWebhooks.WithLabelValues(req.EventType, "failure").Inc()
		writeError(w, err)
		return
	}

	h.metrics.PixWebhooks.WithLabelValues(req.EventType, "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
