package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/metrics"
	"pixwallet/internal/money"
	"pixwallet/internal/usecase"
)

var validate = validator.New()

// WalletHandler exposes the wallet lifecycle use case over HTTP.
type WalletHandler struct {
	wallets *usecase.WalletUseCase
	metrics *metrics.Metrics
}

// NewWalletHandler builds a WalletHandler.
func NewWalletHandler(wallets *usecase.WalletUseCase, m *metrics.Metrics) *WalletHandler {
	return &WalletHandler{wallets: wallets, metrics: m}
}

type createWalletRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// CreateWallet handles POST /api/v1/wallets.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "validation failed").WithDetails(err.Error()))
		return
	}

	wallet, err := h.wallets.CreateWallet(r.Context(), req.UserID)
	if err != nil {
		h.metrics.WalletsCreated.WithLabelValues("failure").Inc()
		writeError(w, err)
		return
	}

	h.metrics.WalletsCreated.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusCreated, wallet)
}

type registerPixKeyRequest struct {
	KeyValue string `json:"keyValue" validate:"required"`
	KeyType  string `json:"keyType" validate:"required,oneof=EMAIL PHONE CPF CNPJ EVP"`
}

// RegisterPixKey handles POST /api/v1/wallets/{id}/pix-keys.
func (h *WalletHandler) RegisterPixKey(w http.ResponseWriter, r *http.Request) {
	walletID, err := parseWalletID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req registerPixKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "validation failed").WithDetails(err.Error()))
		return
	}

	key, err := h.wallets.RegisterPixKey(r.Context(), walletID, req.KeyValue, domain.PixKeyType(req.KeyType))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

// GetBalance handles GET /api/v1/wallets/{id}/balance?at=ISO8601?.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	walletID, err := parseWalletID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	atParam := r.URL.Query().Get("at")

	var balance money.Money
	var timestamp time.Time

	if atParam == "" {
		balance, err = h.wallets.GetBalance(r.Context(), walletID)
		timestamp = time.Now().UTC()
	} else {
		var at time.Time
		at, err = time.Parse(time.RFC3339, atParam)
		if err != nil {
			writeError(w, walleterrors.Newf(walleterrors.InvalidInput, "invalid ISO8601 timestamp %q", atParam))
			return
		}
		balance, err = h.wallets.GetHistoricalBalance(r.Context(), walletID, at)
		timestamp = at
	}

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"walletId":  walletID,
		"balance":   balance.ToMajorUnitsString(),
		"timestamp": timestamp.Format(time.RFC3339),
	})
}

type amountRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
}

// Deposit handles POST /api/v1/wallets/{id}/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	walletID, req, err := h.parseAmountRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	amount, err := money.FromMajorUnitsString(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.wallets.Deposit(r.Context(), walletID, amount, req.Description); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Withdraw handles POST /api/v1/wallets/{id}/withdraw.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	walletID, req, err := h.parseAmountRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	amount, err := money.FromMajorUnitsString(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.wallets.Withdraw(r.Context(), walletID, amount, req.Description); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WalletHandler) parseAmountRequest(r *http.Request) (uuid.UUID, amountRequest, error) {
	walletID, err := parseWalletID(r)
	if err != nil {
		return uuid.UUID{}, amountRequest{}, err
	}

	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		return uuid.UUID{}, amountRequest{}, err
	}
	if err := validate.Struct(req); err != nil {
		return uuid.UUID{}, amountRequest{}, walleterrors.Newf(walleterrors.InvalidInput, "validation failed").WithDetails(err.Error())
	}

	return walletID, req, nil
}

func parseWalletID(r *http.Request) (uuid.UUID, error) {
	idStr := mux.Vars(r)["id"]
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, walleterrors.Newf(walleterrors.InvalidInput, "invalid wallet id %q", idStr)
	}
	return id, nil
}
