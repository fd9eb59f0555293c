package handler

import (
	"encoding/json"
	"net/http"

	walleterrors "pixwallet/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

// writeError translates any error into a JSON envelope. Non-WalletError
// values (a driver panic, an unexpected nil dereference guard, etc.) are
// mapped to INTERNAL_ERROR so callers never see a raw Go error string.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	walletErr, ok := err.(*walleterrors.WalletError)
	if !ok {
		walletErr = walleterrors.New(walleterrors.InternalError, "internal error")
	}

	errResponse := Error{
		Code:    string(walletErr.Code),
		Message: walletErr.Message,
		Details: walletErr.Details,
	}

	w.WriteHeader(walletErr.HTTPStatus())
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return walleterrors.Newf(walleterrors.InvalidInput, "malformed request body").WithDetails(err.Error())
	}
	return nil
}
