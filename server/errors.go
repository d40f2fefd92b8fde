package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"covault/psbt"
)

// Failure kinds surfaced by the signature request lifecycle. Each error is
// terminal for the current operation; the service performs no automatic
// retries. A rejected PSBT requires a fresh submission, a rejected payment a
// fresh invoice.
var (
	ErrServiceNotPurchased = errors.New("service has not been purchased by the caller")
	ErrAlreadyPurchased    = errors.New("service is already sold")
	ErrPaymentHashRequired = errors.New("payment hash is required")
	ErrNotFound            = errors.New("record not found")
	ErrUnauthorized        = errors.New("caller does not own this record")
	ErrNotPending          = errors.New("request is not pending")
	ErrNotSignedYet        = errors.New("request has not been signed yet")
	ErrTimeDelayNotElapsed = errors.New("time delay has not elapsed")
	ErrPaymentNotSettled   = errors.New("payment has not settled yet")
	ErrInvalidTransition   = errors.New("status transition not permitted")
)

// errorKind maps a failure to the stable kind string carried in responses.
func errorKind(err error) string {
	switch {
	case errors.Is(err, psbt.ErrMalformedPsbt):
		return "MalformedPsbt"
	case errors.Is(err, psbt.ErrAlreadySigned):
		return "AlreadySigned"
	case errors.Is(err, psbt.ErrNotSigned):
		return "NotSigned"
	case errors.Is(err, ErrServiceNotPurchased):
		return "ServiceNotPurchased"
	case errors.Is(err, ErrAlreadyPurchased):
		return "AlreadyPurchased"
	case errors.Is(err, ErrPaymentHashRequired):
		return "PaymentHashRequired"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrNotPending):
		return "NotPending"
	case errors.Is(err, ErrNotSignedYet):
		return "NotSignedYet"
	case errors.Is(err, ErrTimeDelayNotElapsed):
		return "TimeDelayNotElapsed"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	default:
		return "Internal"
	}
}

// errorStatus maps a failure to its HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeDelayNotElapsed):
		return http.StatusForbidden
	case errors.Is(err, psbt.ErrMalformedPsbt),
		errors.Is(err, psbt.ErrAlreadySigned),
		errors.Is(err, psbt.ErrNotSigned),
		errors.Is(err, ErrServiceNotPurchased),
		errors.Is(err, ErrAlreadyPurchased),
		errors.Is(err, ErrPaymentHashRequired),
		errors.Is(err, ErrNotPending),
		errors.Is(err, ErrNotSignedYet),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError emits the stable error kind plus a short message naming the
// violated precondition.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorKind(err),
		"message": err.Error(),
	})
}
