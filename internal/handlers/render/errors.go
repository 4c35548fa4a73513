package render

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/bufete/internal/apperrors"
)

type errorLogger interface {
	Error(msg string, args ...any)
}

type domainError struct {
	err     error
	status  int
	code    string
	message string
}

// Known domain errors; first match wins
var domainErrors = []domainError{
	{apperrors.ErrForbidden, http.StatusForbidden, "forbidden", "Action not allowed"},
	{apperrors.ErrUserAlreadyExists, http.StatusConflict, "user_already_exists", "User already exists"},
	{apperrors.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found"},
	{apperrors.ErrUserInvalid, http.StatusBadRequest, "user_invalid", "User data is invalid"},

	{apperrors.ErrClientNotFound, http.StatusNotFound, "client_not_found", "Client not found"},
	{apperrors.ErrClientAlreadyExists, http.StatusConflict, "client_already_exists", "Client with this tax id already exists"},
	{apperrors.ErrClientInvalid, http.StatusBadRequest, "client_invalid", "Client profile is invalid"},
	{apperrors.ErrClientProfileNeeded, http.StatusBadRequest, "client_profile_needed", "Client profile is required"},
	{apperrors.ErrTaxIDInvalid, http.StatusBadRequest, "tax_id_invalid", "Tax id is invalid"},
	{apperrors.ErrPhoneInvalid, http.StatusBadRequest, "phone_invalid", "Phone number is invalid"},

	{apperrors.ErrInvoiceNotFound, http.StatusNotFound, "invoice_not_found", "Invoice not found"},
	{apperrors.ErrInvoiceNumberTaken, http.StatusConflict, "invoice_number_taken", "Invoice number already taken"},
	{apperrors.ErrInvoiceLocked, http.StatusConflict, "invoice_locked", "Invoice can no longer be edited"},
	{apperrors.ErrInvoiceAlreadyNotified, http.StatusConflict, "invoice_already_notified", "Invoice already notified to the client"},
	{apperrors.ErrInvoiceAlreadyCancelled, http.StatusConflict, "invoice_already_cancelled", "Invoice already cancelled"},
	{apperrors.ErrInvoiceNotCancellable, http.StatusConflict, "invoice_not_cancellable", "Invoice can not be cancelled"},
	{apperrors.ErrInvoiceNotRejectable, http.StatusConflict, "invoice_not_rejectable", "Invoice can not be rejected"},
	{apperrors.ErrInvoiceNoSuccessor, http.StatusConflict, "invoice_no_successor", "Invoice status has no successor"},
	{apperrors.ErrInvoiceStatusConflict, http.StatusConflict, "invoice_status_conflict", "Invoice status changed concurrently, retry"},
	{apperrors.ErrInvoiceTotalMismatch, http.StatusUnprocessableEntity, "invoice_total_mismatch", "Invoice total does not match line items"},
	{apperrors.ErrInvoiceNoItems, http.StatusUnprocessableEntity, "invoice_no_items", "Invoice must have at least one line item"},
	{apperrors.ErrInvoiceInvalid, http.StatusUnprocessableEntity, "invoice_invalid", "Invoice data is invalid"},
}

// Render domain error with its code, anything else as internal error
// Unknown errors are logged, their text never reaches the client
func AppError(w http.ResponseWriter, err error, l errorLogger) {
	for _, de := range domainErrors {
		if errors.Is(err, de.err) {
			response := ErrorResponse{
				Error:   ServiceErrorType,
				Code:    de.code,
				Message: de.message,
			}
			JSONWithStatus(w, response, de.status)
			return
		}
	}

	if l != nil {
		l.Error("request failed", "error", err)
	}
	ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
