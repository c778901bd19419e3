package stock

import (
	"errors"

	"storefront-be/internal/apperr"

	"github.com/lib/pq"
)

// SQLSTATEs raised by the reservation procedures.
const (
	codeInsufficientStock = "SR001"
	codeNotFound          = "SR002"
	codeExpired           = "SR003"
	codeInvalidState      = "SR004"

	codeInvalidTextRepresentation = "22P02"
)

// mapError turns a procedure failure into the error taxonomy, keeping the
// procedure's message for the caller.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return apperr.Database(err, "%s", op)
	}

	switch string(pqErr.Code) {
	case codeInsufficientStock:
		return apperr.Wrap(apperr.KindInsufficientStock, err, "%s", pqErr.Message)
	case codeNotFound:
		return apperr.Wrap(apperr.KindNotFound, err, "%s", pqErr.Message)
	case codeInvalidTextRepresentation:
		return apperr.Wrap(apperr.KindNotFound, err, "%s: malformed id", op)
	case codeExpired:
		return apperr.Wrap(apperr.KindExpired, err, "%s", pqErr.Message)
	case codeInvalidState:
		return apperr.Wrap(apperr.KindValidation, err, "%s", pqErr.Message)
	default:
		return apperr.Database(err, "%s", op)
	}
}
