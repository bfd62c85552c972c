package apierr

import (
	"errors"
	"net/http"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
)

// Map translates a domain error into the HTTP status and machine-readable
// code the boundary responds with. Unrecognized errors are a 500.
func Map(err error) (status int, code string) {
	var (
		validation *fnaerr.ValidationError
		notFound   *fnaerr.NotFoundError
		comparison *fnaerr.ComparisonInvalidError
		claimed    *fnaerr.AlreadyClaimedError
		timeout    *fnaerr.ProcessingTimeoutError
		external   *fnaerr.ExternalServiceError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_failed"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &comparison):
		return http.StatusUnprocessableEntity, "comparison_invalid"
	case errors.As(err, &claimed):
		return http.StatusConflict, "already_claimed"
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, "processing_timeout"
	case errors.As(err, &external):
		return http.StatusBadGateway, "external_service_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
