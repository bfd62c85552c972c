package fnaerr

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain error taxonomy. Callers branch with errors.As; the HTTP layer maps
// each type onto a status code.

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func Validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// ComparisonInvalidError rejects delta computation over analyses that do not
// belong to the same entity or are not in chronological order.
type ComparisonInvalidError struct {
	Reason string
}

func (e *ComparisonInvalidError) Error() string {
	return fmt.Sprintf("comparison invalid: %s", e.Reason)
}

func ComparisonInvalid(format string, args ...interface{}) *ComparisonInvalidError {
	return &ComparisonInvalidError{Reason: fmt.Sprintf(format, args...)}
}

// AlreadyClaimedError signals a lost claim race: the report was not PENDING
// at the moment of the conditional update.
type AlreadyClaimedError struct {
	ReportID uuid.UUID
	Status   string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("report %s already claimed (status=%s)", e.ReportID, e.Status)
}

func AlreadyClaimed(reportID uuid.UUID, status string) *AlreadyClaimedError {
	return &AlreadyClaimedError{ReportID: reportID, Status: status}
}

type ProcessingTimeoutError struct {
	ReportID uuid.UUID
	Limit    time.Duration
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("processing of report %s exceeded %s", e.ReportID, e.Limit)
}

func ProcessingTimeout(reportID uuid.UUID, limit time.Duration) *ProcessingTimeoutError {
	return &ProcessingTimeoutError{ReportID: reportID, Limit: limit}
}

type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func ExternalService(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}
