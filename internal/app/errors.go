package app

import (
	"errors"
	"fmt"
	"net/http"

	"dokflow/api/internal/export"
	"dokflow/api/internal/storage"
	"dokflow/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(details map[string]string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", details)
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

// mapError turns any error into a response. Outside production the raw
// error text of unclassified failures is returned as details.
func mapError(err error, production bool) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case store.IsForeignKeyViolation(err):
		return http.StatusNotFound, "NOT_FOUND", "Referenced record not found", nil
	case errors.Is(err, storage.ErrEmptyFile), errors.Is(err, storage.ErrFileTooLarge):
		return http.StatusBadRequest, "INVALID_FILE", err.Error(), nil
	case errors.Is(err, export.ErrContentUnavailable):
		return http.StatusUnprocessableEntity, "EXPORT_CONTENT_UNAVAILABLE", "Document content could not be rendered", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export runtime not available", nil
	}
	if production {
		return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", err.Error()
}
