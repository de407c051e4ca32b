package httpx

import (
	"errors"
	"net/http"

	"github.com/analytics-hub/authhub/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Authorization denials never travel through here; a denial is a Decision
// value, not an error.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrGrantNotFound),
		errors.Is(err, shared.ErrUnknownRole),
		errors.Is(err, shared.ErrUnknownPermission):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrGrantAlreadyExists):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrGrantNotActive),
		errors.Is(err, shared.ErrApprovalPending),
		errors.Is(err, shared.ErrSystemRole):
		Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
