package errors

import (
	stderrors "errors"
	"net/http"
)

// MapToHTTPStatus translates service errors into HTTP status codes so the
// handlers never leak internals to the client.
func MapToHTTPStatus(err error) int {
	switch {
	case stderrors.Is(err, ErrClientExists):
		return http.StatusConflict
	case stderrors.Is(err, ErrWeakSecret):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrInvalidCredentials), stderrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
