package api

import (
	"fmt"
	"net/http"
	"strings"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, message string) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    message,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, lower(http.StatusText(http.StatusBadRequest)))
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, lower(http.StatusText(http.StatusNotFound)))
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, lower(http.StatusText(http.StatusUnauthorized)))
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, lower(http.StatusText(http.StatusForbidden)))
}

func NewMethodNotAllowedError() *ApiError {
	return newApiError(http.StatusMethodNotAllowed, lower(http.StatusText(http.StatusMethodNotAllowed)))
}
