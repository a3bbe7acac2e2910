package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/npezzotti/go-chatapp/internal/jsonapi"
)

type ApiError struct {
	StatusCode int
	Title      string
	Detail     string
	Err        error
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Detail, e.Err.Error())
	}

	return e.Detail
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// Document renders the error as a JSON:API error envelope. The wrapped
// error is never included.
func (e *ApiError) Document() jsonapi.Document {
	return jsonapi.Document{
		Errors: []jsonapi.ErrorObject{{
			Status: strconv.Itoa(e.StatusCode),
			Title:  e.Title,
			Detail: e.Detail,
		}},
	}
}

func NewUnsupportedContentTypeError(contentType string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnsupportedMediaType,
		Title:      "Unsupported Content-Type",
		Detail:     fmt.Sprintf("Unsupported Content-Type header: %s", contentType),
	}
}

func NewUnsupportedAcceptError(accept string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnsupportedMediaType,
		Title:      "Unsupported Accept header",
		Detail:     fmt.Sprintf("Unsupported Accept header: %s", accept),
	}
}

func NewBadRequestError(detail string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Title:      http.StatusText(http.StatusBadRequest),
		Detail:     detail,
	}
}

func NewUnauthorizedError(detail string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Title:      http.StatusText(http.StatusUnauthorized),
		Detail:     detail,
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Title:      http.StatusText(http.StatusForbidden),
		Detail:     "You do not have access to this conversation",
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Title:      http.StatusText(http.StatusNotFound),
		Detail:     "Conversation not found",
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Title:      http.StatusText(http.StatusInternalServerError),
		Detail:     "An unexpected error occurred",
		Err:        err,
	}
}

const (
	detailNoToken            = "No token provided"
	detailInvalidToken       = "Invalid token"
	detailInvalidCredentials = "Invalid username or password"
)
