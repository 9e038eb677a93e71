// Package apiresponse writes the JSON envelope every API endpoint returns and
// is the single place service errors become HTTP statuses.
package apiresponse

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Envelope is the stable response shape.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Page wraps list results with pagination metadata.
type Page struct {
	Items      any         `json:"items"`
	Pagination paging.Meta `json:"pagination"`
}

// JSON writes payload with status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Paged writes a 200 envelope carrying one page of items.
func Paged[T any](w http.ResponseWriter, message string, result paging.Result[T]) {
	items := result.Items
	if items == nil {
		items = []T{}
	}
	OK(w, message, Page{Items: items, Pagination: result.Meta})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, message string, fields ...string) {
	JSON(w, status, Envelope{Success: false, Message: message, Errors: fields})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadRequest, apperr.KindInvalidTransition:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error translates err into a response. Internal causes are logged with the
// request id and never written to the client.
func Error(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err)
	}
	status := StatusFor(appErr.Kind)
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Fail(w, status, "Internal Server Error")
		return
	}
	Fail(w, status, appErr.Message, appErr.Fields...)
}

// Decode reads a JSON body into dst, rejecting malformed payloads.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.BadRequest("Request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.BadRequest("Invalid JSON payload")
	}
	return nil
}

// PageParams reads page and limit query parameters.
func PageParams(r *http.Request) paging.Request {
	q := r.URL.Query()
	return paging.Request{
		Page:  atoi(q.Get("page")),
		Limit: atoi(q.Get("limit")),
	}.Normalize()
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
