package controllers

import (
	"errors"
	"net/http"

	"permledger/services"

	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed ledger request.
type ErrorResponse struct {
	Code     uint32 `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// StatusFor maps a ledger error to its HTTP status.
func StatusFor(lerr *services.LedgerError) int {
	if errors.Is(lerr, services.ErrNotFound) || errors.Is(lerr, services.ErrRoleNotFound) {
		return http.StatusNotFound
	}
	switch lerr.Category {
	case services.CategoryValidation:
		return http.StatusBadRequest
	case services.CategoryState:
		return http.StatusConflict
	case services.CategoryAuthorization:
		return http.StatusForbidden
	case services.CategoryConfiguration:
		return http.StatusPreconditionFailed
	case services.CategoryExternal:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// handleServiceError translates service errors to HTTP responses. Anything
// that is not a ledger error is logged and reported as an internal error.
func handleServiceError(response *restful.Response, logger *zap.Logger, err error) {
	lerr, ok := services.AsLedgerError(err)
	if !ok {
		logger.Error("Unhandled service error", zap.Error(err))
		_ = response.WriteHeaderAndJson(http.StatusInternalServerError, ErrorResponse{Message: "An internal error occurred"}, restful.MIME_JSON)
		return
	}
	_ = response.WriteHeaderAndJson(StatusFor(lerr), ErrorResponse{
		Code:     lerr.Code,
		Name:     lerr.Name,
		Category: string(lerr.Category),
		Message:  err.Error(),
	}, restful.MIME_JSON)
}

func badRequest(response *restful.Response, message string) {
	_ = response.WriteHeaderAndJson(http.StatusBadRequest, ErrorResponse{Message: message}, restful.MIME_JSON)
}

func unauthorized(response *restful.Response) {
	_ = response.WriteHeaderAndJson(http.StatusUnauthorized, ErrorResponse{Message: "Unauthorized: Cannot identify caller"}, restful.MIME_JSON)
}
