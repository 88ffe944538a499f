package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"SupplyLedger/internal/models"
	"SupplyLedger/internal/services"
)

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name"
	case errors.Is(err, services.ErrDuplicateAsset):
		return http.StatusConflict, "duplicate_asset"
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, services.ErrTimedOut):
		return http.StatusAccepted, "timed_out"
	case errors.Is(err, services.ErrTransactionFailed):
		return http.StatusUnprocessableEntity, "transaction_failed"
	case errors.Is(err, services.ErrNetwork):
		return http.StatusBadGateway, "network_error"
	case errors.Is(err, services.ErrEncoding):
		return http.StatusInternalServerError, "encoding_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.JSON(status, models.ErrorResponse{Code: code, Message: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Code: "invalid_request", Message: err.Error()})
}

// writeResult replies with rec on success. A submitted transaction that
// failed or timed out still returns its persisted record; an unknown
// outcome maps to 202 like a timeout, never to 422.
func writeResult[T any](c *gin.Context, status int, rec *T, err error) {
	if err == nil {
		c.JSON(status, rec)
		return
	}
	if rec == nil {
		writeError(c, err)
		return
	}
	code, name := errorStatus(err)
	c.JSON(code, models.ErrorResponse{Code: name, Message: err.Error(), Record: rec})
}
