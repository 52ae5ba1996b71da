package api

import (
	"alcyxob/fitness-billing/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvoiceAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, service.ErrPlanNotInHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrStatementUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error. Internal errors are logged and
// replaced by fallback so storage details do not leak to callers.
func respondError(c *gin.Context, logger logrus.FieldLogger, err error, fallback string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		abortWithError(c, code, fallback)
		return
	}
	abortWithError(c, code, err.Error())
}
