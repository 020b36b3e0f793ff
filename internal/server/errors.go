package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"naija-nutri-hub/backend/internal/account/service"
	"naija-nutri-hub/backend/internal/notify"
	"naija-nutri-hub/backend/internal/otp"
	"naija-nutri-hub/backend/internal/passwordreset"
	"naija-nutri-hub/backend/internal/ratelimit"
)

// statusFor maps service errors to an HTTP status and a client-safe message.
// Unknown errors are 500 with a generic message; the cause is only logged.
func statusFor(err error) (int, string) {
	var policyErr *passwordreset.PolicyError
	switch {
	case errors.As(err, &policyErr):
		return http.StatusBadRequest, policyErr.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrDuplicateAccount):
		return http.StatusConflict, service.ErrDuplicateAccount.Error()
	case errors.Is(err, otp.ErrIncorrectOTP):
		return http.StatusBadRequest, "Incorrect OTP."
	case errors.Is(err, otp.ErrOTPExpired):
		return http.StatusBadRequest, "OTP has expired. Request a new one."
	case errors.Is(err, passwordreset.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "Invalid or expired reset token."
	case errors.Is(err, ratelimit.ErrTooManyRequests):
		return http.StatusTooManyRequests, "Too many requests. Try again later."
	case errors.Is(err, service.ErrAccountNotVerified):
		return http.StatusForbidden, "Account not verified."
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials."
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Account not found."
	case errors.Is(err, notify.ErrDeliveryFailure):
		return http.StatusServiceUnavailable, "Could not send email. Please retry."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

func (h *handlers) writeError(c *gin.Context, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.ErrorContext(c.Request.Context(), "request failed", "route", c.FullPath(), "error", err)
	}
	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) && limited.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
	}
	c.JSON(code, gin.H{"error": msg})
}
