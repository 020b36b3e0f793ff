package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"naija-nutri-hub/backend/internal/account/service"
	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/notify"
	"naija-nutri-hub/backend/internal/server/middleware"
)

// ReadinessChecker reports whether the service can serve traffic.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Deps holds the dependencies of the HTTP API.
type Deps struct {
	// AppName is shown on the root banner.
	AppName string
	// Accounts implements every account flow. Required.
	Accounts *service.AccountService
	// Tokens validates Bearer tokens on protected routes. Required.
	Tokens middleware.TokenValidator
	// Outbox exposes sent mail at GET /dev/outbox. Set only in dev mail mode.
	Outbox *notify.Outbox
	// Readiness backs GET /readyz. If nil, the route always reports ready.
	Readiness ReadinessChecker
	Log       *slog.Logger
}

// NewRouter returns the gin engine serving the account API.
//
// Routes:
//   - POST /sign-up, /verify, /resend-otp, /login
//   - POST /password/forgot, /password/reset and GET /password/reset/check
//   - GET /user/me (Bearer)
//   - GET /, /healthz, /readyz and, in dev mail mode, /dev/outbox
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.AppName == "" {
		d.AppName = "Naija Nutri Hub"
	}
	h := &handlers{accounts: d.Accounts, outbox: d.Outbox, log: d.Log}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog(d.Log))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the " + d.AppName + " API"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.Readiness != nil {
			if err := d.Readiness.Ready(c.Request.Context()); err != nil {
				d.Log.WarnContext(c.Request.Context(), "readiness check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/sign-up", h.signup)
	r.POST("/verify", h.verify)
	r.POST("/resend-otp", h.resendOTP)
	r.POST("/login", h.login)
	r.POST("/password/forgot", h.forgotPassword)
	r.GET("/password/reset/check", h.checkResetToken)
	r.POST("/password/reset", h.resetPassword)

	authed := r.Group("")
	authed.Use(middleware.BearerAuth(d.Tokens))
	authed.GET("/user/me", h.me)

	if d.Outbox != nil {
		r.GET("/dev/outbox", h.devOutbox)
	}
	return r
}
