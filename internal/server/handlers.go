package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"naija-nutri-hub/backend/internal/account/service"
	"naija-nutri-hub/backend/internal/notify"
	"naija-nutri-hub/backend/internal/server/middleware"
	"naija-nutri-hub/backend/internal/user/domain"
)

type handlers struct {
	accounts *service.AccountService
	outbox   *notify.Outbox
	log      *slog.Logger
}

type userView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserView(u *domain.User) userView {
	return userView{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

type signupRequest struct {
	Email     string `json:"email" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *handlers) signup(c *gin.Context) {
	var req signupRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.Signup(c.Request.Context(), service.SignupInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	msg := "Account created. A verification code has been sent to your email."
	if !res.OTPIssued {
		msg = "Account created, but the verification email could not be sent. Request a new code."
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    msg,
		"otp_issued": res.OTPIssued,
		"user":       toUserView(res.User),
	})
}

type verifyRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

func (h *handlers) verify(c *gin.Context) {
	var req verifyRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.VerifyAccount(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": res.Verified, "message": "Account verified successfully."})
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *handlers) resendOTP(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.ResendOTP(c.Request.Context(), req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	body := gin.H{"message": res.Message}
	if !res.ExpiresAt.IsZero() {
		body["expires_at"] = res.ExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": res.AccessToken,
		"token_type":   "bearer",
		"expires_at":   res.ExpiresAt,
		"user":         toUserView(res.User),
	})
}

func (h *handlers) forgotPassword(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": res.Message})
}

func (h *handlers) checkResetToken(c *gin.Context) {
	expiresAt, err := h.accounts.CheckResetToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "expires_at": expiresAt})
}

type resetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *handlers) resetPassword(c *gin.Context) {
	var req resetRequest
	if !bind(c, &req) {
		return
	}
	if err := h.accounts.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset. You can now log in."})
}

func (h *handlers) me(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	u, err := h.accounts.Me(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserView(u))
}

type outboxMessage struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (h *handlers) devOutbox(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}
	msgs := h.outbox.Messages(c.Request.Context(), email)
	out := make([]outboxMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, outboxMessage{Subject: m.Subject, Text: m.Text})
	}
	c.JSON(http.StatusOK, gin.H{"email": domain.NormalizeEmail(email), "messages": out})
}

// bind decodes the JSON body into req and writes 400 on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}
