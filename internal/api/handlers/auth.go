package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/identity"
	"github.com/irfndi/coinsight-go/internal/middleware"
	"github.com/irfndi/coinsight-go/internal/models"
)

// IdentityService is the identity collaborator as the API uses it.
type IdentityService interface {
	SignUp(ctx context.Context, email, password, displayName string) (models.Session, error)
	SignIn(ctx context.Context, email, password string) (models.Session, error)
	SignInWithProvider(name string) (string, error)
	SignOut(ctx context.Context, token string) error
	CurrentSession(ctx context.Context, token string) (*models.Session, error)
	ResetPassword(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
	UpdatePassword(ctx context.Context, userID, newPassword string) error
	MinPasswordLength() int
}

type AuthHandler struct {
	identity IdentityService
}

func NewAuthHandler(identity IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

type RegisterRequest struct {
	Email                string `json:"email" binding:"required"`
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
	DisplayName          string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type ResetPasswordRequest struct {
	Token                string `json:"token" binding:"required"`
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
}

type ChangePasswordRequest struct {
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
}

// Register creates an account. Password rules are checked before the
// identity service is contacted.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := identity.ValidatePasswordPair(req.Password, req.PasswordConfirmation, h.identity.MinPasswordLength()); err != nil {
		respondError(c, err)
		return
	}

	session, err := h.identity.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.identity.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// OAuth returns the provider's authorize URL, or redirects to it when
// ?redirect=true.
func (h *AuthHandler) OAuth(c *gin.Context) {
	redirectURL, err := h.identity.SignInWithProvider(c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, redirectURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_url": redirectURL})
}

// ForgotPassword always answers 202 for well-formed emails so accounts
// cannot be probed.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.identity.ResetPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reset_requested"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := identity.ValidatePasswordPair(req.Password, req.PasswordConfirmation, h.identity.MinPasswordLength()); err != nil {
		respondError(c, err)
		return
	}
	if err := h.identity.CompletePasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.identity.SignOut(c.Request.Context(), middleware.Token(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := identity.ValidatePasswordPair(req.Password, req.PasswordConfirmation, h.identity.MinPasswordLength()); err != nil {
		respondError(c, err)
		return
	}
	if err := h.identity.UpdatePassword(c.Request.Context(), currentUser(c), req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_updated"})
}

func (h *AuthHandler) Session(c *gin.Context) {
	session, err := h.identity.CurrentSession(c.Request.Context(), middleware.Token(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}
