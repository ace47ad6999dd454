package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/payments"
	"github.com/irfndi/coinsight-go/internal/utils"
)

const maxWebhookBody = 1 << 20

// PaymentsService is the payments collaborator as the API uses it.
type PaymentsService interface {
	Plans() []models.Plan
	CreateCheckout(ctx context.Context, userID, planID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type BillingHandler struct {
	payments PaymentsService
}

func NewBillingHandler(payments PaymentsService) *BillingHandler {
	return &BillingHandler{payments: payments}
}

type CheckoutRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

func (h *BillingHandler) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.payments.Plans()})
}

func (h *BillingHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	url, err := h.payments.CreateCheckout(c.Request.Context(), currentUser(c), req.PlanID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

// Webhook verifies the X-Signature header against the raw body before
// applying the event.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, utils.NewValidationErrorf("failed to read webhook body: %v", err))
		return
	}

	err = h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("X-Signature"))
	if errors.Is(err, payments.ErrInvalidSignature) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
