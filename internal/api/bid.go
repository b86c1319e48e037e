package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/instabidslabs/instabids-cloud/internal/domain/bid"
	"github.com/instabidslabs/instabids-cloud/pkg/snowflake"
)

// AcceptBid drives the marketplace's flagship write: accept the bid, reject
// competitors, and enqueue the events that start the post-acceptance
// workflow. The response reflects only the local write; contract, payment,
// and notification follow eventually via the relay.
func (r *Router) AcceptBid(c *gin.Context) {
	bidID, err := snowflake.ParseID(c.Param("bid_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid id"})
		return
	}

	accepted, err := r.bidSvc.AcceptBid(c.Request.Context(), bidID)
	if err != nil {
		switch {
		case errors.Is(err, bid.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "bid not found"})
		case errors.Is(err, bid.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			r.logger.Error("accept_bid_failed", zap.Error(err), zap.Int64("bid_id", bidID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bid_id":     accepted.ID,
		"project_id": accepted.ProjectID,
		"status":     accepted.Status,
	})
}

type paymentWebhookPayload struct {
	EscrowID string `json:"escrow_id" binding:"required"`
	Status   string `json:"status" binding:"required"`
	Reason   string `json:"reason"`
}

// PaymentWebhook receives escrow status callbacks from the payment gateway.
// The payment domain flips its row and enqueues the integration event that
// resumes any waiting workflow instance.
func (r *Router) PaymentWebhook(c *gin.Context) {
	var payload paymentWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := r.paymentSvc.ConfirmFromGateway(c.Request.Context(), payload.EscrowID, payload.Status, payload.Reason); err != nil {
		r.logger.Error("payment_webhook_failed", zap.Error(err), zap.String("escrow_id", payload.EscrowID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
