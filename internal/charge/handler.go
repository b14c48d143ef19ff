package charge

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
	httperr "github.com/adserve-lab/chargecounter/internal/core/errors"
)

type chargeBody struct {
	CampaignID string `json:"campaign_id"`
	GroupID    string `json:"group_id"`
	Cost       string `json:"cost"`
	RequestID  string `json:"request_id"`
}

// RegisterRoutes mounts the charge endpoint.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	r.POST("/v1/charges", s.ChargeHandler)
}

// ChargeHandler handles HTTP POST requests for charge-for-result.
func (s *Service) ChargeHandler(c *gin.Context) {
	var body chargeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		slog.Warn("Invalid JSON body received", "error", err)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   "Invalid JSON body",
		})
		return
	}

	out, err := s.Charge(c.Request.Context(), Request{
		CampaignID: body.CampaignID,
		GroupID:    body.GroupID,
		Cost:       body.Cost,
		RequestID:  body.RequestID,
	})

	switch {
	case errors.Is(err, counter.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   err.Error(),
		})
		return
	case errors.Is(err, counter.ErrInconsistent):
		slog.Error("Charge left counters inconsistent", "campaign_id", body.CampaignID, "group_id", body.GroupID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInconsistentError,
			Message:   "charge requires out-of-band reconciliation",
		})
		return
	case err != nil:
		slog.Error("Charge failed", "campaign_id", body.CampaignID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "charge failed",
		})
		return
	}

	switch out.Status {
	case counter.StatusCommitted:
		c.JSON(http.StatusOK, gin.H{
			"status":    "committed",
			"new_value": out.Value.String(),
		})
	case counter.StatusRejected:
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpOverLimitError,
			Message:   "charge rejected: " + string(out.Reason),
		})
	default:
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnavailableError,
			Message:   "counter store unavailable, retry with the same request_id",
		})
	}
}
