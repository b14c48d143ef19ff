package delivery

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
	httperr "github.com/adserve-lab/chargecounter/internal/core/errors"
)

type controlBody struct {
	GroupID string `json:"group_id"`
	Count   int64  `json:"count"`
	Type    string `json:"type"`
}

// RegisterRoutes mounts the delivery-control endpoint.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	r.POST("/v1/delivery-controls", s.ControlHandler)
}

// ControlHandler handles HTTP POST requests for delivery-count control.
func (s *Service) ControlHandler(c *gin.Context) {
	var body controlBody
	if err := c.ShouldBindJSON(&body); err != nil {
		slog.Warn("Invalid JSON body received", "error", err)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   "Invalid JSON body",
		})
		return
	}

	decision, err := s.Control(c.Request.Context(), Request{
		GroupID: body.GroupID,
		Count:   body.Count,
		Type:    body.Type,
	})

	switch {
	case errors.Is(err, counter.ErrUnknownControlType):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnknownControlTypeError,
			Message:   err.Error(),
		})
		return
	case errors.Is(err, counter.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   err.Error(),
		})
		return
	case err != nil:
		slog.Error("Delivery control failed", "group_id", body.GroupID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "delivery control failed",
		})
		return
	}

	out := decision.Outcome
	switch out.Status {
	case counter.StatusCommitted:
		c.JSON(http.StatusOK, gin.H{
			"allowed":   true,
			"new_value": out.Value.String(),
		})
	case counter.StatusRejected:
		c.JSON(http.StatusConflict, gin.H{
			"allowed":    false,
			"error_type": httperr.HttpOverLimitError,
			"reason":     string(out.Reason),
		})
	default:
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnavailableError,
			Message:   "counter store unavailable",
		})
	}
}
