package checkout

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/provider"
	"github.com/atlaspay/backend/pkg/response"
)

// CreateRequest is the body for POST /checkout.
type CreateRequest struct {
	VariantID  string            `json:"variant_id" binding:"required"`
	CustomData map[string]string `json:"custom_data"`
	TimeSlots  json.RawMessage   `json:"time_slots"`
}

// Handler serves checkout creation.
type Handler struct {
	initiator *Initiator
	logger    *zap.Logger
}

// NewHandler creates a checkout handler.
func NewHandler(initiator *Initiator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{initiator: initiator, logger: logger}
}

// Create handles POST /checkout.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequestCode(c, "invalid request: "+err.Error(), "INVALID_REQUEST")
		return
	}

	result, err := h.initiator.Create(c.Request.Context(), req.VariantID, req.CustomData, req.TimeSlots)
	if err != nil {
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			h.logger.Warn("provider rejected checkout",
				zap.String("variant_id", req.VariantID),
				zap.Int("provider_status", apiErr.StatusCode))
			response.BadRequestCode(c, "provider rejected checkout", "PROVIDER_REJECTED")
			return
		}
		h.logger.Error("checkout creation failed", zap.String("variant_id", req.VariantID), zap.Error(err))
		response.BadGateway(c, "payment provider unavailable")
		return
	}
	response.Created(c, result)
}
