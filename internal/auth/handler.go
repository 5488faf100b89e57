package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atlaspay/backend/config"
	"github.com/atlaspay/backend/pkg/response"
	"github.com/atlaspay/backend/pkg/utils"
)

// TokenRequest is the body for POST /auth/token (client-credentials grant).
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// Handler serves service-token issuance.
type Handler struct {
	clients map[string]config.ClientCredential
	jwt     *JWTService
	logger  *zap.Logger
}

// NewHandler creates an auth handler from the configured client credentials.
func NewHandler(clients []config.ClientCredential, jwtService *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]config.ClientCredential, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	return &Handler{clients: byID, jwt: jwtService, logger: logger}
}

// Token handles POST /auth/token. Unknown client and wrong secret are
// indistinguishable to the caller.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequestCode(c, "invalid request: "+err.Error(), "INVALID_REQUEST")
		return
	}

	cred, ok := h.clients[req.ClientID]
	if !ok || !utils.CheckSecret(req.ClientSecret, cred.SecretHash) {
		h.logger.Warn("token request rejected", zap.String("client_id", req.ClientID))
		response.UnauthorizedCode(c, "invalid client credentials", "INVALID_CLIENT")
		return
	}

	token, err := h.jwt.Generate(cred.ID, cred.Scope)
	if err != nil {
		h.logger.Error("token generation failed", zap.String("client_id", cred.ID), zap.Error(err))
		response.Internal(c, "token generation failed")
		return
	}
	response.OK(c, gin.H{"access_token": token, "token_type": "Bearer"})
}
