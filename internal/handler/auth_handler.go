package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slotwise/timetable-merge-api/internal/dto"
	"github.com/slotwise/timetable-merge-api/internal/service"
	appErrors "github.com/slotwise/timetable-merge-api/pkg/errors"
	"github.com/slotwise/timetable-merge-api/pkg/response"
)

// AuthHandler exposes token issuance for service accounts.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Token godoc
// @Summary Issue an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body dto.TokenRequest true "Client credentials"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	resp, err := h.auth.IssueToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
