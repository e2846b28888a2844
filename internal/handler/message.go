package handler

import (
	"errors"
	"net/http"

	"gowa-sessions/internal/service"

	"github.com/labstack/echo/v4"
)

// Request body untuk send message
type SendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// POST /api/clients/:clientId/send
func SendMessage(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := c.Param("clientId")

		var req SendMessageRequest
		if err := c.Bind(&req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
		if req.To == "" || req.Message == "" {
			return ErrorResponse(c, http.StatusBadRequest, "Field 'to' and 'message' are required", "VALIDATION_ERROR", "")
		}

		messageID, err := m.SendMessage(c.Request().Context(), clientID, req.To, req.Message)
		if err != nil {
			if errors.Is(err, service.ErrNotConnected) {
				return ErrorResponse(c, http.StatusBadRequest, "Client is not connected", "NOT_CONNECTED", "Initialize the client and complete pairing first")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to send message", "SEND_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Message sent successfully", map[string]interface{}{
			"messageId": messageID,
			"to":        req.To,
		})
	}
}
