package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"gowa-sessions/internal/model"
	"gowa-sessions/internal/service"

	"github.com/labstack/echo/v4"
)

//**********************************
//
// CLIENT SESSION LIFECYCLE
//
//**********************************

// Generate random client ID kalau caller tidak bawa sendiri.
func generateClientID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

type createClientRequest struct {
	ClientID   string `json:"clientId"`
	ClientType string `json:"clientType"`
}

// POST /api/clients
func CreateClient(store *model.SessionStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createClientRequest
		if err := c.Bind(&req); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "BAD_REQUEST", err.Error())
		}

		clientID := strings.TrimSpace(req.ClientID)
		if clientID == "" {
			clientID = generateClientID()
		}

		clientType := model.ClientType(req.ClientType)
		switch clientType {
		case "":
			clientType = model.ClientTypeChatbot
		case model.ClientTypeChatbot, model.ClientTypeTranslate:
		default:
			return ErrorResponse(c, http.StatusBadRequest, "Unknown clientType", "INVALID_CLIENT_TYPE", req.ClientType)
		}

		if err := store.Create(c.Request().Context(), clientID, clientType); err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to create client", "DB_INSERT_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Client created", map[string]interface{}{
			"clientId":   clientID,
			"clientType": string(clientType),
			"status":     string(model.StatusInitialized),
			"nextStep":   "Call POST /api/clients/:clientId/initialize to open the session",
		})
	}
}

// POST /api/clients/:clientId/initialize
func InitializeClient(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := c.Param("clientId")

		err := m.InitializeClient(c.Request().Context(), clientID)
		if err != nil {
			if errors.Is(err, service.ErrClientNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", "")
			}
			if errors.Is(err, service.ErrAlreadyConnected) {
				return ErrorResponse(c, http.StatusConflict, "Client already has a live session", "ALREADY_CONNECTED", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to initialize client", "INITIALIZE_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Session initializing", map[string]interface{}{
			"clientId": clientID,
			"message":  "QR codes and status changes will be published on the client channel",
		})
	}
}

// POST /api/clients/:clientId/disconnect
func DisconnectClient(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := c.Param("clientId")

		if err := m.DisconnectClient(c.Request().Context(), clientID); err != nil {
			if errors.Is(err, service.ErrClientNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect client", "DISCONNECT_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Client disconnected", map[string]interface{}{
			"clientId": clientID,
		})
	}
}

// POST /api/clients/:clientId/logout
func LogoutClient(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := c.Param("clientId")

		if err := m.LogoutClient(c.Request().Context(), clientID); err != nil {
			if errors.Is(err, service.ErrClientNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to logout client", "LOGOUT_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Client logged out", map[string]interface{}{
			"clientId": clientID,
		})
	}
}

// GET /api/clients/:clientId
func GetClientStatus(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := c.Param("clientId")

		resp, err := m.ClientStatus(c.Request().Context(), clientID)
		if err != nil {
			if errors.Is(err, service.ErrClientNotFound) {
				return ErrorResponse(c, http.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", "")
			}
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to get client", "GET_CLIENT_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Client status retrieved", resp)
	}
}

// GET /api/clients
func ListClients(m *service.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		clients, err := m.ListClients(c.Request().Context())
		if err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to list clients", "LIST_FAILED", err.Error())
		}

		return SuccessResponse(c, http.StatusOK, "Clients retrieved", map[string]interface{}{
			"total":   len(clients),
			"clients": clients,
		})
	}
}
