package handler

import "github.com/labstack/echo/v4"

// SuccessResponse envelope sukses standar API.
func SuccessResponse(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorResponse envelope error standar API.
func ErrorResponse(c echo.Context, code int, message, errCode, detail string) error {
	return c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
		"error": map[string]string{
			"code":   errCode,
			"detail": detail,
		},
	})
}
