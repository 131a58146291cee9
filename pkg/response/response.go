package response

import (
	"net/http"

	"costscan/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error response field names
const (
	FieldError   = "error"
	FieldMessage = "message"
	FieldCode    = "code"
	FieldDetails = "details"
)

// OK writes a 200 JSON response
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Accepted writes a 202 JSON response for asynchronously started work
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// Error writes an error response in the project's JSON shape
func Error(c *gin.Context, statusCode int, message string, err error) {
	body := gin.H{
		FieldError:   true,
		FieldMessage: message,
		FieldCode:    statusCode,
	}

	if err != nil {
		body[FieldDetails] = err.Error()
		logger.Error("API error",
			zap.String("message", message),
			zap.Error(err),
			zap.Int("status_code", statusCode))
	}

	c.JSON(statusCode, body)
}
