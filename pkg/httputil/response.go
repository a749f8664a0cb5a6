package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError maps the application error taxonomy onto HTTP statuses.
// Unknown errors are reported as internal without leaking details.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.Code, Response{
			Success: false,
			Error: &Error{
				Code:    appErr.Code,
				Kind:    string(appErr.Kind),
				Message: appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    http.StatusInternalServerError,
			Message: "internal server error",
		},
	})
}

// RespondWithValidationError reports a request-binding failure.
func RespondWithValidationError(c *gin.Context, err error) {
	RespondWithError(c, apperrors.NewValidation("%v", err))
}
