package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeInvalidID           = "INVALID_ID"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodePastPointOfNoReturn = "PAST_POINT_OF_NO_RETURN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// SendBadRequest sends a 400 Bad Request error
func SendBadRequest(c *gin.Context, code, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	c.JSON(http.StatusBadRequest, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: det,
	})
}

// SendNotFound sends a 404 Not Found error
func SendNotFound(c *gin.Context, code, message string) {
	c.JSON(http.StatusNotFound, entities.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// SendConflict sends a 409 Conflict error
func SendConflict(c *gin.Context, code, message string) {
	c.JSON(http.StatusConflict, entities.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// SendInternalError sends a 500 Internal Server Error
func SendInternalError(c *gin.Context, code, message string) {
	c.JSON(http.StatusInternalServerError, entities.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// SendSuccess sends a 200 OK response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendAccepted sends a 202 Accepted response with data
func SendAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// SendDomainError maps a domain error onto the HTTP error envelope
func SendDomainError(c *gin.Context, err error) {
	switch {
	case apperrors.IsInvalidRequest(err):
		details := map[string]interface{}{}
		if kind := apperrors.Kind(err); kind != "" {
			details["error_kind"] = string(kind)
		}
		SendBadRequest(c, ErrCodeValidationError, err.Error(), details)
	case apperrors.IsNotFound(err):
		SendNotFound(c, ErrCodeNotFound, err.Error())
	case errors.Is(err, apperrors.ErrPastPointOfNoReturn):
		SendConflict(c, ErrCodePastPointOfNoReturn, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		SendConflict(c, ErrCodeConflict, err.Error())
	default:
		SendInternalError(c, ErrCodeInternalError, err.Error())
	}
}
