package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/gin-gonic/gin"
)

const (
	codeInvalidRequest = "invalid_request"
	codeInternal       = "internal_error"
	codeTimeout        = "timeout"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{target: safari.ErrValidation, status: http.StatusBadRequest, code: codeInvalidRequest},
	{target: safari.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{target: safari.ErrCapacityExceeded, status: http.StatusConflict, code: "capacity_exceeded"},
	{target: safari.ErrAlreadyExpired, status: http.StatusGone, code: "already_expired"},
	{target: safari.ErrNotConfirmed, status: http.StatusConflict, code: "not_confirmed"},
	{target: safari.ErrFullyAssigned, status: http.StatusConflict, code: "fully_assigned"},
	{target: safari.ErrVehicleFull, status: http.StatusConflict, code: "vehicle_full"},
	{target: safari.ErrRunLocked, status: http.StatusLocked, code: "run_locked"},
	{target: safari.ErrUnavailable, status: http.StatusConflict, code: "unavailable"},
	{target: safari.ErrMissingDriver, status: http.StatusUnprocessableEntity, code: "missing_driver"},
	{target: safari.ErrNotReady, status: http.StatusUnprocessableEntity, code: "not_ready"},
	{target: safari.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_transition"},
	{target: safari.ErrAlreadyInState, status: http.StatusConflict, code: "already_in_state"},
	{target: safari.ErrConflict, status: http.StatusServiceUnavailable, code: "conflict"},
}

// statusForError maps a service error to an HTTP status and a stable code.
func statusForError(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, codeTimeout
	}
	return http.StatusInternalServerError, codeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
