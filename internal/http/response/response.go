package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr maps err onto a status and code. apierr.Error values carry their
// own; batch sentinels are mapped; anything else is a 500.
func RespondErr(c *gin.Context, fallbackCode string, err error) {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		RespondError(c, ae.Status, ae.Code, ae)
	case errors.Is(err, batch.ErrNotFound):
		RespondError(c, http.StatusNotFound, "batch_not_found", err)
	case errors.Is(err, batch.ErrInvalidArgument), errors.Is(err, batch.ErrInvalidStatus):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, batch.ErrStoreUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, fallbackCode, err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
