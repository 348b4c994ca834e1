package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spigell/talentflow/internal/qna"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

const (
	codeBadRequest = "bad_request"
	codeValidation = "validation_error"
	codeNotFound   = "not_found"
	codeInternal   = "internal_error"
)

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// respondErr maps domain errors onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	var verr *qna.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(c, http.StatusBadRequest, codeValidation, err)
	case errors.Is(err, qna.ErrNotFound):
		respondError(c, http.StatusNotFound, codeNotFound, err)
	default:
		respondError(c, http.StatusInternalServerError, codeInternal, err)
	}
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
