// Package handlers implements the coinsight HTTP API on gin.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/middleware"
	"github.com/irfndi/coinsight-go/internal/observability"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondError maps err through the error taxonomy and writes the
// translated message in the caller's language.
func respondError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	resp := ErrorResponse{Error: utils.UserMessage(language(c), err)}

	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		resp.Field = validationErr.Field
	}
	if status >= http.StatusInternalServerError {
		middleware.RecordError(c, err, resp.Error)
		observability.CaptureRequestError(c, err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}

// storageError wraps untyped repository failures as storage RemoteErrors.
// Typed errors pass through unchanged.
func storageError(err error) error {
	var notFound *utils.NotFoundError
	var validationErr *utils.ValidationError
	var remoteErr *utils.RemoteError
	if errors.As(err, &notFound) || errors.As(err, &validationErr) || errors.As(err, &remoteErr) {
		return err
	}
	return utils.NewRemoteError("storage", utils.MsgServiceUnavailable, err)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, utils.NewValidationErrorf("invalid request body: %v", err))
		return false
	}
	return true
}

// language picks tr or en from ?lang= or Accept-Language.
func language(c *gin.Context) string {
	if lang := c.Query("lang"); lang != "" {
		return lang
	}
	return c.GetHeader("Accept-Language")
}

func currentUser(c *gin.Context) string {
	return middleware.UserID(c)
}
