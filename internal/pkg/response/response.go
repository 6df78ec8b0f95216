// Package response writes the JSON envelope used by every endpoint.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/mailrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Fail always answers HTTP 200; the envelope code carries the failure.
func Fail(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, codeErr{code: uint32(code), msg: message})
}

// Error maps a pipeline error onto an errcode and writes it.
func Error(c *gin.Context, err error) {
	code, msg := Classify(err)
	Fail(c, code, msg)
}

func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, appErr.ErrUnknownClass):
		return errcode.ErrUnknownClass, "unknown document class"
	case errors.Is(err, appErr.ErrNotFound):
		return errcode.ErrNotFound, "not found"
	case errors.Is(err, appErr.ErrInvalid):
		return errcode.ErrInvalid, "invalid request"
	case errors.Is(err, appErr.ErrDimensionMismatch):
		return errcode.ErrDimensionMismatch, "embedding dimension mismatch"
	case errors.Is(err, appErr.ErrUnavailable):
		return errcode.ErrAIUnavailable, "ai not configured"
	case errors.Is(err, appErr.ErrConfig):
		return errcode.ErrConfig, "configuration error"
	case errors.Is(err, appErr.ErrTransient):
		return errcode.ErrTransient, "upstream unavailable, retry later"
	default:
		return errcode.ErrInternal, "internal error"
	}
}
