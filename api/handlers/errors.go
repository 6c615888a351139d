package handlers

import (
	"net/http"
	"strconv"

	"example.com/backstage/services/fleet/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	case apperrors.KindInvalidStateTransition, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body and logs server-side failures
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"path": c.FullPath(),
			"code": kind,
		}).Error("Request failed")
	}
	_ = c.Error(err)

	c.JSON(status, gin.H{
		"error": apperrors.MessageOf(err),
		"code":  kind,
	})
}

// badRequest reports a malformed request body or parameter
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  apperrors.KindInvalidArgument,
	})
}

// queryInt reads an integer query parameter, falling back to def when absent
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return v, true
}
