package api

import (
	"net/http"

	"github.com/arencloud/bucketgw/internal/gateway"
	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/gin-gonic/gin"
)

// statusByKind is the single place gateway failures become HTTP codes.
// Ownership failures look exactly like missing buckets.
var statusByKind = map[gateway.Kind]int{
	gateway.KindInvalidRequest: http.StatusBadRequest,
	gateway.KindOwnership:      http.StatusNotFound,
	gateway.KindNotFound:       http.StatusNotFound,
	gateway.KindConflict:       http.StatusConflict,
	gateway.KindInfrastructure: http.StatusInternalServerError,
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, log logging.Logger, err error) {
	kind := gateway.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if kind == gateway.KindOwnership {
		kind = gateway.KindNotFound
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "route", c.FullPath(), "err", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: kind.String(), Message: gateway.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: gateway.KindInvalidRequest.String(), Message: msg})
}
