package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every admin endpoint returns.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Status: status, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string, err error) {
	res := Response{Status: status, Message: message}
	if err != nil {
		res.Error = err.Error()
	}
	c.JSON(status, res)
}

func noRoute(c *gin.Context) {
	respondError(c, http.StatusNotFound, "Route not found", nil)
}
