package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the JSON envelope of every dashboard response.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends 200 with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Fail sends status with an error message and aborts the handler chain.
func Fail(c *gin.Context, status int, err string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Error: err})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	Fail(c, http.StatusUnauthorized, err)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	Fail(c, http.StatusForbidden, err)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	Fail(c, http.StatusNotFound, err)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	Fail(c, http.StatusServiceUnavailable, err)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	Fail(c, http.StatusInternalServerError, err)
}
