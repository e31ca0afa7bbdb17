package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// staticHandler serves files under root for unmatched GET and HEAD requests.
// gin.Dir disables directory listings; http.FileServer rejects paths escaping root.
func staticHandler(root string) gin.HandlerFunc {
	fileServer := http.FileServer(gin.Dir(root, false))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Header("Permissions-Policy", "camera=*")
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
