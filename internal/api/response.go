// response.go defines the JSON envelope shared by every storefront response.
// Clients rely on the shape being uniform: success tells them whether to read
// data, message is always human-readable, and banned (when present) forces a
// logout on the client side.
package api

import "github.com/gin-gonic/gin"

func respondData(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
