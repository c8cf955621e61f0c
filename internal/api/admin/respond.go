// Package admin implements the administrative API surface: user management,
// product state, subscription grants, license key generation, loader binary
// uploads, and dashboard statistics. All routes in this package sit behind
// AuthMiddleware plus RequireAdmin.
package admin

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
