// audit.go provides Gin middleware that records authenticated requests to the
// audit log.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/audit"
	"github.com/Daziusm/anonbuci-sub001/internal/config"
	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/safego"
)

// AuditMiddleware records authenticated requests to the audit log after the
// handler completes. By default only mutating requests (non-GET) are logged;
// cfg.LogReadOperations extends that to reads. The write is asynchronous —
// audit logging must never add latency to the request path. Entries are also
// forwarded to any configured shippers (file, webhook) after the database
// write.
func AuditMiddleware(auditRepo *repositories.AuditRepository, auditCfg *config.AuditConfig, shippers ...audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == "OPTIONS" {
			return
		}

		isRead := c.Request.Method == "GET"
		logReads := auditCfg != nil && auditCfg.LogReadOperations
		if isRead && !logReads {
			return
		}

		entry := &models.AuditLog{
			Action:     fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path),
			Resource:   c.FullPath(),
			StatusCode: c.Writer.Status(),
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}

		if userID, exists := c.Get(UserIDContextKey); exists {
			if id, ok := userID.(string); ok && id != "" {
				entry.UserID = &id
			}
		}

		safego.Go("audit-write", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := auditRepo.Create(ctx, entry); err != nil {
				slog.Error("failed to write audit log entry",
					"action", entry.Action, "error", err)
			}

			if len(shippers) == 0 {
				return
			}
			wire := &audit.Entry{
				Timestamp:  entry.CreatedAt,
				Action:     entry.Action,
				Resource:   entry.Resource,
				StatusCode: entry.StatusCode,
				ClientIP:   entry.ClientIP,
				UserAgent:  entry.UserAgent,
			}
			if entry.UserID != nil {
				wire.UserID = *entry.UserID
			}
			for _, s := range shippers {
				if err := s.Ship(ctx, wire); err != nil {
					slog.Warn("failed to ship audit entry", "error", err)
				}
			}
		})
	}
}
