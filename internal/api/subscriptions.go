// subscriptions.go implements the authenticated subscription ledger view.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Daziusm/anonbuci-sub001/internal/db/models"
	"github.com/Daziusm/anonbuci-sub001/internal/db/repositories"
	"github.com/Daziusm/anonbuci-sub001/internal/middleware"
)

// SubscriptionHandlers handles the user-facing subscription endpoints.
type SubscriptionHandlers struct {
	subRepo *repositories.SubscriptionRepository
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers instance.
func NewSubscriptionHandlers(subRepo *repositories.SubscriptionRepository) *SubscriptionHandlers {
	return &SubscriptionHandlers{subRepo: subRepo}
}

// subscriptionView is the client-facing projection of a ledger row. Active is
// recomputed from the end date at render time; the stored flag alone is never
// trusted.
type subscriptionView struct {
	ID                 string    `json:"id"`
	ProductName        *string   `json:"product"`
	ProductDisplayName *string   `json:"product_display_name"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	Active             bool      `json:"active"`
}

func viewSubscription(s *models.Subscription, now time.Time) subscriptionView {
	return subscriptionView{
		ID:                 s.ID,
		ProductName:        s.ProductName,
		ProductDisplayName: s.ProductDisplayName,
		StartDate:          s.StartDate,
		EndDate:            s.EndDate,
		Active:             s.EffectivelyActive(now),
	}
}

// ListHandler returns the caller's subscription ledger rows, newest window
// first.
// GET /api/v1/subscriptions
func (h *SubscriptionHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		subs, err := h.subRepo.ListForUser(c.Request.Context(), user.ID)
		if err != nil {
			slog.Error("failed to list subscriptions", "user_id", user.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to list subscriptions")
			return
		}

		now := time.Now().UTC()
		views := make([]subscriptionView, 0, len(subs))
		for _, s := range subs {
			views = append(views, viewSubscription(s, now))
		}
		respondData(c, http.StatusOK, "", views)
	}
}
