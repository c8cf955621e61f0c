// Package jobs contains background workers that run on a schedule.
//
// The token sweeper purges expired download token rows. Sweeping is
// idempotent: a crashed sweep leaves rows behind that the next run deletes.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/Daziusm/anonbuci-sub001/internal/safego"
	"github.com/Daziusm/anonbuci-sub001/internal/telemetry"
)

// ExpiredTokenDeleter removes download token rows past their grace window.
// *repositories.DownloadTokenRepository satisfies this.
type ExpiredTokenDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenSweeper periodically deletes expired download tokens. Expired tokens
// are kept briefly after expiry so redemption attempts can distinguish
// "expired" from "never existed"; the sweeper is what eventually removes them.
type TokenSweeper struct {
	tokens   ExpiredTokenDeleter
	interval time.Duration
	stopCh   chan struct{}
}

// NewTokenSweeper creates a token sweeper that runs every interval.
func NewTokenSweeper(tokens ExpiredTokenDeleter, interval time.Duration) *TokenSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &TokenSweeper{
		tokens:   tokens,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine. One sweep runs
// immediately so a restart does not wait a full interval to catch up.
func (s *TokenSweeper) Start(ctx context.Context) {
	safego.Go("token-sweeper", func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stopCh:
				return
			}
		}
	})
	slog.Info("token sweeper started", "interval", s.interval)
}

// Stop signals the sweep loop to exit. An in-progress sweep finishes first.
func (s *TokenSweeper) Stop() {
	close(s.stopCh)
}

func (s *TokenSweeper) sweep(ctx context.Context) {
	deleted, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		slog.Error("expired token sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		telemetry.ExpiredTokensSweptTotal.Add(float64(deleted))
		slog.Info("expired download tokens swept", "deleted", deleted)
	}
}
