package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

type holdExpirer interface {
	ExpireHolds(ctx context.Context) (int, error)
}

// HoldSweeper periodically releases slot holds whose checkout never completed.
type HoldSweeper struct {
	expirer  holdExpirer
	interval time.Duration
	logger   *zap.Logger
}

// NewHoldSweeper builds HoldSweeper.
func NewHoldSweeper(expirer holdExpirer, interval time.Duration, logger *zap.Logger) *HoldSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &HoldSweeper{expirer: expirer, interval: interval, logger: logger.Named("sweeper")}
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (s *HoldSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("hold sweeper started", zap.Duration("interval", s.interval))
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("hold sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *HoldSweeper) sweep(ctx context.Context) {
	if _, err := s.expirer.ExpireHolds(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("hold sweep failed", zap.Error(err))
	}
}
