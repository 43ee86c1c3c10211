package usage

import (
	"context"

	"answer-engine/config"
	"answer-engine/database"
	"answer-engine/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the counter persistence the gate drives.
type Store interface {
	CheckAndConsume(ctx context.Context, userID uuid.UUID, limits map[string]database.PlanLimits) (types.Allowance, error)
}

// Gate binds the configured plan limits to the usage counters. It consumes
// one unit per check; callers invoke it once per answer request, before any
// generation work starts.
type Gate struct {
	store  Store
	limits map[string]database.PlanLimits
	logger *zap.Logger
}

func NewGate(cfg *config.Config, store Store, logger *zap.Logger) *Gate {
	return &Gate{
		store: store,
		limits: map[string]database.PlanLimits{
			"free": {Daily: cfg.FreeDailyLimit, Monthly: cfg.FreeMonthlyLimit},
			"pro":  {Daily: cfg.ProDailyLimit, Monthly: cfg.ProMonthlyLimit},
		},
		logger: logger,
	}
}

func (g *Gate) CheckAndConsume(ctx context.Context, userID uuid.UUID) (types.Allowance, error) {
	allowance, err := g.store.CheckAndConsume(ctx, userID, g.limits)
	if err != nil {
		return allowance, err
	}
	if !allowance.Allowed {
		g.logger.Info("Usage limit reached",
			zap.String("user_id", userID.String()),
			zap.Int("daily_used", allowance.DailyUsed),
			zap.Int("daily_limit", allowance.DailyLimit),
			zap.Int("monthly_used", allowance.MonthlyUsed),
			zap.Int("monthly_limit", allowance.MonthlyLimit))
	}
	return allowance, nil
}
