package database

import (
	"context"
	"fmt"

	"answer-engine/web/types"

	"github.com/google/uuid"
)

// PlanLimits are the per-plan allowances the usage gate enforces.
type PlanLimits struct {
	Daily   int
	Monthly int
}

// CheckAndConsume atomically consumes one unit of the user's allowance and
// reports whether the request may proceed. Day and month rollover plus the
// increment happen in a single upsert, so concurrent requests cannot slip
// past the limit through a check-then-increment race. The final allowed
// decision compares the post-increment counts against the plan limits.
func (s *PostgresStore) CheckAndConsume(ctx context.Context, userID uuid.UUID, limits map[string]PlanLimits) (types.Allowance, error) {
	var allowance types.Allowance

	query := `
        INSERT INTO usage_counters (user_id, day, month, daily_used, monthly_used, updated_at)
        VALUES ($1, CURRENT_DATE, DATE_TRUNC('month', CURRENT_DATE), 1, 1, NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            daily_used = CASE WHEN usage_counters.day = CURRENT_DATE
                THEN usage_counters.daily_used + 1 ELSE 1 END,
            monthly_used = CASE WHEN usage_counters.month = DATE_TRUNC('month', CURRENT_DATE)
                THEN usage_counters.monthly_used + 1 ELSE 1 END,
            day = CURRENT_DATE,
            month = DATE_TRUNC('month', CURRENT_DATE),
            updated_at = NOW()
        RETURNING daily_used, monthly_used, plan
    `

	var plan string
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&allowance.DailyUsed, &allowance.MonthlyUsed, &plan)
	if err != nil {
		return allowance, fmt.Errorf("failed to consume usage: %w", err)
	}

	planLimits, ok := limits[plan]
	if !ok {
		planLimits = limits["free"]
	}
	allowance.DailyLimit = planLimits.Daily
	allowance.MonthlyLimit = planLimits.Monthly
	allowance.Allowed = allowance.DailyUsed <= planLimits.Daily && allowance.MonthlyUsed <= planLimits.Monthly

	switch plan {
	case "pro":
		allowance.ModelTier = "premium"
		allowance.AllowUploads = true
		allowance.AllowPremium = true
	default:
		allowance.ModelTier = "standard"
		allowance.AllowUploads = true
	}

	return allowance, nil
}
