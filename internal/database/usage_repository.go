package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/jackc/pgx/v5"
)

// UsageRepository counts analyses per user per UTC day.
type UsageRepository struct {
	pool DatabasePool
	now  func() time.Time
}

func NewUsageRepository(pool DatabasePool) *UsageRepository {
	return &UsageRepository{pool: pool, now: time.Now}
}

func (r *UsageRepository) today() time.Time {
	now := r.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// IncrementAndCheckDailyLimit counts one analysis for today and reports
// whether it fit under limit. A refused call leaves the counter unchanged.
func (r *UsageRepository) IncrementAndCheckDailyLimit(ctx context.Context, userID string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	query := `
		INSERT INTO daily_usage (user_id, usage_date, analysis_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, usage_date) DO UPDATE
			SET analysis_count = daily_usage.analysis_count + 1
			WHERE daily_usage.analysis_count < $3
		RETURNING analysis_count`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, r.today(), limit).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to increment daily usage: %w", err)
	}
	return count <= limit, nil
}

// GetDailyUsage returns today's counter, zero when nothing was recorded.
func (r *UsageRepository) GetDailyUsage(ctx context.Context, userID string) (*models.DailyUsageCounter, error) {
	today := r.today()
	counter := &models.DailyUsageCounter{UserID: userID, UsageDate: today}

	err := r.pool.QueryRow(ctx,
		`SELECT analysis_count FROM daily_usage WHERE user_id = $1 AND usage_date = $2`,
		userID, today,
	).Scan(&counter.Count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get daily usage: %w", err)
	}
	return counter, nil
}
