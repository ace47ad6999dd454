package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/jackc/pgx/v5"
)

// SettingsRepository stores per-user preferences.
type SettingsRepository struct {
	pool DatabasePool
}

func NewSettingsRepository(pool DatabasePool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the stored settings, or the defaults when none exist yet.
func (r *SettingsRepository) Get(ctx context.Context, userID string) (*models.UserSettings, error) {
	query := `
		SELECT user_id, language, theme, notifications_enabled, email_notifications, updated_at
		FROM user_settings WHERE user_id = $1`

	var s models.UserSettings
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.Language, &s.Theme, &s.NotificationsEnabled, &s.EmailNotifications, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			defaults := models.DefaultUserSettings(userID)
			return &defaults, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// Upsert writes the full settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, s models.UserSettings) (*models.UserSettings, error) {
	query := `
		INSERT INTO user_settings (user_id, language, theme, notifications_enabled, email_notifications, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			language = EXCLUDED.language,
			theme = EXCLUDED.theme,
			notifications_enabled = EXCLUDED.notifications_enabled,
			email_notifications = EXCLUDED.email_notifications,
			updated_at = NOW()
		RETURNING updated_at`

	if err := r.pool.QueryRow(ctx, query,
		s.UserID, s.Language, s.Theme, s.NotificationsEnabled, s.EmailNotifications,
	).Scan(&s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return &s, nil
}
