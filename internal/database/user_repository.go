package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrUserExists is returned when an email is already registered.
var ErrUserExists = errors.New("user already exists")

const (
	userColumns = `id, email, password_hash, full_name, avatar_url, telegram_chat_id,
		subscription_plan, subscription_status, created_at, updated_at`
	profileCacheTTL = 5 * time.Minute
)

// UserRepository stores accounts and profiles. Profiles are cached in Redis
// when a client is configured.
type UserRepository struct {
	pool   DatabasePool
	redis  *redis.Client
	logger *logrus.Logger
}

func NewUserRepository(pool DatabasePool, redisClient *redis.Client, logger *logrus.Logger) *UserRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserRepository{pool: pool, redis: redisClient, logger: logger}
}

func profileCacheKey(userID string) string {
	return fmt.Sprintf("user:profile:%s", userID)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.AvatarURL, &u.TelegramChatID,
		&u.SubscriptionPlan, &u.SubscriptionStatus, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new starter-plan user.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string, fullName *string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, full_name, subscription_plan, subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query,
		uuid.NewString(), email, passwordHash, fullName, models.PlanStarter, models.SubscriptionActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByEmail loads a user including the password hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.NewNotFoundError("user", email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByID loads a user including the password hash. It bypasses the cache.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.NewNotFoundError("user", userID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetProfile returns the public profile, served from Redis when cached.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	cacheKey := profileCacheKey(userID)

	if r.redis != nil {
		cached, err := r.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var profile models.UserProfile
			if err := json.Unmarshal([]byte(cached), &profile); err == nil {
				return &profile, nil
			}
			r.logger.WithFields(logrus.Fields{"user_id": userID}).Warn("Failed to unmarshal cached profile")
		}
	}

	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()

	if r.redis != nil {
		if data, err := json.Marshal(profile); err == nil {
			if err := r.redis.Set(ctx, cacheKey, data, profileCacheTTL).Err(); err != nil {
				r.logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("Failed to cache profile")
			}
		}
	}

	return &profile, nil
}

// UpdateProfile applies non-nil fields of update and returns the new profile.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.UserProfile, error) {
	query := `
		UPDATE users SET
			full_name = COALESCE($2, full_name),
			avatar_url = COALESCE($3, avatar_url),
			telegram_chat_id = COALESCE($4, telegram_chat_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, update.FullName, update.AvatarURL, update.TelegramChatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.NewNotFoundError("user", userID)
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	r.invalidate(ctx, userID)
	profile := user.Profile()
	return &profile, nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.NewNotFoundError("user", userID)
	}
	return nil
}

// UpdateSubscription sets the plan and status after a payment event.
func (r *UserRepository) UpdateSubscription(ctx context.Context, userID, plan, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET subscription_plan = $2, subscription_status = $3, updated_at = NOW() WHERE id = $1`,
		userID, plan, status)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.NewNotFoundError("user", userID)
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *UserRepository) invalidate(ctx context.Context, userID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, profileCacheKey(userID)).Err(); err != nil {
		r.logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("Failed to invalidate profile cache")
	}
}
