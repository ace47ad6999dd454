package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Subscription status values stored on the user row.
const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
	SubscriptionCanceled = "canceled"
)

// User represents a platform user with credentials.
type User struct {
	ID                 string    `json:"id" db:"id"`
	Email              string    `json:"email" db:"email"`
	PasswordHash       string    `json:"-" db:"password_hash"`
	FullName           *string   `json:"full_name" db:"full_name"`
	AvatarURL          *string   `json:"avatar_url" db:"avatar_url"`
	TelegramChatID     *string   `json:"telegram_chat_id" db:"telegram_chat_id"`
	SubscriptionPlan   string    `json:"subscription_plan" db:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status" db:"subscription_status"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// UserProfile is the public projection of User.
type UserProfile struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FullName           *string   `json:"full_name,omitempty"`
	AvatarURL          *string   `json:"avatar_url,omitempty"`
	TelegramChatID     *string   `json:"telegram_chat_id,omitempty"`
	SubscriptionPlan   string    `json:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Profile strips credentials from u.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		AvatarURL:          u.AvatarURL,
		TelegramChatID:     u.TelegramChatID,
		SubscriptionPlan:   u.SubscriptionPlan,
		SubscriptionStatus: u.SubscriptionStatus,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// ProfileUpdate carries optional profile changes; nil fields stay untouched.
type ProfileUpdate struct {
	FullName       *string `json:"full_name,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	TelegramChatID *string `json:"telegram_chat_id,omitempty"`
}

// UserSettings holds presentation and notification preferences.
type UserSettings struct {
	UserID               string    `json:"user_id" db:"user_id"`
	Language             string    `json:"language" db:"language"`
	Theme                string    `json:"theme" db:"theme"`
	NotificationsEnabled bool      `json:"notifications_enabled" db:"notifications_enabled"`
	EmailNotifications   bool      `json:"email_notifications" db:"email_notifications"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultUserSettings mirrors the defaults new accounts start with.
func DefaultUserSettings(userID string) UserSettings {
	return UserSettings{
		UserID:               userID,
		Language:             "tr",
		Theme:                "dark",
		NotificationsEnabled: true,
		EmailNotifications:   true,
	}
}

// AnalysisHistoryEntry is a persisted analysis result.
type AnalysisHistoryEntry struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	Symbol            string          `json:"symbol" db:"symbol"`
	DisplayName       string          `json:"display_name" db:"display_name"`
	Granularity       Granularity     `json:"granularity" db:"granularity"`
	Signal            Signal          `json:"signal" db:"signal"`
	ConfidencePercent int             `json:"confidence_percent" db:"confidence_percent"`
	ReferencePrice    decimal.Decimal `json:"reference_price" db:"reference_price"`
	Indicators        json.RawMessage `json:"indicators" db:"indicators"`
	Commentary        string          `json:"commentary" db:"commentary"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// DailyUsageCounter counts analyses started by a user on one calendar day.
type DailyUsageCounter struct {
	UserID    string    `json:"user_id" db:"user_id"`
	UsageDate time.Time `json:"usage_date" db:"usage_date"`
	Count     int       `json:"count" db:"analysis_count"`
}

// Session is an authenticated identity handed to screens and handlers.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthEvent is pushed to session subscribers.
type AuthEvent string

const (
	AuthEventSignedIn  AuthEvent = "SIGNED_IN"
	AuthEventSignedOut AuthEvent = "SIGNED_OUT"
)
