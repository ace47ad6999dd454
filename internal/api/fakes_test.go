package api

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irfndi/coinsight-go/internal/database"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/payments"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// memUsers backs identity, profiles and subscriptions in one map.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) Create(_ context.Context, email, passwordHash string, fullName *string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, database.ErrUserExists
		}
	}
	now := time.Now()
	u := &models.User{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       passwordHash,
		FullName:           fullName,
		SubscriptionPlan:   models.PlanStarter,
		SubscriptionStatus: models.SubscriptionActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, utils.NewNotFoundError("user", email)
}

func (m *memUsers) GetByID(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, utils.NewNotFoundError("user", userID)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return utils.NewNotFoundError("user", userID)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUsers) UpdateSubscription(_ context.Context, userID, plan, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return utils.NewNotFoundError("user", userID)
	}
	u.SubscriptionPlan = plan
	u.SubscriptionStatus = status
	return nil
}

func (m *memUsers) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	u, err := m.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

func (m *memUsers) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.UserProfile, error) {
	m.mu.Lock()
	u, ok := m.users[userID]
	if ok {
		if update.FullName != nil {
			u.FullName = update.FullName
		}
		if update.AvatarURL != nil {
			u.AvatarURL = update.AvatarURL
		}
		if update.TelegramChatID != nil {
			u.TelegramChatID = update.TelegramChatID
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil, utils.NewNotFoundError("user", userID)
	}
	return m.GetProfile(ctx, userID)
}

type memSettings struct {
	mu       sync.Mutex
	settings map[string]models.UserSettings
}

func (m *memSettings) Get(_ context.Context, userID string) (*models.UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		return &s, nil
	}
	d := models.DefaultUserSettings(userID)
	return &d, nil
}

func (m *memSettings) Upsert(_ context.Context, s models.UserSettings) (*models.UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = make(map[string]models.UserSettings)
	}
	s.UpdatedAt = time.Now()
	m.settings[s.UserID] = s
	return &s, nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []models.AnalysisHistoryEntry
}

func (m *memHistory) SaveResult(_ context.Context, userID string, result models.AnalysisResult) (*models.AnalysisHistoryEntry, error) {
	indicators, err := json.Marshal(result.Indicators)
	if err != nil {
		return nil, err
	}
	entry := models.AnalysisHistoryEntry{
		ID:                uuid.NewString(),
		UserID:            userID,
		Symbol:            result.Asset.Symbol,
		DisplayName:       result.Asset.DisplayName,
		Granularity:       result.Granularity,
		Signal:            result.Signal,
		ConfidencePercent: result.ConfidencePercent,
		ReferencePrice:    result.ReferencePrice,
		Indicators:        indicators,
		Commentary:        result.Commentary,
		CreatedAt:         time.Now(),
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return &entry, nil
}

func (m *memHistory) List(_ context.Context, userID string, limit int) ([]models.AnalysisHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalysisHistoryEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memHistory) Get(_ context.Context, userID, id string) (*models.AnalysisHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id && e.UserID == userID {
			return &e, nil
		}
	}
	return nil, utils.NewNotFoundError("analysis", id)
}

func (m *memHistory) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id && e.UserID == userID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return utils.NewNotFoundError("analysis", id)
}

func (m *memHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type memUsage struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *memUsage) IncrementAndCheckDailyLimit(_ context.Context, userID string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[userID]++
	return m.counts[userID] <= limit, nil
}

func (m *memUsage) GetDailyUsage(_ context.Context, userID string) (*models.DailyUsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.DailyUsageCounter{UserID: userID, Count: m.counts[userID]}, nil
}

type stubCheckout struct{}

func (stubCheckout) CreateSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	return &payments.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/" + req.PriceID}, nil
}

type sentMessage struct {
	chatID, text string
}

type stubTelegram struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *stubTelegram) Send(_ context.Context, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }
