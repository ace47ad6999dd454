package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// ProfileStore reads and updates the user profile.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.UserProfile, error)
}

// SettingsStore reads and writes user settings.
type SettingsStore interface {
	Get(ctx context.Context, userID string) (*models.UserSettings, error)
	Upsert(ctx context.Context, s models.UserSettings) (*models.UserSettings, error)
}

// HistoryStore lists and deletes saved results.
type HistoryStore interface {
	List(ctx context.Context, userID string, limit int) ([]models.AnalysisHistoryEntry, error)
	Get(ctx context.Context, userID, id string) (*models.AnalysisHistoryEntry, error)
	Delete(ctx context.Context, userID, id string) error
}

// UsageReader reports today's analysis count.
type UsageReader interface {
	GetDailyUsage(ctx context.Context, userID string) (*models.DailyUsageCounter, error)
}

// PlanResolver returns the plan the user is entitled to.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (models.Plan, error)
}

type AccountHandler struct {
	profiles     ProfileStore
	settings     SettingsStore
	history      HistoryStore
	usage        UsageReader
	plans        PlanResolver
	historyLimit int
}

func NewAccountHandler(profiles ProfileStore, settings SettingsStore, history HistoryStore, usage UsageReader, plans PlanResolver, historyLimit int) *AccountHandler {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &AccountHandler{
		profiles:     profiles,
		settings:     settings,
		history:      history,
		usage:        usage,
		plans:        plans,
		historyLimit: historyLimit,
	}
}

type UpdateSettingsRequest struct {
	Language             *string `json:"language"`
	Theme                *string `json:"theme"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	EmailNotifications   *bool   `json:"email_notifications"`
}

type UsageResponse struct {
	Plan      string `json:"plan"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func (h *AccountHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req models.ProfileUpdate
	if !bindJSON(c, &req) {
		return
	}
	if req.TelegramChatID != nil && *req.TelegramChatID != "" {
		if _, err := strconv.ParseInt(*req.TelegramChatID, 10, 64); err != nil {
			respondError(c, utils.NewFieldValidationError("telegram_chat_id", "must be a numeric chat id"))
			return
		}
	}
	profile, err := h.profiles.UpdateProfile(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *AccountHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *AccountHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Language != nil && *req.Language != "tr" && *req.Language != "en" {
		respondError(c, utils.NewFieldValidationError("language", "must be tr or en"))
		return
	}
	if req.Theme != nil && *req.Theme != "dark" && *req.Theme != "light" {
		respondError(c, utils.NewFieldValidationError("theme", "must be dark or light"))
		return
	}

	ctx := c.Request.Context()
	current, err := h.settings.Get(ctx, currentUser(c))
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	next := *current
	next.UserID = currentUser(c)
	if req.Language != nil {
		next.Language = *req.Language
	}
	if req.Theme != nil {
		next.Theme = *req.Theme
	}
	if req.NotificationsEnabled != nil {
		next.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.EmailNotifications != nil {
		next.EmailNotifications = *req.EmailNotifications
	}

	saved, err := h.settings.Upsert(ctx, next)
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ListHistory returns the newest entries first, at most ?limit= (capped at
// the configured history limit).
func (h *AccountHandler) ListHistory(c *gin.Context) {
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, utils.NewFieldValidationError("limit", "must be a positive integer"))
			return
		}
		if n < limit {
			limit = n
		}
	}
	entries, err := h.history.List(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

func (h *AccountHandler) GetHistory(c *gin.Context) {
	entry, err := h.history.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *AccountHandler) DeleteHistory(c *gin.Context) {
	if err := h.history.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, storageError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) Usage(c *gin.Context) {
	ctx := c.Request.Context()
	plan, err := h.plans.PlanFor(ctx, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	counter, err := h.usage.GetDailyUsage(ctx, currentUser(c))
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	remaining := plan.DailyAnalysisLimit - counter.Count
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, UsageResponse{
		Plan:      plan.ID,
		Used:      counter.Count,
		Limit:     plan.DailyAnalysisLimit,
		Remaining: remaining,
	})
}
