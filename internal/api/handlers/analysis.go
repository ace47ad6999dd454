package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/analysis"
	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/middleware"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/share"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// WorkflowSource hands out the caller's analysis workflow.
type WorkflowSource interface {
	Workflow(userID string) *analysis.Workflow
}

// ProfileReader loads the profile used for the Telegram chat link.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type AnalysisHandler struct {
	workflows WorkflowSource
	catalog   *assets.Catalog
	profiles  ProfileReader
	telegram  share.MessageSender
}

// NewAnalysisHandler wires the analysis routes. telegram may be nil when no
// bot token is configured.
func NewAnalysisHandler(workflows WorkflowSource, catalog *assets.Catalog, profiles ProfileReader, telegram share.MessageSender) *AnalysisHandler {
	return &AnalysisHandler{
		workflows: workflows,
		catalog:   catalog,
		profiles:  profiles,
		telegram:  telegram,
	}
}

type ParamsResponse struct {
	Params   models.AnalysisParameters `json:"params"`
	CanStart bool                      `json:"can_start"`
}

// UpdateParamsRequest changes only the fields that are present. An empty
// symbol clears the selected asset.
type UpdateParamsRequest struct {
	Symbol           *string `json:"symbol"`
	Granularity      *string `json:"granularity"`
	IncludeVolume    *bool   `json:"include_volume"`
	IncludeSentiment *bool   `json:"include_sentiment"`
	IncludeNews      *bool   `json:"include_news"`
}

type ShareResponse struct {
	Text    string                    `json:"text"`
	Intents map[share.Platform]string `json:"intents"`
}

func (h *AnalysisHandler) workflow(c *gin.Context) (*analysis.Workflow, bool) {
	w := h.workflows.Workflow(currentUser(c))
	if w == nil {
		respondError(c, utils.NewRemoteError("analysis", utils.MsgServiceUnavailable, nil))
		return nil, false
	}
	return w, true
}

// SearchAssets filters the asset table by ?q= and records the pending query.
func (h *AnalysisHandler) SearchAssets(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	results := w.Selector().SetQuery(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"assets": results, "count": len(results)})
}

func (h *AnalysisHandler) GetParams(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ParamsResponse{Params: w.Params().Snapshot(), CanStart: w.Params().CanStart()})
}

func (h *AnalysisHandler) UpdateParams(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	var req UpdateParamsRequest
	if !bindJSON(c, &req) {
		return
	}

	// validate everything before mutating anything
	var asset *models.AssetDescriptor
	if req.Symbol != nil && strings.TrimSpace(*req.Symbol) != "" {
		found, ok := h.catalog.Lookup(*req.Symbol)
		if !ok {
			respondError(c, utils.NewNotFoundError("asset", *req.Symbol))
			return
		}
		asset = &found
	}
	if req.Granularity != nil {
		if _, err := models.ParseGranularity(*req.Granularity); err != nil {
			respondError(c, utils.NewFieldValidationError("granularity", err.Error()))
			return
		}
	}

	params := w.Params()
	if req.Symbol != nil {
		if asset != nil {
			w.Selector().Select(*asset)
		} else {
			params.ClearAsset()
		}
	}
	if req.Granularity != nil {
		if err := params.SetGranularity(*req.Granularity); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.IncludeVolume != nil || req.IncludeSentiment != nil || req.IncludeNews != nil {
		current := params.Snapshot()
		params.SetToggles(
			valueOr(req.IncludeVolume, current.IncludeVolume),
			valueOr(req.IncludeSentiment, current.IncludeSentiment),
			valueOr(req.IncludeNews, current.IncludeNews),
		)
	}

	c.JSON(http.StatusOK, ParamsResponse{Params: params.Snapshot(), CanStart: params.CanStart()})
}

func valueOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// Start launches a run for the current parameters. A run already in flight
// is superseded.
func (h *AnalysisHandler) Start(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	status, err := w.Start(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if status.Params != nil && status.Params.Asset != nil {
		middleware.AddSpanAttribute(c, "run.symbol", status.Params.Asset.Symbol)
	}
	middleware.AddSpanAttribute(c, "run.id", status.RunID)
	c.JSON(http.StatusAccepted, status)
}

func (h *AnalysisHandler) Status(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w.Status())
}

func (h *AnalysisHandler) Result(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	result := w.Result()
	if result == nil {
		respondError(c, utils.NewNotFoundError("analysis result", "latest"))
		return
	}
	c.JSON(http.StatusOK, result)
}

// Share returns the share text for the latest result with one intent URL
// per platform.
func (h *AnalysisHandler) Share(c *gin.Context) {
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	result := w.Result()
	if result == nil {
		respondError(c, utils.NewNotFoundError("analysis result", "latest"))
		return
	}
	text := share.FormatShareText(*result)
	c.JSON(http.StatusOK, ShareResponse{Text: text, Intents: share.IntentURLs(text)})
}

// ShareTelegram sends the latest result to the user's linked Telegram chat.
func (h *AnalysisHandler) ShareTelegram(c *gin.Context) {
	if h.telegram == nil {
		respondError(c, utils.NewRemoteError("telegram", utils.MsgServiceUnavailable, share.ErrTelegramDisabled))
		return
	}
	w, ok := h.workflow(c)
	if !ok {
		return
	}
	result := w.Result()
	if result == nil {
		respondError(c, utils.NewNotFoundError("analysis result", "latest"))
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, storageError(err))
		return
	}
	if profile.TelegramChatID == nil || *profile.TelegramChatID == "" {
		respondError(c, utils.NewFieldValidationError("telegram_chat_id", share.ErrNoLinkedChat.Error()))
		return
	}

	text := share.FormatShareText(*result)
	if err := h.telegram.Send(c.Request.Context(), *profile.TelegramChatID, text); err != nil {
		respondError(c, utils.NewRemoteError("telegram", utils.MsgServiceUnavailable, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "text": text})
}
