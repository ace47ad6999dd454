package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/metrics"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
)

const historySaveTimeout = 10 * time.Second

// PlanResolver returns the plan a user is currently entitled to.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (models.Plan, error)
}

// UsageCounter consumes one of today's analyses if the limit allows it.
type UsageCounter interface {
	IncrementAndCheckDailyLimit(ctx context.Context, userID string, limit int) (bool, error)
}

// HistoryRecorder persists finished results.
type HistoryRecorder interface {
	SaveResult(ctx context.Context, userID string, result models.AnalysisResult) (*models.AnalysisHistoryEntry, error)
}

// PlanGuard admits a run only when the user's plan covers the asset and the
// daily quota has room. The quota is consumed on admission.
type PlanGuard struct {
	plans   PlanResolver
	usage   UsageCounter
	metrics *metrics.Registry
}

func NewPlanGuard(plans PlanResolver, usage UsageCounter, registry *metrics.Registry) *PlanGuard {
	return &PlanGuard{plans: plans, usage: usage, metrics: registry}
}

// Admit checks asset support first so a refused asset does not burn quota.
func (g *PlanGuard) Admit(ctx context.Context, userID string, asset models.AssetDescriptor) error {
	plan, err := g.plans.PlanFor(ctx, userID)
	if err != nil {
		return err
	}
	if !plan.SupportsAsset(asset) {
		g.rejected("asset_not_in_plan")
		return utils.NewPlanRestrictionError(plan.ID, asset.Symbol)
	}
	ok, err := g.usage.IncrementAndCheckDailyLimit(ctx, userID, plan.DailyAnalysisLimit)
	if err != nil {
		if g.metrics != nil {
			g.metrics.CollaboratorError("storage")
		}
		return utils.NewRemoteError("storage", utils.MsgServiceUnavailable, err)
	}
	if !ok {
		g.rejected("daily_limit")
		return utils.NewLimitExceededError(plan.DailyAnalysisLimit, plan.DailyAnalysisLimit)
	}
	return nil
}

func (g *PlanGuard) rejected(reason string) {
	if g.metrics != nil {
		g.metrics.LimitRejected(reason)
	}
}

// WorkflowDeps are shared by every workflow a process creates.
type WorkflowDeps struct {
	Catalog *assets.Catalog
	Builder ResultBuilder
	Guard   *PlanGuard
	History HistoryRecorder
	Logger  *logrus.Logger
	Options []SequencerOption
}

// Workflow is one user's pipeline: selector, parameter state, sequencer and
// synthesizer. Each signed-in user owns exactly one.
type Workflow struct {
	userID    string
	params    *ParameterState
	selector  *assets.Selector
	sequencer *Sequencer
	guard     *PlanGuard
	history   HistoryRecorder
	logger    *logrus.Logger

	unsubscribe func()
	saves       sync.WaitGroup
}

func NewWorkflow(userID string, deps WorkflowDeps) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	params := NewParameterState()
	opts := append([]SequencerOption{WithLogger(logger)}, deps.Options...)

	w := &Workflow{
		userID:    userID,
		params:    params,
		selector:  assets.NewSelector(deps.Catalog, params),
		sequencer: NewSequencer(deps.Builder, opts...),
		guard:     deps.Guard,
		history:   deps.History,
		logger:    logger,
	}
	if w.history != nil {
		w.unsubscribe = w.sequencer.Subscribe(w.onEvent)
	}
	return w
}

func (w *Workflow) UserID() string { return w.userID }
func (w *Workflow) Params() *ParameterState { return w.params }
func (w *Workflow) Selector() *assets.Selector { return w.selector }
func (w *Workflow) Sequencer() *Sequencer { return w.sequencer }
func (w *Workflow) Status() Status { return w.sequencer.Status() }
func (w *Workflow) Result() *models.AnalysisResult { return w.sequencer.Result() }

// Subscribe forwards to the sequencer.
func (w *Workflow) Subscribe(fn func(Event)) func() {
	return w.sequencer.Subscribe(fn)
}

// Start runs the current parameters. It is refused without an asset and,
// when a guard is configured, when the plan disallows it.
func (w *Workflow) Start(ctx context.Context) (Status, error) {
	if !w.params.CanStart() {
		return Status{}, utils.NewFieldValidationError("asset", "select an asset before starting the analysis")
	}
	snapshot := w.params.Snapshot()
	if w.guard != nil {
		if err := w.guard.Admit(ctx, w.userID, *snapshot.Asset); err != nil {
			return Status{}, err
		}
	}
	return w.sequencer.Start(ctx, snapshot)
}

// Wait blocks until the current run ends.
func (w *Workflow) Wait(ctx context.Context) (*models.AnalysisResult, error) {
	return w.sequencer.Wait(ctx)
}

// Close cancels any live run and waits for pending history writes.
func (w *Workflow) Close() {
	w.sequencer.Cancel()
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	w.saves.Wait()
}

func (w *Workflow) onEvent(ev Event) {
	if ev.Type != EventRunDone || ev.Result == nil {
		return
	}
	result := *ev.Result
	w.saves.Add(1)
	go func() {
		defer w.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
		defer cancel()
		if _, err := w.history.SaveResult(ctx, w.userID, result); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": w.userID,
				"run_id":  result.RunID,
			}).Warn("Failed to save analysis history")
		}
	}()
}
