package analysis

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/coinsight-go/internal/metrics"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/telemetry"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// State is the sequencer's lifecycle position.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
)

// EventType names a stage event pushed to subscribers.
type EventType string

const (
	EventStageCompleted EventType = "stage_completed"
	EventRunDone        EventType = "run_done"
	EventRunCancelled   EventType = "run_cancelled"
	EventRunFailed      EventType = "run_failed"
)

var (
	// ErrRunCancelled is returned by Wait when the awaited run was superseded
	// or cancelled before producing a result.
	ErrRunCancelled = errors.New("analysis run cancelled")
	// ErrNoRun is returned by Wait when nothing has been started.
	ErrNoRun = errors.New("no analysis run")
)

// Event describes one observable step of a run.
type Event struct {
	Type       EventType               `json:"type"`
	RunID      string                  `json:"run_id"`
	Generation uint64                  `json:"generation"`
	StageIndex int                     `json:"stage_index"`
	Stage      *models.StageDescriptor `json:"stage,omitempty"`
	Completed  int                     `json:"completed"`
	Total      int                     `json:"total"`
	Result     *models.AnalysisResult  `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	At         time.Time               `json:"at"`
}

// Status is a point-in-time copy of the sequencer.
type Status struct {
	State      State                      `json:"state"`
	RunID      string                     `json:"run_id,omitempty"`
	Generation uint64                     `json:"generation"`
	Params     *models.AnalysisParameters `json:"params,omitempty"`
	Stages     []models.StageRun          `json:"stages"`
	Completed  int                        `json:"completed"`
	Total      int                        `json:"total"`
	StartedAt  *time.Time                 `json:"started_at,omitempty"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
	HasResult  bool                       `json:"has_result"`
	Error      string                     `json:"error,omitempty"`
}

// Pacer blocks before stage i completes. It must return ctx.Err() promptly
// once ctx is cancelled.
type Pacer func(ctx context.Context, stage int) error

// RandomPacer waits a uniformly drawn delay in [min, max] per stage.
func RandomPacer(min, max time.Duration) Pacer {
	return func(ctx context.Context, _ int) error {
		d := min
		if max > min {
			d += rand.N(max - min + 1)
		}
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// ResultBuilder turns a finished run's parameters into a result.
type ResultBuilder interface {
	Synthesize(ctx context.Context, runID string, params models.AnalysisParameters) (models.AnalysisResult, error)
}

// SequencerOption configures optional collaborators.
type SequencerOption func(*Sequencer)

func WithPacer(p Pacer) SequencerOption {
	return func(s *Sequencer) { s.pacer = p }
}

func WithStages(stages []models.StageDescriptor) SequencerOption {
	return func(s *Sequencer) { s.stages = stages }
}

func WithMetrics(r *metrics.Registry) SequencerOption {
	return func(s *Sequencer) { s.metrics = r }
}

func WithTracer(t *telemetry.BusinessTracer) SequencerOption {
	return func(s *Sequencer) { s.tracer = t }
}

func WithLogger(l *logrus.Logger) SequencerOption {
	return func(s *Sequencer) { s.logger = l }
}

type run struct {
	id         string
	generation uint64
	params     models.AnalysisParameters
	stages     []models.StageRun
	completed  int
	startedAt  time.Time
	finishedAt time.Time
	result     *models.AnalysisResult
	err        error
	cancelled  bool
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

func (r *run) close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Sequencer walks the stage list for one session. At most one run is live;
// starting another cancels it and bumps the generation so nothing from the
// older run is delivered afterwards.
//
// Subscribers are called synchronously and must not call Start or Cancel
// from inside the callback.
type Sequencer struct {
	builder ResultBuilder
	stages  []models.StageDescriptor
	pacer   Pacer
	metrics *metrics.Registry
	tracer  *telemetry.BusinessTracer
	logger  *logrus.Logger

	// emitMu orders delivery: a generation check and the delivery it guards
	// happen under one hold, so a newer Start cannot slip in between.
	emitMu sync.Mutex

	mu         sync.Mutex
	state      State
	generation uint64
	current    *run
	result     *models.AnalysisResult

	subMu   sync.RWMutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

// NewSequencer creates an idle sequencer over the default stage table and a
// 600-1200ms random pacer.
func NewSequencer(builder ResultBuilder, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		builder: builder,
		stages:  DefaultStages(),
		pacer:   RandomPacer(600*time.Millisecond, 1200*time.Millisecond),
		state:   StateIdle,
		subs:    make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = telemetry.NewBusinessTracer(nil)
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	return s
}

// Subscribe registers fn for every future event and returns its unsubscribe
// function. Calling unsubscribe more than once is harmless.
func (s *Sequencer) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Sequencer) deliver(ev Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Start cancels any live run, discards the previous result and begins a new
// run over params. The run outlives ctx; only its trace parent comes from it.
func (s *Sequencer) Start(ctx context.Context, params models.AnalysisParameters) (Status, error) {
	if params.Asset == nil {
		return Status{}, utils.NewFieldValidationError("asset", "select an asset before starting the analysis")
	}
	if params.Granularity == "" {
		params.Granularity = models.Granularity4h
	}
	asset := *params.Asset
	params.Asset = &asset

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.emitMu.Lock()
	s.mu.Lock()
	previous := s.current
	var superseded *Event
	if previous != nil && s.state == StateRunning {
		ev := s.cancelLocked(previous)
		superseded = &ev
	}
	s.generation++
	r := &run{
		id:         uuid.New().String(),
		generation: s.generation,
		params:     params,
		stages:     make([]models.StageRun, len(s.stages)),
		startedAt:  time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for i, d := range s.stages {
		r.stages[i] = models.StageRun{Descriptor: d}
	}
	s.current = r
	s.result = nil
	s.state = StateRunning
	status := s.statusLocked()
	s.mu.Unlock()

	if superseded != nil {
		s.deliver(*superseded)
	}
	s.emitMu.Unlock()

	if s.metrics != nil {
		s.metrics.RunStarted(string(params.Granularity))
	}
	s.logger.WithFields(logrus.Fields{
		"run_id":      r.id,
		"generation":  r.generation,
		"symbol":      asset.Symbol,
		"granularity": params.Granularity,
	}).Info("Analysis run started")

	go s.execute(runCtx, r)
	return status, nil
}

// Cancel stops the live run, if any, and returns the sequencer to idle.
func (s *Sequencer) Cancel() bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	return s.cancelCurrent()
}

// cancelCurrent requires emitMu.
func (s *Sequencer) cancelCurrent() bool {
	s.mu.Lock()
	if s.current == nil || s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	ev := s.cancelLocked(s.current)
	s.generation++
	s.state = StateIdle
	s.mu.Unlock()

	s.deliver(ev)
	return true
}

// Reset cancels any live run and forgets the last run and its result, so
// Status reads as freshly created.
func (s *Sequencer) Reset() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.cancelCurrent()

	s.mu.Lock()
	s.current = nil
	s.result = nil
	s.state = StateIdle
	s.mu.Unlock()
}

func (s *Sequencer) cancelLocked(r *run) Event {
	r.cancelled = true
	r.cancel()
	r.close()
	if s.metrics != nil {
		s.metrics.RunSuperseded()
	}
	return Event{
		Type:       EventRunCancelled,
		RunID:      r.id,
		Generation: r.generation,
		StageIndex: r.completed,
		Completed:  r.completed,
		Total:      len(r.stages),
		At:         time.Now(),
	}
}

func (s *Sequencer) execute(ctx context.Context, r *run) {
	ctx, span := s.tracer.TraceAnalysisRun(ctx, r.id, r.params.Asset.Symbol, string(r.params.Granularity), r.generation)
	defer span.End()

	for i := range r.stages {
		began := time.Now()
		if err := s.pacer(ctx, i); err != nil {
			s.tracer.RecordCancelled(span, "superseded")
			return
		}
		if !s.completeStage(r, i) {
			s.tracer.RecordCancelled(span, "superseded")
			return
		}
		s.tracer.RecordStage(span, i, r.stages[i].Descriptor.Label)
		if s.metrics != nil {
			s.metrics.StageCompleted(r.stages[i].Descriptor.Label, time.Since(began))
		}
	}

	result, err := s.builder.Synthesize(ctx, r.id, r.params)
	if err != nil {
		s.tracer.RecordCollaboratorResult(span, err)
		s.fail(r, err)
		return
	}
	if s.finish(r, result) {
		s.tracer.RecordAnalysisResult(span, string(result.Signal), result.ConfidencePercent, result.Provider)
	} else {
		s.tracer.RecordCancelled(span, "superseded")
	}
}

func (s *Sequencer) completeStage(r *run, i int) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if r.generation != s.generation || r.cancelled {
		s.mu.Unlock()
		return false
	}
	r.stages[i].Completed = true
	r.completed = i + 1
	desc := r.stages[i].Descriptor
	ev := Event{
		Type:       EventStageCompleted,
		RunID:      r.id,
		Generation: r.generation,
		StageIndex: i,
		Stage:      &desc,
		Completed:  r.completed,
		Total:      len(r.stages),
		At:         time.Now(),
	}
	s.mu.Unlock()

	s.deliver(ev)
	return true
}

// finish publishes result. The sequencer reads Done while run_done is
// delivered and is Idle again, result kept, once delivery returns.
func (s *Sequencer) finish(r *run, result models.AnalysisResult) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if r.generation != s.generation || r.cancelled {
		s.mu.Unlock()
		return false
	}
	r.finishedAt = time.Now()
	r.result = &result
	s.result = &result
	s.state = StateDone
	r.close()
	ev := Event{
		Type:       EventRunDone,
		RunID:      r.id,
		Generation: r.generation,
		StageIndex: len(r.stages) - 1,
		Completed:  r.completed,
		Total:      len(r.stages),
		Result:     &result,
		At:         r.finishedAt,
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunCompleted(result.Provider, string(result.Signal))
	}
	s.logger.WithFields(logrus.Fields{
		"run_id":     r.id,
		"signal":     result.Signal,
		"confidence": result.ConfidencePercent,
		"duration":   r.finishedAt.Sub(r.startedAt).String(),
	}).Info("Analysis run finished")

	s.deliver(ev)

	s.mu.Lock()
	if s.current == r && s.state == StateDone {
		s.state = StateIdle
	}
	s.mu.Unlock()
	return true
}

func (s *Sequencer) fail(r *run, err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if r.generation != s.generation || r.cancelled {
		s.mu.Unlock()
		return
	}
	r.err = err
	r.finishedAt = time.Now()
	s.state = StateIdle
	r.close()
	ev := Event{
		Type:       EventRunFailed,
		RunID:      r.id,
		Generation: r.generation,
		StageIndex: r.completed,
		Completed:  r.completed,
		Total:      len(r.stages),
		Error:      err.Error(),
		At:         r.finishedAt,
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunFailed()
	}
	s.logger.WithError(err).WithField("run_id", r.id).Error("Analysis run failed")

	s.deliver(ev)
}

// Status returns a copy of the current state and stage list.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Sequencer) statusLocked() Status {
	st := Status{
		State:      s.state,
		Generation: s.generation,
		Total:      len(s.stages),
		HasResult:  s.result != nil,
	}
	r := s.current
	if r == nil {
		st.Stages = make([]models.StageRun, len(s.stages))
		for i, d := range s.stages {
			st.Stages[i] = models.StageRun{Descriptor: d}
		}
		return st
	}
	params := r.params
	startedAt := r.startedAt
	st.RunID = r.id
	st.Params = &params
	st.Stages = append([]models.StageRun(nil), r.stages...)
	st.Completed = r.completed
	st.Total = len(r.stages)
	st.StartedAt = &startedAt
	if !r.finishedAt.IsZero() {
		finishedAt := r.finishedAt
		st.FinishedAt = &finishedAt
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

// Result returns the latest result, or nil while none is available.
func (s *Sequencer) Result() *models.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	res := *s.result
	return &res
}

// Wait blocks until the run that is current at call time ends. A run that
// finished returns its result even if a newer run has started since.
func (s *Sequencer) Wait(ctx context.Context) (*models.AnalysisResult, error) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil, ErrNoRun
	}
	return s.await(ctx, r)
}

func (s *Sequencer) await(ctx context.Context, r *run) (*models.AnalysisResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.err != nil:
		return nil, r.err
	case r.result == nil:
		return nil, ErrRunCancelled
	}
	res := *r.result
	return &res, nil
}
