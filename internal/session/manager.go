package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/coinsight-go/internal/analysis"
	"github.com/irfndi/coinsight-go/internal/models"
)

// Manager owns one analysis workflow per signed-in user. Workflows are
// created on first use and torn down when the user signs out.
type Manager struct {
	deps   analysis.WorkflowDeps
	logger *logrus.Logger

	mu        sync.Mutex
	workflows map[string]*analysis.Workflow
	closed    bool
}

func NewManager(deps analysis.WorkflowDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
		deps.Logger = logger
	}
	return &Manager{
		deps:      deps,
		logger:    logger,
		workflows: make(map[string]*analysis.Workflow),
	}
}

// Workflow returns the user's workflow, creating it if needed. It returns
// nil after Close.
func (m *Manager) Workflow(userID string) *analysis.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if w, ok := m.workflows[userID]; ok {
		return w
	}
	w := analysis.NewWorkflow(userID, m.deps)
	m.workflows[userID] = w
	m.logger.WithField("user_id", userID).Debug("Workflow created")
	return w
}

// Lookup returns the user's workflow without creating one.
func (m *Manager) Lookup(userID string) (*analysis.Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[userID]
	return w, ok
}

// Active is the number of live workflows.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workflows)
}

// HandleAuthEvent ends the user's workflow on sign-out. Pass it to
// identity.Service.Subscribe or Context.Subscribe.
func (m *Manager) HandleAuthEvent(event models.AuthEvent, s models.Session) {
	if event == models.AuthEventSignedOut {
		m.End(s.UserID)
	}
}

// End cancels any live run for userID and drops its workflow.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	w, ok := m.workflows[userID]
	delete(m.workflows, userID)
	m.mu.Unlock()

	if ok {
		w.Close()
		m.logger.WithField("user_id", userID).Debug("Workflow closed")
	}
}

// Close ends every workflow. Later Workflow calls return nil.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	workflows := m.workflows
	m.workflows = make(map[string]*analysis.Workflow)
	m.mu.Unlock()

	for _, w := range workflows {
		w.Close()
	}
}
