package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/metrics"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/telemetry"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// Webhook event types applied to subscriptions.
const (
	EventCheckoutCompleted    = "checkout.completed"
	EventSubscriptionCanceled = "subscription.canceled"
)

// ErrInvalidSignature is returned for webhook payloads that fail HMAC checks.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SubscriptionStore reads and updates a user's subscription columns.
type SubscriptionStore interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	UpdateSubscription(ctx context.Context, userID, plan, status string) error
}

// CheckoutProvider opens hosted checkout sessions.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// WebhookEvent is the payload the checkout provider posts back.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID string `json:"user_id"`
		PlanID string `json:"plan_id"`
	} `json:"data"`
}

// Service resolves plans, starts checkouts and applies webhook events.
type Service struct {
	plans    *PlanTable
	users    SubscriptionStore
	checkout CheckoutProvider
	cfg      config.PaymentsConfig
	logger   *logrus.Logger
	metrics  *metrics.Registry
	tracer   *telemetry.BusinessTracer
}

func NewService(plans *PlanTable, users SubscriptionStore, checkout CheckoutProvider, cfg config.PaymentsConfig, logger *logrus.Logger, registry *metrics.Registry) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		plans:    plans,
		users:    users,
		checkout: checkout,
		cfg:      cfg,
		logger:   logger,
		metrics:  registry,
		tracer:   telemetry.NewBusinessTracer(nil),
	}
}

// Plans returns the plan table.
func (s *Service) Plans() []models.Plan {
	return s.plans.List()
}

// PlanFor returns the user's active plan. Inactive, canceled or unknown
// subscriptions fall back to the starter plan.
func (s *Service) PlanFor(ctx context.Context, userID string) (models.Plan, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			return models.Plan{}, err
		}
		s.collaboratorError("storage")
		return models.Plan{}, utils.NewRemoteError("storage", utils.MsgServiceUnavailable, err)
	}
	if user.SubscriptionStatus != models.SubscriptionActive {
		return s.plans.Default(), nil
	}
	plan, ok := s.plans.Get(user.SubscriptionPlan)
	if !ok {
		return s.plans.Default(), nil
	}
	return plan, nil
}

// CreateCheckout returns the hosted checkout URL for upgrading to planID.
func (s *Service) CreateCheckout(ctx context.Context, userID, planID string) (string, error) {
	plan, ok := s.plans.Get(planID)
	if !ok {
		return "", utils.NewFieldValidationError("plan_id", "unknown plan")
	}
	if plan.IsFree() {
		return "", utils.NewFieldValidationError("plan_id", "the starter plan does not need a checkout")
	}
	if plan.PriceID == "" {
		return "", utils.NewFieldValidationError("plan_id", "plan is not available for purchase")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			return "", err
		}
		s.collaboratorError("storage")
		return "", utils.NewRemoteError("storage", utils.MsgServiceUnavailable, err)
	}

	ctx, span := s.tracer.TraceCollaborator(ctx, "payments", "create_checkout")
	defer span.End()

	session, err := s.checkout.CreateSession(ctx, CheckoutRequest{
		PriceID:           plan.PriceID,
		ClientReferenceID: userID,
		CustomerEmail:     user.Email,
		SuccessURL:        s.cfg.SuccessURL,
		CancelURL:         s.cfg.CancelURL,
		Metadata:          map[string]string{"user_id": userID, "plan_id": plan.ID},
	})
	s.tracer.RecordCollaboratorResult(span, err)
	if err != nil {
		s.collaboratorError("payments")
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"plan_id": plan.ID,
		}).Error("Failed to create checkout session")
		return "", utils.NewRemoteError("payments", utils.MsgServiceUnavailable, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"plan_id":    plan.ID,
		"session_id": session.ID,
	}).Info("Checkout session created")
	return session.URL, nil
}

// HandleWebhook verifies signature against payload and applies the event.
// Unknown event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !VerifySignature(s.cfg.WebhookSecret, payload, signature) {
		return ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return utils.NewValidationErrorf("malformed webhook payload: %v", err)
	}
	if event.Data.UserID == "" {
		return utils.NewFieldValidationError("data.user_id", "missing")
	}

	var plan, status string
	switch event.Type {
	case EventCheckoutCompleted:
		p, ok := s.plans.Get(event.Data.PlanID)
		if !ok {
			return utils.NewFieldValidationError("data.plan_id", "unknown plan")
		}
		plan, status = p.ID, models.SubscriptionActive
	case EventSubscriptionCanceled:
		plan, status = models.PlanStarter, models.SubscriptionCanceled
	default:
		s.logger.WithField("event_type", event.Type).Debug("Ignoring webhook event")
		return nil
	}

	if err := s.users.UpdateSubscription(ctx, event.Data.UserID, plan, status); err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			return err
		}
		s.collaboratorError("storage")
		return utils.NewRemoteError("storage", utils.MsgServiceUnavailable, err)
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"user_id":    event.Data.UserID,
		"plan":       plan,
		"status":     status,
	}).Info("Subscription updated")
	return nil
}

func (s *Service) collaboratorError(name string) {
	if s.metrics != nil {
		s.metrics.CollaboratorError(name)
	}
}

// SignPayload returns the hex HMAC-SHA256 of payload, optionally prefixed
// with "sha256=" by callers.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts a bare or "sha256="-prefixed hex digest. An empty
// secret rejects everything.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(SignPayload(secret, payload))
	return hmac.Equal(got, want)
}
