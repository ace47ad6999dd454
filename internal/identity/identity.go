// Package identity signs users up and in, issues HS256 session tokens and
// tracks sign-outs and password resets.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/database"
	"github.com/irfndi/coinsight-go/internal/metrics"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
)

const collaborator = "identity"

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrSessionRevoked is returned for tokens that were signed out.
	ErrSessionRevoked = errors.New("session has been signed out")
)

// Claims are carried in every session token. The registered ID (jti) keys
// the revocation list.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserStore is the subset of the user repository identity needs.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string, fullName *string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// TokenStore keeps revoked session ids and one-shot reset tokens.
type TokenStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// ResetNotifier delivers a reset token to the account owner.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogResetNotifier writes reset requests to the log. It stands in for a
// mailer in development.
type LogResetNotifier struct {
	Logger *logrus.Logger
}

func (n LogResetNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.Logger.WithFields(logrus.Fields{"email": email, "reset_token": token}).Debug("Password reset requested")
	return nil
}

// Service implements the identity collaborator.
type Service struct {
	users    UserStore
	tokens   TokenStore
	notifier ResetNotifier
	oauth    config.OAuthConfig

	secret     []byte
	expiry     time.Duration
	resetTTL   time.Duration
	bcryptCost int
	minLength  int
	now        func() time.Time

	logger  *logrus.Logger
	metrics *metrics.Registry

	subMu       sync.RWMutex
	subscribers map[uint64]func(models.AuthEvent, models.Session)
	nextSubID   uint64
}

func NewService(users UserStore, tokens TokenStore, security config.SecurityConfig, oauth config.OAuthConfig, logger *logrus.Logger, registry *metrics.Registry) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	cost := security.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	minLength := security.MinPasswordLength
	if minLength < 1 {
		minLength = 6
	}
	return &Service{
		users:       users,
		tokens:      tokens,
		notifier:    LogResetNotifier{Logger: logger},
		oauth:       oauth,
		secret:      []byte(security.JWTSecret),
		expiry:      security.GetJWTExpiry(),
		resetTTL:    security.GetPasswordResetTTL(),
		bcryptCost:  cost,
		minLength:   minLength,
		now:         time.Now,
		logger:      logger,
		metrics:     registry,
		subscribers: make(map[uint64]func(models.AuthEvent, models.Session)),
	}
}

// SetResetNotifier replaces the development log notifier.
func (s *Service) SetResetNotifier(n ResetNotifier) {
	s.notifier = n
}

// Subscribe registers fn for SIGNED_IN and SIGNED_OUT events. Callbacks run
// synchronously on the signing goroutine.
func (s *Service) Subscribe(fn func(models.AuthEvent, models.Session)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Service) publish(event models.AuthEvent, session models.Session) {
	s.subMu.RLock()
	fns := make([]func(models.AuthEvent, models.Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

// MinPasswordLength is the configured lower bound on password length.
func (s *Service) MinPasswordLength() int { return s.minLength }

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// ValidatePasswordPair checks length and that the confirmation matches. It
// runs before any remote call.
func ValidatePasswordPair(password, confirmation string, minLength int) error {
	if len([]rune(password)) < minLength {
		return utils.NewFieldValidationError("password", fmt.Sprintf("password must be at least %d characters", minLength))
	}
	if len(password) > MaxPasswordBytes {
		return utils.NewFieldValidationError("password", fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	if password != confirmation {
		return utils.NewFieldValidationError("password_confirmation", "passwords do not match")
	}
	return nil
}

func (s *Service) validatePassword(password string) error {
	return ValidatePasswordPair(password, password, s.minLength)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", utils.NewFieldValidationError("email", "invalid email address")
	}
	return email, nil
}

func (s *Service) authEvent(event string) {
	if s.metrics != nil {
		s.metrics.AuthEvent(event)
	}
}

func invalidCredentials(err error) error {
	return utils.NewRemoteError(collaborator, utils.MsgInvalidCredentials, err)
}

func unavailable(err error) error {
	return utils.NewRemoteError(collaborator, utils.MsgServiceUnavailable, err)
}

// SignUp creates a starter-plan account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (models.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.Session{}, err
	}
	if err := s.validatePassword(password); err != nil {
		return models.Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var fullName *string
	if name := strings.TrimSpace(displayName); name != "" {
		fullName = &name
	}

	user, err := s.users.Create(ctx, email, string(hash), fullName)
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return models.Session{}, utils.NewRemoteError(collaborator, utils.MsgUserExists, err)
		}
		return models.Session{}, unavailable(err)
	}

	session, err := s.issue(user)
	if err != nil {
		return models.Session{}, err
	}
	s.authEvent("sign_up")
	s.logger.WithField("user_id", user.ID).Info("User signed up")
	s.publish(models.AuthEventSignedIn, session)
	return session, nil
}

// SignIn checks email and password and returns a fresh session.
func (s *Service) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.Session{}, utils.NewValidationError("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			s.authEvent("sign_in_failed")
			return models.Session{}, invalidCredentials(nil)
		}
		return models.Session{}, unavailable(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.authEvent("sign_in_failed")
		return models.Session{}, invalidCredentials(nil)
	}

	session, err := s.issue(user)
	if err != nil {
		return models.Session{}, err
	}
	s.authEvent("sign_in")
	s.logger.WithField("user_id", user.ID).Info("User signed in")
	s.publish(models.AuthEventSignedIn, session)
	return session, nil
}

// SignInWithProvider returns the provider's authorize URL. The sign-in
// completes out of process.
func (s *Service) SignInWithProvider(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	provider, ok := s.oauth.Providers[name]
	if !ok || provider.ClientID == "" || provider.AuthorizeURL == "" {
		return "", utils.NewFieldValidationError("provider", fmt.Sprintf("sign-in with %q is not available", name))
	}

	u, err := url.Parse(provider.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url for %s: %w", name, err)
	}
	q := u.Query()
	q.Set("client_id", provider.ClientID)
	q.Set("redirect_uri", s.oauth.RedirectURL)
	q.Set("response_type", "code")
	q.Set("state", uuid.NewString())
	if len(provider.Scopes) > 0 {
		q.Set("scope", strings.Join(provider.Scopes, " "))
	}
	u.RawQuery = q.Encode()

	s.authEvent("oauth_redirect")
	return u.String(), nil
}

// SignOut revokes token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return invalidCredentials(err)
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.tokens.Revoke(ctx, claims.ID, ttl); err != nil {
		return unavailable(err)
	}

	s.authEvent("sign_out")
	s.logger.WithField("user_id", claims.UserID).Info("User signed out")
	s.publish(models.AuthEventSignedOut, sessionFromClaims(claims, token))
	return nil
}

// CurrentSession resolves token. An empty token means no session and is
// not an error.
func (s *Service) CurrentSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	session := sessionFromClaims(claims, token)
	return &session, nil
}

// Authenticate validates token and checks it has not been signed out.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, invalidCredentials(err)
	}
	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	if revoked {
		return nil, invalidCredentials(ErrSessionRevoked)
	}
	return claims, nil
}

// ResetPassword issues a one-shot reset token. Unknown emails succeed
// silently so accounts cannot be probed.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return unavailable(err)
	}

	token := uuid.NewString()
	if err := s.tokens.SaveResetToken(ctx, token, user.ID, s.resetTTL); err != nil {
		return unavailable(err)
	}
	if err := s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
		return unavailable(err)
	}
	s.authEvent("password_reset_requested")
	return nil
}

// CompletePasswordReset consumes token and sets a new password.
func (s *Service) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}
	userID, err := s.tokens.ConsumeResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrResetTokenInvalid) {
			return utils.NewFieldValidationError("token", "reset link is invalid or expired")
		}
		return unavailable(err)
	}
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	s.authEvent("password_reset")
	return nil
}

// UpdatePassword sets a new password for a signed-in user.
func (s *Service) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	s.authEvent("password_updated")
	return nil
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			return err
		}
		return unavailable(err)
	}
	return nil
}

func (s *Service) issue(user *models.User) (models.Session, error) {
	now := s.now()
	name := ""
	if user.FullName != nil {
		name = *user.FullName
	}
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return sessionFromClaims(claims, signed), nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func sessionFromClaims(claims *Claims, token string) models.Session {
	session := models.Session{
		UserID:      claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Token:       token,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session
}
