package identity

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/database"
	"github.com/irfndi/coinsight-go/internal/metrics"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Create(ctx context.Context, email, passwordHash string, fullName *string) (*models.User, error) {
	args := m.Called(ctx, email, passwordHash, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return m.Called(ctx, userID, passwordHash).Error(0)
}

type capturingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[email] = token
	return nil
}

var testSecurity = config.SecurityConfig{
	JWTSecret:         "test-secret",
	JWTExpiry:         "1h",
	BcryptCost:        bcrypt.MinCost,
	MinPasswordLength: 6,
	PasswordResetTTL:  "15m",
}

var testOAuth = config.OAuthConfig{
	RedirectURL: "http://localhost:3000/auth/callback",
	Providers: map[string]config.OAuthProviderConfig{
		"google": {
			ClientID:     "google-client",
			AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
			Scopes:       []string{"openid", "email"},
		},
		"github": {AuthorizeURL: "https://github.com/login/oauth/authorize"},
	},
}

type fixture struct {
	svc      *Service
	users    *MockUserStore
	redis    *miniredis.Miniredis
	registry *metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := &MockUserStore{}
	registry := metrics.NewRegistry()
	svc := NewService(users, database.NewTokenStore(client), testSecurity, testOAuth, nil, registry)
	return &fixture{svc: svc, users: users, redis: mr, registry: registry}
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func testUser(t *testing.T, password string) *models.User {
	name := "Ada"
	return &models.User{ID: "user-1", Email: "ada@example.com", PasswordHash: hashed(t, password), FullName: &name}
}

func TestValidatePasswordPair(t *testing.T) {
	tests := []struct {
		name, password, confirmation string
		field                        string
	}{
		{"ok", "secret1", "secret1", ""},
		{"too short", "abc", "abc", "password"},
		{"mismatch", "secret1", "secret2", "password_confirmation"},
		{"short wins over mismatch", "abc", "xyz", "password"},
		{"at bcrypt limit", strings.Repeat("x", MaxPasswordBytes), strings.Repeat("x", MaxPasswordBytes), ""},
		{"over bcrypt limit", strings.Repeat("x", MaxPasswordBytes+1), strings.Repeat("x", MaxPasswordBytes+1), "password"},
		{"multibyte over limit", strings.Repeat("ş", 40), strings.Repeat("ş", 40), "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordPair(tt.password, tt.confirmation, 6)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var validationErr *utils.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestSignUp_RejectsOverlongPasswordBeforeStorage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SignUp(context.Background(), "ada@example.com", strings.Repeat("x", 80), "Ada")
	var validationErr *utils.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "password", validationErr.Field)
	assert.Equal(t, http.StatusBadRequest, utils.HTTPStatus(err))
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdatePassword_RejectsOverlongPassword(t *testing.T) {
	f := newFixture(t)

	err := f.svc.UpdatePassword(context.Background(), "user-1", strings.Repeat("x", MaxPasswordBytes+1))
	var validationErr *utils.ValidationError
	require.ErrorAs(t, err, &validationErr)
	f.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignUp(t *testing.T) {
	f := newFixture(t)
	var events []models.AuthEvent
	f.svc.Subscribe(func(ev models.AuthEvent, s models.Session) { events = append(events, ev) })

	f.users.On("Create", mock.Anything, "ada@example.com", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret1")) == nil
	}), mock.MatchedBy(func(name *string) bool { return name != nil && *name == "Ada" })).
		Return(&models.User{ID: "user-1", Email: "ada@example.com", FullName: strPtr("Ada")}, nil)

	session, err := f.svc.SignUp(context.Background(), " Ada@Example.com ", "secret1", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "Ada", session.DisplayName)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
	assert.Equal(t, []models.AuthEvent{models.AuthEventSignedIn}, events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.registry.AuthEvents.WithLabelValues("sign_up")))
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture(t)
	var validationErr *utils.ValidationError

	_, err := f.svc.SignUp(context.Background(), "not-an-email", "secret1", "")
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.svc.SignUp(context.Background(), "a@example.com", "12345", "")
	assert.ErrorAs(t, err, &validationErr)

	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignUp_RemoteFailures(t *testing.T) {
	f := newFixture(t)
	f.users.On("Create", mock.Anything, "dup@example.com", mock.Anything, mock.Anything).Return(nil, database.ErrUserExists)
	f.users.On("Create", mock.Anything, "down@example.com", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := f.svc.SignUp(context.Background(), "dup@example.com", "secret1", "")
	var remoteErr *utils.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, utils.MsgUserExists, remoteErr.Code)

	_, err = f.svc.SignUp(context.Background(), "down@example.com", "secret1", "")
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, utils.MsgServiceUnavailable, remoteErr.Code)
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(t, "secret1"), nil)
	f.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, utils.NewNotFoundError("user", "ghost@example.com"))

	session, err := f.svc.SignIn(context.Background(), "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)

	var remoteErr *utils.RemoteError
	_, err = f.svc.SignIn(context.Background(), "ada@example.com", "wrong-password")
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, utils.MsgInvalidCredentials, remoteErr.Code)

	_, err = f.svc.SignIn(context.Background(), "ghost@example.com", "secret1")
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, utils.MsgInvalidCredentials, remoteErr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.registry.AuthEvents.WithLabelValues("sign_in")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.registry.AuthEvents.WithLabelValues("sign_in_failed")))
}

func TestSignOut_RevokesSession(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(t, "secret1"), nil)
	session, err := f.svc.SignIn(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)

	var signedOut []string
	unsubscribe := f.svc.Subscribe(func(ev models.AuthEvent, s models.Session) {
		if ev == models.AuthEventSignedOut {
			signedOut = append(signedOut, s.UserID)
		}
	})
	defer unsubscribe()

	current, err := f.svc.CurrentSession(context.Background(), session.Token)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "ada@example.com", current.Email)

	require.NoError(t, f.svc.SignOut(context.Background(), session.Token))
	assert.Equal(t, []string{"user-1"}, signedOut)

	_, err = f.svc.CurrentSession(context.Background(), session.Token)
	var remoteErr *utils.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	f.redis.FastForward(2 * time.Hour)
	assert.Empty(t, f.redis.Keys())
}

func TestCurrentSession_NoOrBadToken(t *testing.T) {
	f := newFixture(t)

	session, err := f.svc.CurrentSession(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, session)

	_, err = f.svc.CurrentSession(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Error(t, f.svc.SignOut(context.Background(), "garbage"))
}

func TestAuthenticate_Expired(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(t, "secret1"), nil)
	session, err := f.svc.SignIn(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.svc.Authenticate(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(t, "secret1"), nil)
	session, err := f.svc.SignIn(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)

	other := NewService(f.users, nil, config.SecurityConfig{JWTSecret: "other"}, testOAuth, nil, nil)
	_, err = other.parse(session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignInWithProvider(t *testing.T) {
	f := newFixture(t)

	redirect, err := f.svc.SignInWithProvider("Google")
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "google-client", u.Query().Get("client_id"))
	assert.Equal(t, testOAuth.RedirectURL, u.Query().Get("redirect_uri"))
	assert.Equal(t, "openid email", u.Query().Get("scope"))
	assert.NotEmpty(t, u.Query().Get("state"))

	var validationErr *utils.ValidationError
	_, err = f.svc.SignInWithProvider("github")
	assert.ErrorAs(t, err, &validationErr)
	_, err = f.svc.SignInWithProvider("myspace")
	assert.ErrorAs(t, err, &validationErr)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	notifier := &capturingNotifier{}
	f.svc.SetResetNotifier(notifier)
	f.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(t, "secret1"), nil)
	f.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, utils.NewNotFoundError("user", "ghost"))
	f.users.On("UpdatePassword", mock.Anything, "user-1", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("newsecret")) == nil
	})).Return(nil).Once()

	require.NoError(t, f.svc.ResetPassword(context.Background(), "ada@example.com"))
	require.NoError(t, f.svc.ResetPassword(context.Background(), "ghost@example.com"))
	token := notifier.tokens["ada@example.com"]
	require.NotEmpty(t, token)
	assert.NotContains(t, notifier.tokens, "ghost@example.com")

	var validationErr *utils.ValidationError
	assert.ErrorAs(t, f.svc.CompletePasswordReset(context.Background(), token, "short"), &validationErr)

	require.NoError(t, f.svc.CompletePasswordReset(context.Background(), token, "newsecret"))

	err := f.svc.CompletePasswordReset(context.Background(), token, "newsecret")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "token", validationErr.Field)
	f.users.AssertExpectations(t)
}

func TestUpdatePassword(t *testing.T) {
	f := newFixture(t)
	f.users.On("UpdatePassword", mock.Anything, "user-1", mock.Anything).Return(nil)
	f.users.On("UpdatePassword", mock.Anything, "gone", mock.Anything).Return(utils.NewNotFoundError("user", "gone"))
	f.users.On("UpdatePassword", mock.Anything, "user-2", mock.Anything).Return(errors.New("timeout"))

	require.NoError(t, f.svc.UpdatePassword(context.Background(), "user-1", "secret1"))

	var validationErr *utils.ValidationError
	assert.ErrorAs(t, f.svc.UpdatePassword(context.Background(), "user-1", "123"), &validationErr)

	var notFound *utils.NotFoundError
	assert.ErrorAs(t, f.svc.UpdatePassword(context.Background(), "gone", "secret1"), &notFound)

	var remoteErr *utils.RemoteError
	assert.ErrorAs(t, f.svc.UpdatePassword(context.Background(), "user-2", "secret1"), &remoteErr)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(t, "secret1"), nil)

	calls := 0
	unsubscribe := f.svc.Subscribe(func(models.AuthEvent, models.Session) { calls++ })
	_, err := f.svc.SignIn(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, err = f.svc.SignIn(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func strPtr(s string) *string { return &s }
