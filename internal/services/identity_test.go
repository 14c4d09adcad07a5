package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chachabrian/devforum-backend/internal/database"
	"github.com/chachabrian/devforum-backend/internal/models"
	"github.com/chachabrian/devforum-backend/internal/notify"
	"github.com/chachabrian/devforum-backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testCode = "123456"

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.OTPMessage
	err  error
}

func (n *captureNotifier) SendOTP(_ context.Context, msg notify.OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) last(t *testing.T) notify.OTPMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no otp delivered")
	return n.sent[len(n.sent)-1]
}

type testEnv struct {
	svc      *IdentityService
	store    *database.MemoryStore
	notifier *captureNotifier
	tokens   *utils.TokenManager
	now      time.Time
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    database.NewMemoryStore(),
		notifier: &captureNotifier{},
		tokens:   utils.NewTokenManager("test-secret", time.Hour),
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	env.svc = NewIdentityService(env.store, env.notifier, env.tokens, zap.NewNop().Sugar(), opts)
	env.svc.now = func() time.Time { return env.now }
	env.svc.generateCode = func() (string, error) { return testCode, nil }
	return env
}

func (e *testEnv) signup(t *testing.T, email, password string) string {
	t.Helper()
	key, err := e.svc.RegisterAccount(context.Background(), RegisterInput{Email: email, Password: password})
	require.NoError(t, err)
	return key
}

func (e *testEnv) verifiedUser(t *testing.T, email, password string) {
	t.Helper()
	key := e.signup(t, email, password)
	require.NoError(t, e.svc.ActivateAccount(context.Background(), ActivateInput{Email: email, OTPKey: key, OTP: testCode}))
}

func TestRegisterAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("creates unverified user and sends code", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		key, err := env.svc.RegisterAccount(ctx, RegisterInput{
			Email:    "ann@example.com",
			Password: "password1",
			Tags:     []string{"go"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, key)

		user, err := env.store.Users().FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.False(t, user.Verified)
		assert.Equal(t, "ann", user.Name)
		assert.NotEqual(t, "password1", user.PasswordHash)
		assert.NoError(t, user.CheckPassword("password1"))

		otp, err := env.store.OTPs().FindByID(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, models.OTPPurposeSignup, otp.Purpose)
		assert.Equal(t, user.ID, otp.UserID)
		assert.False(t, otp.Used)
		assert.Equal(t, env.now.Add(utils.OTPExpiration), otp.ExpiresAt)

		msg := env.notifier.last(t)
		assert.Equal(t, "ann@example.com", msg.Email)
		assert.Equal(t, testCode, msg.Code)
		assert.Equal(t, models.OTPPurposeSignup, msg.Purpose)
		assert.Equal(t, utils.OTPExpiration, msg.ValidFor)
	})

	t.Run("accepts a 72 byte password", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		password := strings.Repeat("p", 72)
		_, err := env.svc.RegisterAccount(ctx, RegisterInput{Email: "ann@example.com", Password: password})
		require.NoError(t, err)
		_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: password})
		assert.NoError(t, err)
	})

	t.Run("keeps explicit name", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		_, err := env.svc.RegisterAccount(ctx, RegisterInput{Name: "Ann Lee", Email: "ann@example.com", Password: "password1"})
		require.NoError(t, err)
		user, err := env.store.Users().FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Ann Lee", user.Name)
	})

	t.Run("duplicate email leaves first account untouched", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.signup(t, "ann@example.com", "password1")

		_, err := env.svc.RegisterAccount(ctx, RegisterInput{Email: "ann@example.com", Password: "different9"})
		assert.ErrorIs(t, err, ErrConflict)

		user, err := env.store.Users().FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.NoError(t, user.CheckPassword("password1"))
		users, err := env.store.Users().List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		tests := []struct {
			name  string
			in    RegisterInput
			field string
		}{
			{name: "missing email", in: RegisterInput{Password: "password1"}, field: "email"},
			{name: "bad email", in: RegisterInput{Email: "nope", Password: "password1"}, field: "email"},
			{name: "short password", in: RegisterInput{Email: "a@b.co", Password: "short"}, field: "password"},
			{name: "bad phone", in: RegisterInput{Email: "a@b.co", Password: "password1", Phone: "123"}, field: "phone"},
			{name: "password over 72 bytes", in: RegisterInput{Email: "a@b.co", Password: strings.Repeat("p", 73)}, field: "password"},
			{name: "multibyte password over 72 bytes", in: RegisterInput{Email: "a@b.co", Password: strings.Repeat("é", 40)}, field: "password"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.svc.RegisterAccount(ctx, tt.in)
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				assert.Contains(t, verr.Fields, tt.field)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}
		users, _ := env.store.Users().List(ctx)
		assert.Empty(t, users)
	})

	t.Run("delivery failure is a server error after commit", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.notifier.err = errors.New("smtp down")
		_, err := env.svc.RegisterAccount(ctx, RegisterInput{Email: "ann@example.com", Password: "password1"})
		assert.ErrorIs(t, err, ErrServer)

		_, err = env.store.Users().FindByEmail(ctx, "ann@example.com")
		assert.NoError(t, err)
	})
}

func TestActivateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("verifies once", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		key := env.signup(t, "ann@example.com", "password1")

		in := ActivateInput{Email: "ann@example.com", OTPKey: key, OTP: testCode}
		require.NoError(t, env.svc.ActivateAccount(ctx, in))

		user, err := env.store.Users().FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.True(t, user.Verified)

		assert.ErrorIs(t, env.svc.ActivateAccount(ctx, in), ErrOTPUsed)
	})

	t.Run("failures", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		key := env.signup(t, "ann@example.com", "password1")
		env.signup(t, "bob@example.com", "password1")

		tests := []struct {
			name string
			in   ActivateInput
			want error
		}{
			{name: "wrong code", in: ActivateInput{Email: "ann@example.com", OTPKey: key, OTP: "654321"}, want: ErrOTPMismatch},
			{name: "other user's email", in: ActivateInput{Email: "bob@example.com", OTPKey: key, OTP: testCode}, want: ErrOTPMismatch},
			{name: "unknown key", in: ActivateInput{Email: "ann@example.com", OTPKey: "4b0d7d3c-7bd4-4b61-9d1c-2c1b1f6f3a10", OTP: testCode}, want: ErrInvalidOTPKey},
			{name: "malformed key", in: ActivateInput{Email: "ann@example.com", OTPKey: "not-a-uuid", OTP: testCode}, want: ErrInvalidOTPKey},
			{name: "non numeric code", in: ActivateInput{Email: "ann@example.com", OTPKey: key, OTP: "12ab56"}, want: ErrValidation},
			{name: "missing key", in: ActivateInput{Email: "ann@example.com", OTP: testCode}, want: ErrValidation},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.ErrorIs(t, env.svc.ActivateAccount(ctx, tt.in), tt.want)
			})
		}

		user, err := env.store.Users().FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.False(t, user.Verified)
		otp, err := env.store.OTPs().FindByID(ctx, key)
		require.NoError(t, err)
		assert.False(t, otp.Used)
	})

	t.Run("expired", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		key := env.signup(t, "ann@example.com", "password1")

		env.now = env.now.Add(utils.OTPExpiration + time.Second)
		err := env.svc.ActivateAccount(ctx, ActivateInput{Email: "ann@example.com", OTPKey: key, OTP: testCode})
		assert.ErrorIs(t, err, ErrOTPExpired)
	})

	t.Run("reset code cannot activate", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.signup(t, "ann@example.com", "password1")
		resetKey, err := env.svc.RequestReset(ctx, RequestResetInput{Email: "ann@example.com"})
		require.NoError(t, err)

		err = env.svc.ActivateAccount(ctx, ActivateInput{Email: "ann@example.com", OTPKey: resetKey, OTP: testCode})
		assert.ErrorIs(t, err, ErrInvalidOTPKey)
	})

	t.Run("concurrent submissions", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		key := env.signup(t, "ann@example.com", "password1")
		in := ActivateInput{Email: "ann@example.com", OTPKey: key, OTP: testCode}

		const n = 8
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = env.svc.ActivateAccount(ctx, in)
			}(i)
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, ErrOTPUsed)
		}
		assert.Equal(t, 1, ok)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("unverified login allowed by default", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.signup(t, "ann@example.com", "password1")

		res, err := env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password1"})
		require.NoError(t, err)
		assert.False(t, res.User.Verified)
		assert.NotEmpty(t, res.Token)
	})

	t.Run("token carries the profile", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.verifiedUser(t, "ann@example.com", "password1")

		res, err := env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password1"})
		require.NoError(t, err)
		claims, err := env.tokens.ValidateToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, claims.Subject)
		assert.Equal(t, "ann@example.com", claims.User.Email)
		assert.True(t, claims.User.Verified)
	})

	t.Run("failures", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.signup(t, "ann@example.com", "password1")

		_, err := env.svc.Authenticate(ctx, LoginInput{Email: "nobody@example.com", Password: "password1"})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password2"})
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("verified login required", func(t *testing.T) {
		env := newTestEnv(t, Options{RequireVerifiedLogin: true})
		key := env.signup(t, "ann@example.com", "password1")

		_, err := env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password1"})
		assert.ErrorIs(t, err, ErrUnverified)

		require.NoError(t, env.svc.ActivateAccount(ctx, ActivateInput{Email: "ann@example.com", OTPKey: key, OTP: testCode}))
		_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password1"})
		assert.NoError(t, err)
	})
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.signup(t, "ann@example.com", "password1")
	env.signup(t, "bob@example.com", "password1")

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	ann, err := env.store.Users().FindByEmail(ctx, "ann@example.com")
	require.NoError(t, err)

	p, err := env.svc.GetProfile(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", p.Name)
	assert.Equal(t, []string{}, p.Tags)

	name, about, phone := "Ann Lee", "gopher", "0712345678"
	p, err = env.svc.UpdateProfile(ctx, ann.ID, ProfileUpdate{Name: &name, About: &about, Phone: &phone, Tags: []string{"go", "sql"}})
	require.NoError(t, err)
	assert.Equal(t, "0712345678", p.Phone)
	assert.Equal(t, "Ann Lee", p.Name)
	assert.Equal(t, "gopher", p.About)
	assert.Equal(t, []string{"go", "sql"}, p.Tags)

	stored, err := env.store.Users().FindByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", stored.Name)
	assert.Equal(t, "ann@example.com", stored.Email)

	p, err = env.svc.GetProfile(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "0712345678", p.Phone)

	badPhone := "123"
	_, err = env.svc.UpdateProfile(ctx, ann.ID, ProfileUpdate{Phone: &badPhone})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.UpdateProfile(ctx, "missing", ProfileUpdate{About: &about})
	assert.ErrorIs(t, err, ErrNotFound)
}
