package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/chachabrian/devforum-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResetCommand(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  ResetCommand
		field string
	}{
		{
			name: "request",
			body: `{"action":"request_otp","email":"ann@example.com"}`,
			want: RequestResetInput{Email: "ann@example.com"},
		},
		{
			name: "verify",
			body: `{"action":"verify_otp","email":"ann@example.com","otp_key":"k","otp":"123456"}`,
			want: VerifyResetInput{Email: "ann@example.com", OTPKey: "k", OTP: "123456"},
		},
		{
			name: "reset",
			body: `{"action":"reset_password","email":"ann@example.com","otp_key":"k","otp":"123456","newPassword":"newpass12"}`,
			want: ResetPasswordInput{Email: "ann@example.com", OTPKey: "k", OTP: "123456", NewPassword: "newpass12"},
		},
		{name: "unknown action", body: `{"action":"delete_account"}`, field: "action"},
		{name: "missing action", body: `{"email":"ann@example.com"}`, field: "action"},
		{name: "not json", body: `email=ann`, field: "body"},
		{name: "wrong type", body: `{"action":"request_otp","email":42}`, field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeResetCommand([]byte(tt.body))
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, cmd)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestForgotPasswordFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.verifiedUser(t, "ann@example.com", "password1")

	out, err := env.svc.ForgotPassword(ctx, RequestResetInput{Email: "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ActionRequestOTP, out.Action)
	require.NotEmpty(t, out.OTPKey)
	key := out.OTPKey

	msg := env.notifier.last(t)
	assert.Equal(t, models.OTPPurposePasswordReset, msg.Purpose)

	// verify_otp is repeatable and leaves the record usable.
	for i := 0; i < 2; i++ {
		out, err = env.svc.ForgotPassword(ctx, VerifyResetInput{Email: "ann@example.com", OTPKey: key, OTP: msg.Code})
		require.NoError(t, err)
		assert.True(t, out.Verified)
	}
	rec, err := env.store.OTPs().FindByID(ctx, key)
	require.NoError(t, err)
	assert.False(t, rec.Used)

	reset := ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: msg.Code, NewPassword: "brandnew99"}
	out, err = env.svc.ForgotPassword(ctx, reset)
	require.NoError(t, err)
	assert.Equal(t, ActionResetPassword, out.Action)

	_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "brandnew99"})
	assert.NoError(t, err)

	reset.NewPassword = "another999"
	_, err = env.svc.ForgotPassword(ctx, reset)
	assert.ErrorIs(t, err, ErrOTPUsed)
	_, err = env.svc.ForgotPassword(ctx, VerifyResetInput{Email: "ann@example.com", OTPKey: key, OTP: msg.Code})
	assert.ErrorIs(t, err, ErrOTPUsed)
}

func TestRequestResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.svc.RequestReset(context.Background(), RequestResetInput{Email: "ghost@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetPasswordLength(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		length int
		valid  bool
	}{
		{length: 7},
		{length: 8, valid: true},
		{length: 30, valid: true},
		{length: 31},
	}

	for _, tt := range tests {
		env := newTestEnv(t, Options{})
		env.signup(t, "ann@example.com", "password1")
		key, err := env.svc.RequestReset(ctx, RequestResetInput{Email: "ann@example.com"})
		require.NoError(t, err)

		password := strings.Repeat("p", tt.length)
		err = env.svc.ResetPassword(ctx, ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: testCode, NewPassword: password})
		if tt.valid {
			assert.NoError(t, err, "length %d", tt.length)
			continue
		}
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "length %d: got %v", tt.length, err)
		assert.Contains(t, verr.Fields, "newPassword")

		rec, err := env.store.OTPs().FindByID(ctx, key)
		require.NoError(t, err)
		assert.False(t, rec.Used, "length %d consumed the otp", tt.length)
	}
}

func TestResetMalformedCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.signup(t, "ann@example.com", "password1")
	key, err := env.svc.RequestReset(ctx, RequestResetInput{Email: "ann@example.com"})
	require.NoError(t, err)

	for _, code := range []string{"12ab56", "12345", "1234567"} {
		err := env.svc.VerifyReset(ctx, VerifyResetInput{Email: "ann@example.com", OTPKey: key, OTP: code})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "verify %q: got %v", code, err)
		assert.Contains(t, verr.Fields, "otp")

		err = env.svc.ResetPassword(ctx, ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: code, NewPassword: "brandnew99"})
		assert.ErrorIs(t, err, ErrValidation, "reset %q", code)
	}

	rec, err := env.store.OTPs().FindByID(ctx, key)
	require.NoError(t, err)
	assert.False(t, rec.Used)
}

func TestResetPasswordByteLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.signup(t, "ann@example.com", "password1")
	key, err := env.svc.RequestReset(ctx, RequestResetInput{Email: "ann@example.com"})
	require.NoError(t, err)

	// 30 characters but 75 bytes.
	err = env.svc.ResetPassword(ctx, ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: testCode, NewPassword: strings.Repeat("ü€", 15)})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Fields, "newPassword")
}

func TestResetPasswordRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	signupKey := env.signup(t, "ann@example.com", "password1")
	env.signup(t, "bob@example.com", "password1")
	key, err := env.svc.RequestReset(ctx, RequestResetInput{Email: "ann@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   ResetPasswordInput
		want error
	}{
		{name: "wrong code", in: ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: "000000", NewPassword: "brandnew99"}, want: ErrOTPMismatch},
		{name: "foreign email", in: ResetPasswordInput{Email: "bob@example.com", OTPKey: key, OTP: testCode, NewPassword: "brandnew99"}, want: ErrOTPMismatch},
		{name: "signup key", in: ResetPasswordInput{Email: "ann@example.com", OTPKey: signupKey, OTP: testCode, NewPassword: "brandnew99"}, want: ErrInvalidOTPKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, env.svc.ResetPassword(ctx, tt.in), tt.want)
		})
	}

	_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "password1"})
	assert.NoError(t, err)

	env.now = env.now.Add(env.svc.opts.OTPTTL + 1)
	err = env.svc.ResetPassword(ctx, ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: testCode, NewPassword: "brandnew99"})
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestResetPasswordConcurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.signup(t, "ann@example.com", "password1")
	key, err := env.svc.RequestReset(ctx, RequestResetInput{Email: "ann@example.com"})
	require.NoError(t, err)

	passwords := []string{"first-pass1", "second-pass2", "third-pass3", "fourth-pass4"}
	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, p := range passwords {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			errs[i] = env.svc.ResetPassword(ctx, ResetPasswordInput{Email: "ann@example.com", OTPKey: key, OTP: testCode, NewPassword: p})
		}(i, p)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "more than one reset succeeded")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, ErrOTPUsed)
	}
	require.NotEqual(t, -1, winner)

	_, err = env.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: passwords[winner]})
	assert.NoError(t, err)
}
