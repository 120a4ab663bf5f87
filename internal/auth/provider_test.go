package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountbook/internal/core"
	"accountbook/internal/log"
	"accountbook/internal/storage/memory"
)

type fakeFederator struct {
	identity FederatedIdentity
	err      error
}

func (f *fakeFederator) AuthCodeURL(state string) string {
	return "https://accounts.example.test/auth?state=" + url.QueryEscape(state)
}

func (f *fakeFederator) Exchange(context.Context, string) (FederatedIdentity, error) {
	return f.identity, f.err
}

type captureSender struct {
	tokens map[string]string
}

func (c *captureSender) SendReset(_ context.Context, email, token string) error {
	c.tokens[email] = token
	return nil
}

func newTestService(t *testing.T, fed Federator) (*Service, *captureSender) {
	t.Helper()
	sender := &captureSender{tokens: map[string]string{}}
	svc := NewService(Options{
		Users:     memory.New(),
		Tokens:    NewTokenIssuer("test-secret", time.Hour),
		Federator: fed,
		Sender:    sender,
		Logger:    log.Discard(),
	})
	return svc, sender
}

func authCode(t *testing.T, err error) string {
	t.Helper()
	var aerr *core.AuthError
	require.True(t, errors.As(err, &aerr), "expected AuthError, got %v", err)
	return aerr.Code
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	sess, err := svc.SignUp(ctx, "Kim@Example.com", "secret1", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "kim@example.com", sess.User.Email)
	assert.Equal(t, core.ProviderPassword, sess.User.Provider)

	claims, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.Subject)

	again, err := svc.SignIn(ctx, "kim@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, again.User.ID)
}

func TestSignUpPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	_, err := svc.SignUp(ctx, "a@example.com", "12345", "12345")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	assert.True(t, core.IsValidation(err))

	_, err = svc.SignUp(ctx, "a@example.com", "123456", "654321")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = svc.SignUp(ctx, "not-an-email", "123456", "123456")
	assert.Equal(t, CodeInvalidEmail, authCode(t, err))

	_, err = svc.SignUp(ctx, "a@example.com", "123456", "123456")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "A@example.com", "123456", "123456")
	assert.Equal(t, CodeEmailAlreadyInUse, authCode(t, err))
}

func TestSignInErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	_, err := svc.SignUp(ctx, "lee@example.com", "password", "password")
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "nobody@example.com", "password")
	assert.Equal(t, CodeUserNotFound, authCode(t, err))

	_, err = svc.SignIn(ctx, "lee@example.com", "wrong-password")
	assert.Equal(t, CodeWrongPassword, authCode(t, err))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestSignInLockout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	_, err := svc.SignUp(ctx, "park@example.com", "password", "password")
	require.NoError(t, err)

	for i := 0; i < maxFailedSignIns; i++ {
		_, err = svc.SignIn(ctx, "park@example.com", "nope-nope")
		assert.Equal(t, CodeWrongPassword, authCode(t, err))
	}
	_, err = svc.SignIn(ctx, "park@example.com", "password")
	assert.Equal(t, CodeTooManyRequests, authCode(t, err))
}

func TestSignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	events, cancel := svc.Watch(4)
	defer cancel()

	sess, err := svc.SignUp(ctx, "choi@example.com", "password", "password")
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, sess.Token))

	_, err = svc.Authenticate(ctx, sess.Token)
	assert.Equal(t, CodeInvalidToken, authCode(t, err))

	assert.Equal(t, SignedIn, (<-events).Kind)
	out := <-events
	assert.Equal(t, SignedOut, out.Kind)
	assert.Equal(t, sess.User.ID, out.UserID)
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, sender := newTestService(t, nil)
	_, err := svc.SignUp(ctx, "jung@example.com", "password", "password")
	require.NoError(t, err)

	err = svc.RequestPasswordReset(ctx, "ghost@example.com")
	assert.Equal(t, CodeUserNotFound, authCode(t, err))

	require.NoError(t, svc.RequestPasswordReset(ctx, "jung@example.com"))
	token := sender.tokens["jung@example.com"]
	require.NotEmpty(t, token)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, token, "new-password"))
	err = svc.ConfirmPasswordReset(ctx, token, "other-password")
	assert.Equal(t, CodeInvalidActionCode, authCode(t, err))

	_, err = svc.SignIn(ctx, "jung@example.com", "password")
	assert.Equal(t, CodeWrongPassword, authCode(t, err))
	_, err = svc.SignIn(ctx, "jung@example.com", "new-password")
	assert.NoError(t, err)
}

func TestFederatedSignIn(t *testing.T) {
	ctx := context.Background()
	fed := &fakeFederator{identity: FederatedIdentity{Subject: "g-1", Email: "han@example.com", Verified: true}}
	svc, _ := newTestService(t, fed)

	consent, err := svc.FederatedURL()
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	sess, err := svc.SignInFederated(ctx, state, "code")
	require.NoError(t, err)
	assert.Equal(t, core.ProviderGoogle, sess.User.Provider)

	// states are single use
	_, err = svc.SignInFederated(ctx, state, "code")
	assert.Equal(t, CodeInvalidActionCode, authCode(t, err))

	consent, _ = svc.FederatedURL()
	u, _ = url.Parse(consent)
	second, err := svc.SignInFederated(ctx, u.Query().Get("state"), "code")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, second.User.ID)
}

func federatedState(t *testing.T, svc *Service) string {
	t.Helper()
	consent, err := svc.FederatedURL()
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestFederatedSignInRejectsUnverifiedEmail(t *testing.T) {
	ctx := context.Background()
	fed := &fakeFederator{identity: FederatedIdentity{Subject: "g-2", Email: "victim@example.com", Verified: false}}
	svc, _ := newTestService(t, fed)
	victim, err := svc.SignUp(ctx, "victim@example.com", "secret1", "secret1")
	require.NoError(t, err)

	sess, err := svc.SignInFederated(ctx, federatedState(t, svc), "code")
	assert.Equal(t, CodeUnverifiedEmail, authCode(t, err))
	assert.Empty(t, sess.User.ID)
	assert.NotEqual(t, victim.User.ID, sess.User.ID)

	// unverified addresses are not registered either
	fed.identity.Email = "nobody@example.com"
	_, err = svc.SignInFederated(ctx, federatedState(t, svc), "code")
	assert.Equal(t, CodeUnverifiedEmail, authCode(t, err))
}

func TestFederatedSignInDoesNotTakeOverPasswordAccount(t *testing.T) {
	ctx := context.Background()
	fed := &fakeFederator{identity: FederatedIdentity{Subject: "g-3", Email: "park@example.com", Verified: true}}
	svc, _ := newTestService(t, fed)
	_, err := svc.SignUp(ctx, "park@example.com", "secret1", "secret1")
	require.NoError(t, err)

	sess, err := svc.SignInFederated(ctx, federatedState(t, svc), "code")
	assert.Equal(t, CodeAccountExists, authCode(t, err))
	assert.Empty(t, sess.Token)
}

func TestFederatedSignInCancelled(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeFederator{})
	consent, err := svc.FederatedURL()
	require.NoError(t, err)
	u, _ := url.Parse(consent)

	_, err = svc.SignInFederated(ctx, u.Query().Get("state"), "")
	assert.Equal(t, CodePopupClosedByUser, authCode(t, err))
}

func TestFederationDisabled(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.FederatedURL()
	assert.Equal(t, CodeFederationDisabled, authCode(t, err))
}
