package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, exp, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)

	_, err = NewTokenIssuer("other", time.Hour).Parse(token)
	assert.Error(t, err, "wrong secret must fail")

	now = now.Add(2 * time.Hour)
	_, err = issuer.Parse(token)
	assert.Error(t, err, "expired token must fail")
}

func TestWatcherDropsWhenFull(t *testing.T) {
	w := NewWatcher()
	ch, cancel := w.Subscribe(1)
	w.publish(Event{Kind: SignedIn, UserID: "a"})
	w.publish(Event{Kind: SignedIn, UserID: "b"})

	assert.Equal(t, "a", (<-ch).UserID)
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
