package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken("tenant-1", "user-7", "secret", time.Hour)
	require.NoError(t, err)

	sc, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", sc.TenantID())
	assert.Equal(t, "user-7", sc.UserID())
	assert.Equal(t, token, sc.Token())
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := IssueToken("tenant-1", "user-7", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseToken_Expired(t *testing.T) {
	token, err := IssueToken("tenant-1", "user-7", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, Anonymous, FromContext(context.Background()))

	sc := Static{AccessToken: "t", Tenant: "a", User: "u"}
	ctx := WithContext(context.Background(), sc)
	assert.Equal(t, sc, FromContext(ctx))
}
