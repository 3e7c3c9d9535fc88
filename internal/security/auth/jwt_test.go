package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tm := NewTokenManager("s3cret", "")
	token, err := tm.Issue("t1", "u1", "chairperson", "chair@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "chairperson", claims.Role)
	assert.Equal(t, "stratahub", claims.Issuer)
}

func TestParseRejects(t *testing.T) {
	tm := NewTokenManager("s3cret", "")

	other, err := NewTokenManager("different", "").Issue("t1", "u1", "owner", "", time.Hour)
	require.NoError(t, err)
	_, err = tm.Parse(other)
	assert.Error(t, err, "wrong secret")

	expired, err := tm.Issue("t1", "u1", "owner", "", -time.Minute)
	require.NoError(t, err)
	_, err = tm.Parse(expired)
	assert.Error(t, err, "expired")

	foreign, err := NewTokenManager("s3cret", "elsewhere").Issue("t1", "u1", "owner", "", time.Hour)
	require.NoError(t, err)
	_, err = tm.Parse(foreign)
	assert.Error(t, err, "wrong issuer")

	_, err = tm.Issue("", "u1", "owner", "", time.Hour)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	_, err = ExtractToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ExtractToken("Basic abc")
	assert.Error(t, err)
}
