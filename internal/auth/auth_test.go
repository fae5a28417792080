package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	projectID := uuid.New()
	keyID := uuid.New()

	token, expiresAt, err := mgr.IssueToken(projectID, &keyID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, projectID, claims.ProjectID)
	require.NotNil(t, claims.APIKeyID)
	assert.Equal(t, keyID, *claims.APIKeyID)
	assert.Equal(t, "arisu", claims.Issuer)
}

func TestJWTExpired(t *testing.T) {
	mgr, err := NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken(uuid.New(), nil)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTWrongKey(t *testing.T) {
	mgr1, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	mgr2, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := mgr1.IssueToken(uuid.New(), nil)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err, "token signed by a different key pair must not validate")
}

func TestJWTGarbageToken(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestGenerateAndParseAPIKey(t *testing.T) {
	id, key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "ak_"))

	parsedID, secret, err := ParseAPIKey(key)
	require.NoError(t, err)
	assert.Equal(t, id, parsedID)
	assert.NotEmpty(t, secret)
}

func TestParseAPIKeyInvalid(t *testing.T) {
	for _, key := range []string{
		"",
		"ak_",
		"notakey",
		"sk_" + uuid.NewString() + "_secret",
		"ak_not-a-uuid_secret",
	} {
		_, _, err := ParseAPIKey(key)
		assert.ErrorIs(t, err, ErrInvalidAPIKey, "key %q", key)
	}
}

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("super-secret")
	require.NoError(t, err)
	assert.NotContains(t, hash, "super-secret")

	ok, err := VerifySecret("super-secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySecret("wrong-secret", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashSecretSalted(t *testing.T) {
	h1, err := HashSecret("same-input")
	require.NoError(t, err)
	h2, err := HashSecret("same-input")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "fresh salt per hash")
}

func TestVerifySecretMalformedHash(t *testing.T) {
	_, err := VerifySecret("anything", "no-dollar-sign")
	assert.Error(t, err)
}
