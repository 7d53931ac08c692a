package authn_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandora-labs/extproc-gateway/internal/authn"
)

func signHS256(t *testing.T, key []byte, claims authn.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() authn.Claims {
	now := time.Now()
	return authn.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gateway-issuer",
			Audience:  jwt.ClaimStrings{"gateway-audience"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Identity: authn.IdentityClaims{Tenant: "acme", UserID: "u-1", KeyID: "k-1"},
	}
}

func TestJWTManager_HS256_VerifiesValidToken(t *testing.T) {
	key := []byte("super-secret-signing-key")
	manager, err := authn.NewJWTManager(authn.AlgHS256, key, "gateway-issuer", "gateway-audience", nil)
	require.NoError(t, err)

	token := signHS256(t, key, baseClaims())

	claims, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.Identity.Tenant)
	assert.Equal(t, "u-1", claims.Identity.UserID)
}

func TestJWTManager_HS256_RejectsBadSignature(t *testing.T) {
	manager, err := authn.NewJWTManager(authn.AlgHS256, []byte("correct-key"), "", "", nil)
	require.NoError(t, err)

	token := signHS256(t, []byte("wrong-key"), baseClaims())

	_, err = manager.Verify(token)
	assert.Error(t, err)
}

func TestJWTManager_HS256_RejectsExpiredToken(t *testing.T) {
	key := []byte("super-secret-signing-key")
	manager, err := authn.NewJWTManager(authn.AlgHS256, key, "", "", nil)
	require.NoError(t, err)

	claims := baseClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := signHS256(t, key, claims)

	_, err = manager.Verify(token)
	assert.Error(t, err)
}

func TestJWTManager_HS256_RejectsMissingTenant(t *testing.T) {
	key := []byte("super-secret-signing-key")
	manager, err := authn.NewJWTManager(authn.AlgHS256, key, "", "", nil)
	require.NoError(t, err)

	claims := baseClaims()
	claims.Identity.Tenant = ""
	token := signHS256(t, key, claims)

	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, authn.ErrMissingIdentityClaim)
}

func TestJWTManager_RS256_VerifiesValidToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	manager, err := authn.NewJWTManager(authn.AlgRS256, pubPEM, "", "", nil)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims())
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	claims, err := manager.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.Identity.Tenant)
}

func TestNewJWTManager_RejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := authn.NewJWTManager("ES256", []byte("x"), "", "", nil)
	assert.ErrorIs(t, err, authn.ErrUnsupportedAlgorithm)
}
