package authn

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pandora-labs/extproc-gateway/internal/apperr"
)

// Algorithm names the signing algorithms this gateway verifies against.
type Algorithm string

const (
	AlgHS256 Algorithm = "HS256"
	AlgRS256 Algorithm = "RS256"
)

var (
	// ErrUnsupportedAlgorithm is returned by NewJWTManager for any
	// algorithm other than HS256/RS256.
	ErrUnsupportedAlgorithm = errors.New("authn: unsupported token algorithm")

	// ErrMissingIdentityClaim is returned when a token verifies but carries
	// no identity.tenant, which every downstream consumer requires.
	ErrMissingIdentityClaim = errors.New("authn: token missing identity.tenant claim")
)

// JWTManager is verification-only: this gateway never issues tokens, it
// only validates tokens minted by the upstream identity provider.
type JWTManager struct {
	algorithm    Algorithm
	hmacKey      []byte
	rsaPublicKey *rsa.PublicKey
	issuer       string
	audience     string
	metrics      MetricsSink
}

// NewJWTManager builds a verifier for algorithm. keyMaterial is the shared
// secret for HS256 or a PEM-encoded RSA public key for RS256. issuer and
// audience are validated on every token when non-empty. metrics may be nil.
func NewJWTManager(algorithm Algorithm, keyMaterial []byte, issuer, audience string, metrics MetricsSink) (*JWTManager, error) {
	if metrics == nil {
		metrics = NoopMetricsSink
	}
	m := &JWTManager{algorithm: algorithm, issuer: issuer, audience: audience, metrics: metrics}

	switch algorithm {
	case AlgHS256:
		if len(keyMaterial) == 0 {
			return nil, errors.New("authn: HS256 requires a non-empty signing key")
		}
		m.hmacKey = keyMaterial
	case AlgRS256:
		pub, err := jwt.ParseRSAPublicKeyFromPEM(keyMaterial)
		if err != nil {
			return nil, fmt.Errorf("authn: parse RS256 public key: %w", err)
		}
		m.rsaPublicKey = pub
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	return m, nil
}

// Verify validates tokenString's signature, issuer, and audience, and
// returns its claims.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{string(m.algorithm)})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc, opts...)
	if err != nil {
		m.metrics.RecordTokenValidation("invalid")
		m.metrics.RecordTokenValidationError("parse_error")
		return nil, fmt.Errorf("%w: authn: verify token: %w", apperr.ErrUnauthenticated, err)
	}
	if !token.Valid {
		m.metrics.RecordTokenValidation("invalid")
		m.metrics.RecordTokenValidationError("invalid_signature")
		return nil, fmt.Errorf("%w: authn: token failed validation", apperr.ErrUnauthenticated)
	}
	if claims.Identity.Tenant == "" {
		m.metrics.RecordTokenValidation("invalid")
		m.metrics.RecordTokenValidationError("missing_identity_claim")
		return nil, fmt.Errorf("%w: %w", apperr.ErrUnauthenticated, ErrMissingIdentityClaim)
	}

	m.metrics.RecordTokenValidation("valid")
	return claims, nil
}

func (m *JWTManager) keyFunc(token *jwt.Token) (interface{}, error) {
	switch m.algorithm {
	case AlgHS256:
		return m.hmacKey, nil
	case AlgRS256:
		return m.rsaPublicKey, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, m.algorithm)
	}
}
