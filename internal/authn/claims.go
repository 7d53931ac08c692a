package authn

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims is the identity.{tenant, user_id, key_id} claim block this
// gateway requires of every verified token.
type IdentityClaims struct {
	Tenant string `json:"tenant"`
	UserID string `json:"user_id"`
	KeyID  string `json:"key_id"`
}

// Claims is the full registered + identity claim set verified from an
// inbound bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Identity IdentityClaims `json:"identity"`
}

// AsMap flattens Claims into the generic map the auth engine base64url-
// encodes onto X-Auth-Claims.
func (c *Claims) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"iss": c.Issuer,
		"aud": []string(c.Audience),
		"sub": c.Subject,
		"identity": map[string]string{
			"tenant":  c.Identity.Tenant,
			"user_id": c.Identity.UserID,
			"key_id":  c.Identity.KeyID,
		},
	}
}
