package authn

import "context"

// Whitelist is the set of paths that bypass authentication entirely.
var Whitelist = map[string]bool{"/health": true}

// Result is what a successful authentication resolves to: the claims the
// engine propagates as synthetic headers.
type Result struct {
	Tenant       string
	UserID       string
	KeyID        string
	KeyIDPresent bool
	Claims       map[string]interface{}
}

// Engine implements the credential-extraction-through-claim-propagation
// pipeline. It holds no per-stream state; everything it needs arrives as
// arguments so a single Engine is shared across every stream.
type Engine struct {
	Exchanger Exchanger
	JWT       *JWTManager
}

// NewEngine builds an auth engine over exchanger and verifier.
func NewEngine(exchanger Exchanger, jwtManager *JWTManager) *Engine {
	return &Engine{Exchanger: exchanger, JWT: jwtManager}
}

// Authenticate resolves info to a caller identity: if no bearer token was
// extracted it performs the Basic-credential exchange first, then verifies
// whichever token it ends up with.
func (e *Engine) Authenticate(ctx context.Context, info HeaderInfo) (*Result, error) {
	token := info.Token
	if token == "" {
		exchanged, err := e.Exchanger.VerifyBasicAuth(ctx, info.Identity, info.Secret)
		if err != nil {
			return nil, err
		}
		token = exchanged
	}

	claims, err := e.JWT.Verify(token)
	if err != nil {
		return nil, err
	}

	return &Result{
		Tenant:       claims.Identity.Tenant,
		UserID:       claims.Identity.UserID,
		KeyID:        claims.Identity.KeyID,
		KeyIDPresent: info.Identity != "",
		Claims:       claims.AsMap(),
	}, nil
}

// Whitelisted reports whether path bypasses authentication.
func Whitelisted(path string) bool {
	return Whitelist[path]
}
