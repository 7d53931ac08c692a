package extproc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/pandora-labs/extproc-gateway/internal/authn"
	"github.com/pandora-labs/extproc-gateway/internal/observability"
)

// AuthProcessorName is the -s/--service value selecting the auth engine.
const AuthProcessorName = "AuthEngine"

// NewAuthProcessor wires engine into the request-headers phase, the only
// phase the auth contract acts on. audit may be nil, in which case
// identity resolution and rejection are not audit-logged.
func NewAuthProcessor(engine *authn.Engine, audit *observability.AuditLogger) *Processor {
	return &Processor{
		Name: AuthProcessorName,
		Handlers: PhaseHandlers{
			RequestHeaders: authRequestHeaders(engine, audit),
		},
	}
}

func authRequestHeaders(engine *authn.Engine, audit *observability.AuditLogger) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		raw := RawHeaders(req.GetRequestHeaders())
		path := HeaderValue(raw, ":path")

		if authn.Whitelisted(path) {
			return ContinueHandler(ctx, call, req)
		}

		pairs := make([]authn.HeaderPair, 0, len(raw))
		for _, h := range raw {
			pairs = append(pairs, authn.HeaderPair{Key: h.Key, Value: h.Value})
		}
		info := authn.ExtractHeaderInfo(pairs)

		result, err := engine.Authenticate(ctx, info)
		if err != nil {
			if audit != nil {
				audit.LogSecurityEvent("auth.rejected", "warning", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
			}
			return nil, err
		}

		if audit != nil {
			audit.LogIdentityAction(result.UserID, "authenticated", map[string]interface{}{
				"tenant": result.Tenant,
				"path":   path,
			})
		}

		call.Identity = &Identity{
			Tenant: result.Tenant,
			UserID: result.UserID,
			KeyID:  result.KeyID,
			Claims: result.Claims,
		}

		claimsJSON, _ := json.Marshal(result.Claims)
		set := []HeaderKV{{Key: "X-Request-Started", Value: time.Now().Format(time.RFC3339)}}
		if result.KeyIDPresent {
			set = append(set, HeaderKV{Key: "X-Gateway-KeyId", Value: result.KeyID})
		}
		set = append(set,
			HeaderKV{Key: "X-Gateway-Tenant", Value: result.Tenant},
			HeaderKV{Key: "X-Gateway-UserId", Value: result.UserID},
			HeaderKV{Key: "X-Auth-Claims", Value: base64.URLEncoding.EncodeToString(claimsJSON)},
		)

		return HeadersResponseWithMutation(true, HeaderMutation{Set: set}), nil
	}
}
