package authn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pandora-labs/extproc-gateway/internal/apperr"
)

var identityUUID = regexp.MustCompile(`^[0-9a-f]{8}(-[0-9a-f]{4}){3}-[0-9a-f]{12}$`)

// Exchanger performs the out-of-band credential exchange for requests that
// arrive with Basic credentials (or an API key) instead of a bearer token.
type Exchanger interface {
	VerifyBasicAuth(ctx context.Context, identity, secret string) (token string, err error)
}

// HTTPExchanger calls an external auth service over HTTP, matching the
// corrected status-code mapping: 2xx carries a token, 4xx is a credential
// rejection, anything else (5xx, transport failure) is an infrastructure
// error the dispatcher turns into Immediate(500, ...).
type HTTPExchanger struct {
	Client  *retryablehttp.Client
	AuthURL string
	metrics MetricsSink
}

// NewHTTPExchanger builds an exchanger whose per-attempt timeout is
// bounded by timeout, with one retry on transport error, matching
// go-retryablehttp's default backoff already present for the Vault client.
// metrics may be nil.
func NewHTTPExchanger(authURL string, timeout time.Duration, metrics MetricsSink) *HTTPExchanger {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	if metrics == nil {
		metrics = NoopMetricsSink
	}
	return &HTTPExchanger{Client: client, AuthURL: authURL, metrics: metrics}
}

func (e *HTTPExchanger) VerifyBasicAuth(ctx context.Context, identity, secret string) (string, error) {
	if identity == "" || secret == "" {
		e.metrics.RecordAuthExchange("no_credentials", 0)
		return "", apperr.ErrNoCredentials
	}
	if !identityUUID.MatchString(identity) {
		e.metrics.RecordAuthExchange("malformed_credentials", 0)
		return "", apperr.ErrMalformedCredentials
	}

	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, e.AuthURL, nil)
	if err != nil {
		e.metrics.RecordAuthExchange("error", time.Since(start))
		return "", fmt.Errorf("authn: build auth exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.URLEncoding.EncodeToString([]byte(identity+":"+secret)))

	resp, err := e.Client.Do(req)
	if err != nil {
		e.metrics.RecordAuthExchange("error", time.Since(start))
		return "", fmt.Errorf("authn: auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.metrics.RecordAuthExchange("error", time.Since(start))
		return "", fmt.Errorf("authn: read auth service response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			e.metrics.RecordAuthExchange("error", time.Since(start))
			return "", fmt.Errorf("authn: parse auth service response: %w", err)
		}
		e.metrics.RecordAuthExchange("success", time.Since(start))
		return parsed.Token, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		e.metrics.RecordAuthExchange("unauthenticated", time.Since(start))
		return "", fmt.Errorf("%w: %s", apperr.ErrUnauthenticated, string(body))
	default:
		e.metrics.RecordAuthExchange("error", time.Since(start))
		return "", fmt.Errorf("authn: auth service returned %d: %s", resp.StatusCode, string(body))
	}
}
