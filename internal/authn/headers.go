// Package authn implements the credential-extraction, exchange, and JWT
// verification pipeline used by the authentication engine.
package authn

import (
	"encoding/base64"
	"strings"
)

// HeaderPair is a single (key, value) header as delivered by the proxy.
type HeaderPair struct {
	Key   string
	Value string
}

// HeaderInfo is the normalized view of the six headers the auth engine
// reads: :method, :path, identity, authorization, x-api-key, x-api-token.
type HeaderInfo struct {
	Identity      string
	Authorization string
	Secret        string
	Token         string
	Method        string
	Path          string
}

// ExtractHeaderInfo makes one forward pass over headers in the order the
// proxy delivered them. authorization populates Token (bearer) or Secret
// (basic/raw); x-api-token always assigns Token when present. Token keeps
// the last value assigned during the pass, so x-api-token wins over a
// bearer token when the proxy delivers it after authorization, and loses
// to one delivered after it.
func ExtractHeaderInfo(headers []HeaderPair) HeaderInfo {
	var info HeaderInfo

	for _, h := range headers {
		switch strings.ToLower(h.Key) {
		case ":method":
			info.Method = h.Value
		case ":path":
			info.Path = h.Value
		case "identity":
			info.Identity = h.Value
		case "authorization":
			info.Authorization = h.Value
			applyAuthorization(&info, h.Value)
		case "x-api-key":
			info.Secret = h.Value
		case "x-api-token":
			info.Token = h.Value
		}
	}

	return info
}

func applyAuthorization(info *HeaderInfo, value string) {
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "bearer "):
		info.Token = value[len("Bearer "):]
	case strings.HasPrefix(lower, "basic "):
		identity, secret, ok := decodeBasic(value[len("Basic "):])
		if ok {
			info.Identity = identity
			info.Secret = secret
		}
	default:
		info.Secret = value
	}
}

func decodeBasic(tail string) (identity, secret string, ok bool) {
	decoded, err := base64.URLEncoding.DecodeString(tail)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(tail)
		if err != nil {
			return "", "", false
		}
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
