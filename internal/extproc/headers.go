package extproc

import (
	"strings"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
)

// RawHeader is a (key, value) pair exactly as the proxy delivered it,
// before any domain-specific normalization.
type RawHeader struct {
	Key   string
	Value string
}

// RawHeaders flattens an HttpHeaders message into its ordered header list.
func RawHeaders(hm *extprocv3.HttpHeaders) []RawHeader {
	if hm == nil || hm.Headers == nil {
		return nil
	}
	out := make([]RawHeader, 0, len(hm.Headers.Headers))
	for _, h := range hm.Headers.Headers {
		out = append(out, RawHeader{Key: h.Key, Value: headerText(h)})
	}
	return out
}

func headerText(h *corev3.HeaderValue) string {
	if h.Value != "" {
		return h.Value
	}
	return string(h.RawValue)
}

// HeaderValue returns the first value for key, case-insensitively, or "".
func HeaderValue(headers []RawHeader, key string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// NonPseudoHeaders filters out HTTP/2 pseudo-headers (keys starting with
// ":"), the set the log and idempotency engines copy verbatim.
func NonPseudoHeaders(headers []RawHeader) []RawHeader {
	out := make([]RawHeader, 0, len(headers))
	for _, h := range headers {
		if !strings.HasPrefix(h.Key, ":") {
			out = append(out, h)
		}
	}
	return out
}
