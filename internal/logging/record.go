// Package logging implements the structured request/response log record the
// log engine accumulates across phases and publishes to the message bus.
package logging

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// KV keeps header/metadata pairs in insertion order, the same way
// idempotency's HeaderKV does. MarshalJSON renders KV lists as JSON objects,
// so published records carry keys in sorted order, not the original order,
// and a repeated key keeps only its last value.
type KV struct {
	Key   string
	Value string
}

// Exchange is the record's {method, path, domain, scheme, url, ...} block,
// populated across request-headers and response-headers/body.
type Exchange struct {
	Method    string
	Path      string
	Domain    string
	Scheme    string
	URL       string
	RequestID string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Status    int
}

// Identity is the {tenant, user_id, key_id} block lifted from the gateway
// headers the auth engine attaches.
type Identity struct {
	Tenant string
	UserID string
	KeyID  string
}

// Side holds one direction's headers and flattened body metadata.
type Side struct {
	Headers []KV
	Body    []KV
}

// Record is the structured log accumulated in CallContext across all four
// HTTP phases and published once, at response-body completion.
type Record struct {
	Exchange    Exchange
	Identity    Identity
	Request     Side
	Response    Side
	ContentType string
}

// NewRecord allocates an empty record with default content type, matching
// the "default text/plain" rule applied before any content-type header is
// observed.
func NewRecord() *Record {
	return &Record{ContentType: "text/plain"}
}

// MarshalJSON renders the record into the nested shape the bus schema
// expects: {record:{...}, identity:{...}, request:{...}, response:{...}}.
func (r *Record) MarshalJSON() ([]byte, error) {
	type sideJSON struct {
		Headers map[string]string `json:"headers"`
		Body    map[string]string `json:"body"`
	}
	toSideJSON := func(s Side) sideJSON {
		headers := make(map[string]string, len(s.Headers))
		for _, kv := range s.Headers {
			headers[kv.Key] = kv.Value
		}
		body := make(map[string]string, len(s.Body))
		for _, kv := range s.Body {
			body[kv.Key] = kv.Value
		}
		return sideJSON{Headers: headers, Body: body}
	}

	return json.Marshal(struct {
		Record struct {
			Method    string `json:"method"`
			Path      string `json:"path"`
			Domain    string `json:"domain"`
			Scheme    string `json:"scheme"`
			URL       string `json:"url"`
			RequestID string `json:"request_id"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			Duration  int64  `json:"duration_ns"`
			Status    int    `json:"status"`
		} `json:"record"`
		Identity struct {
			Tenant string `json:"tenant"`
			UserID string `json:"user_id"`
			KeyID  string `json:"key_id"`
		} `json:"identity"`
		Request  sideJSON `json:"request"`
		Response sideJSON `json:"response"`
	}{
		Record: struct {
			Method    string `json:"method"`
			Path      string `json:"path"`
			Domain    string `json:"domain"`
			Scheme    string `json:"scheme"`
			URL       string `json:"url"`
			RequestID string `json:"request_id"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			Duration  int64  `json:"duration_ns"`
			Status    int    `json:"status"`
		}{
			Method:    r.Exchange.Method,
			Path:      r.Exchange.Path,
			Domain:    r.Exchange.Domain,
			Scheme:    r.Exchange.Scheme,
			URL:       r.Exchange.URL,
			RequestID: r.Exchange.RequestID,
			StartTime: r.Exchange.StartTime.Format(time.RFC3339Nano),
			EndTime:   r.Exchange.EndTime.Format(time.RFC3339Nano),
			Duration:  int64(r.Exchange.Duration),
			Status:    r.Exchange.Status,
		},
		Identity: struct {
			Tenant string `json:"tenant"`
			UserID string `json:"user_id"`
			KeyID  string `json:"key_id"`
		}{
			Tenant: r.Identity.Tenant,
			UserID: r.Identity.UserID,
			KeyID:  r.Identity.KeyID,
		},
		Request:  toSideJSON(r.Request),
		Response: toSideJSON(r.Response),
	})
}

// FlattenJSONBody walks a JSON document and emits one KV per leaf value,
// joining path segments with ".". Used by the body encoder when the content
// type is application/json and the body parses.
func FlattenJSONBody(raw []byte) ([]KV, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("logging: flatten json body: %w", err)
	}

	var kvs []KV
	flattenValue("", doc, &kvs)
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs, nil
}

func flattenValue(prefix string, v interface{}, out *[]KV) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenValue(key, child, out)
		}
	case []interface{}:
		for i, child := range val {
			key := fmt.Sprintf("%s.%d", prefix, i)
			flattenValue(key, child, out)
		}
	default:
		*out = append(*out, KV{Key: prefix, Value: fmt.Sprintf("%v", val)})
	}
}

// EncodeBody implements the body-metadata encoder shared by request and
// response body phases: JSON bodies are flattened leaf-by-leaf, anything
// else becomes a single "raw" pair.
func EncodeBody(contentType string, body []byte) []KV {
	if contentType == "application/json" {
		if kvs, err := FlattenJSONBody(body); err == nil {
			return kvs
		}
	}
	return []KV{{Key: "raw", Value: string(body)}}
}
