package logging_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandora-labs/extproc-gateway/internal/logging"
)

func TestNewRecord_DefaultsContentType(t *testing.T) {
	rec := logging.NewRecord()
	assert.Equal(t, "text/plain", rec.ContentType)
}

func TestFlattenJSONBody_NestedObject(t *testing.T) {
	kvs, err := logging.FlattenJSONBody([]byte(`{"a":{"b":1}}`))
	require.NoError(t, err)

	require.Len(t, kvs, 1)
	assert.Equal(t, "a.b", kvs[0].Key)
	assert.Equal(t, "1", kvs[0].Value)
}

func TestFlattenJSONBody_Array(t *testing.T) {
	kvs, err := logging.FlattenJSONBody([]byte(`{"items":[1,2]}`))
	require.NoError(t, err)

	require.Len(t, kvs, 2)
	assert.Equal(t, "items.0", kvs[0].Key)
	assert.Equal(t, "items.1", kvs[1].Key)
}

func TestFlattenJSONBody_InvalidJSON(t *testing.T) {
	_, err := logging.FlattenJSONBody([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeBody_JSONContentType(t *testing.T) {
	kvs := logging.EncodeBody("application/json", []byte(`{"a":{"b":1}}`))
	require.Len(t, kvs, 1)
	assert.Equal(t, "a.b", kvs[0].Key)
}

func TestEncodeBody_NonJSONFallsBackToRaw(t *testing.T) {
	kvs := logging.EncodeBody("text/plain", []byte("hello"))
	require.Len(t, kvs, 1)
	assert.Equal(t, "raw", kvs[0].Key)
	assert.Equal(t, "hello", kvs[0].Value)
}

func TestEncodeBody_MalformedJSONFallsBackToRaw(t *testing.T) {
	kvs := logging.EncodeBody("application/json", []byte("not json"))
	require.Len(t, kvs, 1)
	assert.Equal(t, "raw", kvs[0].Key)
}

func TestRecord_MarshalJSON_Shape(t *testing.T) {
	rec := logging.NewRecord()
	rec.Exchange.Method = "POST"
	rec.Exchange.Path = "/orders"
	rec.Identity.Tenant = "acme"
	rec.Request.Body = []logging.KV{{Key: "a.b", Value: "1"}}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	recordBlock := decoded["record"].(map[string]interface{})
	assert.Equal(t, "POST", recordBlock["method"])
	assert.Equal(t, "/orders", recordBlock["path"])

	identityBlock := decoded["identity"].(map[string]interface{})
	assert.Equal(t, "acme", identityBlock["tenant"])

	requestBlock := decoded["request"].(map[string]interface{})
	bodyBlock := requestBlock["body"].(map[string]interface{})
	assert.Equal(t, "1", bodyBlock["a.b"])
}
