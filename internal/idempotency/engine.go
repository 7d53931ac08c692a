package idempotency

import (
	"context"
	"time"
)

// GuardedMethods is the set of HTTP methods the engine protects. Any other
// method leaves the engine inert for the stream.
var GuardedMethods = map[string]bool{"POST": true}

// Engine implements the two-phase sentinel protocol described by the
// idempotency design: create a short-lived sentinel before the guarded
// request executes, replay from the store on a collision, and promote the
// sentinel to a completed entry once a successful response is observed.
type Engine struct {
	Store        Store
	SentinelTTL  time.Duration
	CompletedTTL time.Duration
	metrics      MetricsSink
}

// NewEngine builds an Engine over store with the given TTLs. SentinelTTL
// must be less than or equal to CompletedTTL, enforced by config
// validation rather than here. metrics may be nil.
func NewEngine(store Store, sentinelTTL, completedTTL time.Duration, metrics MetricsSink) *Engine {
	if metrics == nil {
		metrics = NoopMetricsSink
	}
	return &Engine{Store: store, SentinelTTL: sentinelTTL, CompletedTTL: completedTTL, metrics: metrics}
}

// RecordOutcome reports the result of a request-headers lookup ("miss",
// "cached", or "in_flight") to the configured metrics sink. Exposed so the
// ext_proc processor, which classifies the lookup result, can report it
// without reaching into Engine's internals.
func (e *Engine) RecordOutcome(outcome string) {
	e.metrics.RecordIdempotencyOutcome(outcome)
}

// Guards reports whether method is one the engine protects.
func (e *Engine) Guards(method string) bool {
	return GuardedMethods[method]
}

// Key picks the idempotency key: the explicit header value when present,
// otherwise the request digest.
func Key(idempotencyKey, digest string) string {
	if idempotencyKey != "" {
		return idempotencyKey
	}
	return digest
}

// Lookup loads the entry at key, if any.
func (e *Engine) Lookup(ctx context.Context, key string) (*CachedEntry, bool) {
	return e.Store.Get(ctx, key)
}

// CreateSentinel attempts to atomically claim key for this stream. won is
// false both when another actor already holds the key and when the store
// itself failed; either way the caller must fall back to Lookup and replay.
func (e *Engine) CreateSentinel(ctx context.Context, key, tenant, path, digest string) (entry *CachedEntry, won bool) {
	entry = &CachedEntry{
		Key:    key,
		Tenant: tenant,
		Path:   path,
		Digest: digest,
		When:   time.Now(),
		Status: StatusSentinel,
	}
	won = e.Store.TryCreateSentinel(ctx, key, entry, e.SentinelTTL)
	return entry, won
}

// ClearSentinel deletes the sentinel at key if, and only if, it is still a
// sentinel — another actor may already have overwritten it with a
// completed entry, in which case it is left alone.
func (e *Engine) ClearSentinel(ctx context.Context, key string) {
	entry, ok := e.Store.Get(ctx, key)
	if !ok || !entry.IsSentinel() {
		return
	}
	e.Store.Delete(ctx, key)
}

// Complete writes entry's body and promotes it to the completed TTL, but
// only for status 200 or 201 — responses with any other status are never
// cached, so a retried duplicate simply re-executes.
func (e *Engine) Complete(ctx context.Context, key string, entry *CachedEntry, body []byte) {
	if entry.Status != 200 && entry.Status != 201 {
		return
	}
	entry.Body = body
	e.Store.Set(ctx, key, entry, e.CompletedTTL)
}
