// Package metrics provides the injected counter sink every terminal
// outcome in the engine reports to, plus a threshold evaluator that
// signals an external alerting consumer.
package metrics

import (
	"context"
	"sort"
	"strings"
)

// Counter names incremented by the ingestion pipeline and replay engine.
const (
	MetricAdmitted           = "webhook_admitted"
	MetricDuplicateIgnored   = "webhook_duplicate_ignored"
	MetricSchemaInvalid      = "webhook_schema_invalid"
	MetricVersionUnsupported = "webhook_version_unsupported"
	MetricSignatureRejected  = "webhook_signature_rejected"
	MetricDeadLetter         = "webhook_dead_letter"
	MetricProjectionFailure  = "webhook_projection_failure"
	MetricReplayed           = "replay_replayed"
	MetricReplayFailed       = "replay_failed"
	MetricReplayNotFound     = "replay_not_found"
)

// Labels qualify a counter (provider, reason, ...).
type Labels map[string]string

// Sink receives counter increments. Implementations must be safe for
// concurrent use.
type Sink interface {
	Incr(ctx context.Context, name string, labels Labels)
}

// Key renders a metric name plus labels into a stable flat key:
// "name|k1=v1,k2=v2" with label keys sorted.
func Key(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}
