// Package gate validates inbound webhook envelopes before admission:
// required fields under provider-varying names, and declared schema
// version against the accepted set.
package gate

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

// BaselineSchemaVersion is assumed when a payload declares no version.
// An absent version is admitted; only an explicit unknown version is
// rejected.
const BaselineSchemaVersion = "v1"

// FieldPaths lists candidate payload paths per required field, tried in
// priority order. Paths are dot-separated ("campaign.id" looks inside a
// nested object). New provider naming quirks are a config change, not a
// code change.
type FieldPaths struct {
	EventID     []string
	EventType   []string
	Timestamp   []string
	ResourceRef []string
	Version     []string
}

// DefaultFieldPaths covers the field naming of the supported providers.
func DefaultFieldPaths() FieldPaths {
	return FieldPaths{
		EventID:   []string{"event_id", "eventId", "id"},
		EventType: []string{"event", "event_type", "eventType", "type"},
		Timestamp: []string{"timestamp", "occurred_at", "created_at", "event_time", "date_created"},
		ResourceRef: []string{
			"campaign.id", "campaign_id", "campaignId",
			"piece.id", "piece_id", "resource.id", "resource_id",
			"lead.id", "lead_id",
		},
		Version: []string{"schema_version", "version", "api_version"},
	}
}

// Envelope is the validated view of a payload the rest of the pipeline
// works with.
type Envelope struct {
	EventID       string
	EventType     string
	Timestamp     string
	ResourceRef   string
	SchemaVersion string
}

// Rejection is a non-admission verdict. It is a value, not an error: the
// caller dead-letters and acknowledges, it never propagates as a fault.
type Rejection struct {
	Reason string // domain.ReasonSchemaInvalid or domain.ReasonVersionUnsupported
	Detail string
}

// Gate checks envelope shape and schema version.
type Gate struct {
	paths    FieldPaths
	accepted map[string]struct{}
	schemas  map[string]*jsonschema.Schema
}

// New builds a gate accepting the given schema versions.
func New(acceptedVersions []string, paths FieldPaths) *Gate {
	accepted := make(map[string]struct{}, len(acceptedVersions))
	for _, v := range acceptedVersions {
		accepted[strings.TrimSpace(v)] = struct{}{}
	}
	return &Gate{paths: paths, accepted: accepted, schemas: make(map[string]*jsonschema.Schema)}
}

// SetSchema registers a compiled JSON Schema for one provider. Payloads
// from that provider must additionally validate against it.
func (g *Gate) SetSchema(provider string, schema *jsonschema.Schema) {
	g.schemas[provider] = schema
}

// Check validates a decoded payload. A nil Rejection means admitted.
// Envelope fields are extracted best-effort before any verdict, so a
// rejected payload still carries the provider's event id: the dead-letter
// row is stored under that id, not under a derived fallback key.
func (g *Gate) Check(provider string, payload map[string]any) (Envelope, *Rejection) {
	var env Envelope
	env.EventID, _ = FirstString(payload, g.paths.EventID...)
	env.EventType, _ = FirstString(payload, g.paths.EventType...)
	env.Timestamp, _ = FirstString(payload, g.paths.Timestamp...)
	env.ResourceRef, _ = FirstString(payload, g.paths.ResourceRef...)

	version, declared := FirstString(payload, g.paths.Version...)
	if !declared {
		env.SchemaVersion = BaselineSchemaVersion
	} else {
		env.SchemaVersion = version
		if _, ok := g.accepted[version]; !ok {
			return env, &Rejection{
				Reason: domain.ReasonVersionUnsupported,
				Detail: fmt.Sprintf("declared schema version %q is not accepted", version),
			}
		}
	}

	if env.EventID == "" {
		return env, &Rejection{Reason: domain.ReasonSchemaInvalid, Detail: "missing event identity field"}
	}
	if env.EventType == "" {
		return env, &Rejection{Reason: domain.ReasonSchemaInvalid, Detail: "missing event type field"}
	}
	if env.Timestamp == "" {
		return env, &Rejection{Reason: domain.ReasonSchemaInvalid, Detail: "missing event timestamp field"}
	}
	if env.ResourceRef == "" {
		return env, &Rejection{Reason: domain.ReasonSchemaInvalid, Detail: "missing resource reference field"}
	}

	if schema, ok := g.schemas[provider]; ok {
		if err := schema.Validate(toJSONValue(payload)); err != nil {
			return env, &Rejection{
				Reason: domain.ReasonSchemaInvalid,
				Detail: fmt.Sprintf("provider schema violation: %v", err),
			}
		}
	}

	return env, nil
}

// toJSONValue normalizes a decoded payload for schema validation.
// encoding/json already produces the value kinds the validator expects.
func toJSONValue(payload map[string]any) any {
	return payload
}
