package gate

import (
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	return New([]string{"v1", "v2"}, DefaultFieldPaths())
}

func validPayload() map[string]any {
	return map[string]any{
		"event_id":    "evt-1",
		"event":       "campaign.completed",
		"timestamp":   "2026-08-30T12:00:00Z",
		"campaign_id": "c-9",
	}
}

func TestGate_AdmitsValidPayload(t *testing.T) {
	g := testGate(t)

	env, rejection := g.Check("smartlead", validPayload())

	if rejection != nil {
		t.Fatalf("expected admission, got rejection: %+v", rejection)
	}
	if env.EventID != "evt-1" {
		t.Errorf("expected event id %q, got %q", "evt-1", env.EventID)
	}
	if env.EventType != "campaign.completed" {
		t.Errorf("expected event type %q, got %q", "campaign.completed", env.EventType)
	}
	if env.ResourceRef != "c-9" {
		t.Errorf("expected resource ref %q, got %q", "c-9", env.ResourceRef)
	}
}

func TestGate_AbsentVersionGetsBaseline(t *testing.T) {
	g := testGate(t)

	env, rejection := g.Check("smartlead", validPayload())

	if rejection != nil {
		t.Fatalf("expected admission, got rejection: %+v", rejection)
	}
	if env.SchemaVersion != BaselineSchemaVersion {
		t.Errorf("expected baseline version %q, got %q", BaselineSchemaVersion, env.SchemaVersion)
	}
}

func TestGate_ExplicitUnknownVersionRejected(t *testing.T) {
	g := testGate(t)
	payload := validPayload()
	payload["schema_version"] = "v99"

	_, rejection := g.Check("smartlead", payload)

	if rejection == nil {
		t.Fatal("expected rejection for unknown version")
	}
	if rejection.Reason != domain.ReasonVersionUnsupported {
		t.Errorf("expected reason %q, got %q", domain.ReasonVersionUnsupported, rejection.Reason)
	}
}

func TestGate_VersionRejectionKeepsEnvelopeIdentity(t *testing.T) {
	g := testGate(t)
	payload := validPayload()
	payload["schema_version"] = "v99"

	env, rejection := g.Check("smartlead", payload)

	if rejection == nil {
		t.Fatal("expected rejection for unknown version")
	}
	if env.EventID != "evt-1" {
		t.Errorf("rejected envelope must keep the provider event id, got %q", env.EventID)
	}
	if env.EventType != "campaign.completed" {
		t.Errorf("rejected envelope must keep the event type, got %q", env.EventType)
	}
}

func TestGate_AcceptedExplicitVersion(t *testing.T) {
	g := testGate(t)
	payload := validPayload()
	payload["schema_version"] = "v2"

	env, rejection := g.Check("smartlead", payload)

	if rejection != nil {
		t.Fatalf("expected admission, got rejection: %+v", rejection)
	}
	if env.SchemaVersion != "v2" {
		t.Errorf("expected version %q, got %q", "v2", env.SchemaVersion)
	}
}

func TestGate_MissingRequiredFields(t *testing.T) {
	g := testGate(t)

	cases := []struct {
		name   string
		drop   string
		detail string
	}{
		{"no identity", "event_id", "identity"},
		{"no type", "event", "type"},
		{"no timestamp", "timestamp", "timestamp"},
		{"no resource ref", "campaign_id", "resource"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			delete(payload, tc.drop)

			_, rejection := g.Check("smartlead", payload)

			if rejection == nil {
				t.Fatal("expected rejection")
			}
			if rejection.Reason != domain.ReasonSchemaInvalid {
				t.Errorf("expected reason %q, got %q", domain.ReasonSchemaInvalid, rejection.Reason)
			}
			if !strings.Contains(rejection.Detail, tc.detail) {
				t.Errorf("detail %q should mention %q", rejection.Detail, tc.detail)
			}
		})
	}
}

func TestGate_FieldPathPriorityOrder(t *testing.T) {
	g := testGate(t)
	payload := validPayload()
	// Both "event_id" and the lower-priority "id" are present.
	payload["id"] = "lower-priority"

	env, rejection := g.Check("smartlead", payload)

	if rejection != nil {
		t.Fatalf("expected admission, got rejection: %+v", rejection)
	}
	if env.EventID != "evt-1" {
		t.Errorf("expected higher-priority path to win, got %q", env.EventID)
	}
}

func TestGate_NestedResourceRef(t *testing.T) {
	g := testGate(t)
	payload := validPayload()
	delete(payload, "campaign_id")
	payload["piece"] = map[string]any{"id": "psc_123"}

	env, rejection := g.Check("lob", payload)

	if rejection != nil {
		t.Fatalf("expected admission, got rejection: %+v", rejection)
	}
	if env.ResourceRef != "psc_123" {
		t.Errorf("expected nested resource ref %q, got %q", "psc_123", env.ResourceRef)
	}
}

func TestGate_NumericEventIDStringified(t *testing.T) {
	g := testGate(t)
	payload := validPayload()
	payload["event_id"] = float64(4711)

	env, rejection := g.Check("heyreach", payload)

	if rejection != nil {
		t.Fatalf("expected admission, got rejection: %+v", rejection)
	}
	if env.EventID != "4711" {
		t.Errorf("expected stringified id %q, got %q", "4711", env.EventID)
	}
}

func TestGate_ProviderSchemaViolation(t *testing.T) {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(`{
		"type": "object",
		"required": ["campaign_id"],
		"properties": {"campaign_id": {"type": "string", "pattern": "^c-"}}
	}`))
	if err != nil {
		t.Fatalf("failed to parse schema: %v", err)
	}
	if err := compiler.AddResource("smartlead.json", doc); err != nil {
		t.Fatalf("failed to add schema resource: %v", err)
	}
	schema, err := compiler.Compile("smartlead.json")
	if err != nil {
		t.Fatalf("failed to compile schema: %v", err)
	}

	g := testGate(t)
	g.SetSchema("smartlead", schema)

	payload := validPayload()
	payload["campaign_id"] = "not-a-campaign"

	_, rejection := g.Check("smartlead", payload)

	if rejection == nil {
		t.Fatal("expected rejection for schema violation")
	}
	if rejection.Reason != domain.ReasonSchemaInvalid {
		t.Errorf("expected reason %q, got %q", domain.ReasonSchemaInvalid, rejection.Reason)
	}

	// Other providers are unaffected by smartlead's schema.
	if _, rejection := g.Check("heyreach", payload); rejection != nil {
		t.Errorf("unexpected rejection for unscoped provider: %+v", rejection)
	}
}
