// Package events publishes and consumes payment lifecycle events on the bus.
package events

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/meridianpay/gateway/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaFiles maps an event type family to its schema document.
var schemaFiles = map[string]string{
	"payment":    "schemas/payment.json",
	"refund":     "schemas/refund.json",
	"dispute":    "schemas/dispute.json",
	"settlement": "schemas/settlement.json",
}

// SchemaRegistry validates event envelopes before they reach the bus. An
// event that fails validation is never published.
type SchemaRegistry struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaRegistry compiles the embedded schema documents.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	registry := &SchemaRegistry{schemas: make(map[string]*gojsonschema.Schema, len(schemaFiles))}

	for family, path := range schemaFiles {
		raw, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", path, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", path, err)
		}
		registry.schemas[family] = schema
	}

	return registry, nil
}

// ValidationError holds every violation the schema reported for one event.
type ValidationError struct {
	EventType domain.EventType
	Problems  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event %s failed schema validation: %s", e.EventType, strings.Join(e.Problems, "; "))
}

// Validate marshals the event and checks it against the schema for its type
// family. Unknown event types are rejected.
func (r *SchemaRegistry) Validate(evt domain.Event) ([]byte, error) {
	family, _, found := strings.Cut(string(evt.EventType), ".")
	schema, known := r.schemas[family]
	if !found || !known {
		return nil, fmt.Errorf("no schema registered for event type %q", evt.EventType)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshalling event %s: %w", evt.EventID, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validating event %s: %w", evt.EventID, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &ValidationError{EventType: evt.EventType, Problems: problems}
	}

	return body, nil
}
