// Package validate gates normalized payloads before they reach the
// artifact store.
//
// The engine itself does not re-validate payload contents (numeric range
// checks and string sanitization happen upstream of the transport), but it
// must fail closed when the validator signals failure: a rejected payload
// is skipped, never stored. The default implementation checks payloads
// against per-kind JSON Schemas; hosts that validate upstream can inject
// Nop instead.
package validate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/vizorai/canvas/internal/artifact"
)

// ErrRejected is returned when a payload fails schema validation.
var ErrRejected = errors.New("payload rejected")

// Validator gates one normalized payload by artifact kind.
// A nil error means the payload may be stored.
type Validator interface {
	Validate(kind artifact.Kind, payload map[string]any) error
}

// Schemas validates payloads against per-kind JSON Schemas compiled at
// construction time.
type Schemas struct {
	resolved map[artifact.Kind]*jsonschema.Resolved
	logger   *slog.Logger
}

var _ Validator = (*Schemas)(nil)

// NewSchemas compiles the built-in payload schemas.
func NewSchemas(logger *slog.Logger) (*Schemas, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defs := map[artifact.Kind]*jsonschema.Schema{
		artifact.KindChart: {
			Type:     "object",
			Required: []string{"chartType"},
			Properties: map[string]*jsonschema.Schema{
				"chartType": {Type: "string"},
				"data":      {Type: "array"},
			},
		},
		artifact.KindTable: {
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"columns": {Type: "array"},
				"rows":    {Type: "array"},
			},
		},
		artifact.KindDashboard: {
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"widgets": {Type: "array"},
			},
		},
		artifact.KindText: {
			Type:     "object",
			Required: []string{"text"},
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string"},
			},
		},
		artifact.KindImage: {
			Type:     "object",
			Required: []string{"imageUrl"},
			Properties: map[string]*jsonschema.Schema{
				"imageUrl": {Type: "string"},
			},
		},
		artifact.KindData: {Type: "object"},
	}

	resolved := make(map[artifact.Kind]*jsonschema.Resolved, len(defs))
	for kind, schema := range defs {
		r, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve %s schema: %w", kind, err)
		}
		resolved[kind] = r
	}

	return &Schemas{resolved: resolved, logger: logger}, nil
}

// Validate checks payload against the schema for kind.
// Unknown kinds fail closed.
func (s *Schemas) Validate(kind artifact.Kind, payload map[string]any) error {
	r, ok := s.resolved[kind]
	if !ok {
		return fmt.Errorf("%w: no schema for kind %q", ErrRejected, kind)
	}

	if err := r.Validate(payload); err != nil {
		s.logger.Debug("payload rejected by schema",
			"kind", kind,
			"error", err)
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}

// Nop accepts every payload. For hosts whose transport already validates.
type Nop struct{}

var _ Validator = Nop{}

func (Nop) Validate(artifact.Kind, map[string]any) error { return nil }
