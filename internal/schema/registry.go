// Package schema validates harness documents against embedded JSON schemas.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

// Kind names a document type.
type Kind string

const (
	KindReport    Kind = "report"
	KindFindings  Kind = "findings"
	KindScenarios Kind = "scenarios"
)

//go:embed schemas/*.json
var builtin embed.FS

// Registry holds compiled schemas by kind.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Kind]*gojsonschema.Schema
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry of built-in schemas.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry = &Registry{schemas: make(map[Kind]*gojsonschema.Schema)}
		for _, kind := range []Kind{KindReport, KindFindings, KindScenarios} {
			data, err := builtin.ReadFile("schemas/" + string(kind) + ".json")
			if err != nil {
				defaultErr = err
				return
			}
			if err := defaultRegistry.Register(kind, data); err != nil {
				defaultErr = err
				return
			}
		}
	})
	return defaultRegistry, defaultErr
}

// Register compiles and stores a JSON schema for kind.
func (r *Registry) Register(kind Kind, schemaJSON []byte) error {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("compile %s schema: %w", kind, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[kind] = s
	return nil
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateJSON checks a JSON document. Violations are returned as a
// *errors.SchemaError.
func (r *Registry) ValidateJSON(kind Kind, doc []byte) error {
	r.mu.RLock()
	s, ok := r.schemas[kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no schema registered for %s", kind)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", kind, err)
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return &harnesserrors.SchemaError{Document: string(kind), Violations: violations}
}

// ValidateYAML converts a YAML document to JSON and validates it.
func (r *Registry) ValidateYAML(kind Kind, doc []byte) error {
	var v interface{}
	if err := yaml.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("parse %s: %w", kind, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("convert %s to JSON: %w", kind, err)
	}
	return r.ValidateJSON(kind, data)
}

// Validate validates the built-in kind with the default registry, accepting
// JSON or YAML input.
func Validate(kind Kind, doc []byte) error {
	r, err := Default()
	if err != nil {
		return err
	}
	return r.ValidateYAML(kind, doc)
}

// Detect guesses the kind of a document from its top-level keys.
func Detect(doc []byte) (Kind, error) {
	var top map[string]interface{}
	if err := yaml.Unmarshal(doc, &top); err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	switch {
	case top["scenarios"] != nil:
		return KindScenarios, nil
	case top["findings"] != nil:
		return KindFindings, nil
	case top["test_name"] != nil:
		return KindReport, nil
	}
	return "", fmt.Errorf("cannot tell what kind of document this is")
}
