// Package schema validates truthsig wire formats against embedded JSON
// Schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Name identifies an embedded schema.
type Name string

const (
	ExternalSignals Name = "external-signals"
	TrustAssessment Name = "trust-assessment"
	VisualForensics Name = "visual-forensics"
)

// Names lists every embedded schema.
var Names = []Name{ExternalSignals, TrustAssessment, VisualForensics}

// ErrUnknownSchema is returned for a name with no embedded schema.
var ErrUnknownSchema = errors.New("unknown schema")

const resourceBase = "mem://truthsig/schemas/"

// Validator holds compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[Name]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, name := range Names {
		data, err := schemaFS.ReadFile(path.Join("schemas", string(name)+".schema.json"))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(resourceURL(name), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	v := &Validator{schemas: make(map[Name]*jsonschema.Schema, len(Names))}
	for _, name := range Names {
		s, err := compiler.Compile(resourceURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns a lazily compiled shared validator.
func Default() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New()
	})
	return defaultValidator, defaultErr
}

// Validate checks raw JSON against the named schema.
func (v *Validator) Validate(name Name, data []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal instance: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ValidateValue marshals value and checks it against the named schema.
func (v *Validator) ValidateValue(name Name, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return v.Validate(name, data)
}

// Source returns the raw embedded schema document.
func Source(name Name) ([]byte, error) {
	data, err := schemaFS.ReadFile(path.Join("schemas", string(name)+".schema.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	return data, nil
}

func resourceURL(name Name) string {
	return resourceBase + string(name) + ".schema.json"
}
