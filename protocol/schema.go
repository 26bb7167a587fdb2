package protocol

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/*.json
var schemaFS embed.FS

const schemaBase = "https://ephemeral.relay/schema/"

// Frame schema locations.
const (
	schemaEnvelope = schemaBase + "frames.json#/$defs/envelope"
	schemaEvent    = schemaBase + "frames.json#/$defs/event"
	schemaReq      = schemaBase + "frames.json#/$defs/req"
	schemaClose    = schemaBase + "frames.json#/$defs/close"
	schemaFilter   = schemaBase + "filter.json"
	schemaEventDoc = schemaBase + "event.json"
)

// Validator checks decoded frames against the compiled protocol schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()

	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	for _, entry := range entries {
		raw, readErr := schemaFS.ReadFile(path.Join("schema", entry.Name()))
		if readErr != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), readErr)
		}
		doc, parseErr := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if parseErr != nil {
			return nil, fmt.Errorf("parse schema %s: %w", entry.Name(), parseErr)
		}
		if addErr := c.AddResource(schemaBase+entry.Name(), doc); addErr != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", entry.Name(), addErr)
		}
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema)}
	for _, loc := range []string{schemaEnvelope, schemaEvent, schemaReq, schemaClose, schemaFilter, schemaEventDoc} {
		compiled, compileErr := c.Compile(loc)
		if compileErr != nil {
			return nil, fmt.Errorf("compile schema %s: %w", loc, compileErr)
		}
		v.schemas[loc] = compiled
	}
	return v, nil
}

// MustValidator is like NewValidator but panics on error. The schemas are
// embedded, so a failure is a build defect.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(fmt.Sprintf("protocol: %v", err))
	}
	return v
}

func (v *Validator) validate(loc string, doc any) error {
	s, ok := v.schemas[loc]
	if !ok {
		return fmt.Errorf("schema %s not compiled", loc)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s", summarize(err))
	}
	return nil
}

// summarize flattens a schema error onto one short line for NOTICE and OK messages.
func summarize(err error) string {
	const maxLen = 200

	lines := strings.Split(err.Error(), "\n")
	msg := strings.TrimSpace(lines[len(lines)-1])
	msg = strings.TrimPrefix(msg, "- ")
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
