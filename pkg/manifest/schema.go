package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator validates manifest content against a registered JSON
// Schema. The proposal lifecycle does not invoke it; no caller in this
// module does.
type SchemaValidator struct {
	compiled *jsonschema.Schema
}

// NewSchemaValidator compiles a JSON Schema document describing the shape of
// Manifest.Content.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	const resourceName = "manifest-content.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("manifest: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("manifest: compile schema: %w", err)
	}
	return &SchemaValidator{compiled: compiled}, nil
}

// Validate checks m.Content against the compiled schema.
func (v *SchemaValidator) Validate(m Manifest) error {
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return fmt.Errorf("manifest: marshal content: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("manifest: unmarshal content: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("manifest: schema validation failed: %w", err)
	}
	return nil
}

// VersionTag reads a semver string out of manifest content at key
// "schema_version", when present, for compatibility checks during apply.
func VersionTag(m Manifest) (*semver.Version, bool, error) {
	raw, ok := m.Content["schema_version"]
	if !ok {
		return nil, false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, false, fmt.Errorf("manifest: schema_version must be a string")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, false, fmt.Errorf("manifest: invalid schema_version %q: %w", s, err)
	}
	return v, true, nil
}

// CheckVersionCompatible enforces that target's schema_version (if present)
// is not a downgrade relative to base — manifest content evolves forward
// only.
func CheckVersionCompatible(base, target Manifest) error {
	baseVer, baseOk, err := VersionTag(base)
	if err != nil {
		return err
	}
	targetVer, targetOk, err := VersionTag(target)
	if err != nil {
		return err
	}
	if !baseOk || !targetOk {
		return nil
	}
	if targetVer.LessThan(baseVer) {
		return fmt.Errorf("manifest: schema_version downgrade %s -> %s not allowed", baseVer, targetVer)
	}
	return nil
}
