package ota

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/autopeer-io/sensornode/internal/node/store"
)

const manifestSchemaURL = "manifest.schema.json"

const manifestSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["version"],
	"properties": {
		"version": {"type": "integer", "minimum": 0}
	}
}`

var manifestSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(manifestSchemaURL, strings.NewReader(manifestSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add manifest schema: %v", err))
	}
	return compiler.MustCompile(manifestSchemaURL)
}()

// Manifest is the published description of the latest firmware.
type Manifest struct {
	Version store.Version
}

// ParseManifest decodes and validates a manifest body.
func ParseManifest(body []byte) (Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := manifestSchema.Validate(doc); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	n := doc.(map[string]any)["version"].(json.Number)
	if v, err := n.Int64(); err == nil {
		return Manifest{Version: store.Version(v)}, nil
	}
	// Integral values written with a fraction, e.g. 4.0.
	f, err := n.Float64()
	// float64(math.MaxInt64) rounds up to 2^63, which no int64 can hold.
	if err != nil || f != math.Trunc(f) || f < 0 || f >= math.MaxInt64 {
		return Manifest{}, fmt.Errorf("invalid manifest version %q", n.String())
	}
	return Manifest{Version: store.Version(f)}, nil
}
