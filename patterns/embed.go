// Package patterns provides embedded default recognizer definitions.
// YAML files in this directory use the Presidio-compatible recognizer format
// with masquerade extensions (validator, value capture group).
package patterns

import _ "embed"

//go:embed pii_default.yaml
var piiDefaultYAML []byte

// PIIDefaultYAML returns the embedded default recognizer definitions.
func PIIDefaultYAML() []byte { return piiDefaultYAML }
