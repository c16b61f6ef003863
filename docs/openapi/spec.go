// Package openapi embeds the crmcore HTTP API description.
package openapi

import _ "embed"

// Document is the OpenAPI YAML served at /openapi.yaml.
//
//go:embed crmcore.yaml
var Document []byte

// Spec returns a copy of the embedded document.
func Spec() []byte {
	return append([]byte(nil), Document...)
}
