package schema

import _ "embed"

// OpenAPI holds the embedded OpenAPI (Swagger) YAML for the NEAR lockup API.
//
//go:embed openapi.yaml
var OpenAPI []byte
