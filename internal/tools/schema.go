package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON Schema from an argument struct. Fields are
// optional unless tagged `jsonschema:"required"` and unknown
// properties are allowed, so the handler can still answer with its own
// guidance for missing or out-of-range values.
func SchemaFor(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		// Reflected schemas are plain maps and strings.
		panic("tools: marshal reflected schema: " + err.Error())
	}
	return data
}
