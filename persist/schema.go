package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meetline/server/agenda"
)

const patchSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["time_segments", "version"],
  "properties": {
    "time_segments": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["start"],
        "additionalProperties": false,
        "properties": {
          "start": {"type": "integer", "minimum": 0},
          "end": {"type": ["integer", "null"], "minimum": 0}
        }
      }
    },
    "started_at_seconds": {"type": ["integer", "null"], "minimum": 0},
    "status": {"enum": ["pending", "in_progress", "completed"]},
    "version": {"type": "integer", "minimum": 0}
  }
}`

var (
	printer     = message.NewPrinter(language.English)
	patchSchema = mustCompileSchema(patchSchemaJSON, "patch.schema.json")
)

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateJSON checks a raw patch payload against the schema.
func ValidateJSON(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := patchSchema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(schemaErrors(err), "; "))
	}
	return nil
}

// Validate checks a patch against the schema and the per-item ordering rules.
func Validate(p Patch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := ValidateJSON(data); err != nil {
		return err
	}
	if err := agenda.ValidateSegments(p.Segments); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	anchor := agenda.Anchor(p.Segments)
	if (anchor == nil) != (p.StartedAtSeconds == nil) || (anchor != nil && *anchor != *p.StartedAtSeconds) {
		return fmt.Errorf("%w: started_at_seconds does not match first segment", ErrValidation)
	}
	return nil
}

func schemaErrors(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	collect(ve, &out)
	return out
}

func collect(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}
