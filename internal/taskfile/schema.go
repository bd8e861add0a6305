package taskfile

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// contractSchema is a first-pass shape check run before the manual field
// rules in Validate. It rejects the same malformed shapes Validate would
// (wrong kinds, unknown keys), but as a single structural pass — cheaper to
// run against every task file pulled off the queue, and a second, independent
// rendering of the contract that the manual rules can be checked against
// (SPEC_FULL.md §4A).
const contractSchemaDoc = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"required": ["repo_path", "argv"],
	"properties": {
		"repo_path": {"type": "string", "minLength": 1},
		"argv": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		},
		"label": {"type": "string", "minLength": 1}
	}
}`

var compiledContractSchema = mustCompileSchema(contractSchemaDoc)

func mustCompileSchema(doc string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("taskfile.json", bytes.NewReader([]byte(doc))); err != nil {
		panic(err)
	}
	s, err := c.Compile("taskfile.json")
	if err != nil {
		panic(err)
	}
	return s
}

// MatchesContractSchema reports whether raw satisfies the structural task-file
// schema. It round-trips through encoding/json rather than validating the
// map directly, since the compiled schema expects the same numeric/string
// typing json.Unmarshal already produced for raw.
func MatchesContractSchema(raw map[string]any) bool {
	b, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return false
	}
	return compiledContractSchema.Validate(doc) == nil
}
