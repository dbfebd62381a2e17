package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemasFS embed.FS

var statementsSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	raw, err := schemasFS.ReadFile("schemas/statements_page.json")
	if err != nil {
		log.Fatalf("failed to read embedded statements schema: %v", err)
	}
	if err := compiler.AddResource("schemas/statements_page.json", bytes.NewReader(raw)); err != nil {
		log.Fatalf("failed to add statements schema resource: %v", err)
	}

	statementsSchema, err = compiler.Compile("schemas/statements_page.json")
	if err != nil {
		log.Fatalf("failed to compile statements schema: %v", err)
	}
}

// ValidateStatementsPayload checks a raw statements API response
// against the embedded contract before anything downstream touches it.
func ValidateStatementsPayload(body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := statementsSchema.Validate(doc); err != nil {
		return fmt.Errorf("payload does not match statements contract: %w", err)
	}
	return nil
}
