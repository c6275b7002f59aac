package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// LoadSchemas compiles every "<provider>.json" JSON Schema found in dir.
// Providers without a schema file get shape validation only.
func LoadSchemas(dir string) (map[string]*jsonschema.Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory: %w", err)
	}

	schemas := make(map[string]*jsonschema.Schema)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		provider := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(dir, entry.Name())

		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening schema %s: %w", path, err)
		}
		doc, err := jsonschema.UnmarshalJSON(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", path, err)
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("registering schema %s: %w", path, err)
		}
		schema, err := compiler.Compile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", path, err)
		}
		schemas[provider] = schema
	}
	return schemas, nil
}
