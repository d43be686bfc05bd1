package categorize

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed seed/dict.json
	defaultSeedJSON []byte

	//go:embed seed/schema.json
	seedSchemaJSON []byte

	seedSchemaOnce sync.Once
	seedSchema     *jsonschema.Schema
	seedSchemaErr  error
)

// Seed maps raw product names to legacy department labels.
type Seed map[string]string

// DefaultSeed returns the dictionary shipped with the binary.
func DefaultSeed() (Seed, error) {
	return ParseSeed(defaultSeedJSON)
}

// LoadSeed reads a seed file. Both {"map": {...}} and a bare object are accepted.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return seed, nil
}

// SeedFrom loads the seed at path, or the embedded one when path is empty.
func SeedFrom(path string) (Seed, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSeed()
	}
	return LoadSeed(path)
}

func ParseSeed(data []byte) (Seed, error) {
	schema, err := compiledSeedSchema()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal seed: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("seed does not match schema: %w", err)
	}

	obj := v.(map[string]any)
	if inner, ok := obj["map"].(map[string]any); ok {
		obj = inner
	}
	seed := make(Seed, len(obj))
	for name, label := range obj {
		if s, ok := label.(string); ok {
			seed[name] = s
		}
	}
	return seed, nil
}

func compiledSeedSchema() (*jsonschema.Schema, error) {
	seedSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("seed.json", bytes.NewReader(seedSchemaJSON)); err != nil {
			seedSchemaErr = fmt.Errorf("add seed schema: %w", err)
			return
		}
		seedSchema, seedSchemaErr = compiler.Compile("seed.json")
		if seedSchemaErr != nil {
			seedSchemaErr = fmt.Errorf("compile seed schema: %w", seedSchemaErr)
		}
	})
	return seedSchema, seedSchemaErr
}
