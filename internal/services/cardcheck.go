package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrCardInvalid can be used with errors.Is to detect schema failures.
var ErrCardInvalid = errors.New("agent card invalid")

// CardChecker validates agent card documents against the versioned card
// schemas before an identity is minted or its card replaced.
type CardChecker struct {
	schemas map[string]*jsonschema.Schema
	latest  string
}

// NewCardChecker loads all *.json schema files from schemaDir and compiles
// them, keyed by version (the file name without extension, e.g.
// "agent-card.v1"). The lexically last version is used for documents that
// don't declare one.
func NewCardChecker(ctx context.Context, schemaDir string) (*CardChecker, error) {
	_ = ctx
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}

	schemas := make(map[string]*jsonschema.Schema)
	latest := ""
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		version := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://agoramarket.dev/schemas/" + version
		schemas[version], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", version, err)
		}
		if version > latest {
			latest = version
		}
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("no card schemas in %q", schemaDir)
	}

	return &CardChecker{schemas: schemas, latest: latest}, nil
}

// Validate hard-rejects a card document that does not match its schema. The
// document's "schema_version" field selects the schema; absent, the latest
// one applies.
func (c *CardChecker) Validate(ctx context.Context, card json.RawMessage) error {
	_ = ctx
	var doc interface{}
	if err := json.Unmarshal(card, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	version := c.latest
	if m, ok := doc.(map[string]interface{}); ok {
		if v, ok := m["schema_version"].(string); ok && v != "" {
			version = v
		}
	}
	schema, ok := c.schemas[version]
	if !ok {
		return fmt.Errorf("%w: unknown schema_version %q", ErrCardInvalid, version)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCardInvalid, err)
	}
	return nil
}
