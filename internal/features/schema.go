package features

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/washwatch/washwatch-go/internal/utils"
)

// Schema is the externally supplied ordered list of feature names the
// classifier was trained with. Name-to-position mapping is fixed per
// deployment; a mismatch is a hard failure, never a silent reorder.
type Schema struct {
	names []string
}

// NewSchema builds a schema from an ordered name list.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, utils.NewSchemaMismatchError("", "schema contains no feature names")
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return nil, utils.NewSchemaMismatchError("", "schema contains an empty feature name")
		}
		if _, dup := seen[name]; dup {
			return nil, utils.NewSchemaMismatchError(name, "duplicate feature name")
		}
		seen[name] = struct{}{}
	}
	ordered := make([]string, len(names))
	copy(ordered, names)
	return &Schema{names: ordered}, nil
}

// LoadSchema reads the schema artifact: a JSON array of feature names, as
// persisted at training time.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature schema %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse feature schema %s: %w", path, err)
	}
	return NewSchema(names)
}

// Names returns the ordered feature names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Len returns the number of features in the schema.
func (s *Schema) Len() int {
	return len(s.names)
}

// Validate checks that every schema name can be computed from the given set
// of available features. It must be called before any classifier invocation;
// a missing name indicates deployment misconfiguration and aborts the batch.
func (s *Schema) Validate(available map[string]struct{}) error {
	for _, name := range s.names {
		if _, ok := available[name]; !ok {
			return utils.NewSchemaMismatchError(name, "not computed by this engine")
		}
	}
	return nil
}
