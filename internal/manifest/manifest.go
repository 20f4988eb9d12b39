// Package manifest reads the YAML list of resources a batch run ingests.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/datastorer/internal/core"
)

// Manifest is the parsed resource list.
type Manifest struct {
	Resources []core.Resource `yaml:"resources"`
}

// Load reads and validates the manifest at path. Relative resource paths
// are resolved against the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range m.Resources {
		p := m.Resources[i].Path
		if !filepath.IsAbs(p) {
			m.Resources[i].Path = filepath.Join(dir, p)
		}
	}
	return m, nil
}

// Parse decodes manifest YAML and validates it. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every resource has an id and a path and that ids
// are unique. All problems are reported together.
func (m *Manifest) Validate() error {
	if len(m.Resources) == 0 {
		return errors.New("manifest lists no resources")
	}

	var errs []error
	seen := make(map[string]int, len(m.Resources))
	for i, r := range m.Resources {
		if strings.TrimSpace(r.ID) == "" {
			errs = append(errs, fmt.Errorf("resources[%d]: id is required", i))
		} else if prev, dup := seen[r.ID]; dup {
			errs = append(errs, fmt.Errorf("resources[%d]: id %q already used by resources[%d]", i, r.ID, prev))
		} else {
			seen[r.ID] = i
		}
		if strings.TrimSpace(r.Path) == "" {
			errs = append(errs, fmt.Errorf("resources[%d]: path is required", i))
		}
	}
	return errors.Join(errs...)
}
