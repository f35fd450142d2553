package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AddressMapping maps inbound recipient addresses to department ids. Tickets
// created from mail sent to an unmapped address land in the fallback
// department.
type AddressMapping struct {
	Departments map[string]int64 `yaml:"departments"`
}

// LoadAddressMapping reads the YAML mapping file. A missing path yields an
// empty mapping rather than an error so the pipeline can run with the
// fallback department only.
func LoadAddressMapping(path string) (*AddressMapping, error) {
	mapping := &AddressMapping{Departments: map[string]int64{}}
	if path == "" {
		return mapping, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read address mapping: %w", err)
	}
	if err := yaml.Unmarshal(content, mapping); err != nil {
		return nil, fmt.Errorf("parse address mapping: %w", err)
	}
	normalized := make(map[string]int64, len(mapping.Departments))
	for addr, dept := range mapping.Departments {
		normalized[strings.ToLower(strings.TrimSpace(addr))] = dept
	}
	mapping.Departments = normalized
	return mapping, nil
}

// DepartmentFor returns the department mapped to the first matching recipient
// address, or fallback when none match.
func (m *AddressMapping) DepartmentFor(recipients []string, fallback int64) int64 {
	if m != nil {
		for _, r := range recipients {
			if id, ok := m.Departments[strings.ToLower(strings.TrimSpace(r))]; ok {
				return id
			}
		}
	}
	return fallback
}
