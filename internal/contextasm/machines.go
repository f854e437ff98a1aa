package contextasm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// manifest is the on-disk JSON shape of one machine under the configured
// OS-templates directory.
type manifest struct {
	Name    string   `json:"name"`
	Prompt  string   `json:"prompt"`
	Enabled *bool    `json:"enabled"`
	Tools   []string `json:"tools,omitempty"`
}

// LoadMachines reads every *.json manifest in dir into a Machine list.
// A missing directory yields an empty list rather than an error: machines
// are an optional addendum, not a required resource.
func LoadMachines(dir string) ([]Machine, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read machines dir: %w", err)
	}

	var machines []Machine
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		enabled := true
		if m.Enabled != nil {
			enabled = *m.Enabled
		}
		name := m.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".json")
		}
		machines = append(machines, Machine{Name: name, Prompt: m.Prompt, Enabled: enabled})
	}
	return machines, nil
}
