// Package bootstrap loads the gateway startup manifest: which managers are
// enabled, the protocol version, and storage settings.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:manifest"

// DefaultProtocolVersion is the gateway protocol version advertised when the
// manifest does not override it.
const DefaultProtocolVersion = "1.0.0"

// ManagerEntry configures one manager in the manifest.
type ManagerEntry struct {
	// Subject overrides the derived COMMS subject for this manager.
	Subject string `yaml:"subject,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// Manifest is the root startup manifest.
type Manifest struct {
	Name            string                  `yaml:"name"`
	ProtocolVersion string                  `yaml:"protocolVersion"`
	SubjectPrefix   string                  `yaml:"subjectPrefix,omitempty"`
	KVTable         string                  `yaml:"kvTable,omitempty"`
	Managers        map[string]ManagerEntry `yaml:"managers"`
}

// LoadManifest loads the manifest from the first readable path: any paths
// passed in, then GATEWAY_MANIFEST_FILE, then defaults. A missing or
// unparsable file falls back to DefaultManifest.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("GATEWAY_MANIFEST_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/gateway.yaml", "gateway.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest %s: %v", logPrefix, p, err))
			continue
		}
		m.applyDefaults()

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s", logPrefix, p))
		return &m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return DefaultManifest(), nil
}

// DefaultManifest returns the embedded fallback manifest: system manager
// enabled, kv manager enabled when a database is configured.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:            "action-gateway",
		ProtocolVersion: DefaultProtocolVersion,
		Managers: map[string]ManagerEntry{
			"system": {Enabled: true},
			"kv":     {Enabled: true},
		},
	}
}

func (m *Manifest) applyDefaults() {
	if m.Name == "" {
		m.Name = "action-gateway"
	}
	if m.ProtocolVersion == "" {
		m.ProtocolVersion = DefaultProtocolVersion
	}
	if m.Managers == nil {
		m.Managers = map[string]ManagerEntry{}
	}
}

// Enabled reports whether the named manager is enabled in the manifest.
func (m *Manifest) Enabled(name string) bool {
	entry, ok := m.Managers[name]
	return ok && entry.Enabled
}

// Subject returns the manifest's subject override for a manager, if any.
func (m *Manifest) Subject(name string) string {
	return m.Managers[name].Subject
}
