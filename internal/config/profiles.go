// Package config loads the optional device-profile file that lets an
// operator write a short alias instead of a raw backend/device-string pair
// on the command line (SPEC_FULL's ambient-stack "Config" section). The
// CLI surface in spec.md §6 is unchanged; --profiles is purely additive.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile names one playback or capture device: a backend ("portaudio" or
// "malgo") plus the backend-specific device string.
type Profile struct {
	Backend string `yaml:"backend"`
	Device  string `yaml:"device"`
}

// Profiles maps an alias (e.g. "living-room") to a Profile.
type Profiles map[string]Profile

// LoadProfiles reads and parses a YAML profile file.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading profiles file: %w", err)
	}

	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("config: parsing profiles file: %w", err)
	}

	for alias, p := range profiles {
		if p.Backend != "portaudio" && p.Backend != "malgo" {
			return nil, fmt.Errorf("config: profile %q: unknown backend %q, want portaudio or malgo", alias, p.Backend)
		}
	}

	return profiles, nil
}

// Resolve looks up name in profiles; if name isn't a known alias, it is
// passed through unchanged as a literal device string alongside
// fallbackBackend, so --profiles is always optional (spec.md §6 still
// accepts a raw device string directly).
func (p Profiles) Resolve(name, fallbackBackend string) (backend, device string) {
	if profile, ok := p[name]; ok {
		return profile.Backend, profile.Device
	}
	return fallbackBackend, name
}
