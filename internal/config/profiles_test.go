package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgreaves/driftlink/internal/config"
)

func writeProfiles(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadProfilesParsesKnownBackends(t *testing.T) {
	path := writeProfiles(t, `
living-room:
  backend: portaudio
  device: "hw:1,0"
office:
  backend: malgo
  device: "default"
`)

	profiles, err := config.LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "portaudio", profiles["living-room"].Backend)
	assert.Equal(t, "hw:1,0", profiles["living-room"].Device)
}

func TestLoadProfilesRejectsUnknownBackend(t *testing.T) {
	path := writeProfiles(t, `
broken:
  backend: dsound
  device: "whatever"
`)

	_, err := config.LoadProfiles(path)
	assert.Error(t, err)
}

func TestResolveFallsBackToLiteralDeviceString(t *testing.T) {
	profiles := config.Profiles{
		"living-room": {Backend: "portaudio", Device: "hw:1,0"},
	}

	backend, device := profiles.Resolve("living-room", "malgo")
	assert.Equal(t, "portaudio", backend)
	assert.Equal(t, "hw:1,0", device)

	backend, device = profiles.Resolve("hw:2,0", "malgo")
	assert.Equal(t, "malgo", backend)
	assert.Equal(t, "hw:2,0", device)
}
