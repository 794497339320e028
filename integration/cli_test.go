package integration

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIConfigInitGeneratesValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "generated-config.json")

	output, err := exec.Command(checkinBinary, "-config-init", configPath).CombinedOutput()
	t.Logf("config-init output: %s", output)
	require.NoError(t, err)
	assert.Contains(t, string(output), "Generated default config at:")

	fi, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Greater(t, fi.Size(), int64(0))

	output, err = exec.Command(checkinBinary, "-config", configPath, "-validate").CombinedOutput()
	t.Logf("validate output: %s", output)
	require.NoError(t, err, "generated config must validate")
	assert.Contains(t, string(output), "Result: PASS")
}

func TestCLIRejectsInvalidConfigBeforeListening(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{
			name: "noSSL with encrypted backend",
			config: `{
				"version": "v0.0.1-checkin",
				"server": {"addr": "127.0.0.1:0", "baseURL": "http://localhost:8080", "noSSL": true},
				"backend": {"api": {"plain": "http://localhost:8000"}, "expectEncrypted": true},
				"oauth": {
					"providerURL": "http://localhost:8000",
					"clientId": "checkin",
					"clientSecret": {"$env": "CHECKIN_IT_CLIENT_SECRET"},
					"stateSecret": {"$env": "CHECKIN_IT_STATE_SECRET"}
				},
				"storage": {"kind": "memory"}
			}`,
		},
		{
			name: "short state secret",
			config: `{
				"version": "v0.0.1-checkin",
				"server": {"addr": "127.0.0.1:0", "baseURL": "http://localhost:8080", "noSSL": true},
				"backend": {"api": {"plain": "http://localhost:8000"}},
				"oauth": {
					"providerURL": "http://localhost:8000",
					"clientId": "checkin",
					"clientSecret": {"$env": "CHECKIN_IT_CLIENT_SECRET"},
					"stateSecret": {"$env": "CHECKIN_IT_CLIENT_SECRET"}
				},
				"storage": {"kind": "memory"}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.config), 0o600))

			cmd := exec.Command(checkinBinary, "-config", path)
			cmd.Env = append(os.Environ(),
				"CHECKIN_IT_CLIENT_SECRET=secret",
				"CHECKIN_IT_STATE_SECRET="+strings.Repeat("x", 32),
			)
			output, err := cmd.CombinedOutput()
			t.Logf("output: %s", output)

			var exitErr *exec.ExitError
			require.True(t, errors.As(err, &exitErr), "process must exit with an error")
			assert.Equal(t, 1, exitErr.ExitCode())
			assert.NotContains(t, string(output), "HTTP server starting")
		})
	}
}
