package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
server:
  http_port: 8080
dw:
  host: 192.168.0.10
  port: 7001
  username: admin
  password: secret
`

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	// 폴링 기본값
	assert.Equal(t, 15, config.Poll.CamerasInterval)
	assert.Equal(t, 15, config.Poll.ServerInterval)
	assert.Equal(t, 30, config.Poll.StatusInterval)
	assert.Equal(t, 3, config.Poll.WriteRetryCount)
	assert.Equal(t, 1, config.Poll.WriteRetryDelay)

	assert.Equal(t, 5, config.Probe.Timeout)
	assert.Equal(t, "data/camera_state.json", config.State.FilePath)
	assert.Equal(t, "homeassistant", config.MQTT.DiscoveryPrefix)
	assert.Equal(t, "dwbridge", config.MQTT.BaseTopic)
}

func TestLoadConfigOverrides(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, minimalConfig+`
poll:
  cameras_interval: 5
  status_interval: 60
state:
  file_path: /var/lib/dwbridge/state.json
`))
	require.NoError(t, err)

	assert.Equal(t, 5, config.Poll.CamerasInterval)
	assert.Equal(t, 60, config.Poll.StatusInterval)
	assert.Equal(t, "/var/lib/dwbridge/state.json", config.State.FilePath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing host", `
server:
  http_port: 8080
dw:
  port: 7001
  username: admin
`},
		{"missing username", `
server:
  http_port: 8080
dw:
  host: 10.0.0.1
  port: 7001
`},
		{"bad port", `
server:
  http_port: 99999
dw:
  host: 10.0.0.1
  port: 7001
  username: admin
`},
		{"mqtt enabled without broker", minimalConfig + `
mqtt:
  enabled: true
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}
