package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscline/oscline/pkg/transport"
)

const sample = `
loglevel: debug
transport:
  spec:
    type: udp4
    routing: multicast
    open:
      host: 0.0.0.0
      port: 9000
    send:
      port: 9001
      group: 239.255.0.1
    multicast:
      ttl: 4
      loopback: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Loglevel)

	opts, err := cfg.Transport.TransportOptions()
	require.NoError(t, err)

	require.NotNil(t, opts.Type)
	assert.Equal(t, "udp4", *opts.Type)
	require.NotNil(t, opts.Routing)
	assert.Equal(t, transport.RoutingMulticast, *opts.Routing)

	require.NotNil(t, opts.Open)
	require.NotNil(t, opts.Open.Host)
	assert.Equal(t, "0.0.0.0", *opts.Open.Host)
	require.NotNil(t, opts.Open.Port)
	assert.Equal(t, 9000, *opts.Open.Port)
	assert.Nil(t, opts.Open.Exclusive, "unset fields stay nil so defaults survive the merge")

	require.NotNil(t, opts.Send)
	assert.Nil(t, opts.Send.Host)
	require.NotNil(t, opts.Send.Group)
	assert.Equal(t, "239.255.0.1", *opts.Send.Group)

	require.NotNil(t, opts.Multicast)
	require.NotNil(t, opts.Multicast.TTL)
	assert.Equal(t, 4, *opts.Multicast.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestTransportOptionsEmptySpec(t *testing.T) {
	cfg, err := Load(writeConfig(t, "loglevel: info\n"))
	require.NoError(t, err)

	opts, err := cfg.Transport.TransportOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.Open)
	assert.Nil(t, opts.Send)
	assert.Nil(t, opts.Multicast)
}
