// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	r := require.New(t)

	parser, err := MakeConfigParser()
	r.NoError(err)
	cfg, err := parser.Parse([]string{})
	r.NoError(err)

	r.NoError(cfg.ValidateAndAdjust())
	r.Equal(defaultHTTPPort, cfg.HTTPPort)
	r.Equal([]string{"http://127.0.0.1:2379"}, cfg.EtcdEndpointList())
	r.Equal("/tabletmeta", cfg.RootPath)
	r.Equal(defaultLeaseTTLSec, cfg.LeaseTTLSec)
}

func TestParseFlagsAndFile(t *testing.T) {
	r := require.New(t)

	cfgPath := filepath.Join(t.TempDir(), "meta.toml")
	r.NoError(os.WriteFile(cfgPath, []byte(`
root-path = "/tabletmeta/prod/"
lease-ttl-sec = 20

[log]
level = "warn"

[flow-limiter]
limit = 5
burst = 10
enable = true
`), 0o600))

	parser, err := MakeConfigParser()
	r.NoError(err)
	cfg, err := parser.Parse([]string{
		"--config", cfgPath,
		"--etcd-endpoints", "http://10.0.0.1:2379, http://10.0.0.2:2379",
	})
	r.NoError(err)
	r.NoError(cfg.ValidateAndAdjust())

	// The trailing slash of the root path is trimmed during validation.
	r.Equal("/tabletmeta/prod", cfg.RootPath)
	r.Equal(int64(20), cfg.LeaseTTLSec)
	r.Equal("warn", cfg.Log.Level)
	r.Equal([]string{"http://10.0.0.1:2379", "http://10.0.0.2:2379"}, cfg.EtcdEndpointList())
	r.Equal(5, cfg.FlowLimiter.Limit)
	r.True(cfg.FlowLimiter.Enable)
}

func TestParseEnvOverride(t *testing.T) {
	r := require.New(t)

	t.Setenv("ENDPOINT", "10.1.2.3:9527")
	t.Setenv("LOG_LEVEL", "debug")

	parser, err := MakeConfigParser()
	r.NoError(err)
	cfg, err := parser.Parse([]string{"--endpoint", "ignored:1"})
	r.NoError(err)

	// Environment wins over flags.
	r.Equal("10.1.2.3:9527", cfg.Endpoint)
	r.Equal("debug", cfg.Log.Level)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	r := require.New(t)

	parser, err := MakeConfigParser()
	r.NoError(err)
	cfg, err := parser.Parse([]string{"--root-path", "relative/path"})
	r.NoError(err)
	r.Error(cfg.ValidateAndAdjust())

	parser, err = MakeConfigParser()
	r.NoError(err)
	cfg, err = parser.Parse([]string{"--lease-ttl-sec", "0"})
	r.NoError(err)
	r.Error(cfg.ValidateAndAdjust())
}
