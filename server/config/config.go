// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/TabletDB/tabletmeta/pkg/log"
	"github.com/caarlos0/env/v6"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPPort                 = 8081
	defaultEtcdEndpoints            = "http://127.0.0.1:2379"
	defaultRootPath                 = "/tabletmeta"
	defaultEtcdCallTimeoutMs  int64 = 5 * 1000
	defaultEtcdDialTimeoutMs  int64 = 5 * 1000
	defaultLeaseTTLSec        int64 = 10
	defaultKeepAliveCheckMs   int64 = 10 * 1000
	defaultGetTaskStatusMs    int64 = 2 * 1000
	defaultHTTPTimeoutMs      int64 = 60 * 1000
	defaultLimiterRate              = 1000
	defaultLimiterBurst             = 1000
	defaultNodeNamePrefix           = "tabletmeta"
	defaultEndpointPortSuffix       = ":9527"
)

type LimiterConfig struct {
	// Limit is the updated rate of tokens.
	Limit int `toml:"limit" env:"FLOW_LIMITER_LIMIT"`
	// Burst is the maximum number of tokens.
	Burst int `toml:"burst" env:"FLOW_LIMITER_BURST"`
	// Enable is used to control the switch of the limiter.
	Enable bool `toml:"enable" env:"FLOW_LIMITER_ENABLE"`
}

type Config struct {
	Log log.Config `toml:"log" json:"log"`

	// NodeName is the member name of this node in the name-server cluster.
	NodeName string `toml:"node-name" env:"NODE_NAME" json:"node-name"`
	// Endpoint is the advertised address of this process and the identity
	// payload of the distributed lock.
	Endpoint string `toml:"endpoint" env:"ENDPOINT" json:"endpoint"`
	HTTPPort int    `toml:"http-port" env:"HTTP_PORT" json:"http-port"`

	// EtcdEndpoints is the comma-separated coordination cluster to join.
	EtcdEndpoints     string `toml:"etcd-endpoints" env:"ETCD_ENDPOINTS" json:"etcd-endpoints"`
	RootPath          string `toml:"root-path" env:"ROOT_PATH" json:"root-path"`
	EtcdCallTimeoutMs int64  `toml:"etcd-call-timeout-ms" json:"etcd-call-timeout-ms"`
	EtcdDialTimeoutMs int64  `toml:"etcd-dial-timeout-ms" json:"etcd-dial-timeout-ms"`

	// LeaseTTLSec is the session timeout of the leadership lease.
	LeaseTTLSec int64 `toml:"lease-ttl-sec" env:"LEASE_TTL_SEC" json:"lease-sec"`
	// KeepAliveCheckIntervalMs is the period of the coordination-session
	// liveness probe.
	KeepAliveCheckIntervalMs int64 `toml:"keep-alive-check-interval-ms" json:"keep-alive-check-interval-ms"`
	// GetTaskStatusIntervalMs is the period of the tablet status poller.
	GetTaskStatusIntervalMs int64 `toml:"get-task-status-interval-ms" json:"get-task-status-interval-ms"`

	HTTPReadTimeoutMs  int64 `toml:"http-read-timeout-ms" json:"http-read-timeout-ms"`
	HTTPWriteTimeoutMs int64 `toml:"http-write-timeout-ms" json:"http-write-timeout-ms"`

	FlowLimiter LimiterConfig `toml:"flow-limiter" json:"flow-limiter"`
}

func (c *Config) EtcdCallTimeout() time.Duration {
	return time.Duration(c.EtcdCallTimeoutMs) * time.Millisecond
}

func (c *Config) EtcdDialTimeout() time.Duration {
	return time.Duration(c.EtcdDialTimeoutMs) * time.Millisecond
}

func (c *Config) KeepAliveCheckInterval() time.Duration {
	return time.Duration(c.KeepAliveCheckIntervalMs) * time.Millisecond
}

func (c *Config) GetTaskStatusInterval() time.Duration {
	return time.Duration(c.GetTaskStatusIntervalMs) * time.Millisecond
}

func (c *Config) HTTPReadTimeout() time.Duration {
	return time.Duration(c.HTTPReadTimeoutMs) * time.Millisecond
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutMs) * time.Millisecond
}

// EtcdEndpointList splits the comma separated endpoints.
func (c *Config) EtcdEndpointList() []string {
	parts := strings.Split(c.EtcdEndpoints, ",")
	endpoints := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			endpoints = append(endpoints, part)
		}
	}
	return endpoints
}

// ValidateAndAdjust validates the config fields and adjusts some fields which should be adjusted.
// Return error if any field is invalid.
func (c *Config) ValidateAndAdjust() error {
	if len(c.EtcdEndpointList()) == 0 {
		return ErrInvalidConfig.WithCausef("etcd-endpoints is empty")
	}
	if c.RootPath == "" || !strings.HasPrefix(c.RootPath, "/") {
		return ErrInvalidConfig.WithCausef("root-path must be absolute, got:%s", c.RootPath)
	}
	// The root path is a key prefix, a trailing slash would double the separator.
	c.RootPath = strings.TrimRight(c.RootPath, "/")
	if c.LeaseTTLSec <= 0 {
		return ErrInvalidConfig.WithCausef("lease-ttl-sec must be positive, got:%d", c.LeaseTTLSec)
	}
	return nil
}

// Parser builds the config from the flags, an optional TOML file and the
// environment, in that order of precedence (later wins).
type Parser struct {
	flagSet        *flag.FlagSet
	cfg            *Config
	configFilePath string
}

func (p *Parser) Parse(arguments []string) (*Config, error) {
	if err := p.flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return nil, ErrHelpRequested.WithCause(err)
		}
		return nil, ErrInvalidCommandArgs.WithCausef("original arguments:%v, parse err:%v", arguments, err)
	}

	if p.configFilePath != "" {
		raw, err := os.ReadFile(p.configFilePath)
		if err != nil {
			return nil, ErrLoadConfigFile.WithCausef("path:%s, err:%v", p.configFilePath, err)
		}
		if err := toml.Unmarshal(raw, p.cfg); err != nil {
			return nil, ErrLoadConfigFile.WithCausef("path:%s, err:%v", p.configFilePath, err)
		}
	}

	if err := env.Parse(p.cfg); err != nil {
		return nil, ErrParseConfigEnv.WithCause(err)
	}

	return p.cfg, nil
}

func makeDefaultNodeName() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", ErrRetrieveHostname.WithCause(err)
	}

	return fmt.Sprintf("%s-%s", defaultNodeNamePrefix, host), nil
}

func makeDefaultEndpoint() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", ErrRetrieveHostname.WithCause(err)
	}

	return host + defaultEndpointPortSuffix, nil
}

func MakeConfigParser() (*Parser, error) {
	fs, cfg := flag.NewFlagSet("meta", flag.ContinueOnError), &Config{}
	builder := &Parser{
		flagSet: fs,
		cfg:     cfg,
	}

	fs.StringVar(&builder.configFilePath, "config", "", "path of the TOML config file")

	fs.StringVar(&cfg.Log.Level, "log-level", log.DefaultLogLevel, "level of the log")
	fs.StringVar(&cfg.Log.File, "log-file", log.DefaultLogFile, "file for log output")

	defaultNodeName, err := makeDefaultNodeName()
	if err != nil {
		return nil, err
	}
	fs.StringVar(&cfg.NodeName, "node-name", defaultNodeName, "member name of this node in the cluster")

	defaultEndpoint, err := makeDefaultEndpoint()
	if err != nil {
		return nil, err
	}
	fs.StringVar(&cfg.Endpoint, "endpoint", defaultEndpoint, "advertised address of this process")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "port of the admin http service")

	fs.StringVar(&cfg.EtcdEndpoints, "etcd-endpoints", defaultEtcdEndpoints, "comma separated endpoints of the coordination cluster")
	fs.StringVar(&cfg.RootPath, "root-path", defaultRootPath, "root path of this cluster in the coordination store")
	fs.Int64Var(&cfg.EtcdCallTimeoutMs, "etcd-call-timeout-ms", defaultEtcdCallTimeoutMs, "timeout for calling the coordination cluster")
	fs.Int64Var(&cfg.EtcdDialTimeoutMs, "etcd-dial-timeout-ms", defaultEtcdDialTimeoutMs, "timeout for dialing the coordination cluster")

	fs.Int64Var(&cfg.LeaseTTLSec, "lease-ttl-sec", defaultLeaseTTLSec, "ttl of the leadership lease (suggest 10s)")
	fs.Int64Var(&cfg.KeepAliveCheckIntervalMs, "keep-alive-check-interval-ms", defaultKeepAliveCheckMs, "period of the coordination-session liveness probe")
	fs.Int64Var(&cfg.GetTaskStatusIntervalMs, "get-task-status-interval-ms", defaultGetTaskStatusMs, "period of the tablet status poller")

	fs.Int64Var(&cfg.HTTPReadTimeoutMs, "http-read-timeout-ms", defaultHTTPTimeoutMs, "read timeout of the admin http service")
	fs.Int64Var(&cfg.HTTPWriteTimeoutMs, "http-write-timeout-ms", defaultHTTPTimeoutMs, "write timeout of the admin http service")

	fs.IntVar(&cfg.FlowLimiter.Limit, "flow-limiter-limit", defaultLimiterRate, "token rate of the table creation flow limiter")
	fs.IntVar(&cfg.FlowLimiter.Burst, "flow-limiter-burst", defaultLimiterBurst, "token burst of the table creation flow limiter")
	fs.BoolVar(&cfg.FlowLimiter.Enable, "flow-limiter-enable", false, "enable the table creation flow limiter")

	return builder, nil
}
