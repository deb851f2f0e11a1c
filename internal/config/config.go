/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package config holds the ConfigRegistry: the immutable, atomically-snapshotted
// merged server configuration (defaults overlaid by file config overlaid by
// environment variables) plus the process-wide "system" state.
package config

import (
	"bytes"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
)

// registry holds the current, readable configuration snapshot. Readers obtain
// a reference valid for the duration of their read; Load/Update replace the
// pointer atomically so concurrent readers never observe a torn write.
var registry atomic.Pointer[XyPrissConfig]

// LoaderWarnings holds warnings generated during config load, before the
// logger has been initialized, so they can be flushed once it is.
var LoaderWarnings = make([]string, 0)

// System holds process-wide state written once at startup (alias, name,
// version, environment) and never concurrently mutated afterward, so unlike
// the rest of the configuration it is a plain package variable rather than
// part of the atomic snapshot.
var System = &SystemConfig{}

// SystemConfig is the process-wide "system" state exposed alongside the
// ConfigRegistry.
type SystemConfig struct {
	Alias       string
	Name        string
	Version     string
	Environment string
	InstanceID  int
}

// Get returns a deep copy of the current configuration snapshot. It is safe
// to call from any number of concurrent goroutines, and the returned value
// may be read or modified freely without affecting the shared snapshot;
// changes become visible to other readers only through Update.
func Get() *XyPrissConfig {
	c := registry.Load()
	if c == nil {
		return defaultConfig()
	}
	return c.Clone()
}

// set installs a new configuration snapshot atomically.
func set(c *XyPrissConfig) { registry.Store(c) }

// XyPrissConfig is the root configuration object, one field per
// recognized configuration group.
type XyPrissConfig struct {
	Server            *ServerConfig            `toml:"server"`
	Cache             *CacheConfig             `toml:"cache"`
	Security          *SecurityConfig          `toml:"security"`
	Cluster           *ClusterConfig           `toml:"cluster"`
	Network           *NetworkConfig           `toml:"network"`
	RequestManagement *RequestManagementConfig `toml:"requestManagement"`
	Logging           *LoggingConfig           `toml:"logging"`
	Plugins           *PluginsConfig           `toml:"plugins"`
	Metrics           *MetricsConfig           `toml:"metrics"`
	Tracing           *TracingConfig           `toml:"tracing"`
}

// ServerConfig is the "server" configuration group.
type ServerConfig struct {
	Port            int             `toml:"port" validate:"gte=0,lte=65535"`
	Host            string          `toml:"host"`
	AutoPortSwitch  *AutoPortSwitch `toml:"autoPortSwitch"`
	JSONLimit       int64           `toml:"jsonLimit" validate:"gte=0"`
	URLEncodedLimit int64           `toml:"urlEncodedLimit" validate:"gte=0"`
	AutoParseJSON   bool            `toml:"autoParseJson"`
}

// AutoPortSwitch configures PortManager's bind-failure recovery.
type AutoPortSwitch struct {
	Enabled         bool   `toml:"enabled"`
	Strategy        string `toml:"strategy" validate:"omitempty,oneof=increment random predefined"`
	MaxAttempts     int    `toml:"maxAttempts" validate:"gte=0"`
	PortRangeStart  int    `toml:"portRangeStart"`
	PortRangeEnd    int    `toml:"portRangeEnd"`
	PredefinedPorts []int  `toml:"predefinedPorts"`
}

// CacheConfig is the "cache" configuration group.
type CacheConfig struct {
	Strategy          string            `toml:"strategy" validate:"oneof=memory redis hybrid auto bbolt badger"`
	MaxSize           int64             `toml:"maxSize"`
	TTLSecs           int               `toml:"ttl"`
	Redis             RedisCacheConfig  `toml:"redis"`
	Memory            MemoryCacheConfig `toml:"memory"`
	BBolt             BBoltCacheConfig  `toml:"bbolt"`
	Badger            BadgerCacheConfig `toml:"badger"`
	EnableCompression bool              `toml:"enableCompression"`
	CompressionLevel  int               `toml:"compressionLevel" validate:"gte=1,lte=9"`
	EnableEncryption  bool              `toml:"enableEncryption"`
	MasterKeyEnvVar   string            `toml:"masterKeyEnvVar"`

	// CompatFallback, when set, makes a failed envelope decrypt fall
	// through to treating the stored bytes as unencrypted (with a one-time
	// warning) instead of erroring. Intended only for rollout windows where
	// pre-encryption entries are still live; keep off in production.
	CompatFallback bool `toml:"compatFallback"`

	// Synthesized.
	TTL time.Duration `toml:"-"`
}

// RedisCacheConfig configures the distributed tier's Redis backend
// (go-redis/redis).
type RedisCacheConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Password string   `toml:"password"`
	Cluster  bool     `toml:"cluster"`
	Nodes    []string `toml:"nodes"`
	DB       int      `toml:"db"`
}

// MemoryCacheConfig bounds the memory tier.
type MemoryCacheConfig struct {
	MaxSize    int64 `toml:"maxSize"`
	MaxEntries int   `toml:"maxEntries"`
}

// BBoltCacheConfig configures the durable go.etcd.io/bbolt-backed tier.
type BBoltCacheConfig struct {
	Filename string `toml:"filename"`
	Bucket   string `toml:"bucket"`
}

// BadgerCacheConfig configures the durable dgraph-io/badger-backed tier.
type BadgerCacheConfig struct {
	Directory      string `toml:"directory"`
	ValueDirectory string `toml:"valueDirectory"`
}

// SecurityConfig is the "security" configuration group.
type SecurityConfig struct {
	Encryption     bool           `toml:"encryption"`
	CORS           bool           `toml:"cors"`
	Helmet         bool           `toml:"helmet"`
	XSS            bool           `toml:"xss"`
	BruteForce     bool           `toml:"bruteForce"`
	Authentication Authentication `toml:"authentication"`
}

// Authentication carries the JWT middleware configuration key.
type Authentication struct {
	JWT JWTConfig `toml:"jwt"`
}

// JWTConfig configures golang-jwt/jwt/v5-backed token validation.
type JWTConfig struct {
	Secret        string        `toml:"secret"`
	ExpiresInSecs int           `toml:"expiresIn"`
	ExpiresIn     time.Duration `toml:"-"`
}

// ClusterConfig is the "cluster" configuration group.
type ClusterConfig struct {
	Enabled bool                `toml:"enabled"`
	Config  ClusterWorkerConfig `toml:"config"`
}

// ClusterWorkerConfig holds ClusterSupervisor tuning knobs.
type ClusterWorkerConfig struct {
	Workers           int `toml:"workers"`
	MaxRestarts       int `toml:"maxRestarts" validate:"gte=0"`
	RestartWindowSecs int `toml:"restartWindow" validate:"gte=0"`
	MinWorkers        int `toml:"minWorkers" validate:"gte=0"`
	MaxWorkers        int `toml:"maxWorkers" validate:"gte=0"`

	RestartWindow time.Duration `toml:"-"`
}

// NetworkConfig is the "network" configuration group.
type NetworkConfig struct {
	Connection  ConnectionConfig  `toml:"connection"`
	Compression CompressionConfig `toml:"compression"`
	RateLimit   RateLimitConfig   `toml:"rateLimit"`
	Proxy       ProxyConfig       `toml:"proxy"`
}

// ConnectionConfig configures the Connection NetworkPlugin.
type ConnectionConfig struct {
	Enabled                   bool   `toml:"enabled"`
	HTTP2MaxConcurrentStreams uint32 `toml:"http2MaxConcurrentStreams"`
	HTTP2InitialWindowSize    int32  `toml:"http2InitialWindowSize"`
	KeepAliveTimeoutSecs      int    `toml:"keepAliveTimeoutSecs"`
	MaxRequestsPerConn        int    `toml:"maxRequestsPerConn"`
	MaxIdleConns              int    `toml:"maxIdleConns"`

	KeepAliveTimeout time.Duration `toml:"-"`
}

// CompressionConfig configures the Compression NetworkPlugin.
type CompressionConfig struct {
	Enabled        bool     `toml:"enabled"`
	Algorithms     []string `toml:"algorithms" validate:"dive,oneof=gzip deflate brotli"`
	ContentTypes   []string `toml:"contentTypes"`
	ThresholdBytes int      `toml:"threshold"`
	Level          int      `toml:"level" validate:"gte=1,lte=9"`
}

// RateLimitConfig configures the RateLimit NetworkPlugin.
type RateLimitConfig struct {
	Enabled      bool   `toml:"enabled"`
	Strategy     string `toml:"strategy" validate:"omitempty,oneof=fixed-window sliding-window token-bucket"`
	Requests     int    `toml:"requests"`
	WindowMS     int    `toml:"windowMs"`
	KeyBy        string `toml:"keyBy" validate:"omitempty,oneof=global ip user route"`
	Distributed  bool   `toml:"distributed"`
	HeaderPrefix string `toml:"headerPrefix"`

	Window time.Duration `toml:"-"`
}

// ProxyConfig configures the Proxy NetworkPlugin's reverse-proxy behavior.
type ProxyConfig struct {
	Enabled            bool              `toml:"enabled"`
	Upstreams          []UpstreamConfig  `toml:"upstreams"`
	LoadBalancing      string            `toml:"loadBalancing" validate:"omitempty,oneof=round-robin weighted-round-robin ip-hash least-connections least-response-time"`
	HealthCheckPath    string            `toml:"healthCheckPath"`
	HealthCheckVerb    string            `toml:"healthCheckVerb"`
	HealthCheckQuery   string            `toml:"healthCheckQuery"`
	HealthCheckHeaders map[string]string `toml:"healthCheckHeaders"`
	UnhealthyThreshold int               `toml:"unhealthyThreshold" validate:"gte=1"`
	HealthyThreshold   int               `toml:"healthyThreshold" validate:"gte=1"`
	CircuitBreaker     bool              `toml:"circuitBreaker"`
}

// UpstreamConfig describes one weighted proxy upstream.
type UpstreamConfig struct {
	URL    string `toml:"url"`
	Weight int    `toml:"weight" validate:"gte=1"`
}

// RequestManagementConfig is the "requestManagement" configuration group.
type RequestManagementConfig struct {
	Timeout        TimeoutConfig        `toml:"timeout"`
	NetworkQuality NetworkQualityConfig `toml:"networkQuality"`
	Concurrency    ConcurrencyConfig    `toml:"concurrency"`
	Payload        PayloadConfig        `toml:"payload"`
}

// TimeoutConfig configures per-request cancellation.
type TimeoutConfig struct {
	Enabled            bool           `toml:"enabled"`
	DefaultTimeoutSecs int            `toml:"defaultTimeout" validate:"gte=0"`
	Routes             map[string]int `toml:"routes"`

	DefaultTimeout time.Duration `toml:"-"`
}

// NetworkQualityConfig gates adaptive behavior on observed network quality.
type NetworkQualityConfig struct {
	Enabled      bool `toml:"enabled"`
	MinBandwidth int  `toml:"minBandwidth"`
	MaxLatencyMS int  `toml:"maxLatency"`
}

// ConcurrencyConfig bounds the backpressure controller.
type ConcurrencyConfig struct {
	MaxConcurrentRequests int `toml:"maxConcurrentRequests" validate:"gte=0"`
	MaxPerIP              int `toml:"maxPerIP" validate:"gte=0"`
	QueueTimeoutMS        int `toml:"queueTimeout" validate:"gte=0"`

	QueueTimeout time.Duration `toml:"-"`
}

// PayloadConfig bounds request payload sizes.
type PayloadConfig struct {
	MaxBodySize      int64    `toml:"maxBodySize"`
	MaxURLLength     int      `toml:"maxUrlLength"`
	MaxFileSize      int64    `toml:"maxFileSize"`
	AllowedMimeTypes []string `toml:"allowedMimeTypes"`
}

// LoggingConfig is the "logging" configuration group.
type LoggingConfig struct {
	Enabled             bool                `toml:"enabled"`
	Level               string              `toml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Components          []string            `toml:"components"`
	Types               []string            `toml:"types"`
	LogFile             string              `toml:"logFile"`
	ConsoleInterception ConsoleInterceptCfg `toml:"consoleInterception"`
}

// ConsoleInterceptCfg configures the ConsoleInterceptor.
type ConsoleInterceptCfg struct {
	Enabled                   bool     `toml:"enabled"`
	MaxInterceptionsPerSecond int      `toml:"maxInterceptionsPerSecond"`
	MinLevel                  string   `toml:"minLevel"`
	MaxLength                 int      `toml:"maxLength"`
	IncludePatterns           []string `toml:"includePatterns"`
	ExcludePatterns           []string `toml:"excludePatterns"`
	PreserveMode              string   `toml:"preserveMode" validate:"omitempty,oneof=original intercepted both none"`
	EncryptCaptures           bool     `toml:"encryptCaptures"`
	DisplayMode               string   `toml:"displayMode" validate:"omitempty,oneof=readable encrypted-hash-only both"`
	TraceBufferSize           int      `toml:"traceBufferSize"`
	TracingEnabled            bool     `toml:"tracingEnabled"`
}

// PluginsConfig is the "plugins" configuration group.
type PluginsConfig struct {
	Register          []PluginRegistration `toml:"register"`
	PluginPermissions map[string][]string  `toml:"pluginPermissions"`
}

// PluginRegistration declares one plugin to load at startup.
type PluginRegistration struct {
	ID           string   `toml:"id" validate:"required"`
	Type         string   `toml:"type" validate:"oneof=security performance cache network other"`
	Priority     int      `toml:"priority"`
	AllowedHooks []string `toml:"allowedHooks"`
}

// MetricsConfig configures the prometheus/client_golang `/metrics` listener.
type MetricsConfig struct {
	ListenAddress string `toml:"listenAddress"`
	ListenPort    int    `toml:"listenPort"`
}

// TracingConfig configures the go.opentelemetry.io/otel tracer
// (internal/util/tracing).
type TracingConfig struct {
	Implementation    string `toml:"tracerImplementation"`
	CollectorEndpoint string `toml:"tracingCollector"`
}

// Clone returns a deeply-independent copy of the configuration: every
// section pointer, slice, and map is duplicated, so mutating the copy can
// never bleed into the snapshot other goroutines are reading.
func (c *XyPrissConfig) Clone() *XyPrissConfig {
	cp := *c
	if c.Server != nil {
		s := *c.Server
		if s.AutoPortSwitch != nil {
			aps := *s.AutoPortSwitch
			aps.PredefinedPorts = cloneSlice(aps.PredefinedPorts)
			s.AutoPortSwitch = &aps
		}
		cp.Server = &s
	}
	if c.Cache != nil {
		s := *c.Cache
		s.Redis.Nodes = cloneSlice(s.Redis.Nodes)
		cp.Cache = &s
	}
	if c.Security != nil {
		s := *c.Security
		cp.Security = &s
	}
	if c.Cluster != nil {
		s := *c.Cluster
		cp.Cluster = &s
	}
	if c.Network != nil {
		s := *c.Network
		s.Compression.Algorithms = cloneSlice(s.Compression.Algorithms)
		s.Compression.ContentTypes = cloneSlice(s.Compression.ContentTypes)
		s.Proxy.Upstreams = cloneSlice(s.Proxy.Upstreams)
		s.Proxy.HealthCheckHeaders = cloneMap(s.Proxy.HealthCheckHeaders)
		cp.Network = &s
	}
	if c.RequestManagement != nil {
		s := *c.RequestManagement
		s.Timeout.Routes = cloneMap(s.Timeout.Routes)
		s.Payload.AllowedMimeTypes = cloneSlice(s.Payload.AllowedMimeTypes)
		cp.RequestManagement = &s
	}
	if c.Logging != nil {
		s := *c.Logging
		s.Components = cloneSlice(s.Components)
		s.Types = cloneSlice(s.Types)
		s.ConsoleInterception.IncludePatterns = cloneSlice(s.ConsoleInterception.IncludePatterns)
		s.ConsoleInterception.ExcludePatterns = cloneSlice(s.ConsoleInterception.ExcludePatterns)
		cp.Logging = &s
	}
	if c.Plugins != nil {
		s := *c.Plugins
		regs := cloneSlice(s.Register)
		for i := range regs {
			regs[i].AllowedHooks = cloneSlice(regs[i].AllowedHooks)
		}
		s.Register = regs
		if s.PluginPermissions != nil {
			perms := make(map[string][]string, len(s.PluginPermissions))
			for k, v := range s.PluginPermissions {
				perms[k] = cloneSlice(v)
			}
			s.PluginPermissions = perms
		}
		cp.Plugins = &s
	}
	if c.Metrics != nil {
		s := *c.Metrics
		cp.Metrics = &s
	}
	if c.Tracing != nil {
		s := *c.Tracing
		cp.Tracing = &s
	}
	return &cp
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String renders the running configuration as TOML with secrets redacted
// (Redis password, JWT secret; the master key's resolved value never
// enters the config struct at all).
func (c *XyPrissConfig) String() string {
	cp := c.redactedCopy()
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	_ = enc.Encode(cp)
	return buf.String()
}

func (c *XyPrissConfig) redactedCopy() *XyPrissConfig {
	cp := c.Clone()
	if cp.Cache != nil && cp.Cache.Redis.Password != "" {
		cp.Cache.Redis.Password = "*****"
	}
	if cp.Security != nil && cp.Security.Authentication.JWT.Secret != "" {
		cp.Security.Authentication.JWT.Secret = "*****"
	}
	return cp
}
