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

package config

const (
	defaultPort = 3000
	defaultHost = "0.0.0.0"

	defaultAutoPortSwitchStrategy    = "increment"
	defaultAutoPortSwitchMaxAttempts = 10

	defaultJSONLimit       int64 = 1 << 20 // 1MB
	defaultURLEncodedLimit int64 = 1 << 20

	defaultCacheStrategy        = "auto"
	defaultCacheTTLSecs         = 300
	defaultMemoryMaxSizeBytes   = 64 << 20 // 64MB
	defaultMemoryMaxEntries     = 100000
	defaultCompressionLevel     = 6
	defaultMasterKeyEnvVar      = "XYPRISS_MASTER_KEY"
	defaultBBoltFilename        = "xypriss.db"
	defaultBBoltBucket          = "xypriss"
	defaultBadgerDirectory      = "/tmp/xypriss/badger"
	defaultBadgerValueDirectory = "/tmp/xypriss/badger"
	defaultRedisHost            = "127.0.0.1"
	defaultRedisPort            = 6379

	defaultJWTExpiresInSecs = 3600

	defaultClusterMaxRestarts       = 10
	defaultClusterRestartWindowSecs = 600
	defaultClusterMinWorkers        = 1
	defaultClusterMaxWorkers        = 32

	defaultKeepAliveTimeoutSecs = 120
	defaultMaxRequestsPerConn   = 0
	defaultMaxIdleConns         = 100
	defaultHTTP2MaxStreams      = 250
	defaultHTTP2InitialWindow   = 65535

	defaultCompressionThresholdBytes = 1024

	defaultRateLimitStrategy     = "token-bucket"
	defaultRateLimitHeaderPrefix = "X-RateLimit"

	defaultProxyLoadBalancing      = "round-robin"
	defaultHealthCheckPath         = "/health"
	defaultProxyUnhealthyThreshold = 3
	defaultProxyHealthyThreshold   = 2

	defaultRequestTimeoutSecs    = 30
	defaultQueueTimeoutMS        = 5000
	defaultMaxConcurrentRequests = 10000
	defaultMaxPerIP              = 1000

	defaultMaxBodySize  int64 = 10 << 20
	defaultMaxURLLength       = 8192
	defaultMaxFileSize  int64 = 25 << 20

	defaultLogLevel = "INFO"

	defaultConsoleMaxInterceptionsPerSecond = 1000
	defaultConsoleMaxLength                 = 10000
	defaultConsolePreserveMode              = "both"
	defaultConsoleDisplayMode               = "readable"
	defaultConsoleTraceBufferSize           = 1000

	defaultMetricsListenPort = 8082

	defaultTracerImplementation = "stdout"

	defaultEnvironment = "development"
	defaultAlias       = "xypriss"
)

// defaultConfig returns a XyPrissConfig initialized entirely with defaults.
func defaultConfig() *XyPrissConfig {
	return &XyPrissConfig{
		Server: &ServerConfig{
			Port: defaultPort,
			Host: defaultHost,
			AutoPortSwitch: &AutoPortSwitch{
				Strategy:    defaultAutoPortSwitchStrategy,
				MaxAttempts: defaultAutoPortSwitchMaxAttempts,
			},
			JSONLimit:       defaultJSONLimit,
			URLEncodedLimit: defaultURLEncodedLimit,
			AutoParseJSON:   true,
		},
		Cache: &CacheConfig{
			Strategy:          defaultCacheStrategy,
			TTLSecs:           defaultCacheTTLSecs,
			EnableCompression: true,
			CompressionLevel:  defaultCompressionLevel,
			EnableEncryption:  true,
			MasterKeyEnvVar:   defaultMasterKeyEnvVar,
			Memory: MemoryCacheConfig{
				MaxSize:    defaultMemoryMaxSizeBytes,
				MaxEntries: defaultMemoryMaxEntries,
			},
			Redis: RedisCacheConfig{
				Host: defaultRedisHost,
				Port: defaultRedisPort,
			},
			BBolt: BBoltCacheConfig{
				Filename: defaultBBoltFilename,
				Bucket:   defaultBBoltBucket,
			},
			Badger: BadgerCacheConfig{
				Directory:      defaultBadgerDirectory,
				ValueDirectory: defaultBadgerValueDirectory,
			},
		},
		Security: &SecurityConfig{
			CORS:   true,
			Helmet: true,
			XSS:    true,
			Authentication: Authentication{
				JWT: JWTConfig{ExpiresInSecs: defaultJWTExpiresInSecs},
			},
		},
		Cluster: &ClusterConfig{
			Config: ClusterWorkerConfig{
				MaxRestarts:       defaultClusterMaxRestarts,
				RestartWindowSecs: defaultClusterRestartWindowSecs,
				MinWorkers:        defaultClusterMinWorkers,
				MaxWorkers:        defaultClusterMaxWorkers,
			},
		},
		Network: &NetworkConfig{
			Connection: ConnectionConfig{
				Enabled:                   true,
				HTTP2MaxConcurrentStreams: defaultHTTP2MaxStreams,
				HTTP2InitialWindowSize:    defaultHTTP2InitialWindow,
				KeepAliveTimeoutSecs:      defaultKeepAliveTimeoutSecs,
				MaxRequestsPerConn:        defaultMaxRequestsPerConn,
				MaxIdleConns:              defaultMaxIdleConns,
			},
			Compression: CompressionConfig{
				Algorithms:     []string{"gzip", "brotli"},
				ContentTypes:   []string{"application/json", "text/plain", "text/html"},
				ThresholdBytes: defaultCompressionThresholdBytes,
				Level:          defaultCompressionLevel,
			},
			RateLimit: RateLimitConfig{
				Strategy:     defaultRateLimitStrategy,
				KeyBy:        "ip",
				HeaderPrefix: defaultRateLimitHeaderPrefix,
			},
			Proxy: ProxyConfig{
				LoadBalancing:      defaultProxyLoadBalancing,
				HealthCheckPath:    defaultHealthCheckPath,
				HealthCheckVerb:    "GET",
				UnhealthyThreshold: defaultProxyUnhealthyThreshold,
				HealthyThreshold:   defaultProxyHealthyThreshold,
			},
		},
		RequestManagement: &RequestManagementConfig{
			Timeout: TimeoutConfig{
				Enabled:            true,
				DefaultTimeoutSecs: defaultRequestTimeoutSecs,
				Routes:             map[string]int{},
			},
			Concurrency: ConcurrencyConfig{
				MaxConcurrentRequests: defaultMaxConcurrentRequests,
				MaxPerIP:              defaultMaxPerIP,
				QueueTimeoutMS:        defaultQueueTimeoutMS,
			},
			Payload: PayloadConfig{
				MaxBodySize:      defaultMaxBodySize,
				MaxURLLength:     defaultMaxURLLength,
				MaxFileSize:      defaultMaxFileSize,
				AllowedMimeTypes: []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"},
			},
		},
		Logging: &LoggingConfig{
			Enabled: true,
			Level:   defaultLogLevel,
			ConsoleInterception: ConsoleInterceptCfg{
				MaxInterceptionsPerSecond: defaultConsoleMaxInterceptionsPerSecond,
				MaxLength:                 defaultConsoleMaxLength,
				PreserveMode:              defaultConsolePreserveMode,
				DisplayMode:               defaultConsoleDisplayMode,
				TraceBufferSize:           defaultConsoleTraceBufferSize,
			},
		},
		Plugins: &PluginsConfig{
			PluginPermissions: map[string][]string{},
		},
		Metrics: &MetricsConfig{
			ListenPort: defaultMetricsListenPort,
		},
		Tracing: &TracingConfig{
			Implementation: defaultTracerImplementation,
		},
	}
}
