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

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Load builds the running configuration: defaults, then an optional TOML
// file, then environment variables, validates it, synthesizes derived
// fields, and installs it as the current snapshot. Struct-level validation
// runs through go-playground/validator before the snapshot is published.
func Load(applicationName, applicationVersion, configPath string) error {
	LoaderWarnings = LoaderWarnings[:0]

	c := defaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("config file not found: %s", configPath)
			}
			return err
		}
		if _, err := toml.DecodeFile(configPath, c); err != nil {
			return fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	loadEnvVars(c)

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	synthesize(c)

	System.Alias = defaultAlias
	System.Name = applicationName
	System.Version = applicationVersion
	if System.Environment == "" {
		System.Environment = defaultEnvironment
	}

	set(c)
	return nil
}

// loadEnvVars overlays recognized environment variables:
// PORT for the initial bind port, and an environment-mode variable.
func loadEnvVars(c *XyPrissConfig) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		} else {
			LoaderWarnings = append(LoaderWarnings, fmt.Sprintf("ignoring invalid PORT env var %q", v))
		}
	}
	if v := os.Getenv("XYPRISS_ENV"); v != "" {
		System.Environment = v
	}
	if v := os.Getenv(c.Cache.MasterKeyEnvVar); v == "" && c.Cache.EnableEncryption {
		LoaderWarnings = append(LoaderWarnings, fmt.Sprintf("cache encryption is enabled but %s is unset; an insecure built-in default key will be used", c.Cache.MasterKeyEnvVar))
	}
}

// synthesize computes every *Secs/*MS raw field into its paired
// time.Duration field once, at the end of loading.
func synthesize(c *XyPrissConfig) {
	c.Cache.TTL = time.Duration(c.Cache.TTLSecs) * time.Second
	c.Security.Authentication.JWT.ExpiresIn = time.Duration(c.Security.Authentication.JWT.ExpiresInSecs) * time.Second
	c.Cluster.Config.RestartWindow = time.Duration(c.Cluster.Config.RestartWindowSecs) * time.Second
	c.Network.Connection.KeepAliveTimeout = time.Duration(c.Network.Connection.KeepAliveTimeoutSecs) * time.Second
	c.Network.RateLimit.Window = time.Duration(c.Network.RateLimit.WindowMS) * time.Millisecond
	c.RequestManagement.Timeout.DefaultTimeout = time.Duration(c.RequestManagement.Timeout.DefaultTimeoutSecs) * time.Second
	c.RequestManagement.Concurrency.QueueTimeout = time.Duration(c.RequestManagement.Concurrency.QueueTimeoutMS) * time.Millisecond

	if c.Cluster.Config.Workers <= 0 {
		c.Cluster.Config.Workers = 0 // 0 signals "use runtime.NumCPU()" to ClusterSupervisor.startCluster
	}
}

// Update atomically replaces the visible configuration snapshot with a
// validated copy of next; concurrent readers always see a consistent
// snapshot. The snapshot is a private clone, so the caller keeping (and
// even mutating) next afterwards cannot reach the published state.
func Update(next *XyPrissConfig) error {
	if err := validate.Struct(next); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	synthesize(next)
	set(next.Clone())
	return nil
}
