/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package config loads and validates the on-disk description of one
// httpengine instance: its listeners, worker pool sizing, FastCGI
// backend pools and stat-cache policy, grounded on the
// mapstructure/yaml/validate tag idiom of
// nabbar-golib/httpserver/config.go's ServerConfig/PoolServerConfig,
// adapted to this engine's single-process-multi-listener shape (the
// teacher manages a pool of independent http.Server instances; this
// engine has one worker pool fed by N listeners instead).
package config

import (
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github/sabouaram/httpengine/backendpool"
	"github/sabouaram/httpengine/certificates"
	liberr "github/sabouaram/httpengine/errors"
	"github/sabouaram/httpengine/statcache"
)

// ListenConfig is one bound address (spec.md §4.12 "a server owns a set
// of listen sockets"). TLS is nil for a plaintext listener.
type ListenConfig struct {
	Network string               `mapstructure:"network" yaml:"network" validate:"omitempty,oneof=tcp tcp4 tcp6"`
	Address string               `mapstructure:"address" yaml:"address" validate:"required,hostname_port"`
	TLS     *certificates.Config `mapstructure:"tls" yaml:"tls" validate:"omitempty"`
}

func (l *ListenConfig) network() string {
	if l.Network == "" {
		return "tcp"
	}
	return l.Network
}

// BackendConfig names one FastCGI backend pool so routing actions can
// look it up by name (spec.md §4.9 "a handler owns one backend pool").
// Suffix is this engine's stand-in for mod_fastcgi.c's config-language
// suffix match (e.g. `$HTTP["url"] =~ "\.php$"`): since spec.md §6
// excludes a full config language, the suffix lives directly on the
// backend entry instead of a separate condition tree.
type BackendConfig struct {
	Name   string             `mapstructure:"name" yaml:"name" validate:"required"`
	Suffix string             `mapstructure:"suffix" yaml:"suffix" validate:"required"`
	Pool   backendpool.Config `mapstructure:"pool" yaml:"pool" validate:"required"`
}

// WorkerConfig sizes the worker pool and the per-connection limits every
// worker enforces, grounded on PoolServerConfig's pool-wide settings.
type WorkerConfig struct {
	Count                int           `mapstructure:"count" yaml:"count" validate:"required,min=1"`
	MaxKeepAliveRequests int           `mapstructure:"maxKeepAliveRequests" yaml:"maxKeepAliveRequests"`
	MaxKeepAliveIdle     time.Duration `mapstructure:"maxKeepAliveIdle" yaml:"maxKeepAliveIdle"`
	IOTimeout            time.Duration `mapstructure:"ioTimeout" yaml:"ioTimeout"`
}

// Config is the top-level document: everything one httpengine instance
// needs to start, short of the command-line flags cmd/lighttpd2 layers
// on top (config file path, shutdown drain window).
type Config struct {
	DocumentRoot string           `mapstructure:"documentRoot" yaml:"documentRoot" validate:"required,dir"`
	Listeners    []ListenConfig   `mapstructure:"listeners" yaml:"listeners" validate:"required,min=1,dive"`
	Backends     []BackendConfig  `mapstructure:"backends" yaml:"backends" validate:"omitempty,dive"`
	Workers      WorkerConfig     `mapstructure:"workers" yaml:"workers" validate:"required"`
	StatCache    statcache.Config `mapstructure:"statCache" yaml:"statCache"`
}

// Load reads and parses a YAML config file and validates it before
// returning, so a malformed config is rejected before any listener is
// opened.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every field-level constraint plus the TLS sub-config
// of each listener that carries one.
func (c *Config) Validate() *liberr.Error {
	if er := validator.New().Struct(c); er != nil {
		return liberr.New(liberr.MinPkgConfig+1, liberr.KindParse, er)
	}
	for i := range c.Listeners {
		if c.Listeners[i].TLS == nil {
			continue
		}
		if err := c.Listeners[i].TLS.Validate(); err != nil {
			return liberr.New(liberr.MinPkgConfig+2, liberr.KindParse, err)
		}
	}
	for i := range c.Backends {
		if err := c.Backends[i].Pool.Validate(); err != nil {
			return liberr.New(liberr.MinPkgConfig+3, liberr.KindParse, err)
		}
	}
	return nil
}

// Backend looks up a named backend pool configuration, the config-layer
// counterpart of routing an action to its backendpool.Pool.
func (c *Config) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}
