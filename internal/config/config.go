// Package config loads and hot-reloads the LServer configuration, grounded
// on sa6mwa-lockd's cobra/pflag/viper CLI stack (cmd/lockd/app.go). YAML
// keys mirror spec.md §6's table.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Listen holds the listener endpoint and its socket options.
type Listen struct {
	IP                     string `mapstructure:"ip" yaml:"ip"`
	Port                   int    `mapstructure:"port" yaml:"port"`
	ReuseAddress           bool   `mapstructure:"reuse_address" yaml:"reuse_address"`
	SeparateAcceptorThread bool   `mapstructure:"separate_acceptor_thread" yaml:"separate_acceptor_thread"`
}

// ControlServer holds the gRPC control-plane endpoint.
type ControlServer struct {
	IP   string `mapstructure:"ip" yaml:"ip"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Networking holds accepted-socket options unrelated to the listener
// itself.
type Networking struct {
	SocketCloseLinger        bool `mapstructure:"socket_close_linger" yaml:"socket_close_linger"`
	SocketCloseLingerTimeout int  `mapstructure:"socket_close_linger_timeout" yaml:"socket_close_linger_timeout"`
}

// Concurrency sizes the ContextPool.
type Concurrency struct {
	NumWorkers          int `mapstructure:"num_workers" yaml:"num_workers"`
	MaxNumWorkers       int `mapstructure:"max_num_workers" yaml:"max_num_workers"`
	NumThreadsPerWorker int `mapstructure:"num_threads_per_worker" yaml:"num_threads_per_worker"`
}

// Sessions sizes the session pool.
type Sessions struct {
	MaxSessionPoolSize int  `mapstructure:"max_session_pool_size" yaml:"max_session_pool_size"`
	MaxTransferSize    int  `mapstructure:"max_transfer_size" yaml:"max_transfer_size"`
	EagerSessionPool   bool `mapstructure:"eager_session_pool" yaml:"eager_session_pool"`
}

// Logging holds the periodic stats-header cadence.
type Logging struct {
	HeaderInterval time.Duration `mapstructure:"header_interval" yaml:"header_interval"`
}

// Metrics holds the Prometheus exposition endpoint.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	IP      string `mapstructure:"ip" yaml:"ip"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// Config is the fully-parsed configuration tree, matching spec.md §6's key
// table one section per top-level YAML key.
type Config struct {
	Listen        Listen        `mapstructure:"listen" yaml:"listen"`
	ControlServer ControlServer `mapstructure:"control_server" yaml:"control_server"`
	Networking    Networking    `mapstructure:"networking" yaml:"networking"`
	Concurrency   Concurrency   `mapstructure:"concurrency" yaml:"concurrency"`
	Sessions      Sessions      `mapstructure:"sessions" yaml:"sessions"`
	Logging       Logging       `mapstructure:"logging" yaml:"logging"`
	Metrics       Metrics       `mapstructure:"metrics" yaml:"metrics"`
}

// Defaults returns the configuration used when a key is present in neither
// the config file, the environment, nor the command line.
func Defaults() Config {
	return Config{
		Listen: Listen{
			IP:           "0.0.0.0",
			Port:         8080,
			ReuseAddress: true,
		},
		ControlServer: ControlServer{
			IP:   "127.0.0.1",
			Port: 9090,
		},
		Networking: Networking{
			SocketCloseLinger:        false,
			SocketCloseLingerTimeout: 0,
		},
		Concurrency: Concurrency{
			NumWorkers:          4,
			MaxNumWorkers:       64,
			NumThreadsPerWorker: 1,
		},
		Sessions: Sessions{
			MaxSessionPoolSize: 1024,
			MaxTransferSize:    256 * 1024,
			EagerSessionPool:   false,
		},
		Logging: Logging{
			HeaderInterval: 0,
		},
		Metrics: Metrics{
			Enabled: false,
			IP:      "127.0.0.1",
			Port:    9091,
		},
	}
}

func bindDefaults(v *viper.Viper, d Config) {
	v.SetDefault("listen.ip", d.Listen.IP)
	v.SetDefault("listen.port", d.Listen.Port)
	v.SetDefault("listen.reuse_address", d.Listen.ReuseAddress)
	v.SetDefault("listen.separate_acceptor_thread", d.Listen.SeparateAcceptorThread)
	v.SetDefault("control_server.ip", d.ControlServer.IP)
	v.SetDefault("control_server.port", d.ControlServer.Port)
	v.SetDefault("networking.socket_close_linger", d.Networking.SocketCloseLinger)
	v.SetDefault("networking.socket_close_linger_timeout", d.Networking.SocketCloseLingerTimeout)
	v.SetDefault("concurrency.num_workers", d.Concurrency.NumWorkers)
	v.SetDefault("concurrency.max_num_workers", d.Concurrency.MaxNumWorkers)
	v.SetDefault("concurrency.num_threads_per_worker", d.Concurrency.NumThreadsPerWorker)
	v.SetDefault("sessions.max_session_pool_size", d.Sessions.MaxSessionPoolSize)
	v.SetDefault("sessions.max_transfer_size", d.Sessions.MaxTransferSize)
	v.SetDefault("sessions.eager_session_pool", d.Sessions.EagerSessionPool)
	v.SetDefault("logging.header_interval", d.Logging.HeaderInterval)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.ip", d.Metrics.IP)
	v.SetDefault("metrics.port", d.Metrics.Port)
}

// Reloadable is the subset of Config that Watch re-applies on a file
// change: everything else requires the AddContext/DeactivateContext RPCs
// or a process restart, per SPEC_FULL.md §6.
type Reloadable struct {
	Logging       Logging
	ControlServer ControlServer
	Listen        Listen
}

func snapshotReloadable(c Config) Reloadable {
	return Reloadable{Logging: c.Logging, ControlServer: c.ControlServer, Listen: c.Listen}
}

// Loader owns a viper instance bound to one YAML file, exposing the parsed
// Config plus an optional hot-reload subscription.
type Loader struct {
	v   *viper.Viper
	log *slog.Logger

	mu  sync.RWMutex
	cur Config
}

// Load reads path (if non-empty) over the built-in Defaults, with viper's
// automatic environment binding (prefix LSERVER_, "." replaced with "_")
// taking precedence over the file for any key also set in the
// environment.
func Load(path string, log *slog.Logger) (*Loader, error) {
	if log == nil {
		log = slog.Default()
	}
	v := viper.New()
	v.SetConfigType("yaml")
	bindDefaults(v, Defaults())

	v.SetEnvPrefix("LSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	l := &Loader{v: v, log: log}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) reload() error {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	l.mu.Lock()
	l.cur = c
	l.mu.Unlock()
	return nil
}

// Current returns the most recently loaded Config.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// Watch installs an fsnotify-driven config-file watcher. onChange is
// invoked with the new reloadable subset whenever any of its fields
// actually change; fields outside that subset (concurrency, sessions) are
// re-parsed into Current() but never trigger onChange, since applying them
// live would race the ContextPool's own AddContext/DeactivateContext path.
// Watch is a no-op if the loader was built without a config file.
func (l *Loader) Watch(onChange func(Reloadable)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		before := snapshotReloadable(l.Current())
		if err := l.reload(); err != nil {
			l.log.Warn("config reload failed", "error", err)
			return
		}
		after := snapshotReloadable(l.Current())
		if after != before && onChange != nil {
			onChange(after)
		}
		l.log.Info("config reloaded", "file", l.v.ConfigFileUsed())
	})
	l.v.WatchConfig()
}
