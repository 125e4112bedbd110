package application

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/switchboard-go/internal/hub"
	"github.com/lk2023060901/switchboard-go/internal/network/acceptor"
	zlog "github.com/lk2023060901/switchboard-go/pkg/log"
	"github.com/lk2023060901/switchboard-go/pkg/metrics"
	zviper "github.com/lk2023060901/switchboard-go/pkg/util/viper"
)

const (
	envPrefix         = "SWITCHBOARD"
	envConfigFilePath = "SWITCHBOARD_CONFIG_FILE_PATH"
	defaultConfigPath = "./config.yaml"

	metricsPath = "/metrics"
)

// Settings 为进程启动所需的全部参数。
type Settings struct {
	Hub            HubSettings
	MetricsAddress string
	Log            zlog.Config
	// ConfigFile 为实际加载的配置文件，未加载时为空。
	ConfigFile string
}

// HubSettings 对应配置文件中的 hub 段。
type HubSettings struct {
	Host           string
	Port           int
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	SendQueueSize  int
	MaxFrameSize   int
	WriteTimeout   time.Duration
	MaxConnections int
}

// ListenAddress 返回 host:port。
func (s HubSettings) ListenAddress() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func defaults() map[string]any {
	return map[string]any{
		"hub.host":                 "127.0.0.1",
		"hub.port":                 7777,
		"hub.idleTimeoutSeconds":   3600,
		"hub.sweepIntervalSeconds": 60,
		"hub.sendQueueSize":        256,
		"hub.maxFrameSize":         1024 * 1024,
		"hub.writeTimeoutSeconds":  10,
		"hub.maxConnections":       1024,
		"metrics.address":          "",
		"log.level":                "info",
		"log.format":               zlog.FormatText,
		"log.stdout":               true,
		"log.file.rootpath":        "",
		"log.file.filename":        "",
	}
}

// Application is the runtime container of the switchboard hub.
// It owns configuration, logging and the lifetime of the listener, the reaper and the metrics endpoint.
type Application struct {
	args []string

	cfg      *zviper.Config
	settings Settings
	loggers  map[string]*zlog.MLogger

	hub      *hub.Hub
	acceptor *acceptor.BaseAcceptor
	metrics  net.Listener

	ready chan struct{}
}

// New creates a new Application; args are the command-line arguments without the program name.
func New(args []string) *Application {
	return &Application{
		args:  args,
		ready: make(chan struct{}),
	}
}

// Run loads configuration, starts serving and blocks until ctx is cancelled
// or one of the components fails.
//
// Configuration sources, lowest to highest priority:
//  1. built-in defaults;
//  2. config file: ./config.yaml, SWITCHBOARD_CONFIG_FILE_PATH, or --config <path>;
//  3. environment: SWITCHBOARD_HUB_PORT, SWITCHBOARD_LOG_LEVEL, ...;
//  4. command-line flags.
func (a *Application) Run(ctx context.Context) error {
	cfg, settings, err := loadSettings(a.args)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.settings = settings

	if err := a.initLogging(); err != nil {
		return err
	}
	defer func() { _ = zlog.Sync() }()

	metrics.Register(metrics.NewRegistry())

	if err := a.setup(); err != nil {
		return err
	}
	return a.serve(ctx)
}

// Ready is closed once the hub is accepting connections.
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the hub listen address; valid after Ready.
func (a *Application) Addr() net.Addr {
	return a.acceptor.Addr()
}

// MetricsAddr returns the metrics endpoint address, nil when disabled; valid after Ready.
func (a *Application) MetricsAddr() net.Addr {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Addr()
}

// Settings returns the effective settings.
func (a *Application) Settings() Settings {
	return a.settings
}

// Hub returns the running hub; valid after Ready.
func (a *Application) Hub() *hub.Hub {
	return a.hub
}

// Logger returns a named logger created from the "logging" section.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

func (a *Application) setup() error {
	s := a.settings.Hub
	h, err := hub.New(hub.Config{
		IdleTimeout:   s.IdleTimeout,
		SweepInterval: s.SweepInterval,
		MaxFrameSize:  s.MaxFrameSize,
	})
	if err != nil {
		return err
	}

	acc, err := acceptor.NewTCPAcceptor(s.ListenAddress(), acceptor.Config{
		SendQueueSize:  s.SendQueueSize,
		WriteTimeout:   s.WriteTimeout,
		MaxFrameSize:   s.MaxFrameSize,
		MaxConnections: s.MaxConnections,
	})
	if err != nil {
		return err
	}

	if addr := a.settings.MetricsAddress; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = acc.Close()
			return errors.Wrapf(err, "metrics: listen on %s", addr)
		}
		a.metrics = ln
	}

	a.hub = h
	a.acceptor = acc
	return nil
}

func (a *Application) serve(ctx context.Context) error {
	logger := a.Logger("application")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.acceptor.Serve(gctx, a.hub)
	})
	g.Go(func() error {
		return a.hub.NewReaper().Run(gctx)
	})

	if a.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle(metricsPath, metrics.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.Serve(a.metrics); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics: serve")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Info("metrics endpoint started", zap.String("addr", a.metrics.Addr().String()+metricsPath))
	}

	logger.Info("hub server started",
		zap.Stringer("addr", a.acceptor.Addr()),
		zap.Duration("idleTimeout", a.settings.Hub.IdleTimeout),
		zap.Duration("sweepInterval", a.settings.Hub.SweepInterval),
		zap.String("config", a.settings.ConfigFile))
	close(a.ready)

	err := g.Wait()
	logger.Info("hub server stopped", zap.Error(err))
	return err
}

// loadSettings resolves the config file path, loads it and merges env and flags on top.
func loadSettings(args []string) (*zviper.Config, Settings, error) {
	fs := pflag.NewFlagSet("switchboard", pflag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (yaml or json)")
	fs.String("host", "", "hub listen host")
	fs.Int("port", 0, "hub listen port")
	fs.Int("idle-timeout-seconds", 0, "evict sessions idle longer than this")
	fs.Int("sweep-interval-seconds", 0, "idle sweep period")
	fs.String("metrics-address", "", "prometheus endpoint address, empty disables it")
	fs.String("log-level", "", "log level")
	if err := fs.Parse(args); err != nil {
		return nil, Settings{}, errors.Wrap(err, "parse flags")
	}

	cfg := zviper.New()
	cfg.SetDefaults(defaults())
	cfg.SetEnvPrefix(envPrefix)

	bindings := map[string]string{
		"hub.host":                 "host",
		"hub.port":                 "port",
		"hub.idleTimeoutSeconds":   "idle-timeout-seconds",
		"hub.sweepIntervalSeconds": "sweep-interval-seconds",
		"metrics.address":          "metrics-address",
		"log.level":                "log-level",
	}
	for key, name := range bindings {
		if err := cfg.BindFlag(key, fs.Lookup(name)); err != nil {
			return nil, Settings{}, err
		}
	}

	path, explicit := defaultConfigPath, false
	if envPath := strings.TrimSpace(os.Getenv(envConfigFilePath)); envPath != "" {
		path, explicit = envPath, true
	}
	if fs.Changed("config") {
		path, explicit = *configPath, true
	}
	loaded := ""
	if err := cfg.LoadFile(path); err != nil {
		if explicit || !isNotExist(path) {
			return nil, Settings{}, errors.Wrapf(err, "failed to load config file %q", path)
		}
	} else {
		loaded = cfg.ConfigFileUsed()
	}

	settings := Settings{
		Hub: HubSettings{
			Host:           cfg.GetString("hub.host"),
			Port:           cfg.GetInt("hub.port"),
			IdleTimeout:    cfg.GetSeconds("hub.idleTimeoutSeconds"),
			SweepInterval:  cfg.GetSeconds("hub.sweepIntervalSeconds"),
			SendQueueSize:  cfg.GetInt("hub.sendQueueSize"),
			MaxFrameSize:   cfg.GetInt("hub.maxFrameSize"),
			WriteTimeout:   cfg.GetSeconds("hub.writeTimeoutSeconds"),
			MaxConnections: cfg.GetInt("hub.maxConnections"),
		},
		MetricsAddress: cfg.GetString("metrics.address"),
		Log: zlog.Config{
			Level:  cfg.GetString("log.level"),
			Format: cfg.GetString("log.format"),
			Stdout: cfg.GetBool("log.stdout"),
			File: zlog.FileLogConfig{
				RootPath: cfg.GetString("log.file.rootpath"),
				Filename: cfg.GetString("log.file.filename"),
			},
		},
		ConfigFile: loaded,
	}
	if err := settings.validate(); err != nil {
		return nil, Settings{}, err
	}
	return cfg, settings, nil
}

func (s Settings) validate() error {
	switch {
	case s.Hub.Port < 0 || s.Hub.Port > 65535:
		return errors.Newf("hub.port out of range: %d", s.Hub.Port)
	case s.Hub.IdleTimeout <= 0:
		return errors.New("hub.idleTimeoutSeconds must be positive")
	case s.Hub.SweepInterval <= 0:
		return errors.New("hub.sweepIntervalSeconds must be positive")
	case s.Hub.WriteTimeout < 0:
		return errors.New("hub.writeTimeoutSeconds must not be negative")
	}
	return nil
}

func isNotExist(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	cfg := a.settings.Log
	logger, props, err := zlog.InitLogger(&cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)
	return a.initModuleLoggersFromConfig()
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  application:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: application.log
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return errors.Wrap(err, "decode logging section")
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.NewLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}
