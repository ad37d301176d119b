package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cache/engine"
)

const envPrefix = "wasmcache"

type config struct {
	DataDir     string
	Features    string
	LogLevel    string
	CacheSize   uint32 // MiB
	MemoryLimit uint32 // MiB
}

func (c config) options(logger *zap.Logger) engine.Options {
	return engine.Options{
		Logger:              logger,
		BaseDir:             c.DataDir,
		SupportedFeatures:   engine.FeaturesFromCSV(c.Features),
		MemoryCacheSize:     datasize.ByteSize(c.CacheSize) * datasize.MB,
		InstanceMemoryLimit: datasize.ByteSize(c.MemoryLimit) * datasize.MB,
	}
}

type app struct {
	v      *viper.Viper
	logger *zap.Logger
	cfg    config
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}
	var configFile string

	root := &cobra.Command{
		Use:          "wasmcache",
		Short:        "Populate and inspect a wasm module cache",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd.Root().PersistentFlags(), configFile)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("data-dir", "", "cache base directory")
	flags.String("features", "", "comma separated list of supported features")
	flags.Uint32("cache-size", 512, "in-memory module cache size in MiB")
	flags.Uint32("memory-limit", 32, "instance memory limit in MiB, 0 for the engine default")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")

	root.AddCommand(
		newSaveCommand(a),
		newLoadCommand(a),
		newListCommand(a),
		newStatsCommand(a),
		newBrowseCommand(a),
	)
	return root
}

// configure resolves flags, WASMCACHE_* variables and the optional config
// file, in that order of precedence.
func (a *app) configure(flags *pflag.FlagSet, configFile string) error {
	v := a.v
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	a.cfg = config{
		DataDir:     v.GetString("data-dir"),
		Features:    v.GetString("features"),
		LogLevel:    v.GetString("log-level"),
		CacheSize:   v.GetUint32("cache-size"),
		MemoryLimit: v.GetUint32("memory-limit"),
	}
	if a.cfg.DataDir == "" {
		return fmt.Errorf("data directory is required (--data-dir or WASMCACHE_DATA_DIR)")
	}

	logger, err := newLogger(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	engine.SetLogger(logger)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// open creates the engine cache. A non-nil reg receives its stats collector.
func (a *app) open(ctx context.Context, reg prometheus.Registerer) (*engine.Cache, error) {
	opts := a.cfg.options(a.logger)
	opts.Registerer = reg
	return engine.New(ctx, opts)
}
