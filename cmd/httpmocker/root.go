package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sophialabs/httpmocker/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "httpmocker",
		Short: "HTTP mocking proxy with record and replay",
		Long: `httpmocker sits between a client and an upstream HTTP service. Requests
are answered from scenario files, forwarded upstream, or forwarded and
recorded into new scenarios depending on the mode (disabled, enabled,
mixed, record).

Settings come from flags, HTTPMOCKER_* environment variables and an
optional httpmocker.yaml, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile, cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./httpmocker.yaml)")
	addConfigFlags(flags, app.DefaultConfig())
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	root.AddCommand(newServeCmd(v), newConfigCmd(v), newVersionCmd())
	return root
}

func addConfigFlags(flags *pflag.FlagSet, d app.Config) {
	flags.String("scenarios", d.ScenarioDir, "directory holding scenario files")
	flags.String("record-dir", d.RecordDir, "directory receiving recordings (default: the scenarios directory)")
	flags.String("upstream", d.Upstream, "base URL of the upstream service")
	flags.String("mode", d.Mode, "interception mode (disabled, enabled, mixed, record)")
	flags.String("format", d.Format, "scenario file format (json, yaml)")
	flags.String("policy", d.Policy, "filing policy for scenario paths (mirror, server, single)")
	flags.String("cache", d.Cache, "scenario cache (request, process, watch)")
	flags.Bool("record-in-mixed", d.RecordInMixed, "record forwarded requests in mixed mode")
	flags.Bool("ignore-record-errors", d.IgnoreRecordErrors, "log recording failures instead of failing the request")
	flags.Float64("delay-factor", d.DelayFactor, "multiplier applied to scenario delays")
	flags.Duration("default-delay", d.DefaultDelay, "delay for responses that do not declare one")
	flags.IntP("port", "p", d.Port, "listen port")
	flags.Int("trace-size", d.TraceSize, "number of trace entries to keep")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", d.LogFormat, "log format (text, json)")
	flags.Duration("shutdown-timeout", d.ShutdownTimeout, "grace period for in-flight requests on shutdown")
}

// initConfig reads the config file, when present, and the environment.
func initConfig(v *viper.Viper, cfgFile string, stderr io.Writer) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		v.AddConfigPath(cwd)
		v.SetConfigType("yaml")
		v.SetConfigName("httpmocker")
	}

	v.SetEnvPrefix("HTTPMOCKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	fmt.Fprintln(stderr, "Using config file:", v.ConfigFileUsed())
	return nil
}

// loadConfig resolves the effective host configuration.
func loadConfig(v *viper.Viper) app.Config {
	cfg := app.DefaultConfig()
	cfg.ScenarioDir = v.GetString("scenarios")
	cfg.RecordDir = v.GetString("record-dir")
	cfg.Upstream = v.GetString("upstream")
	cfg.Mode = v.GetString("mode")
	cfg.Format = v.GetString("format")
	cfg.Policy = v.GetString("policy")
	cfg.Cache = v.GetString("cache")
	cfg.RecordInMixed = v.GetBool("record-in-mixed")
	cfg.IgnoreRecordErrors = v.GetBool("ignore-record-errors")
	cfg.DelayFactor = v.GetFloat64("delay-factor")
	cfg.DefaultDelay = v.GetDuration("default-delay")
	cfg.Port = v.GetInt("port")
	cfg.TraceSize = v.GetInt("trace-size")
	cfg.LogLevel = v.GetString("log-level")
	cfg.LogFormat = v.GetString("log-format")
	if d := v.GetDuration("shutdown-timeout"); d > 0 {
		cfg.ShutdownTimeout = d
	}
	return cfg
}

// effectiveConfig is the printable form of app.Config.
type effectiveConfig struct {
	Scenarios          string        `yaml:"scenarios"`
	RecordDir          string        `yaml:"record-dir,omitempty"`
	Upstream           string        `yaml:"upstream,omitempty"`
	Mode               string        `yaml:"mode"`
	Format             string        `yaml:"format"`
	Policy             string        `yaml:"policy"`
	Cache              string        `yaml:"cache"`
	RecordInMixed      bool          `yaml:"record-in-mixed"`
	IgnoreRecordErrors bool          `yaml:"ignore-record-errors"`
	DelayFactor        float64       `yaml:"delay-factor"`
	DefaultDelay       time.Duration `yaml:"default-delay"`
	Port               int           `yaml:"port"`
	TraceSize          int           `yaml:"trace-size"`
	LogLevel           string        `yaml:"log-level"`
	LogFormat          string        `yaml:"log-format"`
	ShutdownTimeout    time.Duration `yaml:"shutdown-timeout"`
}

func toEffective(c app.Config) effectiveConfig {
	return effectiveConfig{
		Scenarios:          c.ScenarioDir,
		RecordDir:          c.RecordDir,
		Upstream:           c.Upstream,
		Mode:               c.Mode,
		Format:             c.Format,
		Policy:             c.Policy,
		Cache:              c.Cache,
		RecordInMixed:      c.RecordInMixed,
		IgnoreRecordErrors: c.IgnoreRecordErrors,
		DelayFactor:        c.DelayFactor,
		DefaultDelay:       c.DefaultDelay,
		Port:               c.Port,
		TraceSize:          c.TraceSize,
		LogLevel:           c.LogLevel,
		LogFormat:          c.LogFormat,
		ShutdownTimeout:    c.ShutdownTimeout,
	}
}
