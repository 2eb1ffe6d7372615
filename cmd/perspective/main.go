package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spektr-org/perspective/engine"
)

// ============================================================================
// PERSPECTIVE CLI — Filter, sort, group and aggregate rows from the shell
// ============================================================================
// Settings resolve flag > environment (PERSPECTIVE_*) > config file > default.
//
//   perspective run --data rows.json --intent intent.yaml --rows 1,2 --format text
//   perspective unique --data rows.json --fields status,points:long
//   perspective discover --data rows.yaml --format pretty
//   perspective duration PT100H30M P1DT2H
//   perspective serve --listen :8080 --data tickets.json
// ============================================================================

const version = "0.3.0"

// app carries what every command needs once flags and config are resolved.
type app struct {
	v      *viper.Viper
	logger log.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: log.NewNopLogger()}
	a.v.SetDefault("log.level", "info")
	a.v.SetDefault("engine.max_depth", engine.DefaultMaxDepth)
	a.v.SetDefault("engine.case_sensitive", false)
	a.v.SetDefault("server.listen", ":8080")
	a.v.SetDefault("server.cache_size", 16)
	a.v.SetDefault("output.format", "json")
	a.v.SetEnvPrefix("PERSPECTIVE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	var configFile string
	root := &cobra.Command{
		Use:           "perspective",
		Short:         "Filter, sort, group and aggregate JSON or YAML rows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				a.v.SetConfigFile(configFile)
				if err := a.v.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "reading config %s", configFile)
				}
			}
			logger, err := newLogger(cmd.ErrOrStderr(), a.v.GetString("log.level"))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Int("max-depth", engine.DefaultMaxDepth, "Maximum filter nesting and group depth")
	pf.Bool("case-sensitive", false, "Compare strings case-sensitively")
	pf.StringP("format", "f", "json", "Output format: json, pretty, yaml, text")
	mustBind(a.v, "log.level", pf.Lookup("log-level"))
	mustBind(a.v, "engine.max_depth", pf.Lookup("max-depth"))
	mustBind(a.v, "engine.case_sensitive", pf.Lookup("case-sensitive"))
	mustBind(a.v, "output.format", pf.Lookup("format"))

	root.AddCommand(
		a.runCmd(),
		a.uniqueCmd(),
		a.discoverCmd(),
		a.durationCmd(),
		a.serveCmd(),
	)
	return root
}

func mustBind(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(errors.Wrapf(err, "binding %s", key))
	}
}

// newLogger builds a logfmt logger on w that drops records below lvl.
func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	var allow level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		allow = level.AllowDebug()
	case "info", "":
		allow = level.AllowInfo()
	case "warn", "warning":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		return nil, errors.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

// engineOptions returns the engine settings resolved from flags and config.
func (a *app) engineOptions() []engine.Option {
	return []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithMaxDepth(a.v.GetInt("engine.max_depth")),
		engine.WithCaseSensitive(a.v.GetBool("engine.case_sensitive")),
	}
}
