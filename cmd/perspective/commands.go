package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/spektr-org/perspective/engine"
	"github.com/spektr-org/perspective/helpers"
	"github.com/spektr-org/perspective/schema"
	"github.com/spektr-org/perspective/server"
)

// ============================================================================
// RUN
// ============================================================================

func (a *app) runCmd() *cobra.Command {
	var (
		data, intentPath string
		rows             []int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate an intent over a row file",
		Long: `Evaluate a perspective intent (filter, fuzzy_filter, sort, group,
aggregates) over a JSON or YAML array of rows. Without --intent every row
index is returned in order.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, _, err := loadView(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}
			intent, err := loadIntent(cmd.InOrStdin(), intentPath)
			if err != nil {
				return err
			}
			p, err := engine.BuildPerspective(intent, view, rows, a.engineOptions()...)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "Row file, JSON or YAML array (- for stdin)")
	cmd.Flags().StringVarP(&intentPath, "intent", "i", "", "Intent file, JSON or YAML (- for stdin)")
	cmd.Flags().IntSliceVar(&rows, "rows", nil, "Restrict evaluation to these row indices, in this order")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// ============================================================================
// UNIQUE
// ============================================================================

func (a *app) uniqueCmd() *cobra.Command {
	var (
		data   string
		fields []string
		rows   []int
	)
	cmd := &cobra.Command{
		Use:   "unique",
		Short: "Count distinct values per field",
		Long: `Count distinct values per field. Fields are name[:type] with type one of
string, long, number, boolean, duration, date. Without --fields every
groupable field of the discovered schema is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, name, err := loadView(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}
			var list []engine.UniqueField
			if len(fields) > 0 {
				if list, err = parseUniqueFields(fields); err != nil {
					return err
				}
			} else {
				cfg, err := schema.Discover(view, schema.DiscoverOptions{
					SampleSize: schema.DefaultDiscoverOptions().SampleSize,
					Name:       name,
					Logger:     a.logger,
				})
				if err != nil {
					return err
				}
				list = cfg.UniqueFields()
			}
			result, err := engine.Unique(view, list, rows, a.engineOptions()...)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), uniqueOutput{fields: list, result: result})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "Row file, JSON or YAML array (- for stdin)")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields as name[:type], comma separated")
	cmd.Flags().IntSliceVar(&rows, "rows", nil, "Restrict counting to these row indices")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func parseUniqueFields(specs []string) ([]engine.UniqueField, error) {
	out := make([]engine.UniqueField, 0, len(specs))
	for _, spec := range specs {
		name, typ, _ := strings.Cut(strings.TrimSpace(spec), ":")
		if name == "" {
			return nil, errors.Errorf("empty field name in %q", spec)
		}
		t, ok := engine.ParseUniqueType(typ)
		if !ok {
			return nil, errors.Errorf("unknown type %q for field %s", typ, name)
		}
		out = append(out, engine.UniqueField{Field: name, Type: t})
	}
	return out, nil
}

// ============================================================================
// DISCOVER
// ============================================================================

func (a *app) discoverCmd() *cobra.Command {
	var (
		data, overrides string
		sample          int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Describe the fields of a row file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, name, err := loadView(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}
			cfg, err := schema.Discover(view, schema.DiscoverOptions{
				SampleSize: sample,
				Name:       name,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}
			if overrides != "" {
				o, err := loadOverrides(overrides)
				if err != nil {
					return err
				}
				if cfg, err = schema.Refine(cfg, o); err != nil {
					return err
				}
			}
			return a.write(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "Row file, JSON or YAML array (- for stdin)")
	cmd.Flags().StringVar(&overrides, "overrides", "", "Field overrides to apply, JSON or YAML")
	cmd.Flags().IntVar(&sample, "sample", schema.DefaultDiscoverOptions().SampleSize, "Rows to inspect (0 = all)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func loadOverrides(path string) (schema.Overrides, error) {
	var o schema.Overrides
	b, err := os.ReadFile(path)
	if err != nil {
		return o, errors.Wrap(err, "reading overrides")
	}
	if isYAMLPath(path) {
		err = yaml.Unmarshal(b, &o)
	} else {
		err = helpers.UnmarshalJSON(b, &o)
	}
	return o, errors.Wrapf(err, "decoding overrides %s", path)
}

// ============================================================================
// DURATION
// ============================================================================

type durationLine struct {
	ISO      string `json:"iso"`
	Duration string `json:"duration"`
}

func (a *app) durationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duration ISO8601...",
		Short: "Convert ISO-8601 durations to day:hour:minute:second",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]durationLine, 0, len(args))
			for _, iso := range args {
				s, err := engine.ISO8601ToString(iso)
				if err != nil {
					return err
				}
				out = append(out, durationLine{ISO: iso, Duration: s})
			}
			return a.write(cmd.OutOrStdout(), out)
		},
	}
}

// ============================================================================
// SERVE
// ============================================================================

func (a *app) serveCmd() *cobra.Command {
	var data []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve perspectives over HTTP",
		Long: `Serve perspectives over HTTP. Files given with --data are loaded at start
under their base name without extension (tickets.json -> /datasets/tickets).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			cfg := server.DefaultConfig()
			cfg.CacheSize = a.v.GetInt("server.cache_size")
			cfg.MaxDepth = a.v.GetInt("engine.max_depth")
			cfg.CaseSensitive = a.v.GetBool("engine.case_sensitive")
			srv, err := server.New(cfg, a.logger, reg)
			if err != nil {
				return err
			}
			for _, path := range data {
				name, rows, err := readRows(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				srv.Load(name, rows)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.listen(ctx, a.v.GetString("server.listen"), srv.Handler())
		},
	}
	cmd.Flags().String("listen", ":8080", "Listen address")
	cmd.Flags().Int("cache-size", 16, "Datasets kept in memory")
	cmd.Flags().StringSliceVarP(&data, "data", "d", nil, "Row files to load at start")
	mustBind(a.v, "server.listen", cmd.Flags().Lookup("listen"))
	mustBind(a.v, "server.cache_size", cmd.Flags().Lookup("cache-size"))
	return cmd
}

// listen serves h on addr until ctx is done, then drains in-flight requests.
func (a *app) listen(ctx context.Context, addr string, h http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		level.Info(a.logger).Log("msg", "listening", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		level.Info(a.logger).Log("msg", "shutting down")
		return hs.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ============================================================================
// INPUT
// ============================================================================

// readRows decodes a row file. The dataset name is the file's base name
// without extension, or "stdin".
func readRows(stdin io.Reader, path string) (string, []engine.Value, error) {
	if path == "" {
		return "", nil, errors.New("no data file given")
	}
	var (
		r    io.Reader = stdin
		name           = "stdin"
	)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", nil, errors.Wrap(err, "opening data")
		}
		defer f.Close()
		r = f
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	var (
		rows []engine.Value
		err  error
	)
	if isYAMLPath(path) {
		rows, err = helpers.DecodeRowsYAML(r)
	} else {
		rows, err = helpers.DecodeRowsJSON(r)
	}
	if err != nil {
		return "", nil, errors.Wrapf(err, "reading %s", path)
	}
	return name, rows, nil
}

func loadView(stdin io.Reader, path string) (*engine.SliceView, string, error) {
	name, rows, err := readRows(stdin, path)
	if err != nil {
		return nil, "", err
	}
	return engine.NewSliceView(rows), name, nil
}

// loadIntent reads an intent document. No path means the empty intent.
func loadIntent(stdin io.Reader, path string) (engine.Value, error) {
	if path == "" {
		return helpers.DecodeIntentJSON([]byte("{}"))
	}
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return engine.Null(), errors.Wrap(err, "reading intent")
	}
	if isYAMLPath(path) || (path == "-" && !looksLikeJSON(b)) {
		return helpers.DecodeIntentYAML(b)
	}
	return helpers.DecodeIntentJSON(b)
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func looksLikeJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && (b[0] == '{' || b[0] == '[')
}
