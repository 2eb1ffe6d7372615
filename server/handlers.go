package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/spektr-org/perspective/engine"
	"github.com/spektr-org/perspective/helpers"
)

// ============================================================================
// HANDLERS
// ============================================================================

// errNotFound is returned for requests against an unknown dataset.
var errNotFound = errors.New("dataset not found")

type datasetInfo struct {
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	LoadedAt string `json:"loadedAt"`
	Schema   any    `json:"schema,omitempty"`
}

func info(ds *Dataset) datasetInfo {
	out := datasetInfo{
		Name:     ds.Name,
		Rows:     len(ds.Rows),
		LoadedAt: ds.LoadedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if ds.Schema != nil {
		out.Schema = ds.Schema
	}
	return out
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var (
		rows []engine.Value
		err  error
	)
	if isYAML(r) {
		rows, err = helpers.DecodeRowsYAML(r.Body)
	} else {
		rows, err = helpers.DecodeRowsJSON(r.Body)
	}
	if err != nil {
		s.fail(w, errors.Wrap(err, "loading rows"), http.StatusBadRequest)
		return
	}
	ds := s.Load(name, rows)
	s.respond(w, http.StatusCreated, info(ds))
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK, info(ds))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !s.datasets.Remove(name) {
		s.fail(w, errNotFound, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePerspective(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	subset, err := parseSubset(r.URL.Query().Get("subset"))
	if err != nil {
		s.fail(w, err, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, errors.Wrap(err, "reading intent"), http.StatusBadRequest)
		return
	}
	intent, err := decodeIntent(body, isYAML(r))
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	p, err := engine.BuildPerspective(intent, ds.View, subset, s.engineOptions()...)
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	s.respond(w, http.StatusOK, p)
}

type batchRequest struct {
	Intents []json.RawMessage `json:"intents"`
	Subset  []int             `json:"subset"`
}

// handleBatch evaluates many intents over one snapshot. Each intent runs in
// its own goroutine; the first failure cancels the rest.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, errors.Wrap(err, "decoding batch"), http.StatusBadRequest)
		return
	}

	results, err := s.runBatch(r.Context(), ds, req)
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) runBatch(ctx context.Context, ds *Dataset, req batchRequest) ([]*engine.Perspective, error) {
	results := make([]*engine.Perspective, len(req.Intents))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchLimit)

	for i, raw := range req.Intents {
		i, raw := i, raw
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			intent, err := helpers.DecodeIntentJSON(raw)
			if err != nil {
				return errors.Wrapf(err, "intent %d", i)
			}
			results[i], err = engine.BuildPerspective(intent, ds.View, req.Subset, s.engineOptions()...)
			return errors.Wrapf(err, "intent %d", i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	caseSensitive := s.cfg.CaseSensitive
	if v := r.URL.Query().Get("case_sensitive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, errors.Wrap(err, "case_sensitive"), http.StatusBadRequest)
			return
		}
		caseSensitive = b
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, errors.Wrap(err, "reading filter"), http.StatusBadRequest)
		return
	}
	// A filter is validated as the filter key of an intent.
	intent, err := decodeIntent(wrapFilter(body, isYAML(r)), isYAML(r))
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	rows, err := engine.FilterData(engine.Resolve(intent, "filter"), ds.View, caseSensitive, s.engineOptions()...)
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	s.respond(w, http.StatusOK, rows)
}

func (s *Server) handleUnique(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	subset, err := parseSubset(r.URL.Query().Get("subset"))
	if err != nil {
		s.fail(w, err, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, errors.Wrap(err, "reading unique fields"), http.StatusBadRequest)
		return
	}

	// An empty body asks for every groupable field of the discovered schema.
	if len(strings.TrimSpace(string(body))) == 0 {
		var fields []engine.UniqueField
		if ds.Schema != nil {
			fields = ds.Schema.UniqueFields()
		}
		result, err := engine.Unique(ds.View, fields, subset, s.engineOptions()...)
		if err != nil {
			s.fail(w, err, statusFor(err))
			return
		}
		s.respond(w, http.StatusOK, result)
		return
	}

	var fields engine.Value
	if isYAML(r) {
		fields, err = helpers.DecodeUniqueFieldsYAML(body)
	} else {
		fields, err = helpers.DecodeUniqueFieldsJSON(body)
	}
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	result, err := engine.UniqueValues(fields, ds.View, subset, s.engineOptions()...)
	if err != nil {
		s.fail(w, err, statusFor(err))
		return
	}
	s.respond(w, http.StatusOK, result)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Dataset, bool) {
	ds, ok := s.datasets.Get(mux.Vars(r)["name"])
	if !ok {
		s.fail(w, errNotFound, http.StatusNotFound)
	}
	return ds, ok
}

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := helpers.EncodeJSON(w, v, false); err != nil {
		level.Warn(s.logger).Log("msg", "writing response", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error, code int) {
	if code >= http.StatusInternalServerError {
		level.Error(s.logger).Log("msg", "request failed", "err", err)
	} else {
		level.Debug(s.logger).Log("msg", "request rejected", "status", code, "err", err)
	}
	s.respond(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case engine.IsMalformedIntent(err), engine.IsOutOfRange(err), errors.Is(err, engine.ErrMaxDepth):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func decodeIntent(body []byte, yaml bool) (engine.Value, error) {
	if yaml {
		return helpers.DecodeIntentYAML(body)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	return helpers.DecodeIntentJSON(body)
}

func wrapFilter(body []byte, yaml bool) []byte {
	if yaml {
		return append([]byte("filter:\n"), indent(body)...)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return []byte("{}")
	}
	return append(append([]byte(`{"filter":`), body...), '}')
}

func indent(body []byte) []byte {
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func isYAML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "yaml")
}

// parseSubset reads a comma-separated list of row indices.
func parseSubset(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "subset index %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
