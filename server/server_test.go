package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioRows = `[
	{"id": 0, "code": "A", "value": 10, "isActive": true, "wait": "PT1H"},
	{"id": 1, "code": "B", "value": 10, "isActive": false, "wait": "P1D"},
	{"id": 2, "code": "C", "value": 20, "isActive": true, "wait": "PT30M"},
	{"id": 3, "code": "D", "value": 20, "isActive": true, "wait": "PT1H"},
	{"id": 4, "code": "E", "value": 5, "isActive": false, "wait": "PT2H"}
]`

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(cfg, log.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, contentType, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func loadScenario(t *testing.T, ts *httptest.Server) {
	t.Helper()
	code, body := do(t, ts, http.MethodPost, "/datasets/tickets", "application/json", scenarioRows)
	require.Equal(t, http.StatusCreated, code, body)
}

func TestLoadAndDescribe(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig())
	code, body := do(t, ts, http.MethodPost, "/datasets/tickets", "application/json", scenarioRows)
	require.Equal(t, http.StatusCreated, code, body)

	var info struct {
		Name   string `json:"name"`
		Rows   int    `json:"rows"`
		Schema struct {
			Fields []struct {
				Key  string `json:"key"`
				Type string `json:"type"`
			} `json:"fields"`
		} `json:"schema"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "tickets", info.Name)
	assert.Equal(t, 5, info.Rows)
	types := map[string]string{}
	for _, f := range info.Schema.Fields {
		types[f.Key] = f.Type
	}
	assert.Equal(t, "duration", types["wait"])
	assert.Equal(t, "long", types["value"])

	code, _ = do(t, ts, http.MethodGet, "/datasets/tickets", "", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, ts, http.MethodGet, "/datasets/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, ts, http.MethodDelete, "/datasets/tickets", "", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, ts, http.MethodDelete, "/datasets/tickets", "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, ts, http.MethodPost, "/datasets/bad", "application/json", `{"rows": 1}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPerspectiveEndpoint(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig())
	loadScenario(t, ts)

	code, body := do(t, ts, http.MethodPost, "/datasets/tickets/perspective", "application/json",
		`{"filter": [{"field": "value", "operator": "<", "value": 20}], "sort": [{"name": "code", "direction": "desc"}]}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `[4, 1, 0]`, body)

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/perspective?subset=3,2,1", "application/json",
		`{"aggregates": {"max": "value", "sum": "value"}}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `[{"agg": "max", "field": "value", "value": 20}, {"agg": "sum", "field": "value", "value": 50}]`, body)

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/perspective", "application/yaml",
		"group: [isActive]\nsort:\n  - {name: wait, type: duration}\n")
	require.Equal(t, http.StatusOK, code, body)
	var tree map[string]struct {
		ChildCount int `json:"child_count"`
		Children   map[string]struct {
			Rows []int `json:"rows"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &tree))
	assert.Equal(t, 2, tree["root"].ChildCount)
	assert.Equal(t, []int{2, 0, 3}, tree["root"].Children["true"].Rows)
	assert.Equal(t, []int{4, 1}, tree["root"].Children["false"].Rows)

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/perspective", "application/json", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `[0, 1, 2, 3, 4]`, body)
}

func TestPerspectiveErrors(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig())
	loadScenario(t, ts)

	for name, tc := range map[string]struct {
		path, body string
		want       int
	}{
		"malformed intent": {"/datasets/tickets/perspective", `{"sort": [{"direction": "asc"}]}`, http.StatusBadRequest},
		"bad json":         {"/datasets/tickets/perspective", `{"sort": `, http.StatusBadRequest},
		"out of range":     {"/datasets/tickets/perspective?subset=0,9", `{}`, http.StatusBadRequest},
		"bad subset":       {"/datasets/tickets/perspective?subset=a", `{}`, http.StatusBadRequest},
		"unknown dataset":  {"/datasets/none/perspective", `{}`, http.StatusNotFound},
	} {
		t.Run(name, func(t *testing.T) {
			code, body := do(t, ts, http.MethodPost, tc.path, "application/json", tc.body)
			assert.Equal(t, tc.want, code, body)
			assert.Contains(t, body, `"error"`)
		})
	}
}

func TestBatchEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{BatchLimit: 2})
	loadScenario(t, ts)

	code, body := do(t, ts, http.MethodPost, "/datasets/tickets/perspectives", "application/json", `{
		"intents": [
			{"filter": [{"field": "isActive", "operator": "==", "value": true}]},
			{"aggregates": {"count": "isActive"}},
			{"sort": [{"name": "wait", "type": "duration", "direction": "desc"}]},
			{"group": ["value"]}
		]
	}`)
	require.Equal(t, http.StatusOK, code, body)

	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Len(t, resp.Results, 4)
	assert.JSONEq(t, `[0, 2, 3]`, string(resp.Results[0]))
	assert.JSONEq(t, `[{"agg": "count", "field": "isActive", "value": [{"value": true, "count": 3}, {"value": false, "count": 2}]}]`, string(resp.Results[1]))
	assert.JSONEq(t, `[1, 4, 0, 3, 2]`, string(resp.Results[2]))
	assert.Contains(t, string(resp.Results[3]), `"root"`)

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/perspectives", "application/json",
		`{"intents": [{}, {"group": "value"}]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "intent 1")
}

func TestFilterEndpoint(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig())
	loadScenario(t, ts)

	filter := `{"operator": "or", "expressions": [
		{"field": "code", "operator": "==", "value": "a"},
		{"field": "value", "operator": "==", "value": 5}
	]}`
	code, body := do(t, ts, http.MethodPost, "/datasets/tickets/filter", "application/json", filter)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `[0, 4]`, body)

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/filter?case_sensitive=true", "application/json", filter)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `[4]`, body)

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/filter", "application/yaml",
		"- {field: isActive, operator: ==, value: false}\n")
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `[1, 4]`, body)

	code, _ = do(t, ts, http.MethodPost, "/datasets/tickets/filter", "application/json", `[{"operator": "=="}]`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUniqueEndpoint(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig())
	loadScenario(t, ts)

	code, body := do(t, ts, http.MethodPost, "/datasets/tickets/unique", "application/json",
		`[{"name": "value", "type": "long"}, {"name": "wait", "type": "duration"}]`)
	require.Equal(t, http.StatusOK, code, body)

	var got map[string][]struct {
		Value json.RawMessage `json:"value"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got["value"], 3)
	assert.JSONEq(t, `5`, string(got["value"][0].Value))
	assert.Equal(t, 2, got["value"][1].Count)
	require.Len(t, got["wait"], 4)
	assert.JSONEq(t, `{"duration": "0:0:30:0", "iso": "PT30M"}`, string(got["wait"][0].Value))

	code, body = do(t, ts, http.MethodPost, "/datasets/tickets/unique?subset=0,1", "", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, `"isActive"`)

	code, _ = do(t, ts, http.MethodPost, "/datasets/tickets/unique", "application/json", `[{"name": "value", "type": "decimal"}]`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, DefaultConfig())
	loadScenario(t, ts)
	do(t, ts, http.MethodPost, "/datasets/tickets/perspective", "application/json", `{"sort": ["code"]}`)
	do(t, ts, http.MethodPost, "/datasets/tickets/perspective", "application/json", `{"group": 1}`)

	code, body := do(t, ts, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `perspective_http_requests_total{code="201",route="/datasets/{name}"} 1`)
	assert.Contains(t, body, `perspective_stage_rows_total{stage="sort"} 5`)
	assert.Contains(t, body, `perspective_http_requests_total{code="400",route="/datasets/{name}/perspective"} 1`)
}

func TestCacheEvictsOldest(t *testing.T) {
	s, ts := newTestServer(t, Config{CacheSize: 1})
	loadScenario(t, ts)
	code, _ := do(t, ts, http.MethodPost, "/datasets/other", "application/json", `[{"a": 1}]`)
	require.Equal(t, http.StatusCreated, code)

	_, ok := s.Dataset("tickets")
	assert.False(t, ok)
	ds, ok := s.Dataset("other")
	require.True(t, ok)
	assert.Len(t, ds.Rows, 1)
}
