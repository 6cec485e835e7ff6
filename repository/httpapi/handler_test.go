package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/repository"
	"github.com/kbukum/flowkit/schedule"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	compute := func(context.Context, *dag.Invocation) (dag.Outputs, error) { return nil, nil }
	extract := dag.MustTask(dag.TaskSpec{Name: "extract", Outputs: []dag.Port{dag.Out[[]string]("rows")}, Compute: compute})
	load := dag.MustTask(dag.TaskSpec{Name: "load", Inputs: []dag.Port{dag.In[[]string]("rows")}, Compute: compute})
	p, err := dag.NewPipeline(dag.PipelineSpec{
		Name:  "etl",
		Nodes: []dag.Node{dag.Use(extract), dag.Use(load)},
		Edges: []dag.Edge{dag.Connect("extract", "rows", "load", "rows")},
		Tags:  map[string]string{"team": "data"},
	})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	s, err := schedule.New(schedule.Spec{Name: "nightly", Pipeline: p, Cron: schedule.Daily(2, 0), Timezone: "Europe/Berlin", CatchUp: schedule.CatchUpIgnore})
	if err != nil {
		t.Fatalf("schedule.New() error = %v", err)
	}

	reg := repository.New("test", logger.Nop())
	if err := reg.RegisterPipeline(p); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterSchedule(s); err != nil {
		t.Fatal(err)
	}
	noop := func(context.Context, hook.Event) error { return nil }
	if err := reg.RegisterHooks("alerts", hook.Failure("page", hook.Pipeline(), noop)); err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	Mount(r, reg, Config{RequestLogging: true}, logger.Nop())
	return r
}

func get(t *testing.T, r http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
		}
	}
	return w
}

func TestIndex(t *testing.T) {
	var body struct {
		Data []KindSummary `json:"data"`
		Meta Meta          `json:"meta"`
	}
	w := get(t, newRouter(t), "/repository", &body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body.Meta.Total != 3 {
		t.Fatalf("expected 3 kinds, got %+v", body)
	}
	for _, k := range body.Data {
		if k.Count != 1 {
			t.Errorf("expected one %s, got %d", k.Kind, k.Count)
		}
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header")
	}
}

func TestGetPipeline(t *testing.T) {
	var body struct {
		Data PipelineSummary `json:"data"`
	}
	w := get(t, newRouter(t), "/repository/pipeline/etl", &body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := body.Data
	if p.Name != "etl" || len(p.Nodes) != 2 || p.Tags["team"] != "data" {
		t.Fatalf("unexpected summary %+v", p)
	}
	if len(p.Edges) != 1 || p.Edges[0] != "extract.rows -> load.rows" {
		t.Errorf("unexpected edges %v", p.Edges)
	}
	if p.Nodes[1].Inputs[0].Type != "[]string" {
		t.Errorf("unexpected input type %q", p.Nodes[1].Inputs[0].Type)
	}
}

func TestGetSchedule(t *testing.T) {
	var body struct {
		Data ScheduleSummary `json:"data"`
	}
	get(t, newRouter(t), "/repository/schedule/nightly", &body)
	s := body.Data
	if s.Pipeline != "etl" || s.Cron != "0 2 * * *" || s.Timezone != "Europe/Berlin" || s.CatchUp != "ignore" {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Dialect != "standard" || s.DefaultStatus != "running" {
		t.Errorf("expected defaults applied, got %+v", s)
	}
}

func TestListHooks(t *testing.T) {
	var body struct {
		Data []HookSetSummary `json:"data"`
	}
	get(t, newRouter(t), "/repository/hooks", &body)
	if len(body.Data) != 1 || body.Data[0].Hooks[0].Trigger != "failure" || body.Data[0].Hooks[0].Scope != "pipeline" {
		t.Fatalf("unexpected hooks %+v", body.Data)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown kind", "/repository/widgets", http.StatusNotFound},
		{"unknown name", "/repository/pipeline/missing", http.StatusNotFound},
		{"unknown kind with name", "/repository/widgets/x", http.StatusNotFound},
	}
	r := newRouter(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			w := get(t, r, tc.path, &body)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
			if body.Error.Code != "NOT_FOUND" {
				t.Errorf("expected NOT_FOUND body, got %s", w.Body.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logger.Nop()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	w := get(t, r, "/boom", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{BasePath: "/api/repo/"}
	cfg.ApplyDefaults()
	if cfg.BasePath != "/api/repo" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BasePath)
	}
	bad := Config{BasePath: "repo"}
	if bad.Validate() == nil {
		t.Error("expected relative base path to fail validation")
	}
}
