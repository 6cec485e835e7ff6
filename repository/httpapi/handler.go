package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/hook"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/repository"
	"github.com/kbukum/flowkit/schedule"
)

// Handler serves the discovery routes of one registry.
type Handler struct {
	reg *repository.Registry
	log *logger.Logger
}

// NewHandler creates a handler over reg.
func NewHandler(reg *repository.Registry, log *logger.Logger) *Handler {
	return &Handler{reg: reg, log: logger.OrComponent(log, "repository-api")}
}

// Mount registers the discovery routes on r under cfg.BasePath and returns
// the route group.
func Mount(r gin.IRouter, reg *repository.Registry, cfg Config, log *logger.Logger) *gin.RouterGroup {
	cfg.ApplyDefaults()
	h := NewHandler(reg, log)

	g := r.Group(cfg.BasePath, RequestID(), Recovery(h.log))
	if cfg.RequestLogging {
		g.Use(RequestLogger(h.log))
	}
	g.GET("", h.Index)
	g.GET("/:kind", h.List)
	g.GET("/:kind/:name", h.Get)
	return g
}

// Index lists every kind with its definition count.
func (h *Handler) Index(c *gin.Context) {
	kinds := repository.Kinds()
	out := make([]KindSummary, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, KindSummary{Kind: string(k), Count: h.reg.Count(k)})
	}
	RespondList(c, out)
}

// List returns the summaries of every definition of the path's kind.
func (h *Handler) List(c *gin.Context) {
	kind, err := repository.ParseKind(c.Param("kind"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	names, err := h.reg.ListByKind(kind)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	out := make([]any, 0, len(names))
	for _, name := range names {
		s, err := h.summary(kind, name)
		if err != nil {
			RespondWithError(c, err)
			return
		}
		out = append(out, s)
	}
	RespondList(c, out)
}

// Get returns the summary of one definition.
func (h *Handler) Get(c *gin.Context) {
	kind, err := repository.ParseKind(c.Param("kind"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	s, err := h.summary(kind, c.Param("name"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, s)
}

func (h *Handler) summary(kind repository.Kind, name string) (any, error) {
	def, err := h.reg.Lookup(kind, name)
	if err != nil {
		return nil, err
	}
	switch d := def.(type) {
	case *dag.Pipeline:
		return summarizePipeline(d), nil
	case *schedule.Definition:
		return summarizeSchedule(d), nil
	case hook.Set:
		return HookSetSummary{Name: d.Name, Hooks: summarizeHooks(d.Hooks)}, nil
	default:
		return nil, errors.Internal(nil).WithDetail("kind", string(kind))
	}
}
