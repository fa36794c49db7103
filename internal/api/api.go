// Package api exposes the search engines over HTTP.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/partscout/internal/encoder"
	"github.com/FranksOps/partscout/internal/filter"
	"github.com/FranksOps/partscout/internal/grid"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/FranksOps/partscout/internal/resolver"
	"github.com/FranksOps/partscout/internal/search"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Config configures the router.
type Config struct {
	CORSOrigins []string
	// ServeMetrics mounts /metrics on the API router.
	ServeMetrics bool
	Logger       *slog.Logger
}

// Server routes search requests to the registry.
type Server struct {
	reg *search.Registry
	log *slog.Logger
}

// NewRouter builds the gin engine.
func NewRouter(reg *search.Registry, cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{reg: reg, log: cfg.Logger.With("component", "api")}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	cc := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(cc))

	r.GET("/healthz", s.health)
	if cfg.ServeMetrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	g := r.Group("/api/search")
	g.POST("/mpn", s.mpn)
	g.POST("/parametric", s.parametric)
	g.POST("/cross-ref", s.crossRef)
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	names := s.reg.Vendors()
	ai := make(map[string]string, len(names))
	for _, name := range names {
		if e, err := s.reg.Get(name); err == nil {
			ai[name] = e.AIState()
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "vendors": names, "ai": ai})
}

// mpn handles {"vendor": "...", "mpn": "..."}.
func (s *Server) mpn(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	e, ok := s.engine(c, body.Get("vendor").String())
	if !ok {
		return
	}
	rows, err := e.SearchMPN(c.Request.Context(), body.Get("mpn").String())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rowsOrEmpty(rows))
}

// parametric handles {"vendor", "category", "subcategory", "mpn",
// "parameters": {...}, "details", "maxResults"}.
func (s *Server) parametric(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	e, ok := s.engine(c, body.Get("vendor").String())
	if !ok {
		return
	}

	req := search.ParametricRequest{
		Category:    body.Get("category").String(),
		Subcategory: body.Get("subcategory").String(),
		PartNumber:  body.Get("mpn").String(),
		Details:     body.Get("details").String(),
		MaxResults:  int(body.Get("maxResults").Int()),
	}
	if p := body.Get("parameters"); p.Exists() && p.Type != gjson.Null {
		set, err := filter.ParseSet([]byte(p.Raw))
		if err != nil {
			s.fail(c, err)
			return
		}
		req.Filters = set
	}

	rows, err := e.SearchParametric(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rowsOrEmpty(rows))
}

// crossRef handles ?vendor= with {"mpn": "...", "path": [...]}.
func (s *Server) crossRef(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	name := c.Query("vendor")
	if name == "" {
		name = body.Get("vendor").String()
	}
	e, ok := s.engine(c, name)
	if !ok {
		return
	}
	var path []string
	for _, p := range body.Get("path").Array() {
		path = append(path, p.String())
	}
	out, err := e.SearchCrossRef(c.Request.Context(), body.Get("mpn").String(), path)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) readBody(c *gin.Context) (gjson.Result, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return gjson.Result{}, false
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(raw), true
}

func (s *Server) engine(c *gin.Context, name string) (*search.Engine, bool) {
	e, err := s.reg.Get(name)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return e, true
}

// fail maps domain errors to statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, search.ErrUnknownVendor):
		status = http.StatusNotFound
	case errors.Is(err, filter.ErrInvalidShape), errors.Is(err, encoder.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, search.ErrUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, resolver.ErrNoCategory):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error("search failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func rowsOrEmpty(rows []grid.Row) []grid.Row {
	if rows == nil {
		return []grid.Row{}
	}
	return rows
}
