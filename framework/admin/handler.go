// Package admin exposes a composition root's transitions over HTTP.
package admin

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/km-arc/go-compose/framework/compose"
	gohttp "github.com/km-arc/go-compose/framework/http"
	"github.com/km-arc/go-compose/framework/http/validation"
	"github.com/km-arc/go-compose/framework/routing"
	"github.com/km-arc/go-compose/framework/transition"
)

// Option configures the admin routes.
type Option func(*server)

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *server) { s.metrics = h }
}

// WithLogger sets the logger for request and transition logs.
func WithLogger(l *zap.Logger) Option {
	return func(s *server) {
		if l != nil {
			s.logger = l
		}
	}
}

type server struct {
	root    *compose.Root
	catalog *Catalog
	metrics http.Handler
	logger  *zap.Logger
}

// ContainerView is one entry of GET /transitions.
type ContainerView struct {
	Abstraction  string   `json:"abstraction"`
	Original     string   `json:"original"`
	Handles      int      `json:"handles"`
	Transitioned bool     `json:"transitioned"`
	Snapshotted  bool     `json:"snapshotted"`
	Offers       []string `json:"offers"`
}

type transitionRequest struct {
	To string `json:"to" validate:"required,max=128,printascii"`
}

// Handler returns a router serving the admin routes.
func Handler(root *compose.Root, catalog *Catalog, opts ...Option) http.Handler {
	s := newServer(root, catalog, opts)
	r := routing.New(s.logger)
	s.routes(r)
	return r
}

func newServer(root *compose.Root, catalog *Catalog, opts []Option) *server {
	if catalog == nil {
		catalog = NewCatalog()
	}
	s := &server{root: root, catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *server) routes(r *routing.Router) {
	r.Get("/transitions", s.list)
	r.Post("/transitions/{abstraction}", s.transition)
	r.Post("/transitions/{abstraction}/revert", s.revert)
	r.Post("/snapshot", s.snapshot)
	r.Post("/restore", s.restore)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)
	var only *bool
	if v := req.Query("transitioned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			res.BadRequest("transitioned must be a boolean.")
			return
		}
		only = &b
	}

	infos := s.root.Registry().Containers()
	out := make([]ContainerView, 0, len(infos))
	for _, info := range infos {
		if only != nil && info.Transitioned != *only {
			continue
		}
		original := ""
		if info.Key.Original != nil {
			original = info.Key.Original.String()
		}
		out = append(out, ContainerView{
			Abstraction:  info.Key.Abstraction.String(),
			Original:     original,
			Handles:      info.Handles,
			Transitioned: info.Transitioned,
			Snapshotted:  info.Snapshotted,
			Offers:       s.catalog.Names(info.Key.Abstraction),
		})
	}
	res.Success(out)
}

func (s *server) transition(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)
	abstraction, err := url.PathUnescape(req.RouteParam("abstraction"))
	if err != nil {
		res.BadRequest("Malformed abstraction.")
		return
	}

	var body transitionRequest
	if err := req.Validate(&body); err != nil {
		var bag *validation.Errors
		if errors.As(err, &bag) {
			res.ValidationError(bag)
			return
		}
		res.BadRequest(err.Error())
		return
	}

	to, ok := s.catalog.target(abstraction, body.To)
	if !ok {
		res.NotFound("Unknown abstraction " + abstraction + ".")
		return
	}
	if to == nil {
		res.NotFound("No implementation named " + body.To + " for " + abstraction + ".")
		return
	}
	changed, err := to(s.root)
	s.logger.Info("admin transition",
		zap.String("abstraction", abstraction),
		zap.String("to", body.To),
		zap.Bool("changed", changed),
		zap.Error(err),
	)
	s.respond(res, changed, err)
}

func (s *server) revert(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)
	abstraction, err := url.PathUnescape(req.RouteParam("abstraction"))
	if err != nil {
		res.BadRequest("Malformed abstraction.")
		return
	}
	revert, ok := s.catalog.reverter(abstraction)
	if !ok {
		res.NotFound("Unknown abstraction " + abstraction + ".")
		return
	}
	changed, err := revert(s.root)
	s.logger.Info("admin revert", zap.String("abstraction", abstraction), zap.Bool("changed", changed), zap.Error(err))
	s.respond(res, changed, err)
}

func (s *server) respond(res *gohttp.Response, changed bool, err error) {
	var ineligible *transition.EligibilityError
	switch {
	case errors.As(err, &ineligible):
		res.Conflict(err.Error())
	case err != nil:
		res.ServerError(err.Error())
	default:
		res.JSON(http.StatusOK, map[string]bool{"changed": changed})
	}
}

func (s *server) snapshot(w http.ResponseWriter, _ *http.Request) {
	res := gohttp.NewResponse(w)
	if err := s.root.Snapshot(); err != nil {
		s.logger.Error("admin snapshot failed", zap.Error(err))
		res.ServerError(err.Error())
		return
	}
	res.NoContent()
}

func (s *server) restore(w http.ResponseWriter, _ *http.Request) {
	res := gohttp.NewResponse(w)
	if err := s.root.Restore(); err != nil {
		s.logger.Error("admin restore failed", zap.Error(err))
		res.ServerError(err.Error())
		return
	}
	res.NoContent()
}
