package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Action string

type Method string

const (
	Data Action = "data"

	GET  Method = "GET"
	POST Method = "POST"
)

// Handler produces the response payload for a request.
type Handler func(r *http.Request) ([]byte, int, error)

type Route struct {
	Action Action
	Path   string
	Method Method
	Exec   Handler
}

// Server is a minimal http server exposing model operations.
type Server struct {
	name       string
	port       int
	mux        *http.ServeMux
	routes     []Route
	registered bool
}

func NewServer(name string, port int) *Server {
	return &Server{
		name:   name,
		port:   port,
		mux:    http.NewServeMux(),
		routes: make([]Route, 0),
	}
}

// Add adds the given routes to the server
func (s *Server) Add(route ...Route) *Server {
	s.routes = append(s.routes, route...)
	return s
}

// AddHandler mounts a raw http handler, e.g. the metrics exposition.
func (s *Server) AddHandler(path string, handler http.Handler) *Server {
	s.mux.Handle(path, handler)
	return s
}

func (s *Server) handle(method Method, handler Handler) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestMethod := Method(r.Method)
		switch requestMethod {
		case method:
			b, code, err := handler(r)
			if err != nil {
				s.error(w, err)
			} else if code != http.StatusOK {
				s.code(w, b, code)
			} else {
				s.respond(w, b)
			}
			log.Debug().
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Float64("duration", time.Since(started).Seconds()).
				Msg("handled request")
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}
}

func (s *Server) register() {
	if s.registered {
		return
	}
	for _, route := range s.routes {
		if route.Path != "" {
			s.mux.HandleFunc(fmt.Sprintf("/%s/%s", route.Action, route.Path), s.handle(route.Method, route.Exec))
		} else {
			s.mux.HandleFunc(fmt.Sprintf("/%s", route.Action), s.handle(route.Method, route.Exec))
		}
	}
	s.registered = true
}

// Run starts the server
func (s *Server) Run() error {
	s.register()
	log.Info().Str("server", s.name).Int("port", s.port).Msg("starting server")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", s.port), s.mux); err != nil {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

// Mux exposes the routing table, mostly for tests to drive handlers directly.
func (s *Server) Mux() *http.ServeMux {
	s.register()
	return s.mux
}

func (s *Server) code(w http.ResponseWriter, b []byte, code int) {
	w.WriteHeader(code)
	s.respond(w, b)
}

func (s *Server) respond(w http.ResponseWriter, b []byte) {
	_, err := w.Write(b)
	if err != nil {
		log.Error().Err(err).Msg("could not write response")
	}
}

func (s *Server) error(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("error for http request")
	s.code(w, []byte(err.Error()), http.StatusInternalServerError)
}
