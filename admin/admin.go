// Package admin serves a read-only JSON view of the trigger registry.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gobridge/retrigger/registry"
	"github.com/gobridge/retrigger/trigger"
)

// Server exposes the registry over HTTP.
type Server struct {
	reg *registry.Registry
	log logrus.FieldLogger
	r   *mux.Router
}

// New constructs a *Server and its routes.
func New(reg *registry.Registry, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		reg: reg,
		log: log.WithField("component", "admin"),
		r:   mux.NewRouter(),
	}
	s.r.HandleFunc("/healthz", s.health).Methods("GET")
	s.r.HandleFunc("/guilds", s.guilds).Methods("GET")
	g := s.r.PathPrefix("/guilds/{guild}").Subrouter()
	g.HandleFunc("/settings", s.settings).Methods("GET")
	g.HandleFunc("/triggers", s.triggers).Methods("GET")
	g.HandleFunc("/triggers/{name}", s.trigger).Methods("GET")
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("admin api listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) guilds(w http.ResponseWriter, r *http.Request) {
	ids, err := s.reg.Guilds(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ids)
}

func (s *Server) settings(w http.ResponseWriter, r *http.Request) {
	st, err := s.reg.Settings(r.Context(), mux.Vars(r)["guild"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, st)
}

func (s *Server) triggers(w http.ResponseWriter, r *http.Request) {
	ts, err := s.reg.List(r.Context(), mux.Vars(r)["guild"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, ts)
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, err := s.reg.Get(r.Context(), vars["guild"], vars["name"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, t)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, trigger.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, trigger.ErrStorageUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		s.log.Errorf("admin request failed: %v", err)
	}
	s.write(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) write(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("writing admin response: %v", err)
	}
}
