// Package sessions exposes the session registry over HTTP.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/kilianp07/cellsim/core/factory"
	corelogger "github.com/kilianp07/cellsim/core/logger"
	"github.com/kilianp07/cellsim/core/session"
)

// DefaultCurvePoints is the sample count of GET /api/sessions/{id}/curve when
// ?points is absent. Requests above curve.MaxSamplePoints get 400.
const DefaultCurvePoints = 101

// Server serves the session API.
type Server struct {
	reg *session.Registry
	mux *http.ServeMux
	srv *http.Server
	log corelogger.Logger
}

// New returns a runnable server bound to addr.
func New(reg *session.Registry, addr string, log corelogger.Logger) *Server {
	if log == nil {
		log = corelogger.NopLogger{}
	}
	s := &Server{reg: reg, mux: http.NewServeMux(), log: log}

	s.mux.HandleFunc("POST /api/sessions", s.handleCreate)
	s.mux.HandleFunc("GET /api/sessions", s.handleList)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	s.mux.HandleFunc("PUT /api/sessions/{id}/curve", s.handlePutCurve)
	s.mux.HandleFunc("GET /api/sessions/{id}/curve", s.handleGetCurve)
	s.mux.HandleFunc("PUT /api/sessions/{id}/config", s.handlePutConfig)
	s.mux.HandleFunc("POST /api/sessions/{id}/step", s.handleStep)
	s.mux.HandleFunc("POST /api/sessions/{id}/run", s.handleRun)
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/curves/presets", s.handlePresets)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handle mounts an extra handler, such as /metrics, on the same listener.
func (s *Server) Handle(pattern string, h http.Handler) { s.mux.Handle(pattern, h) }

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("HTTP API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type createRequest struct {
	ID string `json:"id"`
}

// curveRequest carries either inline columns or a curve source.
type curveRequest struct {
	SoC  []float64      `json:"soc"`
	OCV  []float64      `json:"ocv"`
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

type stepRequest struct {
	CurrentA *float64 `json:"current_a"`
	DtS      *float64 `json:"dt_s"`
}

type runRequest struct {
	Steps []session.ProfileStep `json:"steps"`
}

type runResponse struct {
	Results []session.StepResult `json:"results"`
	Error   string               `json:"error,omitempty"`
	Kind    session.Kind         `json:"kind,omitempty"`
}

// ---- Handlers ----

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	var h *session.Handle
	if req.ID == "" {
		_, h = s.reg.Create()
	} else {
		var err error
		if h, err = s.reg.CreateWithID(req.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, h.Snapshot())
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	ids := s.reg.IDs()
	out := make([]session.Snapshot, 0, len(ids))
	for _, id := range ids {
		if h, err := s.reg.Get(id); err == nil {
			out = append(out, h.Snapshot())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutCurve(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req curveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	var err error
	if req.Type != "" {
		var src curve.Source
		src, err = curve.NewSource(factory.ModuleConfig{Type: req.Type, Conf: req.Conf})
		if err != nil {
			err = fmt.Errorf("%w: %w", curve.ErrInvalidCurve, err)
		} else {
			err = h.Do(func(sess *session.Session) error { return sess.LoadCurveFrom(r.Context(), src) })
		}
	} else {
		err = h.Do(func(sess *session.Session) error { return sess.LoadCurveColumns(req.SoC, req.OCV) })
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handleGetCurve(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	n := DefaultCurvePoints
	if v := r.URL.Query().Get("points"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > curve.MaxSamplePoints {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("points must be an integer in [1, %d]", curve.MaxSamplePoints))
			return
		}
		n = p
	}
	var body []byte
	err := h.Do(func(sess *session.Session) error {
		c, err := sess.Curve()
		if err != nil {
			return err
		}
		body, err = c.SampledJSON(n)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	cfg := ecm.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.Do(func(sess *session.Session) error {
		_, err := sess.Configure(cfg)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CurrentA == nil || req.DtS == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'current_a' or 'dt_s'")
		return
	}
	var res session.StepResult
	err := h.Do(func(sess *session.Session) error {
		var err error
		res, err = sess.Step(*req.CurrentA, *req.DtS)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	var out runResponse
	err := h.Do(func(sess *session.Session) error {
		var err error
		out.Results, err = session.Run(r.Context(), sess, req.Steps)
		return err
	})
	if err != nil {
		if len(out.Results) == 0 {
			writeError(w, err)
			return
		}
		out.Error = err.Error()
		out.Kind = session.KindOf(err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := h.Do(func(sess *session.Session) error { return sess.Reset() }); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"presets": curve.Presets(),
		"sources": curve.SourceTypes(),
		"models":  curve.ModelTypes(),
	})
}

// ---- generic helpers ----

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	h, err := s.reg.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return h, true
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrExists):
		return http.StatusConflict
	}
	switch session.KindOf(err) {
	case session.KindInvalidCurve:
		return http.StatusBadRequest
	case session.KindConfiguration, session.KindIntegrationFailure:
		return http.StatusUnprocessableEntity
	case session.KindNotConfigured:
		return http.StatusConflict
	case session.KindSessionClosed:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error(), "kind": string(session.KindOf(err))})
}
