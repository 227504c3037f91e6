// Package httpapi exposes the tresor service over JSON HTTP.
//
// Routes:
//
//	POST /jwt/store      {path, key, value}     -> {}
//	POST /jwt/get        {path, key}            -> {"value": string|null}
//	POST /jwt/get_many   {path_arrays, key}     -> {"results": [...]}
//	POST /jwt/ping                              -> {"pong": "yay", "welcome": email}
//	GET|POST /public/ping                       -> {"pong": "yay"}
//	OPTIONS /jwt/*, /public/*                   -> CORS preflight
//	GET /healthz, /readyz, /metrics
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/tresor"
)

const (
	HeaderRequestID = "X-Request-ID"

	DefaultDevOrigin = "http://localhost:8025"
)

type Options struct {
	Service *tresor.Service
	Secret  []byte
	Logger  tresor.Logger
	Limits  Limits
	// Development allows DevOrigin instead of Origin.
	Development bool
	DevOrigin   string
	Origin      string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Now     func() time.Time
}

type Server struct {
	svc      *tresor.Service
	log      tresor.Logger
	limits   Limits
	verifier verifier
	origin   string
	metrics  http.Handler
}

func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("httpapi: jwt secret is required")
	}
	s := &Server{
		svc:     opts.Service,
		log:     opts.Logger,
		limits:  opts.Limits,
		metrics: opts.Metrics,
	}
	if s.log == nil {
		s.log = tresor.NopLogger{}
	}
	def := DefaultLimits()
	if s.limits.MaxBody <= 0 {
		s.limits.MaxBody = def.MaxBody
	}
	if s.limits.MaxString <= 0 {
		s.limits.MaxString = def.MaxString
	}
	if s.limits.MaxManyBody <= 0 {
		s.limits.MaxManyBody = def.MaxManyBody
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s.verifier = verifier{secret: opts.Secret, now: now}

	s.origin = opts.Origin
	if opts.Development {
		s.origin = opts.DevOrigin
		if s.origin == "" {
			s.origin = DefaultDevOrigin
		}
	}
	return s, nil
}

// Handler returns the routed handler with request-id and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jwt/store", s.requireUser(s.handleStore))
	mux.HandleFunc("POST /jwt/get", s.requireUser(s.handleGet))
	mux.HandleFunc("POST /jwt/get_many", s.requireUser(s.handleGetMany))
	mux.HandleFunc("POST /jwt/ping", s.requireUser(s.handlePing))
	mux.HandleFunc("GET /public/ping", s.handlePublicPing)
	mux.HandleFunc("POST /public/ping", s.handlePublicPing)
	mux.HandleFunc("OPTIONS /jwt/", s.handlePreflight(true))
	mux.HandleFunc("OPTIONS /public/", s.handlePreflight(false))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.withRequestID(s.withCORS(mux))
}

type ridKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ridKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ridKey{}, id)))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.origin != "" && isAPIPath(r.URL.Path) {
			w.Header().Set("Access-Control-Allow-Origin", s.origin)
			w.Header().Set("Access-Control-Request-Headers", HeaderJWT)
		}
		next.ServeHTTP(w, r)
	})
}

func isAPIPath(p string) bool {
	return strings.HasPrefix(p, "/jwt/") || strings.HasPrefix(p, "/public/")
}

func (s *Server) handlePreflight(jwtRoute bool) http.HandlerFunc {
	allow := "Content-Type, Access-Control-Allow-Origin"
	if jwtRoute {
		allow += ", " + HeaderJWT
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Headers", allow)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.svc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "warming"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k tresor.Kind) int {
	switch k {
	case tresor.KindValidation:
		return http.StatusBadRequest
	case tresor.KindAuthRequired:
		return http.StatusUnauthorized
	case tresor.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response. body is the raw request, logged on failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, body []byte) {
	kind := tresor.KindOf(err)
	msg := kind.String()
	var te *tresor.Error
	if errors.As(err, &te) && kind == tresor.KindValidation && te.Msg != "" {
		msg = te.Msg
	}

	f := tresor.Fields{
		"request_id": requestID(r.Context()),
		"path":       r.URL.Path,
		"kind":       kind.String(),
		"err":        err.Error(),
	}
	if body != nil {
		f["body"] = string(body)
	}
	switch kind {
	case tresor.KindInternal, tresor.KindStorageUnavailable:
		s.log.Error("request failed", f)
	default:
		s.log.Debug("request rejected", f)
	}
	writeJSON(w, statusFor(kind), map[string]string{"error": msg})
}
