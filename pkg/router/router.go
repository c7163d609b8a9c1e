package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type paramsKey struct{}

type Router struct {
	mux      *http.ServeMux
	routes   map[string]HandlerFunc // key = METHOD:PATH
	paths    map[string]bool        // track registered paths
	patterns []string               // wildcard paths in registration order
	prefixes map[string]http.Handler
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		routes:   make(map[string]HandlerFunc),
		paths:    make(map[string]bool),
		prefixes: make(map[string]http.Handler),
		logger:   logger,
	}
	r.mux.HandleFunc("/", r.serve)
	return r
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	r.dispatch(lrw, req)

	r.logger.Info("request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", lrw.statusCode,
		"duration", time.Since(start),
	)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	key := req.Method + ":" + req.URL.Path
	if h, ok := r.routes[key]; ok {
		h(w, req)
		return
	}

	// wildcard routes, first registered wins
	methodMismatch := r.paths[req.URL.Path]
	for _, pattern := range r.patterns {
		params, ok := matchWildcardRoute(req.URL.Path, pattern)
		if !ok {
			continue
		}
		h, ok := r.routes[req.Method+":"+pattern]
		if !ok {
			methodMismatch = true
			continue
		}
		h(w, req.WithContext(context.WithValue(req.Context(), paramsKey{}, params)))
		return
	}

	for prefix, h := range r.prefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			h.ServeHTTP(w, req)
			return
		}
	}

	if methodMismatch {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	Error(w, http.StatusNotFound, "not found")
}

// matchWildcardRoute checks if a request path matches a wildcard route pattern
// and returns the segments captured by each "*".
func matchWildcardRoute(requestPath, routePattern string) ([]string, bool) {
	requestSegments := strings.Split(strings.Trim(requestPath, "/"), "/")
	routeSegments := strings.Split(strings.Trim(routePattern, "/"), "/")

	if len(requestSegments) != len(routeSegments) {
		return nil, false
	}

	var params []string
	for i, routeSegment := range routeSegments {
		if routeSegment == "*" {
			if requestSegments[i] == "" {
				return nil, false
			}
			params = append(params, requestSegments[i])
			continue
		}
		if requestSegments[i] != routeSegment {
			return nil, false
		}
	}
	return params, true
}

// Param returns the i-th wildcard segment captured for the request.
func Param(req *http.Request, i int) string {
	params, _ := req.Context().Value(paramsKey{}).([]string)
	if i < 0 || i >= len(params) {
		return ""
	}
	return params[i]
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	key := method + ":" + path
	if _, seen := r.paths[path]; !seen && strings.Contains(path, "*") {
		r.patterns = append(r.patterns, path)
	}
	r.routes[key] = handler
	r.paths[path] = true
}

func (r *Router) GET(path string, handler HandlerFunc)   { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)  { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler HandlerFunc)   { r.register(http.MethodPut, path, handler) }
func (r *Router) PATCH(path string, handler HandlerFunc) { r.register(http.MethodPatch, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) {
	r.register(http.MethodDelete, path, handler)
}

// Mount serves every path under prefix with h, after all registered routes.
func (r *Router) Mount(prefix string, h http.Handler) {
	r.prefixes[prefix] = h
}

// Getter methods for testing
func (r *Router) Routes() map[string]HandlerFunc {
	return r.routes
}

func (r *Router) Paths() map[string]bool {
	return r.paths
}

// ServeHTTP lets the router be used directly as an http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- Start server ---

// Start serves until ctx is cancelled, then waits up to shutdownTimeout for
// in-flight requests.
func (r *Router) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		r.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// --- JSON helpers ---

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes a {"error": message} body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
