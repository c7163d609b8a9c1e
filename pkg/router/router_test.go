package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRouter() *Router {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMatchWildcardRoute(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		params  []string
		ok      bool
	}{
		{"/api/v1/runs/abc", "/api/v1/runs/*", []string{"abc"}, true},
		{"/api/v1/runs/abc/steps", "/api/v1/runs/*/steps", []string{"abc"}, true},
		{"/api/v1/runs/abc/steps", "/api/v1/runs/*", nil, false},
		{"/api/v1/download/abc/out.csv", "/api/v1/download/*/*", []string{"abc", "out.csv"}, true},
		{"/api/v1/runs/", "/api/v1/runs/*", nil, false},
		{"/api/v1/jobs/abc", "/api/v1/runs/*", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+tt.pattern, func(t *testing.T) {
			params, ok := matchWildcardRoute(tt.path, tt.pattern)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestRouter_Dispatch(t *testing.T) {
	r := newTestRouter()
	r.GET("/health", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.GET("/runs/*/steps", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, "steps:"+Param(req, 0))
	})
	r.GET("/runs/*", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, "run:"+Param(req, 0))
	})
	r.Mount("/static/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "static")
	}))

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/health", http.StatusOK, "{\"status\":\"ok\"}\n"},
		{http.MethodGet, "/runs/r1", http.StatusOK, "run:r1"},
		{http.MethodGet, "/runs/r1/steps", http.StatusOK, "steps:r1"},
		{http.MethodGet, "/static/index.html", http.StatusOK, "static"},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, "{\"error\":\"method not allowed\"}\n"},
		{http.MethodDelete, "/runs/r1", http.StatusMethodNotAllowed, "{\"error\":\"method not allowed\"}\n"},
		{http.MethodGet, "/nope", http.StatusNotFound, "{\"error\":\"not found\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestRouter_RegistersRoutes(t *testing.T) {
	r := newTestRouter()
	r.POST("/runs", func(http.ResponseWriter, *http.Request) {})
	r.GET("/runs", func(http.ResponseWriter, *http.Request) {})

	assert.Len(t, r.Routes(), 2)
	assert.True(t, r.Paths()["/runs"])
	assert.Empty(t, r.patterns)
}

func TestParam_OutOfRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", Param(req, 0))
}
