package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/formflat/internal/export"
	"github.com/happyhackingspace/formflat/internal/kobo"
	"github.com/happyhackingspace/formflat/internal/options"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newUpstream fakes the survey API, serving the household fixture as form 42.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	def, err := os.ReadFile("../../testdata/household/form.json")
	require.NoError(t, err)
	data, err := os.ReadFile("../../testdata/household/data.json")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != "enumerator" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail": "Invalid username/password."}`)
			return
		}
		_, _ = io.WriteString(w, `{"api_token": "tok123"}`)
	})
	authed := func(body []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Token tok123" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail": "Invalid token."}`)
				return
			}
			_, _ = w.Write(body)
		}
	}
	mux.HandleFunc("/forms", authed([]byte(`[{"formid": 42, "title": "Household Survey"}]`)))
	mux.HandleFunc("/forms/42/form.json", authed(def))
	mux.HandleFunc("/data/42", authed(data))
	mux.HandleFunc("/forms/13/form.json", authed([]byte(`{"name": "broken"}`)))
	mux.HandleFunc("/data/13", authed([]byte(`[]`)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, staticDir string) *Server {
	t.Helper()
	up := newUpstream(t)
	return New(Config{
		Client:    kobo.New(up.URL),
		Options:   options.Default(),
		StaticDir: staticDir,
	})
}

func performJSON(s *Server, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)
	return w
}

func performForm(s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestFetchToken(t *testing.T) {
	s := newTestServer(t, "")

	w := performJSON(s, "/fetch-token", map[string]string{"username": "enumerator", "password": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"token": "tok123"}`, w.Body.String())

	w = performJSON(s, "/fetch-token", map[string]string{"username": "enumerator", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, CodeAuth, e.Code)
	assert.Contains(t, e.Message, "Invalid username/password.")

	w = performJSON(s, "/fetch-token", map[string]string{"username": "enumerator"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, w).Code)
}

func TestFetchForms(t *testing.T) {
	s := newTestServer(t, "")

	w := performJSON(s, "/fetch-forms", map[string]string{"token": "tok123", "username": "enumerator"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"formid": 42, "title": "Household Survey"}]`, w.Body.String())

	w = performJSON(s, "/fetch-forms", map[string]string{"token": "expired"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadData(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name     string
		format   string
		filename string
		ctype    string
	}{
		{"default xlsx", "", "42.xlsx", export.FormatXLSX.ContentType()},
		{"csv zip", "csv", "42.zip", export.FormatCSV.ContentType()},
		{"sqlite", "sqlite", "42.sqlite", export.FormatSQLite.ContentType()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"userToken": {"tok123"}}
			if tt.format != "" {
				form.Set("format", tt.format)
			}
			w := performForm(s, "/download-data/42", form)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Disposition"), tt.filename)
			assert.Equal(t, tt.ctype, w.Header().Get("Content-Type"))
			assert.NotEmpty(t, w.Header().Get("X-Job-ID"))
			assert.NotZero(t, w.Body.Len())
		})
	}
}

func TestDownloadData_CSVContents(t *testing.T) {
	s := newTestServer(t, "")
	w := performForm(s, "/download-data/42", url.Values{"userToken": {"tok123"}, "format": {"csv"}})
	require.Equal(t, http.StatusOK, w.Code)

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"household_survey.csv", "members.csv"}, names)
}

func TestDownloadData_Errors(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name   string
		pk     string
		form   url.Values
		status int
		code   string
	}{
		{"non-numeric pk", "abc", url.Values{"userToken": {"tok123"}}, http.StatusBadRequest, CodeBadRequest},
		{"negative pk", "-1", url.Values{"userToken": {"tok123"}}, http.StatusBadRequest, CodeBadRequest},
		{"missing token", "42", url.Values{}, http.StatusBadRequest, CodeBadRequest},
		{"unknown format", "42", url.Values{"userToken": {"tok123"}, "format": {"pdf"}}, http.StatusBadRequest, CodeBadRequest},
		{"bad token", "42", url.Values{"userToken": {"expired"}}, http.StatusUnauthorized, CodeAuth},
		{"unknown form", "99", url.Values{"userToken": {"tok123"}}, http.StatusBadGateway, CodeSourceData},
		{"broken definition", "13", url.Values{"userToken": {"tok123"}}, http.StatusBadGateway, CodeSourceData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performForm(s, "/download-data/"+tt.pk, tt.form)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.Empty(t, w.Header().Get("Content-Disposition"))
		})
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>formflat</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0644))
	s := newTestServer(t, dir)

	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "formflat")

	w = httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())
}
