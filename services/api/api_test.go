package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool builds a pool that never connects; handlers under test must not
// reach the database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://pipewatch@localhost:1/pipewatch")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func testAPI(t *testing.T, mutate func(*Config)) *API {
	t.Helper()
	cfg := Config{JWTSecret: "test-secret"}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(&Store{DB: testPool(t)}, cfg, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, Config{JWTSecret: "x"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(&Store{}, Config{JWTSecret: "x"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(&Store{DB: testPool(t)}, Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRoutesRequireAuth(t *testing.T) {
	a := testAPI(t, nil)
	router, err := a.Routes()
	require.NoError(t, err)

	for _, path := range []string{
		"/api/v1/user",
		"/api/v1/pipe/trunkline",
	} {
		rec := doJSON(t, router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaybackDataRejectsEmptyDates(t *testing.T) {
	a := testAPI(t, nil)
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/analysis/playback/data", token, map[string]any{
		"dates":     []string{},
		"timeRange": 60,
		"spots":     []string{"S1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
}

func TestPlaybackDataRejectsUnknownField(t *testing.T) {
	a := testAPI(t, nil)
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "nowhere")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/analysis/playback/data", token, map[string]any{
		"dates":     []string{"2024-01-01"},
		"timeRange": 60,
		"spots":     []string{"S1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpotUpdateRejectsUnknownColumn(t *testing.T) {
	a := testAPI(t, nil)
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/spot/update", token, map[string]any{
		"spot_id": "S1",
		"fields":  map[string]any{"id": "S2"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not updatable")
}

func TestModelProxyValidatesBeforeSpawn(t *testing.T) {
	a := testAPI(t, func(cfg *Config) {
		cfg.Interpreter = "/nonexistent/interpreter"
	})
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing arrays",
			body: map[string]any{"sensor_locations": []float64{1, 2}},
		},
		{
			name: "length mismatch",
			body: map[string]any{
				"sensor_locations": []float64{1, 2, 3},
				"normal_pressure":  []float64{10, 20, 30},
				"drop_pressure":    []float64{1, 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/analysis/model/proxy", token, tt.body)
			// 400 proves validation ran; the unrunnable interpreter would
			// have produced a 500.
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestModelProxyHappyPath(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
printf '{"success": true, "predicted_location": 3.25}'
`)
	a := testAPI(t, func(cfg *Config) {
		cfg.Interpreter = "/bin/sh"
		cfg.ProxyScript = script
		cfg.RunTimeout = 10 * time.Second
	})
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/analysis/model/proxy", token, map[string]any{
		"sensor_locations": []float64{0, 5, 10},
		"normal_pressure":  []float64{100, 95, 90},
		"drop_pressure":    []float64{80, 70, 60},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool           `json:"success"`
		Result  map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3.25, resp.Result["predicted_location"])
}

func TestModelProxyScriptFailure(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo "proxy model blew up" >&2
exit 1
`)
	a := testAPI(t, func(cfg *Config) {
		cfg.Interpreter = "/bin/sh"
		cfg.ProxyScript = script
		cfg.RunTimeout = 10 * time.Second
	})
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/analysis/model/proxy", token, map[string]any{
		"sensor_locations": []float64{0, 5},
		"normal_pressure":  []float64{100, 95},
		"drop_pressure":    []float64{80, 70},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "proxy model blew up")
}

func TestModelUploadRejectsBadBase64(t *testing.T) {
	a := testAPI(t, nil)
	router, err := a.Routes()
	require.NoError(t, err)

	token, err := a.tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/pipe/analysis/model/upload", token, map[string]any{
		"model_name": "leak model",
		"tline":      "TL1",
		"parameters": 3,
		"infix":      "p{x}",
		"model": map[string]any{
			"model_data":   "%%% not base64 %%%",
			"model_ext":    ".sav",
			"model_output": "leak",
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
