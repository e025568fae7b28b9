package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"itinerary-collab-be/internal/bootstrap"
	"itinerary-collab-be/internal/config"
	"itinerary-collab-be/internal/dto"
	"itinerary-collab-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "server-test-secret"

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{
			Port:               "0",
			Environment:        "test",
			LogFilePath:        filepath.Join(dir, "app.log"),
			CollabLogFilePath:  filepath.Join(dir, "collab.log"),
			CorsAllowedOrigins: "*",
			JwtSecret:          secret,
		},
		Snapshot: config.SnapshotConfig{Backend: "memory", CheckpointEvery: 10},
		Ai:       config.AIConfig{LLMProvider: "static", GenerateTimeout: 5 * time.Second},
	}
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := testConfig(t)
	container, err := bootstrap.NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	return New(cfg, container).GetApp()
}

func token(t *testing.T) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.NewString(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, app *fiber.App, method, path, body string, auth bool) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+token(t))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) serverutils.BaseResponse[T] {
	t.Helper()
	defer resp.Body.Close()
	var out serverutils.BaseResponse[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestDocumentRoutes(t *testing.T) {
	app := newApp(t)

	t.Run("requires a token", func(t *testing.T) {
		resp := do(t, app, "GET", "/api/documents/lisbon", "", false)
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("unknown document is the empty document", func(t *testing.T) {
		resp := do(t, app, "GET", "/api/documents/lisbon", "", true)
		require.Equal(t, 200, resp.StatusCode)
		body := decode[dto.DocumentResponse](t, resp)
		assert.Equal(t, 0, body.Data.Version)
		assert.False(t, body.Data.Live)
		assert.Equal(t, "<p></p>", body.Data.Html)
	})

	t.Run("compile preview does not submit", func(t *testing.T) {
		resp := do(t, app, "POST", "/api/documents/lisbon/compile", `{"markup":"<h1>Lisbon</h1>"}`, true)
		require.Equal(t, 200, resp.StatusCode)
		body := decode[dto.CompileResponse](t, resp)
		assert.Equal(t, "replace-empty", body.Data.Mode)
		assert.NotEmpty(t, body.Data.Steps)
		assert.Equal(t, "Lisbon", body.Data.Document.TextContent())

		show := decode[dto.DocumentResponse](t, do(t, app, "GET", "/api/documents/lisbon", "", true))
		assert.Equal(t, 0, show.Data.Version)
	})

	t.Run("invalid markup is 422", func(t *testing.T) {
		resp := do(t, app, "POST", "/api/documents/lisbon/compile", `{"markup":"<table><tr><td>x</td></tr></table>"}`, true)
		require.Equal(t, 422, resp.StatusCode)
		body := decode[dto.CompileErrorResponse](t, resp)
		assert.NotEmpty(t, body.Data.Kind)
	})

	t.Run("compile validates the body", func(t *testing.T) {
		resp := do(t, app, "POST", "/api/documents/lisbon/compile", `{"markup":"<p>x</p>","mode":"prepend"}`, true)
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("generate writes into the document", func(t *testing.T) {
		resp := do(t, app, "POST", "/api/documents/lisbon/generate", `{"prompt":"two days in Lisbon"}`, true)
		require.Equal(t, 200, resp.StatusCode)
		gen := decode[dto.GenerateResponse](t, resp)
		assert.Equal(t, "replace-empty", gen.Data.Mode)
		assert.Positive(t, gen.Data.Version)

		show := decode[dto.DocumentResponse](t, do(t, app, "GET", "/api/documents/lisbon", "", true))
		assert.Equal(t, gen.Data.Version, show.Data.Version)
		assert.Contains(t, show.Data.Html, "<h2>Day 1</h2>")
	})
}

func TestOpsStats(t *testing.T) {
	app := newApp(t)
	resp := do(t, app, "GET", "/api/ops/stats", "", true)
	require.Equal(t, 200, resp.StatusCode)
	body := decode[dto.OpsStatsResponse](t, resp)
	assert.Equal(t, 0, body.Data.Connections)
	assert.Empty(t, body.Data.ActiveDocuments)
}
