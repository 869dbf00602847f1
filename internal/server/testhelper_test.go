package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/harnessgg/blenderbridge/internal/bridge"
	"github.com/harnessgg/blenderbridge/internal/engine"
	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/internal/middleware"
	"github.com/harnessgg/blenderbridge/internal/server"
	"github.com/harnessgg/blenderbridge/internal/snapshot"
	ws "github.com/harnessgg/blenderbridge/internal/websocket"
)

const testAuthSecret = "test-secret-for-rpc"

// stubEngineScript answers both probes the bridge makes: the first line
// satisfies version lookups, the sentinel line satisfies script runs.
const stubEngineScript = `echo "Blender 4.1.0 (stub)"
echo "__HARNESS_JSON__{\"ok\":true,\"objects\":[],\"changed\":false}"
`

// testServer holds the app tests drive requests against.
type testServer struct {
	app *fiber.App
}

// setupServer builds the fiber app the way bridge serve does, with a
// stub engine and no queue or object storage behind it.
func setupServer(t *testing.T) *testServer {
	return setupServerWithAuth(t, "")
}

func setupServerWithAuth(t *testing.T, secret string) *testServer {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub engine binaries are POSIX shell scripts")
	}
	stub := filepath.Join(t.TempDir(), "blender")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\n"+stubEngineScript), 0o755); err != nil {
		t.Fatal(err)
	}

	tracker := jobs.NewTracker()
	hub := ws.NewHub()
	go hub.Run()

	b := bridge.New(engine.New(stub), snapshot.NewStore(), tracker, nil, nil)
	srv := server.New(b, tracker, nil, hub, middleware.NewAuthMiddleware(secret), false)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return &testServer{app: srv.App()}
}

// generateToken creates an HS256 token the auth middleware accepts.
func generateToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "e2e",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testAuthSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// rpcBody builds an /rpc request payload.
func rpcBody(t *testing.T, id any, method string, params map[string]any) string {
	t.Helper()
	req := map[string]any{"method": method}
	if id != nil {
		req["id"] = id
	}
	if params != nil {
		req["params"] = params
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return string(raw)
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request carrying a bearer token.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]any
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// resultOf digs the result object out of a success envelope.
func resultOf(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	result, ok := envelope["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v", envelope["result"])
	}
	return result
}

// errorOf digs the error detail out of a failure envelope.
func errorOf(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	detail, ok := envelope["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", envelope["error"])
	}
	return detail
}
