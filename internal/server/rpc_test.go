package server_test

import (
	"net/http"
	"testing"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

func TestRPC_SystemHealth(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, 1, "system.health", nil), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["ok"] != true {
		t.Errorf("expected ok true, got %v", body["ok"])
	}
	if body["protocolVersion"] != protocol.ProtocolVersion {
		t.Errorf("expected protocolVersion %q, got %v", protocol.ProtocolVersion, body["protocolVersion"])
	}
	if body["id"] != float64(1) {
		t.Errorf("expected id 1 echoed back, got %v", body["id"])
	}

	result := resultOf(t, body)
	if result["ok"] != true {
		t.Errorf("expected result.ok true, got %v", result["ok"])
	}
	if result["blenderVersion"] != "Blender 4.1.0 (stub)" {
		t.Errorf("unexpected blenderVersion: %v", result["blenderVersion"])
	}
}

func TestRPC_SystemActions(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "system.actions", nil), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := resultOf(t, parseJSON(t, resp))
	actions, ok := result["actions"].([]any)
	if !ok || len(actions) == 0 {
		t.Fatalf("expected non-empty actions list, got %v", result["actions"])
	}
	found := false
	for _, a := range actions {
		if a == "scene.object.add" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected 'scene.object.add' in actions")
	}
}

func TestRPC_MalformedBody(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", `{"method": `, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	if body["ok"] != false {
		t.Errorf("expected ok false, got %v", body["ok"])
	}
	detail := errorOf(t, body)
	if detail["code"] != protocol.CodeInvalidInput {
		t.Errorf("expected code %s, got %v", protocol.CodeInvalidInput, detail["code"])
	}
	if detail["message"] != "Request body must be a JSON object" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_MissingMethod(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", `{"id": 7}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	detail := errorOf(t, parseJSON(t, resp))
	if detail["code"] != protocol.CodeInvalidInput {
		t.Errorf("expected code %s, got %v", protocol.CodeInvalidInput, detail["code"])
	}
	if detail["message"] != "Missing required parameter: 'method'" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_UnknownMethod(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "scene.teleport", nil), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	detail := errorOf(t, parseJSON(t, resp))
	if detail["code"] != protocol.CodeInvalidInput {
		t.Errorf("expected code %s, got %v", protocol.CodeInvalidInput, detail["code"])
	}
	if detail["message"] != "Unknown method: scene.teleport" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_MissingParameter(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "scene.object.list", map[string]any{}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	detail := errorOf(t, parseJSON(t, resp))
	if detail["code"] != protocol.CodeInvalidInput {
		t.Errorf("expected code %s, got %v", protocol.CodeInvalidInput, detail["code"])
	}
	if detail["message"] != "Missing required parameter: 'project'" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_ProjectNotFound(t *testing.T) {
	ts := setupServer(t)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "project.inspect", map[string]any{
		"project": "/no/such/scene.blend",
	}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	detail := errorOf(t, parseJSON(t, resp))
	if detail["code"] != protocol.CodeNotFound {
		t.Errorf("expected code %s, got %v", protocol.CodeNotFound, detail["code"])
	}
	if detail["message"] != "File not found: /no/such/scene.blend" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_NoAuth(t *testing.T) {
	ts := setupServerWithAuth(t, testAuthSecret)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "system.actions", nil), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)

	detail := errorOf(t, parseJSON(t, resp))
	if detail["code"] != protocol.CodeUnauthorized {
		t.Errorf("expected code %s, got %v", protocol.CodeUnauthorized, detail["code"])
	}
	if detail["message"] != "Missing authorization header" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_BadToken(t *testing.T) {
	ts := setupServerWithAuth(t, testAuthSecret)

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "system.actions", nil), map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)

	detail := errorOf(t, parseJSON(t, resp))
	if detail["message"] != "Invalid or expired token" {
		t.Errorf("unexpected message: %v", detail["message"])
	}
}

func TestRPC_ValidToken(t *testing.T) {
	ts := setupServerWithAuth(t, testAuthSecret)

	resp, err := doAuthRequest(t, ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "system.actions", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["ok"] != true {
		t.Errorf("expected ok true, got %v", body["ok"])
	}
}
