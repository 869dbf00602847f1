package server_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

// TestSnapshotFlow_UndoRedo drives the snapshot lifecycle end to end
// over /rpc: two snapshots of a changing project, then undo and redo,
// checking that the bytes on disk follow the cursor.
func TestSnapshotFlow_UndoRedo(t *testing.T) {
	ts := setupServer(t)

	project := filepath.Join(t.TempDir(), "scene.blend")
	if err := os.WriteFile(project, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "project.snapshot", map[string]any{
		"project":     project,
		"description": "before",
	}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	firstID, _ := resultOf(t, parseJSON(t, resp))["snapshotId"].(string)
	if firstID == "" {
		t.Fatal("expected snapshotId in response")
	}

	if err := os.WriteFile(project, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err = doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "project.snapshot", map[string]any{
		"project":     project,
		"description": "after",
	}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	secondID, _ := resultOf(t, parseJSON(t, resp))["snapshotId"].(string)
	if secondID == "" || secondID == firstID {
		t.Fatalf("expected a distinct second snapshotId, got %q", secondID)
	}

	// Undo steps back to the first snapshot and restores its bytes.
	resp, err = doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "project.undo", map[string]any{
		"project": project,
	}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	undo := resultOf(t, parseJSON(t, resp))
	if undo["restoredSnapshotId"] != firstID {
		t.Errorf("expected restoredSnapshotId %q, got %v", firstID, undo["restoredSnapshotId"])
	}
	if raw, _ := os.ReadFile(project); string(raw) != "v1" {
		t.Errorf("expected project restored to v1, got %q", raw)
	}

	// Redo moves the cursor forward again.
	resp, err = doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "project.redo", map[string]any{
		"project": project,
	}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	redo := resultOf(t, parseJSON(t, resp))
	if redo["restoredSnapshotId"] != secondID {
		t.Errorf("expected restoredSnapshotId %q, got %v", secondID, redo["restoredSnapshotId"])
	}
	if raw, _ := os.ReadFile(project); string(raw) != "v2" {
		t.Errorf("expected project restored to v2, got %q", raw)
	}

	// The listing shows both entries with the cursor on the newest.
	resp, err = doRequest(ts.app, http.MethodPost, "/rpc", rpcBody(t, nil, "project.snapshots", map[string]any{
		"project": project,
	}), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	listing := resultOf(t, parseJSON(t, resp))
	snapshots, ok := listing["snapshots"].([]any)
	if !ok || len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %v", listing["snapshots"])
	}
	if listing["currentIndex"] != float64(1) {
		t.Errorf("expected currentIndex 1, got %v", listing["currentIndex"])
	}
}
