package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records requests and answers with canned bodies.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   []map[string]any
}

func (f *fakeAPI) record(r *http.Request) {
	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.bodies = append(f.bodies, body)
}

func (f *fakeAPI) last() (string, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

var upgrader = websocket.Upgrader{}

func (f *fakeAPI) serveUpload(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var meta struct {
		Filename string `json:"filename"`
		FileSize int64  `json:"file_size"`
	}
	if err := conn.ReadJSON(&meta); err != nil {
		return
	}
	_ = conn.WriteJSON(map[string]any{"status": "ready"})

	var received int64
	for received < meta.FileSize {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received += int64(len(data))
		_ = conn.WriteJSON(map[string]any{
			"status":   "progress",
			"progress": float64(received) / float64(meta.FileSize) * 100,
			"received": received,
		})
	}
	_ = conn.WriteJSON(map[string]any{
		"status":   "completed",
		"message":  "Audio uploaded and processing started",
		"file_key": "audio_notes/2025/1/2/id_" + meta.Filename,
	})
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{}
	created := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/upload/") {
			f.serveUpload(w, r)
			return
		}
		f.record(r)

		switch {
		case r.URL.Path == "/api/v1/notes" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"n1","title":"Standup","status":"pending","tags":["work","daily"],"created_at":"` + created + `"}]`))
		case r.URL.Path == "/api/v1/notes/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Note not found"}`))
		case r.URL.Path == "/api/v1/notes/n1/summary":
			_, _ = w.Write([]byte(`{"summary":"short"}`))
		case r.URL.Path == "/api/v1/notes/n1/upload":
			_, _ = w.Write([]byte(`{"state":"transferring","file_size":2048,"received":1024,"progress":50,"stale":true,"updated_at":"` + created + `"}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			_, _ = w.Write([]byte(`{"id":"n1","title":"Standup","status":"pending","revision":2}`))
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), &out, append([]string{"--server", srv.URL}, args...))
	return out.String(), err
}

func TestCreate(t *testing.T) {
	api, srv := newFakeAPI(t)

	out, err := run(t, srv, "create", "--title", "Standup", "--tag", "work,daily", "--body", "notes")
	require.NoError(t, err)
	assert.Equal(t, "Created note n1\n", out)

	req, body := api.last()
	assert.Equal(t, "POST /api/v1/notes", req)
	assert.Equal(t, "Standup", body["title"])
	assert.Equal(t, []any{"work", "daily"}, body["tags"])
	assert.Equal(t, "notes", body["notes"])
}

func TestCreate_RequiresTitle(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, err := run(t, srv, "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestList(t *testing.T) {
	api, srv := newFakeAPI(t)

	out, err := run(t, srv, "list", "--tag", "work", "--status", "pending", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "work,daily")
	assert.Contains(t, out, "1 hour ago")

	req, _ := api.last()
	assert.Equal(t, "GET /api/v1/notes?limit=5&status=pending&tags=work", req)
}

func TestUpdate_OnlyChangedFields(t *testing.T) {
	api, srv := newFakeAPI(t)

	out, err := run(t, srv, "update", "n1", "--title", "Retro")
	require.NoError(t, err)
	assert.Equal(t, "Updated note n1 (revision 2)\n", out)

	req, body := api.last()
	assert.Equal(t, "PUT /api/v1/notes/n1", req)
	assert.Equal(t, map[string]any{"title": "Retro"}, body)
}

func TestGetAndErrors(t *testing.T) {
	_, srv := newFakeAPI(t)

	out, err := run(t, srv, "get", "n1")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Standup"`)

	_, err = run(t, srv, "get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Note not found")

	_, err = run(t, srv, "get")
	assert.Error(t, err)
}

func TestSimpleCommands(t *testing.T) {
	api, srv := newFakeAPI(t)

	out, err := run(t, srv, "summary", "n1")
	require.NoError(t, err)
	assert.Equal(t, "short\n", out)

	out, err = run(t, srv, "reset", "n1")
	require.NoError(t, err)
	assert.Equal(t, "Note n1 is pending\n", out)
	req, _ := api.last()
	assert.Equal(t, "POST /api/v1/notes/n1/reset", req)

	out, err = run(t, srv, "delete", "n1")
	require.NoError(t, err)
	assert.Equal(t, "Deleted note n1\n", out)

	out, err = run(t, srv, "upload-status", "n1")
	require.NoError(t, err)
	assert.Contains(t, out, "transferring 50.00% (1.0 KiB / 2.0 KiB)")
	assert.Contains(t, out, "[stale]")
}

func TestUpload(t *testing.T) {
	_, srv := newFakeAPI(t)

	path := filepath.Join(t.TempDir(), "memo.webm")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 2048), 0o600))

	out, err := run(t, srv, "upload", "n1", path, "--chunk-size", "1024")
	require.NoError(t, err)
	assert.Contains(t, out, " 50.00%  1.0 KiB / 2.0 KiB")
	assert.Contains(t, out, "100.00%  2.0 KiB / 2.0 KiB")
	assert.Contains(t, out, "Audio uploaded and processing started")
	assert.Contains(t, out, "key: audio_notes/2025/1/2/id_memo.webm")
}

func TestUpload_EmptyFile(t *testing.T) {
	_, srv := newFakeAPI(t)

	path := filepath.Join(t.TempDir(), "empty.webm")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := run(t, srv, "upload", "n1", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file is empty")
}

func TestConfigFile(t *testing.T) {
	_, srv := newFakeAPI(t)

	cfgPath := filepath.Join(t.TempDir(), "notesctl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server_url: "+srv.URL+"\n"), 0o600))

	var out bytes.Buffer
	err := Execute(context.Background(), &out, []string{"--config", cfgPath, "summary", "n1"})
	require.NoError(t, err)
	assert.Equal(t, "short\n", out.String())

	err = Execute(context.Background(), &out, []string{"--config", filepath.Join(t.TempDir(), "nope.json"), "summary", "n1"})
	assert.Error(t, err)
}
