package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLayoutEndpoint(t *testing.T) {
	tests := []struct {
		enhanced, ocr, remote bool
		want                  string
	}{
		{false, false, false, "/api/layout"},
		{true, false, false, "/api/layout/enhanced"},
		{false, true, false, "/api/ocr/file"},
		{false, false, true, "/api/layout/path"},
		{true, false, true, "/api/layout/path/enhanced"},
		{false, true, true, "/api/ocr/path"},
	}
	for _, tt := range tests {
		got, err := layoutEndpoint(tt.enhanced, tt.ocr, tt.remote)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := layoutEndpoint(true, true, false)
	assert.Error(t, err)
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("http://localhost:8000/", "/uploads/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/markdown?path=%2Fuploads%2Fa.pdf", got)

	got, err = websocketURL("https://example.com/leviosa", "/uploads/a.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "wss://example.com/leviosa/ws/markdown?"))
}

func TestPostFile_SendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "scan.pdf", fh.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))
		json.NewEncoder(w).Encode(map[string]string{"filename": "x.pdf", "path": "/uploads/x.pdf"})
	}))
	defer srv.Close()

	resp, err := newAPIClient(srv.URL).postFile("/api/upload", tempFile(t, "scan.pdf", "%PDF-1.4"))
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, decodeJSON(resp, &out))
	assert.Equal(t, "/uploads/x.pdf", out["path"])
}

func TestDo_ReturnsDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"no API key provided for LLM markdown generation"}`))
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL).postJSON("/api/markdown/refine", map[string]string{"markdown": "# x"})
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "no API key provided for LLM markdown generation", apiErr.Detail)
}

func TestConvertFile(t *testing.T) {
	var hit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		if strings.HasSuffix(r.URL.Path, "/stream") {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Write([]byte(`{"page":1,"markdown":"# One"}` + "\n" + `{"page":2,"markdown":"Two"}` + "\n"))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"markdown": "# Doc", "raw_text": "Doc"})
	}))
	defer srv.Close()
	c := newAPIClient(srv.URL)
	path := tempFile(t, "a.png", "png")

	tests := []struct {
		mode, endpoint, want string
	}{
		{"direct", "/api/layout/enhanced/markdown/direct/multipage", "# Doc\n"},
		{"refined", "/api/layout/enhanced/markdown/refined", "# Doc\n"},
		{"ocr", "/api/ocr-to-markdown", "# Doc\n"},
		{"stream", "/api/layout/enhanced/markdown/stream", "# One\n\nTwo"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, convertFile(c, tt.mode, path, &out))
			assert.Equal(t, tt.endpoint, hit)
			assert.Equal(t, tt.want, out.String())
		})
	}

	assert.Error(t, convertFile(c, "bogus", path, io.Discard))
}

func TestReadNDJSON_InvalidLine(t *testing.T) {
	err := readNDJSON(strings.NewReader("{\"page\":1}\nnot json\n"), func(pageMarkdown) error { return nil })
	assert.Error(t, err)
}

func TestWatchMarkdown(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/markdown", r.URL.Path)
		assert.Equal(t, "/uploads/a.pdf", r.URL.Query().Get("path"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteJSON(wsMessage{Type: "page", Page: 1, Markdown: "# One"})
		conn.WriteJSON(wsMessage{Type: "done", Pages: 1})
	}))
	defer srv.Close()

	wsURL, err := websocketURL(srv.URL, "/uploads/a.pdf")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, watchMarkdown(wsURL, &out, make(chan os.Signal)))
	assert.Equal(t, "<!-- page 1 -->\n# One\n\n", out.String())
}

func TestWatchMarkdown_ServerError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteJSON(wsMessage{Type: "error", Detail: "boom"})
	}))
	defer srv.Close()

	wsURL, err := websocketURL(srv.URL, "/uploads/a.pdf")
	require.NoError(t, err)
	err = watchMarkdown(wsURL, io.Discard, make(chan os.Signal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
