package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/docparse_service/service"
	"Leviosa/backend/go/internal/docparse_service/store"
	"Leviosa/backend/go/internal/llm"
	"Leviosa/backend/go/internal/markdown"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/internal/prompt"
	"Leviosa/backend/go/pkg/logger"
)

type fakeAnalyzer struct {
	doc *models.Document
	err error
}

func (f *fakeAnalyzer) Process(context.Context, aggregator.Source, aggregator.Mode) (*models.Document, error) {
	return f.doc, f.err
}

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) GenerateContent(context.Context, *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.GenerateContentResponse{Content: []models.Content{{Parts: []*models.Part{{Text: f.reply}}}}}, nil
}

func twoPages() *models.Document {
	region := func(page int, text string) models.Region {
		return models.Region{ID: "r", Type: models.RegionText, Content: models.TextContent(text), Page: page}
	}
	return &models.Document{Pages: []models.Page{
		{Page: 1, Results: []models.Region{region(1, "alpha")}},
		{Page: 2, Results: []models.Region{region(2, "beta")}},
	}}
}

func setupRouter(t *testing.T, analyzer service.Analyzer, gen llm.LLM) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploads, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	pipeline := markdown.NewPipeline(gen, prompt.NewLoader("testdata-missing"), logger.Discard())
	svc := service.NewDocumentService(uploads, nil, analyzer, pipeline, nil, logger.Discard())

	router := gin.New()
	router.Use(CORSMiddleware([]string{"http://localhost:5173"}))
	RegisterRoutes(router, NewAPI(svc, service.NewConnectionManager(), logger.Discard(), nil))
	return router
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{}, nil)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Welcome to Leviosa AI API"}`, w.Body.String())
}

func TestUploadServeAndInfo(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{}, nil)
	data := pngBytes(t)

	w := serve(router, multipartRequest(t, "/api/upload", "scan.png", data))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Filename string `json:"filename"`
		Path     string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/uploads/"+resp.Filename, resp.Path)

	w = serve(router, httptest.NewRequest(http.MethodGet, resp.Path, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, data, w.Body.Bytes())

	w = serve(router, httptest.NewRequest(http.MethodGet, "/api/files/"+resp.Filename, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"original_name":"scan.png"`)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/api/files/unknown.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload_BadInput(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{}, nil)

	w := serve(router, multipartRequest(t, "/api/upload", "notes.txt", []byte("hello there")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, jsonRequest(http.MethodPost, "/api/upload", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLayoutEndpoints(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{doc: twoPages()}, nil)

	w := serve(router, multipartRequest(t, "/api/layout/enhanced", "a.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, w.Code)
	var doc models.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Pages, 2)
	assert.Equal(t, "alpha", doc.Pages[0].Results[0].Text())

	w = serve(router, jsonRequest(http.MethodPost, "/api/layout/path", `{"path":"/uploads/missing.pdf"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, jsonRequest(http.MethodPost, "/api/ocr/path", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLayout_DetectionFailure(t *testing.T) {
	err := fmt.Errorf("%w: page 1: boom", models.ErrDetectionFailure)
	router := setupRouter(t, &fakeAnalyzer{err: err}, nil)

	w := serve(router, multipartRequest(t, "/api/layout", "a.png", pngBytes(t)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "page 1")
}

func TestMarkdown(t *testing.T) {
	body := `{"pages":[{"page":1,"results":[{"region_id":"r","region_type":"text","bbox_raw":[0,0,1,1],"bbox_norm":[0,0,1,1],"content":{"text":"Hello"},"page":1}]}]}`

	t.Run("no credential falls back to raw text", func(t *testing.T) {
		router := setupRouter(t, &fakeAnalyzer{}, nil)
		w := serve(router, jsonRequest(http.MethodPost, "/api/markdown", body))
		require.Equal(t, http.StatusOK, w.Code)
		var art models.Artifact
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &art))
		assert.Equal(t, "--- Page 1 ---\n\nHello\n", art.RawText)
		assert.Equal(t, art.RawText, art.Markdown)
	})

	t.Run("render html", func(t *testing.T) {
		router := setupRouter(t, &fakeAnalyzer{}, &fakeLLM{reply: "# Title"})
		w := serve(router, jsonRequest(http.MethodPost, "/api/markdown?render=html", body))
		require.Equal(t, http.StatusOK, w.Code)
		var art models.Artifact
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &art))
		assert.Equal(t, "# Title", art.Markdown)
		assert.Contains(t, art.HTML, "<h1>Title</h1>")
	})

	t.Run("endpoint failure is still 200", func(t *testing.T) {
		gen := &fakeLLM{err: &llm.ResponseError{StatusCode: 500, Body: "oops"}}
		router := setupRouter(t, &fakeAnalyzer{}, gen)
		w := serve(router, jsonRequest(http.MethodPost, "/api/markdown", body))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Error in LLM response: oops")
	})

	t.Run("bad body", func(t *testing.T) {
		router := setupRouter(t, &fakeAnalyzer{}, nil)
		w := serve(router, jsonRequest(http.MethodPost, "/api/markdown", `not json`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDirectMultipage(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		router := setupRouter(t, &fakeAnalyzer{doc: twoPages()}, nil)
		w := serve(router, multipartRequest(t, "/api/layout/enhanced/markdown/direct/multipage", "a.png", pngBytes(t)))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("transport failure", func(t *testing.T) {
		gen := &fakeLLM{err: fmt.Errorf("%w: http: %w", models.ErrGenerationEndpoint, errors.New("connection refused"))}
		router := setupRouter(t, &fakeAnalyzer{doc: twoPages()}, gen)
		w := serve(router, multipartRequest(t, "/api/layout/enhanced/markdown/direct/multipage", "a.png", pngBytes(t)))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		router := setupRouter(t, &fakeAnalyzer{doc: twoPages()}, &fakeLLM{reply: "# Doc"})
		w := serve(router, multipartRequest(t, "/api/layout/enhanced/markdown/direct/multipage", "a.png", pngBytes(t)))
		require.Equal(t, http.StatusOK, w.Code)
		var art models.Artifact
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &art))
		assert.Equal(t, "# Doc", art.Markdown)
		require.NotNil(t, art.LayoutData)
		assert.Len(t, art.LayoutData.Pages, 2)
	})
}

func TestRefine(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{}, nil)
	w := serve(router, jsonRequest(http.MethodPost, "/api/markdown/refine", `{"markdown":"# x"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	router = setupRouter(t, &fakeAnalyzer{}, &fakeLLM{reply: "# y"})
	w = serve(router, jsonRequest(http.MethodPost, "/api/markdown/refine", `{"markdown":"# x"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"markdown":"# y"`)
}

func TestStreamNDJSON(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{doc: twoPages()}, nil)
	// c.Stream needs a real connection (CloseNotify), so go through a test server.
	srv := httptest.NewServer(router)
	defer srv.Close()

	req := multipartRequest(t, srv.URL+"/api/layout/enhanced/markdown/stream", "a.png", pngBytes(t))
	req.RequestURI = ""
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var pages []models.PageMarkdown
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var pm models.PageMarkdown
		require.NoError(t, json.Unmarshal(sc.Bytes(), &pm))
		pages = append(pages, pm)
	}
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Page)
	assert.Equal(t, "alpha\n", pages[0].Markdown)
	assert.Equal(t, 2, pages[1].Page)
}

func TestWebSocketMarkdown(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{doc: twoPages()}, &fakeLLM{reply: "# page"})
	srv := httptest.NewServer(router)
	defer srv.Close()

	// Upload first so the socket has a path to stream.
	upload := multipartRequest(t, srv.URL+"/api/upload", "a.png", pngBytes(t))
	upload.RequestURI = ""
	resp, err := http.DefaultClient.Do(upload)
	require.NoError(t, err)
	var info struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/markdown?path=" + info.Path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msgs []wsMessage
	for {
		var m wsMessage
		require.NoError(t, conn.ReadJSON(&m))
		msgs = append(msgs, m)
		if m.Type == "done" || m.Type == "error" {
			break
		}
	}
	require.Len(t, msgs, 3)
	assert.Equal(t, wsMessage{Type: "page", Page: 1, Markdown: "# page"}, msgs[0])
	assert.Equal(t, 2, msgs[1].Page)
	assert.Equal(t, wsMessage{Type: "done", Pages: 2}, msgs[2])
}

func TestWebSocketMarkdown_UnknownPath(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{}, nil)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/ws/markdown?path=/uploads/none.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := setupRouter(t, &fakeAnalyzer{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := serve(router, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = serve(router, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrUnsupportedType, http.StatusBadRequest},
		{models.ErrDetectionFailure, http.StatusBadGateway},
		{models.ErrMissingCredential, http.StatusServiceUnavailable},
		{&llm.ResponseError{StatusCode: 400, Body: "bad"}, http.StatusBadGateway},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uploads, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	pipeline := markdown.NewPipeline(nil, prompt.NewLoader("testdata-missing"), logger.Discard())
	svc := service.NewDocumentService(uploads, nil, &fakeAnalyzer{}, pipeline, nil, logger.Discard())
	handler := NewAPI(svc, service.NewConnectionManager(), logger.Discard(), nil)
	router := gin.New()
	RegisterRoutes(router, handler)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","llm_configured":false,"streams":0,"backends":{}}`, w.Body.String())

	handler.SetHealthChecks(map[string]func(context.Context) error{
		"redis": func(context.Context) error { return errors.New("connection refused") },
		"kafka": func(context.Context) error { return nil },
	})
	w = serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"redis": "connection refused", "kafka": "ok"}, resp.Backends)
}
