package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/docparse_service/service"
	"Leviosa/backend/go/internal/markdown"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/pkg/logger"
)

// MaxUploadBytes bounds multipart uploads.
const MaxUploadBytes = 50 << 20

// API provides handlers for the document parsing service.
type API struct {
	service     *service.DocumentService
	connManager *service.ConnectionManager
	logger      *logger.Logger
	upgrader    websocket.Upgrader
	checks      map[string]func(context.Context) error
}

// NewAPI creates a new API handler. allowOrigins restricts websocket upgrades; empty allows any origin.
func NewAPI(svc *service.DocumentService, connManager *service.ConnectionManager, logger *logger.Logger, allowOrigins []string) *API {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = struct{}{}
	}
	return &API{
		service:     svc,
		connManager: connManager,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// SetHealthChecks registers backend probes reported by /healthz.
func (a *API) SetHealthChecks(checks map[string]func(context.Context) error) {
	a.checks = checks
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type refineRequest struct {
	Markdown string `json:"markdown" binding:"required"`
}

// RootHandler returns the welcome message.
func (a *API) RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to Leviosa AI API"})
}

// HealthHandler reports liveness, whether a generation credential is configured
// and the state of each registered backend. A failing backend answers 503.
func (a *API) HealthHandler(c *gin.Context) {
	status, code := "ok", http.StatusOK
	backends := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			backends[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		backends[name] = "ok"
	}
	c.JSON(code, gin.H{
		"status":         status,
		"llm_configured": a.service.Pipeline().HasCredential(),
		"streams":        a.connManager.Count(),
		"backends":       backends,
	})
}

// UploadHandler stores an uploaded PDF or image.
func (a *API) UploadHandler(c *gin.Context) {
	name, data, err := a.readFile(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	info, err := a.service.Upload(c.Request.Context(), name, data)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": info.Filename, "path": info.Path})
}

// ServeUploadHandler serves a stored upload by name.
func (a *API) ServeUploadHandler(c *gin.Context) {
	data, err := a.service.LoadUpload(c.Request.Context(), c.Param("name"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// FileInfoHandler returns the recorded metadata of an upload.
func (a *API) FileInfoHandler(c *gin.Context) {
	info, err := a.service.FileInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// AnalyzeUploadHandler analyses a multipart upload in the given mode.
func (a *API) AnalyzeUploadHandler(mode aggregator.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		src, ok := a.uploadSource(c)
		if !ok {
			return
		}
		a.analyze(c, src, mode)
	}
}

// AnalyzePathHandler analyses a previously uploaded file in the given mode.
func (a *API) AnalyzePathHandler(mode aggregator.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		src, ok := a.pathSource(c)
		if !ok {
			return
		}
		a.analyze(c, src, mode)
	}
}

func (a *API) analyze(c *gin.Context, src aggregator.Source, mode aggregator.Mode) {
	doc, err := a.service.Analyze(c.Request.Context(), src, mode)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// MarkdownHandler converts a posted document to markdown. It always answers 200 once the body parses.
func (a *API) MarkdownHandler(c *gin.Context) {
	var doc models.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request payload"})
		return
	}
	art := a.service.ConvertDocument(c.Request.Context(), "document", &doc)
	a.writeArtifact(c, art)
}

// OCRToMarkdownHandler runs OCR on an upload and converts the lines to markdown.
func (a *API) OCRToMarkdownHandler(c *gin.Context) {
	src, ok := a.uploadSource(c)
	if !ok {
		return
	}
	art, err := a.service.Convert(c.Request.Context(), src, aggregator.ModeOCR)
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.writeArtifact(c, art)
}

// DirectMarkdownHandler is the direct batch entry: missing credentials and transport failures become errors.
func (a *API) DirectMarkdownHandler(c *gin.Context) {
	src, ok := a.uploadSource(c)
	if !ok {
		return
	}
	art, err := a.service.ConvertDirect(c.Request.Context(), src)
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.writeArtifact(c, art)
}

// RefinedMarkdownHandler runs two-stage synthesis on an upload.
func (a *API) RefinedMarkdownHandler(c *gin.Context) {
	src, ok := a.uploadSource(c)
	if !ok {
		return
	}
	art, err := a.service.Refine(c.Request.Context(), src)
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.writeArtifact(c, art)
}

// RefineHandler is the direct refine entry over caller supplied markdown.
func (a *API) RefineHandler(c *gin.Context) {
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request payload"})
		return
	}
	refined, err := a.service.RefineMarkdown(c.Request.Context(), req.Markdown)
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.writeArtifact(c, models.Artifact{Markdown: refined})
}

// StreamMarkdownHandler writes one NDJSON line per page as soon as it is ready.
func (a *API) StreamMarkdownHandler(c *gin.Context) {
	src, ok := a.uploadSource(c)
	if !ok {
		return
	}
	pages, err := a.service.Stream(c.Request.Context(), src)
	if err != nil {
		a.writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Stream(func(w io.Writer) bool {
		pm, ok := <-pages
		if !ok {
			return false
		}
		return json.NewEncoder(w).Encode(pm) == nil
	})
}

// wsMessage is the frame sent over /ws/markdown.
type wsMessage struct {
	Type     string `json:"type"` // "page", "done" or "error"
	Page     int    `json:"page,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// WebSocketHandler streams per-page markdown of an uploaded file over a websocket.
// The source is resolved before the upgrade so a bad path still gets a plain HTTP error.
func (a *API) WebSocketHandler(c *gin.Context) {
	src, err := a.service.SourceFromPath(c.Request.Context(), c.Query("path"))
	if err != nil {
		a.writeError(c, err)
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}
	id := uuid.NewString()
	a.connManager.Add(id, conn)
	defer a.connManager.Remove(id)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// The reader exits when the client closes; that cancels generation of further pages.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	pages, err := a.service.Stream(ctx, src)
	if err != nil {
		a.connManager.SendJSON(id, wsMessage{Type: "error", Detail: err.Error()})
		return
	}
	sent := 0
	for pm := range pages {
		if !a.connManager.SendJSON(id, wsMessage{Type: "page", Page: pm.Page, Markdown: pm.Markdown}) {
			cancel()
			for range pages {
			}
			return
		}
		sent++
	}
	if ctx.Err() == nil {
		a.connManager.SendJSON(id, wsMessage{Type: "done", Pages: sent})
	}
}

func (a *API) uploadSource(c *gin.Context) (aggregator.Source, bool) {
	name, data, err := a.readFile(c)
	if err == nil {
		var src aggregator.Source
		src, err = a.service.SourceFromBytes(name, data)
		if err == nil {
			return src, true
		}
	}
	a.writeError(c, err)
	return aggregator.Source{}, false
}

func (a *API) pathSource(c *gin.Context) (aggregator.Source, bool) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request payload"})
		return aggregator.Source{}, false
	}
	src, err := a.service.SourceFromPath(c.Request.Context(), req.Path)
	if err != nil {
		a.writeError(c, err)
		return aggregator.Source{}, false
	}
	return src, true
}

var errNoFile = errors.New("missing multipart field 'file'")

func (a *API) readFile(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", errNoFile, err)
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return fh.Filename, data, nil
}

func (a *API) writeArtifact(c *gin.Context, art models.Artifact) {
	if c.Query("render") == "html" {
		html, err := markdown.RenderHTML(art.Markdown)
		if err != nil {
			a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to render markdown preview")
		} else {
			art.HTML = html
		}
	}
	c.JSON(http.StatusOK, art)
}

// writeError maps domain errors to HTTP statuses.
func (a *API) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: status}).Error("Request failed")
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}

// StatusFor returns the HTTP status for an error returned by the service layer.
func StatusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnsupportedType), errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDetectionFailure):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrGenerationEndpoint):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
