package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/pkg/logger"
)

// CORSMiddleware answers preflight requests and sets CORS headers for allowed origins.
func CORSMiddleware(allowOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		info := models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMs:  time.Since(start).Milliseconds(),
		}
		entry := log.WithRequest(info)
		switch {
		case info.Status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case info.Status >= http.StatusBadRequest:
			entry.Warn("request completed")
		case strings.HasPrefix(info.Path, "/healthz"):
			entry.Debug("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

// RegisterRoutes registers all the routes for the document parsing service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/", api.RootHandler)
	router.GET("/healthz", api.HealthHandler)
	router.GET("/uploads/:name", api.ServeUploadHandler)

	v1 := router.Group("/api")
	{
		v1.POST("/upload", api.UploadHandler)
		v1.GET("/files/:name", api.FileInfoHandler)

		v1.POST("/layout", api.AnalyzeUploadHandler(aggregator.ModeLayout))
		v1.POST("/layout/path", api.AnalyzePathHandler(aggregator.ModeLayout))
		v1.POST("/layout/enhanced", api.AnalyzeUploadHandler(aggregator.ModeEnhanced))
		v1.POST("/layout/path/enhanced", api.AnalyzePathHandler(aggregator.ModeEnhanced))

		v1.POST("/ocr/file", api.AnalyzeUploadHandler(aggregator.ModeOCR))
		v1.POST("/ocr/path", api.AnalyzePathHandler(aggregator.ModeOCR))

		v1.POST("/markdown", api.MarkdownHandler)
		v1.POST("/markdown/refine", api.RefineHandler)
		v1.POST("/ocr-to-markdown", api.OCRToMarkdownHandler)

		v1.POST("/layout/enhanced/markdown/direct/multipage", api.DirectMarkdownHandler)
		v1.POST("/layout/enhanced/markdown/refined", api.RefinedMarkdownHandler)
		v1.POST("/layout/enhanced/markdown/stream", api.StreamMarkdownHandler)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/markdown", api.WebSocketHandler)
	}
}
