package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"Leviosa/backend/go/internal/aggregator"
	"Leviosa/backend/go/internal/docparse_service/store"
	"Leviosa/backend/go/internal/markdown"
	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/pkg/logger"
)

// AllowedTypes is the upload allow-list.
var AllowedTypes = []string{"application/pdf", "image/png", "image/jpeg"}

// UploadPrefix is the public path prefix of stored uploads.
const UploadPrefix = "/uploads/"

// Conversion modes reported in events.
const (
	ModeBatch        = "batch"
	ModeDirect       = "direct"
	ModeRefine       = "refine"
	ModeRefineDirect = "refine_direct"
	ModeStream       = "stream"
	ModeOCR          = "ocr"
)

// EventPublisher defines the interface for publishing conversion events.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ConversionEvent) error
	Close() error
}

// Analyzer turns a source document into regions.
type Analyzer interface {
	Process(ctx context.Context, src aggregator.Source, mode aggregator.Mode) (*models.Document, error)
}

// DocumentService provides the business logic behind the HTTP and MCP surfaces.
type DocumentService struct {
	uploads   store.UploadStore
	registry  store.Registry
	analyzer  Analyzer
	pipeline  *markdown.Pipeline
	publisher EventPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(uploads store.UploadStore, registry store.Registry, analyzer Analyzer, pipeline *markdown.Pipeline, publisher EventPublisher, logger *logger.Logger) *DocumentService {
	if registry == nil {
		registry = store.NewMemoryRegistry()
	}
	return &DocumentService{
		uploads:   uploads,
		registry:  registry,
		analyzer:  analyzer,
		pipeline:  pipeline,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Pipeline exposes the synthesis pipeline.
func (s *DocumentService) Pipeline() *markdown.Pipeline {
	return s.pipeline
}

// Upload validates the content type, stores data under a fresh unique name and records its metadata.
func (s *DocumentService) Upload(ctx context.Context, originalName string, data []byte) (models.UploadInfo, error) {
	mt, err := checkType(data)
	if err != nil {
		return models.UploadInfo{}, err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = mt.Extension()
	}
	name := uuid.NewString() + ext

	if err := s.uploads.Save(ctx, name, data); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to save upload")
		return models.UploadInfo{}, err
	}

	info := models.UploadInfo{
		Filename:     name,
		Path:         UploadPrefix + name,
		OriginalName: originalName,
		ContentType:  mt.String(),
		Size:         int64(len(data)),
		UploadedAt:   s.now().Unix(),
	}
	if err := s.registry.Put(ctx, info); err != nil {
		// The file is already stored; missing metadata only affects /api/files.
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to record upload metadata")
	}
	return info, nil
}

// FileInfo returns the recorded metadata of an upload.
func (s *DocumentService) FileInfo(ctx context.Context, path string) (models.UploadInfo, error) {
	name, err := store.CleanName(path)
	if err != nil {
		return models.UploadInfo{}, err
	}
	return s.registry.Get(ctx, name)
}

// LoadUpload returns the bytes of a stored upload.
func (s *DocumentService) LoadUpload(ctx context.Context, path string) ([]byte, error) {
	return s.uploads.Load(ctx, path)
}

// SourceFromPath resolves a previously uploaded file.
func (s *DocumentService) SourceFromPath(ctx context.Context, path string) (aggregator.Source, error) {
	name, err := store.CleanName(path)
	if err != nil {
		return aggregator.Source{}, err
	}
	data, err := s.uploads.Load(ctx, name)
	if err != nil {
		return aggregator.Source{}, err
	}
	return aggregator.Source{Name: name, Data: data}, nil
}

// SourceFromBytes validates an inline upload without storing it.
func (s *DocumentService) SourceFromBytes(name string, data []byte) (aggregator.Source, error) {
	if _, err := checkType(data); err != nil {
		return aggregator.Source{}, err
	}
	return aggregator.Source{Name: name, Data: data}, nil
}

// Analyze runs the aggregator.
func (s *DocumentService) Analyze(ctx context.Context, src aggregator.Source, mode aggregator.Mode) (*models.Document, error) {
	doc, err := s.analyzer.Process(ctx, src, mode)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: errorType(err)}).
			WithPayload(map[string]interface{}{"source": src.Name, "mode": string(mode)}).
			Warn("Document analysis failed")
		return nil, err
	}
	return doc, nil
}

// ConvertDocument runs batch synthesis over an already analysed document.
func (s *DocumentService) ConvertDocument(ctx context.Context, source string, doc *models.Document) models.Artifact {
	start := s.now()
	art := s.pipeline.Convert(ctx, doc)
	s.emit(ctx, source, ModeBatch, doc, art.Markdown, start, nil)
	return art
}

// Convert analyses src in the given mode and then runs batch synthesis.
func (s *DocumentService) Convert(ctx context.Context, src aggregator.Source, mode aggregator.Mode) (models.Artifact, error) {
	doc, err := s.Analyze(ctx, src, mode)
	if err != nil {
		return models.Artifact{}, err
	}
	start := s.now()
	art := s.pipeline.Convert(ctx, doc)
	eventMode := ModeBatch
	if mode == aggregator.ModeOCR {
		eventMode = ModeOCR
	}
	s.emit(ctx, src.Name, eventMode, doc, art.Markdown, start, nil)
	return art, nil
}

// ConvertDirect runs enhanced analysis plus the direct batch entry, which propagates errors.
func (s *DocumentService) ConvertDirect(ctx context.Context, src aggregator.Source) (models.Artifact, error) {
	doc, err := s.Analyze(ctx, src, aggregator.ModeEnhanced)
	if err != nil {
		return models.Artifact{}, err
	}
	start := s.now()
	art, err := s.pipeline.ConvertDirect(ctx, doc)
	s.emit(ctx, src.Name, ModeDirect, doc, art.Markdown, start, err)
	return art, err
}

// Refine runs enhanced analysis and two-stage synthesis.
func (s *DocumentService) Refine(ctx context.Context, src aggregator.Source) (models.Artifact, error) {
	doc, err := s.Analyze(ctx, src, aggregator.ModeEnhanced)
	if err != nil {
		return models.Artifact{}, err
	}
	start := s.now()
	art := s.pipeline.Refine(ctx, doc)
	s.emit(ctx, src.Name, ModeRefine, doc, art.Markdown, start, nil)
	return art, nil
}

// RefineMarkdown refines caller supplied markdown through the direct entry.
func (s *DocumentService) RefineMarkdown(ctx context.Context, md string) (string, error) {
	start := s.now()
	refined, err := s.pipeline.RefineDirect(ctx, md)
	s.emit(ctx, "markdown", ModeRefineDirect, nil, refined, start, err)
	return refined, err
}

// Stream runs enhanced analysis and then yields per-page markdown in page order.
// Analysis errors are returned before any page is produced.
func (s *DocumentService) Stream(ctx context.Context, src aggregator.Source) (<-chan models.PageMarkdown, error) {
	doc, err := s.Analyze(ctx, src, aggregator.ModeEnhanced)
	if err != nil {
		return nil, err
	}
	start := s.now()
	in := s.pipeline.Stream(ctx, doc)
	out := make(chan models.PageMarkdown)
	go func() {
		defer close(out)
		degraded := !s.pipeline.HasCredential()
		sent := 0
		for pm := range in {
			if markdown.IsDiagnostic(pm.Markdown) {
				degraded = true
			}
			select {
			case out <- pm:
				sent++
			case <-ctx.Done():
				// Drain so the producer observes cancellation and exits.
				for range in {
				}
				return
			}
		}
		event := s.event(src.Name, ModeStream, sent, degraded, start, ctx.Err())
		s.publish(context.WithoutCancel(ctx), event)
	}()
	return out, nil
}

func (s *DocumentService) emit(ctx context.Context, source, mode string, doc *models.Document, md string, start time.Time, err error) {
	pages := 0
	if doc != nil {
		pages = len(doc.Pages)
	}
	degraded := err != nil || markdown.IsDiagnostic(md) || !s.pipeline.HasCredential()
	s.publish(context.WithoutCancel(ctx), s.event(source, mode, pages, degraded, start, err))
}

func (s *DocumentService) event(source, mode string, pages int, degraded bool, start time.Time, err error) models.ConversionEvent {
	ev := models.ConversionEvent{
		RequestID:  uuid.NewString(),
		Source:     source,
		Mode:       mode,
		Pages:      pages,
		Degraded:   degraded,
		DurationMs: s.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (s *DocumentService) publish(ctx context.Context, ev models.ConversionEvent) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to publish conversion event")
	}
}

// Close releases the publisher.
func (s *DocumentService) Close() error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Close()
}

func checkType(data []byte) (*mimetype.MIME, error) {
	mt := mimetype.Detect(data)
	for _, allowed := range AllowedTypes {
		if mt.Is(allowed) {
			return mt, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (supported: %s)", models.ErrUnsupportedType, mt.String(), strings.Join(AllowedTypes, ", "))
}

func errorType(err error) string {
	switch {
	case errors.Is(err, models.ErrDetectionFailure):
		return "detection_failure"
	case errors.Is(err, models.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, models.ErrGenerationEndpoint):
		return "generation_endpoint"
	default:
		return ""
	}
}
