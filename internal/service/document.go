package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"meddocs/internal/model"
	"meddocs/internal/repository"
	"meddocs/internal/storage"
)

var tracer = otel.Tracer("meddocs/internal/service")

// UploadInput carries one multipart file part plus the optional title.
type UploadInput struct {
	Content     io.Reader
	Filename    string
	ContentType string
	Size        int64
	Title       string
}

// Content is an open blob. Size is the length reported by the store, which is what will
// actually be read; it may differ from the recorded filesize if the blob was replaced.
type Content struct {
	io.ReadCloser
	Size int64
}

// DocumentService defines the document lifecycle use cases.
type DocumentService interface {
	// Upload validates the input, writes the blob, then inserts the row. If the insert fails
	// the blob is removed again before the error is returned.
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)

	// List returns every document, newest first.
	List(ctx context.Context) ([]model.Document, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id int64) (*model.Document, error)

	// Stream returns the document and an open single-pass reader over its PDF bytes.
	// The caller must close the content.
	Stream(ctx context.Context, id int64) (*model.Document, *Content, error)

	// Delete removes the blob (if still present) and then the row.
	Delete(ctx context.Context, id int64) error

	// Reconcile finds, and optionally removes, blobs without rows and rows without blobs.
	Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error)
}

// Option customizes a documentService.
type Option func(*documentService)

// WithClock replaces time.Now, used for storage names and reconcile grace periods.
func WithClock(now func() time.Time) Option {
	return func(s *documentService) { s.now = now }
}

// WithRandom replaces the random suffix source used for storage names.
func WithRandom(rnd func() int64) Option {
	return func(s *documentService) { s.rnd = rnd }
}

type documentService struct {
	store storage.Storage
	repo  repository.DocumentRepository
	log   *zap.Logger
	now   func() time.Time
	rnd   func() int64
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, log *zap.Logger, opts ...Option) DocumentService {
	s := &documentService{
		store: store,
		repo:  repo,
		log:   log.With(zap.String("component", "document_service")),
		now:   time.Now,
		rnd:   func() int64 { return rand.Int64N(randomNameBound) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Upload", trace.WithAttributes(
		attribute.String("document.filename", in.Filename),
		attribute.Int64("document.size", in.Size),
	))
	defer func() { finishSpan(span, err) }()

	if in.Content == nil {
		return nil, ErrFileRequired
	}
	if err := ValidateUpload(in.ContentType, in.Size); err != nil {
		return nil, err
	}

	key := StorageKey(GenerateStorageName(s.now(), s.rnd(), in.Filename))

	// The limit guards against a body longer than its declared size.
	obj, err := s.store.Put(ctx, key, io.LimitReader(in.Content, MaxUploadSize+1), storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: PDFMediaType,
		Metadata: map[string]string{
			"original-filename": in.Filename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upload to storage: %w", ErrStorage, err)
	}
	if obj.Size > MaxUploadSize {
		s.removeBlob(ctx, key)
		return nil, ErrFileTooLarge
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Filename
	}

	stored, err := s.repo.Create(ctx, &model.Document{
		Filename: in.Filename,
		FilePath: key,
		FileSize: obj.Size,
		Title:    title,
	})
	if err != nil {
		s.removeBlob(ctx, key)
		return nil, fmt.Errorf("%w: save metadata: %w", ErrPersistence, err)
	}

	s.log.Info("document uploaded",
		zap.Int64("document_id", stored.ID),
		zap.String("filepath", stored.FilePath),
		zap.Int64("filesize", stored.FileSize),
	)
	return stored, nil
}

// removeBlob is the compensating delete for a failed upload. Its own failure is
// only logged; the orphan is left for Reconcile.
func (s *documentService) removeBlob(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn("compensating blob delete failed", zap.String("filepath", key), zap.Error(err))
	}
}

func (s *documentService) List(ctx context.Context) (docs []model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.List")
	defer func() { finishSpan(span, err) }()

	docs, err = s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrPersistence, err)
	}
	span.SetAttributes(attribute.Int("document.count", len(docs)))
	return docs, nil
}

func (s *documentService) Get(ctx context.Context, id int64) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Get", trace.WithAttributes(attribute.Int64("document.id", id)))
	defer func() { finishSpan(span, err) }()

	return s.find(ctx, id)
}

func (s *documentService) find(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: find document %d: %w", ErrPersistence, id, err)
	}
	return doc, nil
}

func (s *documentService) Stream(ctx context.Context, id int64) (doc *model.Document, content *Content, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Stream", trace.WithAttributes(attribute.Int64("document.id", id)))
	defer func() { finishSpan(span, err) }()

	doc, err = s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	// The blob may have been removed between the row lookup and this open.
	rc, info, err := s.store.Get(ctx, doc.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("document %d: %w", id, ErrBlobMissing)
		}
		s.log.Error("open blob failed", zap.Int64("document_id", id), zap.String("filepath", doc.FilePath), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: open %s: %w", ErrStorage, doc.FilePath, err)
	}
	if info.Size != doc.FileSize {
		s.log.Warn("blob size differs from recorded filesize",
			zap.Int64("document_id", id),
			zap.Int64("filesize", doc.FileSize),
			zap.Int64("blob_size", info.Size),
		)
	}
	return doc, &Content{ReadCloser: rc, Size: info.Size}, nil
}

func (s *documentService) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Delete", trace.WithAttributes(attribute.Int64("document.id", id)))
	defer func() { finishSpan(span, err) }()

	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	// An absent blob is fine; the store treats it as already deleted.
	if err := s.store.Delete(ctx, doc.FilePath); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStorage, doc.FilePath, err)
	}

	// No rollback past this point: the blob is gone even if the row delete fails.
	if err := s.repo.Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		s.log.Error("row delete failed after blob removal",
			zap.Int64("document_id", id),
			zap.String("filepath", doc.FilePath),
			zap.Error(err),
		)
		return fmt.Errorf("%w: delete document %d: %w", ErrPersistence, id, err)
	}

	s.log.Info("document deleted", zap.Int64("document_id", id), zap.String("filepath", doc.FilePath))
	return nil
}
